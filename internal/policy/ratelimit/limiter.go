// Package ratelimit spaces out outbound page fetches per host.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/bookmarks/internal/metrics"
)

const (
	defaultMaxHosts = 10000
	defaultIdleTTL  = 10 * time.Minute

	// otherHost labels delay metrics for hosts without an override, which
	// callers choose freely.
	otherHost = "other"
)

// Config holds rate limiter configuration.
type Config struct {
	// RPS is the steady request rate per host; zero or negative disables limiting.
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
	// Hosts overrides RPS for specific hostnames.
	Hosts map[string]float64 `mapstructure:"hosts"`
	// MaxHosts caps how many per-host buckets are kept; the least recently
	// used bucket is dropped first. Zero means 10000.
	MaxHosts int `mapstructure:"max_hosts"`
	// IdleTTL drops a bucket that has not been used for this long. Zero means 10m.
	IdleTTL time.Duration `mapstructure:"idle_ttl"`
}

// Limiter manages per-host token buckets.
type Limiter struct {
	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
	rate     rate.Limit
	burst    int
	hosts    map[string]rate.Limit
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	maxHosts := cfg.MaxHosts
	if maxHosts <= 0 {
		maxHosts = defaultMaxHosts
	}
	ttl := cfg.IdleTTL
	if ttl <= 0 {
		ttl = defaultIdleTTL
	}
	hosts := make(map[string]rate.Limit, len(cfg.Hosts))
	for host, rps := range cfg.Hosts {
		hosts[strings.ToLower(host)] = toLimit(rps)
	}
	return &Limiter{
		limiters: expirable.NewLRU[string, *rate.Limiter](maxHosts, nil, ttl),
		rate:     toLimit(cfg.RPS),
		burst:    burst,
		hosts:    hosts,
	}
}

func toLimit(rps float64) rate.Limit {
	if rps <= 0 {
		return rate.Inf
	}
	return rate.Limit(rps)
}

// Wait blocks until the host of rawURL may be fetched, respecting the context.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)
	limiter := l.limiterFor(host)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(l.metricHost(host), waited)
	}
	return nil
}

// limiterFor returns the bucket for host. Re-adding an existing bucket
// refreshes its idle deadline.
func (l *Limiter) limiterFor(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters.Get(host)
	if !ok {
		limit, override := l.hosts[host]
		if !override {
			limit = l.rate
		}
		limiter = rate.NewLimiter(limit, l.burst)
	}
	l.limiters.Add(host, limiter)
	return limiter
}

// tracked reports how many per-host buckets are currently held.
func (l *Limiter) tracked() int {
	return l.limiters.Len()
}

func (l *Limiter) metricHost(host string) string {
	if _, ok := l.hosts[host]; ok {
		return host
	}
	return otherHost
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
