package metadata

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/bookmarks/internal/metrics"
)

// ErrCacheMiss is returned by a Cache that holds no entry for a URL.
var ErrCacheMiss = errors.New("metadata cache miss")

// Cache stores extraction results keyed by URL.
type Cache interface {
	Get(ctx context.Context, rawURL string) (Result, error)
	Set(ctx context.Context, rawURL string, res Result, ttl time.Duration) error
}

// Source is anything that extracts metadata.
type Source interface {
	Extract(ctx context.Context, rawURL string) Result
}

// CachedExtractor consults a Cache before delegating to a Source. Only
// results that carry at least one field are stored, and the page body is
// never cached, so a cache hit cannot be archived.
type CachedExtractor struct {
	source Source
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedExtractor wraps source with cache.
func NewCachedExtractor(source Source, cache Cache, ttl time.Duration, logger *zap.Logger) *CachedExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedExtractor{source: source, cache: cache, ttl: ttl, logger: logger}
}

// Extract returns the cached result when present. Cache failures fall back to
// a live extraction.
func (c *CachedExtractor) Extract(ctx context.Context, rawURL string) Result {
	cached, err := c.cache.Get(ctx, rawURL)
	switch {
	case err == nil:
		metrics.ObserveCacheLookup("hit")
		return cached
	case errors.Is(err, ErrCacheMiss):
		metrics.ObserveCacheLookup("miss")
	default:
		metrics.ObserveCacheLookup("error")
		c.logger.Warn("metadata cache read failed", zap.String("url", rawURL), zap.Error(err))
	}

	res := c.source.Extract(ctx, rawURL)
	if res.empty() {
		return res
	}
	stored := res
	stored.Body = nil
	if err := c.cache.Set(ctx, rawURL, stored, c.ttl); err != nil {
		c.logger.Warn("metadata cache write failed", zap.String("url", rawURL), zap.Error(err))
	}
	return res
}

func (r Result) empty() bool {
	return r.Title == "" && r.Description == "" && r.Favicon == "" && r.Thumbnail == ""
}
