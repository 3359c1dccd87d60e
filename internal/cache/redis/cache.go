// Package redis caches metadata extraction results in Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JakeFAU/bookmarks/internal/metadata"
)

// Config holds connection settings.
type Config struct {
	Addr         string        `mapstructure:"addr"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// Cache implements metadata.Cache on a Redis client.
type Cache struct {
	client goredis.UniversalClient
	prefix string
}

var _ metadata.Cache = (*Cache)(nil)

// New connects to Redis and verifies the connection with a PING.
func New(ctx context.Context, cfg Config) (*Cache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return NewWithClient(client, cfg.KeyPrefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client goredis.UniversalClient, prefix string) *Cache {
	if prefix == "" {
		prefix = "bookmarks:metadata:"
	}
	return &Cache{client: client, prefix: prefix}
}

func (c *Cache) key(rawURL string) string {
	return c.prefix + rawURL
}

// Get returns the cached result or metadata.ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, rawURL string) (metadata.Result, error) {
	raw, err := c.client.Get(ctx, c.key(rawURL)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return metadata.Result{}, metadata.ErrCacheMiss
	}
	if err != nil {
		return metadata.Result{}, fmt.Errorf("redis get: %w", err)
	}
	var res metadata.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return metadata.Result{}, fmt.Errorf("decode cached metadata: %w", err)
	}
	return res, nil
}

// Set stores res for ttl; a zero ttl keeps the entry until evicted.
func (c *Cache) Set(ctx context.Context, rawURL string, res metadata.Result, ttl time.Duration) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := c.client.Set(ctx, c.key(rawURL), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Close releases the client.
func (c *Cache) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}
