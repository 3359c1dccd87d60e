// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Archive and event backends.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendLocal  = "local"
	BackendGCS    = "gcs"
	BackendPubSub = "pubsub"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Store    StoreConfig    `mapstructure:"store"`
	DB       DBConfig       `mapstructure:"db"`
	Metadata MetadataConfig `mapstructure:"metadata"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Events   EventsConfig   `mapstructure:"events"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	ReadTimeoutSeconds     int `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds    int `mapstructure:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig describes how callers are identified.
type AuthConfig struct {
	// Enabled requires a matching X-API-Key on every /v1 request.
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
	// UserHeader carries the identity resolved by the upstream auth layer.
	UserHeader string `mapstructure:"user_header"`
}

// StoreConfig selects the persistence driver.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeSeconds int    `mapstructure:"max_conn_lifetime_seconds"`
	AutoMigrate            bool   `mapstructure:"auto_migrate"`
}

// MetadataConfig governs page fetching for metadata extraction.
type MetadataConfig struct {
	TimeoutSeconds  int             `mapstructure:"timeout_seconds"`
	UserAgent       string          `mapstructure:"user_agent"`
	RespectRobots   bool            `mapstructure:"respect_robots"`
	MaxBodyBytes    int             `mapstructure:"max_body_bytes"`
	RateLimitRPS    float64         `mapstructure:"rate_limit_rps"`
	RateLimitBurst  int             `mapstructure:"rate_limit_burst"`
	HostRateLimits  []HostRateLimit `mapstructure:"host_rate_limits"`
	CacheTTLSeconds int             `mapstructure:"cache_ttl_seconds"`
	Headless        HeadlessConfig  `mapstructure:"headless"`
}

// HostRateLimit overrides the fetch rate for one host.
type HostRateLimit struct {
	Host string  `mapstructure:"host"`
	RPS  float64 `mapstructure:"rps"`
}

// HeadlessConfig configures the browser fallback for script-rendered pages.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// RedisConfig enables the metadata cache.
type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addr      string `mapstructure:"addr"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// ArchiveConfig controls page snapshots.
type ArchiveConfig struct {
	Backend     string `mapstructure:"backend"`
	Prefix      string `mapstructure:"prefix"`
	LocalDir    string `mapstructure:"local_dir"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	GCSEndpoint string `mapstructure:"gcs_endpoint"`
}

// EventsConfig selects where change events go.
type EventsConfig struct {
	Backend        string `mapstructure:"backend"`
	ProjectID      string `mapstructure:"project_id"`
	Topic          string `mapstructure:"topic"`
	MemoryCapacity int    `mapstructure:"memory_capacity"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment. Environment variables use the
// BOOKMARKS_ prefix with dots replaced by underscores, e.g. BOOKMARKS_DB_DSN.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BOOKMARKS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout_seconds", 15)
	v.SetDefault("server.write_timeout_seconds", 30)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("auth.user_header", "X-User-ID")
	v.SetDefault("store.driver", StoreMemory)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_seconds", 1800)
	v.SetDefault("db.auto_migrate", true)
	v.SetDefault("metadata.timeout_seconds", 10)
	v.SetDefault("metadata.user_agent", "bookmarks-metadata/1.0")
	v.SetDefault("metadata.respect_robots", false)
	v.SetDefault("metadata.max_body_bytes", 5<<20)
	v.SetDefault("metadata.rate_limit_rps", 1.0)
	v.SetDefault("metadata.rate_limit_burst", 2)
	v.SetDefault("metadata.cache_ttl_seconds", 86400)
	v.SetDefault("metadata.headless.enabled", false)
	v.SetDefault("metadata.headless.max_parallel", 1)
	v.SetDefault("metadata.headless.nav_timeout_seconds", 20)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "bookmarks:metadata:")
	v.SetDefault("archive.backend", BackendNone)
	v.SetDefault("archive.prefix", "snapshots")
	v.SetDefault("archive.local_dir", "./data/snapshots")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("events.backend", BackendMemory)
	v.SetDefault("events.project_id", "")
	v.SetDefault("events.topic", "bookmark-events")
	v.SetDefault("events.memory_capacity", 1024)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if strings.TrimSpace(c.Auth.UserHeader) == "" {
		return fmt.Errorf("auth.user_header must be set")
	}
	switch c.Store.Driver {
	case StoreMemory:
	case StorePostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn is required for the postgres store")
		}
	default:
		return fmt.Errorf("store.driver must be %q or %q, got %q", StoreMemory, StorePostgres, c.Store.Driver)
	}
	if c.Metadata.TimeoutSeconds <= 0 {
		return fmt.Errorf("metadata.timeout_seconds must be > 0")
	}
	if c.Metadata.Headless.Enabled && c.Metadata.Headless.MaxParallel <= 0 {
		return fmt.Errorf("metadata.headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr must be set when redis is enabled")
	}
	switch c.Archive.Backend {
	case BackendNone, BackendMemory:
	case BackendLocal:
		if c.Archive.LocalDir == "" {
			return fmt.Errorf("archive.local_dir is required for the local backend")
		}
	case BackendGCS:
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("archive.backend %q is not supported", c.Archive.Backend)
	}
	switch c.Events.Backend {
	case BackendNone, BackendMemory:
	case BackendPubSub:
		if c.Events.ProjectID == "" || c.Events.Topic == "" {
			return fmt.Errorf("events.project_id and events.topic are required for pubsub")
		}
	default:
		return fmt.Errorf("events.backend %q is not supported", c.Events.Backend)
	}
	return nil
}

// MetadataTimeout is the per-extraction budget.
func (c Config) MetadataTimeout() time.Duration {
	return time.Duration(c.Metadata.TimeoutSeconds) * time.Second
}

// CacheTTL is how long extraction results stay in Redis.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Metadata.CacheTTLSeconds) * time.Second
}

// ShutdownTimeout bounds graceful shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}
