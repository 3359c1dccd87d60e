// Package server builds the application from configuration and runs the HTTP
// server until shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/bookmarks/internal/api"
	"github.com/JakeFAU/bookmarks/internal/archive"
	"github.com/JakeFAU/bookmarks/internal/bookmark"
	rediscache "github.com/JakeFAU/bookmarks/internal/cache/redis"
	"github.com/JakeFAU/bookmarks/internal/clock/system"
	"github.com/JakeFAU/bookmarks/internal/config"
	"github.com/JakeFAU/bookmarks/internal/hash/sha256"
	"github.com/JakeFAU/bookmarks/internal/id/uuid"
	"github.com/JakeFAU/bookmarks/internal/metadata"
	"github.com/JakeFAU/bookmarks/internal/metrics"
	"github.com/JakeFAU/bookmarks/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/bookmarks/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/bookmarks/internal/publisher/pubsub"
	gcsstorage "github.com/JakeFAU/bookmarks/internal/storage/gcs"
	localstorage "github.com/JakeFAU/bookmarks/internal/storage/local"
	memorystorage "github.com/JakeFAU/bookmarks/internal/storage/memory"
	pgstore "github.com/JakeFAU/bookmarks/internal/storage/postgres"
)

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	store     bookmark.Store
	apiServer *api.Server
	closers   []closer
}

type closer struct {
	name string
	fn   func() error
}

// Build creates the application's dependencies. On failure everything opened
// so far is closed again.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			app.closeAll()
		}
	}()

	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("store", cfg.Store.Driver),
		zap.String("archive", cfg.Archive.Backend),
		zap.String("events", cfg.Events.Backend),
	)

	app.store, err = OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app.onClose("store", func() error { app.store.Close(); return nil })

	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}

	deps := bookmark.Dependencies{
		Bookmarks:   app.store,
		Collections: app.store,
		IDs:         uuid.NewUUIDGenerator(),
		Clock:       system.New(),
		Publisher:   publisher,
		Topic:       cfg.Events.Topic,
		Logger:      logger.Named("bookmark"),
	}
	bookmarks, err := bookmark.NewBookmarkService(deps)
	if err != nil {
		return nil, fmt.Errorf("bookmark service init failed: %w", err)
	}
	collections, err := bookmark.NewCollectionService(deps)
	if err != nil {
		return nil, fmt.Errorf("collection service init failed: %w", err)
	}

	extractor, closeExtractor, err := BuildExtractor(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app.onClose("extractor", closeExtractor)

	archiver, err := app.setupArchive(ctx)
	if err != nil {
		return nil, err
	}

	apiDeps := api.Dependencies{
		Bookmarks:   bookmarks,
		Collections: collections,
		Extractor:   extractor,
		Ready:       app.store,
	}
	if archiver != nil {
		apiDeps.Archiver = archiver
	}
	app.apiServer, err = api.NewServer(apiDeps, cfg.Auth, logger.Named("api"))
	if err != nil {
		return nil, fmt.Errorf("api server init failed: %w", err)
	}
	return app, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run serves HTTP until ctx is canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(a.cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(a.cfg.Server.WriteTimeoutSeconds) * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown initiated")
	case err := <-serveErr:
		if err != nil {
			a.logger.Error("http server error", zap.Error(err))
			runErr = fmt.Errorf("serve http: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.Close()
	return runErr
}

// Close releases every dependency in reverse order of creation.
func (a *App) Close() {
	a.closeAll()
	a.logger.Info("shutdown complete")
}

func (a *App) onClose(name string, fn func() error) {
	if fn == nil {
		return
	}
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.logger.Warn("close failed", zap.String("component", c.name), zap.Error(err))
		}
	}
	a.closers = nil
}

// OpenStore connects the configured persistence driver and, for Postgres,
// applies the schema when auto_migrate is set.
func OpenStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (bookmark.Store, error) {
	switch strings.ToLower(cfg.Store.Driver) {
	case config.StorePostgres:
		store, err := pgstore.New(ctx, pgstore.Config{
			DSN:             cfg.DB.DSN,
			MaxConns:        cfg.DB.MaxConns,
			MinConns:        cfg.DB.MinConns,
			MaxConnLifetime: time.Duration(cfg.DB.MaxConnLifetimeSeconds) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres store init failed: %w", err)
		}
		if cfg.DB.AutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				store.Close()
				return nil, fmt.Errorf("apply schema: %w", err)
			}
			logger.Info("database schema applied")
		}
		logger.Info("using postgres store")
		return store, nil
	default:
		logger.Info("using in-memory store")
		return memorystorage.NewStore(), nil
	}
}

// BuildExtractor assembles the metadata pipeline: colly fetcher, per-host rate
// limit, optional headless renderer and optional Redis cache. The returned
// function releases the renderer and cache.
func BuildExtractor(ctx context.Context, cfg config.Config, logger *zap.Logger) (metadata.Source, func() error, error) {
	md := cfg.Metadata
	fetcher := metadata.NewCollyFetcher(metadata.FetcherConfig{
		UserAgent:     md.UserAgent,
		RespectRobots: md.RespectRobots,
		Timeout:       cfg.MetadataTimeout(),
		MaxBodyBytes:  md.MaxBodyBytes,
	})

	hosts := make(map[string]float64, len(md.HostRateLimits))
	for _, h := range md.HostRateLimits {
		hosts[h.Host] = h.RPS
	}
	limiter := ratelimit.New(ratelimit.Config{
		RPS:   md.RateLimitRPS,
		Burst: md.RateLimitBurst,
		Hosts: hosts,
	})

	var closers []func() error
	release := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}

	opts := metadata.Options{
		Limiter: limiter,
		Timeout: cfg.MetadataTimeout(),
		Logger:  logger.Named("metadata"),
	}
	if md.Headless.Enabled {
		renderer, err := metadata.NewChromeRenderer(metadata.RendererConfig{
			MaxParallel:       md.Headless.MaxParallel,
			UserAgent:         md.UserAgent,
			NavigationTimeout: time.Duration(md.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			logger.Warn("headless renderer init failed", zap.Error(err))
		} else {
			opts.Renderer = renderer
			closers = append(closers, func() error { renderer.Close(); return nil })
			logger.Info("headless renderer enabled", zap.Int("max_parallel", md.Headless.MaxParallel))
		}
	}

	extractor, err := metadata.New(fetcher, opts)
	if err != nil {
		_ = release()
		return nil, nil, fmt.Errorf("metadata extractor init failed: %w", err)
	}

	if !cfg.Redis.Enabled {
		return extractor, release, nil
	}
	cache, err := rediscache.New(ctx, rediscache.Config{
		Addr:      cfg.Redis.Addr,
		Username:  cfg.Redis.Username,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		KeyPrefix: cfg.Redis.KeyPrefix,
	})
	if err != nil {
		_ = release()
		return nil, nil, fmt.Errorf("metadata cache init failed: %w", err)
	}
	closers = append(closers, cache.Close)
	logger.Info("metadata cache enabled", zap.String("addr", cfg.Redis.Addr), zap.Duration("ttl", cfg.CacheTTL()))
	return metadata.NewCachedExtractor(extractor, cache, cfg.CacheTTL(), logger.Named("metadata_cache")), release, nil
}

func (a *App) setupPublisher(ctx context.Context) (bookmark.Publisher, error) {
	switch strings.ToLower(a.cfg.Events.Backend) {
	case config.BackendNone:
		a.logger.Info("change events disabled")
		return nil, nil
	case config.BackendPubSub:
		publisher, err := gcppublisher.New(ctx, a.cfg.Events.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		a.onClose("pubsub", publisher.Close)
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.Events.ProjectID),
			zap.String("topic", a.cfg.Events.Topic),
		)
		return publisher, nil
	default:
		a.logger.Info("using in-memory publisher", zap.Int("capacity", a.cfg.Events.MemoryCapacity))
		return memorypublisher.New(a.cfg.Events.MemoryCapacity), nil
	}
}

// setupArchive returns nil when snapshots are disabled.
func (a *App) setupArchive(ctx context.Context) (*archive.Archiver, error) {
	var blobs archive.BlobStore
	switch strings.ToLower(a.cfg.Archive.Backend) {
	case config.BackendNone, "":
		a.logger.Info("page snapshots disabled")
		return nil, nil
	case config.BackendGCS:
		store, err := gcsstorage.New(ctx, gcsstorage.Config{
			Bucket:   a.cfg.Archive.GCSBucket,
			Endpoint: a.cfg.Archive.GCSEndpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.onClose("gcs", store.Close)
		a.logger.Info("using GCS snapshot backend", zap.String("bucket", a.cfg.Archive.GCSBucket))
		blobs = store
	case config.BackendLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("using local snapshot backend", zap.String("path", a.cfg.Archive.LocalDir))
		blobs = store
	default:
		a.logger.Info("using in-memory snapshot backend")
		blobs = memorystorage.NewBlobStore()
	}
	archiver, err := archive.New(blobs, sha256.New(), a.cfg.Archive.Prefix, a.logger.Named("archive"))
	if err != nil {
		return nil, fmt.Errorf("archiver init failed: %w", err)
	}
	return archiver, nil
}
