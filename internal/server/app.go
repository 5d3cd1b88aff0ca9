// Package server assembles the application: configuration, fetchers, site
// adapters, storage, the HTTP API, and the cron scheduler.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jobsift/jobsift/internal/api"
	"github.com/jobsift/jobsift/internal/config"
	"github.com/jobsift/jobsift/internal/dedupindex/redisindex"
	"github.com/jobsift/jobsift/internal/fetcher"
	collyfetcher "github.com/jobsift/jobsift/internal/fetcher/colly"
	headlessfetcher "github.com/jobsift/jobsift/internal/fetcher/headless"
	"github.com/jobsift/jobsift/internal/ingest"
	"github.com/jobsift/jobsift/internal/logging"
	"github.com/jobsift/jobsift/internal/metrics"
	"github.com/jobsift/jobsift/internal/scheduler"
	"github.com/jobsift/jobsift/internal/sink/memory"
	pgsink "github.com/jobsift/jobsift/internal/sink/postgres"
	"github.com/jobsift/jobsift/internal/site"
	"github.com/jobsift/jobsift/internal/site/ey"
	"github.com/jobsift/jobsift/internal/site/glassdoor"
	"github.com/jobsift/jobsift/internal/site/handshake"
	"github.com/jobsift/jobsift/internal/site/motion"
)

// App contains the application's dependencies.
type App struct {
	cfg        *config.Config
	logger     *zap.Logger
	apiServer  *api.Server
	sched      *scheduler.Scheduler
	pgStore    *pgsink.Store
	redisIndex *redisindex.Index
	headless   *headlessfetcher.Fetcher
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies")

	registry, sessions, err := app.setupSites()
	if err != nil {
		return nil, err
	}

	sink, index, err := app.setupStorage(ctx)
	if err != nil {
		return nil, err
	}

	plain, rendered, err := app.setupFetchers()
	if err != nil {
		return nil, err
	}

	pacer := app.setupPacer()

	service := NewCrawlService(
		registry, plain, rendered, pacer, index, sink, sessions, *cfg, logger.Named("crawl"),
	)

	app.apiServer = api.NewServer(service, registry, *cfg, logger.Named("api"))

	if len(cfg.Schedules) > 0 {
		jobs := make(map[string]scheduler.Job, len(cfg.Schedules))
		for siteID, spec := range cfg.Schedules {
			jobs[siteID] = scheduler.Job{Spec: spec, Params: app.defaultParams(siteID)}
		}
		app.sched, err = scheduler.New(service, jobs, logger)
		if err != nil {
			return nil, fmt.Errorf("scheduler init failed: %w", err)
		}
	}

	return app, nil
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.sched != nil {
		a.sched.Start()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	return a.Close()
}

// Close gracefully shuts down the application.
func (a *App) Close() error {
	if a.sched != nil {
		a.sched.Stop()
	}
	if a.headless != nil {
		a.headless.Close()
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
	if a.redisIndex != nil {
		if err := a.redisIndex.Close(); err != nil {
			a.logger.Warn("redis close failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) setupSites() (*site.Registry, map[string]*ingest.Session, error) {
	registry := site.NewRegistry()
	sessions := make(map[string]*ingest.Session)

	for _, adapter := range []ingest.Adapter{ey.New(), motion.New(), glassdoor.New()} {
		if err := registry.Register(adapter); err != nil {
			return nil, nil, fmt.Errorf("register site: %w", err)
		}
	}

	if a.cfg.Sites.HandshakePortalURL != "" {
		hs, err := handshake.New(a.cfg.Sites.HandshakePortalURL)
		if err != nil {
			return nil, nil, fmt.Errorf("handshake adapter init failed: %w", err)
		}
		if err := registry.Register(hs); err != nil {
			return nil, nil, fmt.Errorf("register site: %w", err)
		}
		if a.cfg.Headless.ProfileDir != "" {
			sessions[hs.Profile().Site] = &ingest.Session{ProfileDir: a.cfg.Headless.ProfileDir}
		}
	}

	a.logger.Info("sites registered", zap.Strings("sites", registry.Sites()))
	return registry, sessions, nil
}

func (a *App) setupStorage(ctx context.Context) (ingest.RecordSink, ingest.DedupIndex, error) {
	var (
		sink  ingest.RecordSink
		index ingest.DedupIndex
	)

	switch a.cfg.Sink.Provider {
	case "postgres":
		store, err := pgsink.NewStore(ctx, pgsink.StoreConfig{DSN: a.cfg.Sink.DSN})
		if err != nil {
			return nil, nil, fmt.Errorf("postgres store init failed: %w", err)
		}
		a.pgStore = store
		sink = store
		a.logger.Info("using postgres record sink")
	default:
		sink = memory.NewSink()
		a.logger.Info("using in-memory record sink")
	}

	switch a.cfg.Dedup.Provider {
	case "redis":
		ri, err := redisindex.New(ctx, a.cfg.Dedup.RedisURL, a.cfg.DedupTTL())
		if err != nil {
			return nil, nil, fmt.Errorf("redis index init failed: %w", err)
		}
		a.redisIndex = ri
		index = ri
		a.logger.Info("using redis dedup index", zap.Duration("ttl", a.cfg.DedupTTL()))
	case "postgres":
		if a.pgStore == nil {
			return nil, nil, fmt.Errorf("dedup.provider postgres requires sink.provider postgres")
		}
		index = a.pgStore
		a.logger.Info("using postgres dedup index")
	default:
		index = memory.NewIndex()
		a.logger.Info("using in-memory dedup index")
	}

	return sink, index, nil
}

func (a *App) setupFetchers() (ingest.Fetcher, ingest.Fetcher, error) {
	policy := fetcher.NewRetryPolicy(
		a.cfg.Crawl.RetryAttempts,
		a.cfg.BackoffInitial(),
		a.cfg.BackoffMax(),
	)

	plain := fetcher.WithRetry(collyfetcher.New(collyfetcher.Config{
		UserAgent: a.cfg.Crawl.UserAgent,
		Timeout:   a.cfg.FetchTimeout(),
	}), policy, a.logger.Named("fetch"))
	a.logger.Info("using colly fetcher", zap.String("user_agent", a.cfg.Crawl.UserAgent))

	chrome, err := headlessfetcher.New(headlessfetcher.Config{
		MaxParallel:       a.cfg.Headless.MaxParallel,
		UserAgent:         a.cfg.Crawl.UserAgent,
		NavigationTimeout: time.Duration(a.cfg.Headless.NavTimeoutSec) * time.Second,
		ProfileDir:        a.cfg.Headless.ProfileDir,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("headless fetcher init failed: %w", err)
	}
	a.headless = chrome
	a.logger.Info("using headless fetcher", zap.Int("max_parallel", a.cfg.Headless.MaxParallel))

	rendered := fetcher.WithRetry(chrome, policy, a.logger.Named("headless_fetch"))
	return plain, rendered, nil
}

func (a *App) setupPacer() ingest.Pacer {
	if a.cfg.Crawl.RequestsPerSecond > 0 {
		a.logger.Info("using per-host rate pacing",
			zap.Float64("rps", a.cfg.Crawl.RequestsPerSecond),
		)
		return ingest.NewHostPacer(a.cfg.Crawl.RequestsPerSecond, 1)
	}
	a.logger.Info("using fixed-delay pacing",
		zap.Duration("delay", a.cfg.InterRequestDelay()),
	)
	return ingest.NewFixedDelayPacer(a.cfg.InterRequestDelay())
}

// defaultParams supplies the query parameters scheduled runs use.
func (a *App) defaultParams(siteID string) ingest.QueryParams {
	if siteID == "ey" {
		return ingest.QueryParams{Country: a.cfg.Sites.EYCountry}
	}
	return ingest.QueryParams{}
}
