// Package app wires together the token-metered payment core: logger,
// config, tracing, Postgres store, cache, gateway client, pricing policy,
// ledger, events publisher, orchestrator, consumption guard, and HTTP
// server, in that order. The
// phased boot/shutdown structure is grounded on the teacher's own
// internal/app/app.go.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/zenalign/tokencore/internal/cache"
	"github.com/zenalign/tokencore/internal/config"
	"github.com/zenalign/tokencore/internal/consumption"
	"github.com/zenalign/tokencore/internal/events"
	"github.com/zenalign/tokencore/internal/gateway"
	"github.com/zenalign/tokencore/internal/httpapi"
	"github.com/zenalign/tokencore/internal/ledger"
	"github.com/zenalign/tokencore/internal/orchestrator"
	"github.com/zenalign/tokencore/internal/pricing"
	"github.com/zenalign/tokencore/internal/store/postgres"
	"github.com/zenalign/tokencore/pkg/log"
	"github.com/zenalign/tokencore/pkg/shutdown"
	"github.com/zenalign/tokencore/pkg/tracing"
)

// App represents the running token-metered payment core with all its
// dependencies, ready for Run to start serving traffic.
type App struct {
	logger        *zap.Logger
	config        config.Configs
	store         *postgres.Store
	publisher     events.Publisher
	httpServer    *http.Server
	shutdownTrace func(context.Context) error
}

// New creates a new application instance.
//
// Bootstrap Order (CRITICAL - must follow this sequence):
//  1. Logger - first so every subsequent step can log
//  2. Config - environment variables, .env, defaults
//  3. Tracing - OTLP exporter if TRACING_OTLPENDPOINT is set, else no-op
//  4. Postgres Store - connection pool + migrations
//  5. Cache - Redis if CACHE_REDISURL is set, else in-process memory
//  6. Gateway client - OAuth2-backed payment gateway adapter
//  7. Pricing policy - pure, built from config, no I/O
//  8. Ledger - Store + cache facade
//  9. Events publisher - NATS if EVENTS_NATSURL is set, else no-op
//  10. Orchestrator + consumption guard - domain services
//  11. HTTP server - chi router and middleware
func New() (*App, error) {
	app := &App{}

	logger, err := log.NewLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.logger = logger

	cfg, err := config.New()
	if err != nil {
		app.logger.Error("failed to load configuration", zap.Error(err))
		return nil, fmt.Errorf("config: %w", err)
	}
	app.config = cfg
	app.logger.Info("configuration loaded", zap.String("mode", cfg.APP.Mode))

	shutdownTrace, err := tracing.Setup(context.Background(), cfg.TRACING, app.logger)
	if err != nil {
		app.logger.Warn("failed to set up tracing, continuing without span export", zap.Error(err))
		shutdownTrace = func(context.Context) error { return nil }
	}
	app.shutdownTrace = shutdownTrace

	store, err := postgres.Open(cfg.POSTGRES.DSN)
	if err != nil {
		app.logger.Error("failed to connect to postgres", zap.Error(err))
		return nil, fmt.Errorf("store: %w", err)
	}
	app.store = store
	app.logger.Info("postgres store connected")

	if err := postgres.RunMigrations(cfg.POSTGRES.DSN, app.logger); err != nil {
		app.logger.Error("failed to apply migrations", zap.Error(err))
		return nil, fmt.Errorf("migrate: %w", err)
	}

	var balanceCache cache.Cache
	if cfg.CACHE.RedisURL != "" {
		balanceCache, err = cache.NewRedis(cfg.CACHE.RedisURL)
		if err != nil {
			app.logger.Warn("failed to connect to redis, falling back to memory cache", zap.Error(err))
			balanceCache = cache.NewMemory(cfg.CACHE.TTL)
		} else {
			app.logger.Info("redis cache connected")
		}
	} else {
		balanceCache = cache.NewMemory(cfg.CACHE.TTL)
		app.logger.Info("memory cache initialized")
	}

	gw := gateway.New(cfg.GATEWAY, app.logger)
	app.logger.Info("gateway client initialized", zap.String("mode", cfg.GATEWAY.Mode))

	policy := pricing.New(cfg.PRICING)

	led := ledger.New(store, balanceCache, cfg.PRICING.FreeGrantTokens, app.logger)

	var publisher events.Publisher = events.Nop{}
	if cfg.EVENTS.NatsURL != "" {
		natsPublisher, err := events.Connect(cfg.EVENTS.NatsURL, cfg.EVENTS.Subject, app.logger)
		if err != nil {
			app.logger.Warn("failed to connect to nats, lifecycle events will not be published", zap.Error(err))
		} else {
			publisher = natsPublisher
			app.logger.Info("nats event publisher connected")
		}
	}
	app.publisher = publisher

	orch := orchestrator.New(store, gw, policy, led, publisher, cfg.GATEWAY.ReturnURL, app.logger)
	guard := consumption.New(led, policy, consumption.StubEngine{}, publisher, app.logger)

	router := httpapi.NewRouter(policy, led, orch, guard, app.logger, cfg.APP.Timeout)
	app.httpServer = &http.Server{
		Addr:    ":" + cfg.APP.Port,
		Handler: router,
	}
	app.logger.Info("http server initialized", zap.String("port", cfg.APP.Port))

	return app, nil
}

// Run starts the application and handles graceful shutdown with phased execution.
//
// Shutdown Phases (hooks registered here):
//  1. Stop accepting: http.Server.Shutdown closes the listener and waits
//     for in-flight requests (5s max)
//  2. Cleanup: close the store, the NATS publisher and the trace
//     exporter (5s max)
//  3. Post-shutdown: flush logs (2s max)
//
// The pre-shutdown and drain-connections phases have no hooks here. The
// phases with hooks take at most ~12 seconds, inside a 30-second overall
// deadline.
//
// See Also:
//   - Shutdown manager: pkg/shutdown/shutdown.go
func (a *App) Run() error {
	go func() {
		a.logger.Info("http server listening", zap.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("http server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	sig := <-quit

	a.logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownMgr := shutdown.NewManager(a.logger)

	shutdownMgr.RegisterHook(shutdown.PhaseStopAcceptingRequests, "stop_http_server", func(ctx context.Context) error {
		return a.httpServer.Shutdown(ctx)
	})
	shutdownMgr.RegisterHook(shutdown.PhaseCleanup, "close_store", func(ctx context.Context) error {
		return a.store.Close()
	})
	if natsPublisher, ok := a.publisher.(*events.NatsPublisher); ok {
		shutdownMgr.RegisterHook(shutdown.PhaseCleanup, "close_events_publisher", func(ctx context.Context) error {
			natsPublisher.Close()
			return nil
		})
	}
	shutdownMgr.RegisterHook(shutdown.PhaseCleanup, "shutdown_tracing", func(ctx context.Context) error {
		return a.shutdownTrace(ctx)
	})
	shutdownMgr.RegisterHook(shutdown.PhasePostShutdown, "flush_logs", func(ctx context.Context) error {
		_ = a.logger.Sync()
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := shutdownMgr.Shutdown(ctx); err != nil {
		a.logger.Error("graceful shutdown completed with errors", zap.Error(err))
		return err
	}

	a.logger.Info("application stopped gracefully")
	return nil
}
