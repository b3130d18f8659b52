package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/zenalign/tokencore/internal/cache"
	"github.com/zenalign/tokencore/internal/config"
	"github.com/zenalign/tokencore/internal/events"
	"github.com/zenalign/tokencore/internal/gateway"
	"github.com/zenalign/tokencore/internal/ledger"
	"github.com/zenalign/tokencore/internal/orchestrator"
	"github.com/zenalign/tokencore/internal/pricing"
	"github.com/zenalign/tokencore/internal/store/postgres"
	"github.com/zenalign/tokencore/pkg/log"
)

// sweepInterval is how often the worker looks for pending transactions
// past their TTL. It runs far more often than the TTL itself so a
// transaction never sits expired for long before being swept.
const sweepInterval = 1 * time.Minute

/*
Worker Entry Point

This process runs the maintenance routine spec.md §4.5 calls optional:
sweeping transactions that have sat pending past the configured TTL to
cancelled, using the same conditional UPDATE discipline the API process
uses for verify. It shares its dependency wiring with cmd/api but serves
no HTTP traffic — it boots the same store/pricing/ledger/gateway graph and
runs PaymentOrchestrator.SweepExpiredPending on a ticker.

Required/optional environment variables are the same as cmd/api; see its
doc comment.
*/
func main() {
	logger, err := log.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("starting sweep worker")

	cfg, err := config.New()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	store, err := postgres.Open(cfg.POSTGRES.DSN)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer store.Close()

	var balanceCache cache.Cache
	if cfg.CACHE.RedisURL != "" {
		balanceCache, err = cache.NewRedis(cfg.CACHE.RedisURL)
		if err != nil {
			logger.Warn("failed to connect to redis, falling back to memory cache", zap.Error(err))
			balanceCache = cache.NewMemory(cfg.CACHE.TTL)
		}
	} else {
		balanceCache = cache.NewMemory(cfg.CACHE.TTL)
	}

	gw := gateway.New(cfg.GATEWAY, logger)
	policy := pricing.New(cfg.PRICING)
	led := ledger.New(store, balanceCache, cfg.PRICING.FreeGrantTokens, logger)

	var publisher events.Publisher = events.Nop{}
	if cfg.EVENTS.NatsURL != "" {
		natsPublisher, err := events.Connect(cfg.EVENTS.NatsURL, cfg.EVENTS.Subject, logger)
		if err != nil {
			logger.Warn("failed to connect to nats, sweep events will not be published", zap.Error(err))
		} else {
			publisher = natsPublisher
			defer natsPublisher.Close()
		}
	}

	orch := orchestrator.New(store, gw, policy, led, publisher, cfg.GATEWAY.ReturnURL, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	logger.Info("sweep worker started", zap.Duration("ttl", policy.TransactionTTL()), zap.Duration("interval", sweepInterval))

	runSweep(ctx, orch, policy, logger)

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case sig := <-quit:
			logger.Info("received shutdown signal", zap.String("signal", sig.String()))
			return
		case <-ticker.C:
			runSweep(ctx, orch, policy, logger)
		}
	}
}

func runSweep(ctx context.Context, orch *orchestrator.Orchestrator, policy *pricing.Policy, logger *zap.Logger) {
	jobCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	result, err := orch.SweepExpiredPending(jobCtx, policy.TransactionTTL(), 100)
	if err != nil {
		logger.Error("sweep run failed", zap.Error(err))
		return
	}
	logger.Info("sweep run completed", zap.Int("scanned", result.Scanned), zap.Int("expired", result.Expired))
}
