package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/easydollars/easydollars-api/internal/config"
	"github.com/easydollars/easydollars-api/internal/domain/idempotency"
	"github.com/easydollars/easydollars-api/internal/domain/ledger"
	"github.com/easydollars/easydollars-api/internal/domain/machine"
	"github.com/easydollars/easydollars-api/internal/domain/referral"
	"github.com/easydollars/easydollars-api/internal/jobs"
	"github.com/easydollars/easydollars-api/internal/pkg/database"
	"github.com/easydollars/easydollars-api/internal/pkg/feed"
	"github.com/easydollars/easydollars-api/internal/pkg/logger"
	"github.com/easydollars/easydollars-api/internal/pkg/worker"
)

func main() {
	cfg := config.Load()
	logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env})

	log.Info().Msg("Starting worker")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	rdb, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(rdb)

	nc, err := database.NewNats(cfg.NatsURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to NATS")
	}
	defer database.CloseNats(nc)

	registry := idempotency.NewRegistry(db, cfg.IdempotencyStaleAfter)
	store := ledger.NewStore(db)
	engine := ledger.NewEngine(db, store, registry, feed.NewEmitter(rdb, nc, cfg.FeedMaxItems), cfg.LedgerQueryTimeout)
	awarder := referral.NewAwarder(db, referral.NewRepository(db), machine.NewRepository(db), engine, cfg.ReferralBonusXAF)

	runner := worker.NewRunner(rdb, jobs.Build(cfg, awarder, registry, store)...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// SIGUSR1 forces an immediate pass.
	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-usr1:
				runner.Wake()
			}
		}
	}()

	if err := runner.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Worker stopped with error")
		return
	}
	log.Info().Msg("Worker stopped")
}
