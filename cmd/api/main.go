package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/easydollars/easydollars-api/internal/config"
	"github.com/easydollars/easydollars-api/internal/domain/account"
	"github.com/easydollars/easydollars-api/internal/domain/conversion"
	"github.com/easydollars/easydollars-api/internal/domain/idempotency"
	"github.com/easydollars/easydollars-api/internal/domain/ledger"
	"github.com/easydollars/easydollars-api/internal/domain/machine"
	"github.com/easydollars/easydollars-api/internal/domain/payment"
	"github.com/easydollars/easydollars-api/internal/domain/referral"
	"github.com/easydollars/easydollars-api/internal/domain/withdrawal"
	"github.com/easydollars/easydollars-api/internal/jobs"
	"github.com/easydollars/easydollars-api/internal/middleware"
	"github.com/easydollars/easydollars-api/internal/pkg/database"
	"github.com/easydollars/easydollars-api/internal/pkg/feed"
	"github.com/easydollars/easydollars-api/internal/pkg/jwt"
	"github.com/easydollars/easydollars-api/internal/pkg/logger"
	"github.com/easydollars/easydollars-api/internal/pkg/mobilemoney"
	pkgresponse "github.com/easydollars/easydollars-api/internal/pkg/response"
	"github.com/easydollars/easydollars-api/internal/pkg/worker"
)

func main() {
	cfg := config.Load()
	logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env})

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting Easy Dollars API")

	if cfg.PaymentWebhookSecret == "" {
		if cfg.IsProduction() {
			log.Fatal().Msg("PAYMENT_WEBHOOK_SECRET is required in production")
		}
		log.Warn().Msg("PAYMENT_WEBHOOK_SECRET not set, webhook signatures will not be verified")
	}

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

	jwtService := jwt.NewService(cfg.JWTSecret)

	// ---------- Ledger core ----------
	registry := idempotency.NewRegistry(db, cfg.IdempotencyStaleAfter)
	store := ledger.NewStore(db)
	emitter := feed.NewEmitter(rdb, nc, cfg.FeedMaxItems)
	engine := ledger.NewEngine(db, store, registry, emitter, cfg.LedgerQueryTimeout)

	// ---------- Repositories ----------
	accountRepo := account.NewRepository(db)
	referralRepo := referral.NewRepository(db)
	machineRepo := machine.NewRepository(db)
	paymentRepo := payment.NewRepository(db)
	withdrawalRepo := withdrawal.NewRepository(db)

	// ---------- Services ----------
	accountService := account.NewService(db, accountRepo, referralRepo, store)
	awarder := referral.NewAwarder(db, referralRepo, machineRepo, engine, cfg.ReferralBonusXAF)
	machineService := machine.NewService(db, machineRepo, engine, cfg.ClaimInterval)
	provider := mobilemoney.NewClient(mobilemoney.Config{
		BaseURL: cfg.PaymentProviderBaseURL,
		APIKey:  cfg.PaymentProviderAPIKey,
	})
	paymentService := payment.NewService(db, paymentRepo, machineRepo, engine,
		&sweepOnFailure{awarder: awarder, rdb: rdb}, registry, provider,
		payment.Config{
			WebhookSecret: cfg.PaymentWebhookSecret,
			CallbackURL:   cfg.BackendURL + "/webhooks/payment",
		})
	conversionService := conversion.NewService(engine, cfg.ConversionRate, cfg.ConversionMinED)
	withdrawalService := withdrawal.NewService(db, withdrawalRepo, accountRepo, engine, cfg.WithdrawalMinXAF)

	// ---------- Handlers ----------
	h := handlers{
		auth:        middleware.Auth(jwtService),
		accounts:    account.NewHandler(accountService),
		ledger:      ledger.NewHandler(store),
		machines:    machine.NewHandler(machineService, cfg.ClaimInterval),
		payments:    payment.NewHandler(paymentService),
		conversions: conversion.NewHandler(conversionService),
		withdrawals: withdrawal.NewHandler(withdrawalService),
		referrals:   referral.NewHandler(awarder),
		feed:        feed.NewHandler(emitter),
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newRouter(cfg, h),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.WorkersEnabled {
		runner := worker.NewRunner(rdb, jobs.Build(cfg, awarder, registry, store)...)
		g.Go(func() error { return runner.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
		os.Exit(1)
	}

	log.Info().Msg("Server exited properly")
}

// handlers groups everything newRouter mounts.
type handlers struct {
	auth        func(http.Handler) http.Handler
	accounts    *account.Handler
	ledger      *ledger.Handler
	machines    *machine.Handler
	payments    *payment.Handler
	conversions *conversion.Handler
	withdrawals *withdrawal.Handler
	referrals   *referral.Handler
	feed        *feed.Handler
}

func newRouter(cfg *config.Config, h handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.Metrics)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			pkgresponse.OK(w, map[string]string{"message": "pong"})
		})

		r.Mount("/accounts", h.accounts.Routes(h.auth))
		r.Mount("/ledger", h.ledger.Routes(h.auth))
		r.Route("/machines", func(r chi.Router) {
			r.With(h.auth).Post("/purchase", h.payments.Purchase)
			r.Mount("/", h.machines.Routes(h.auth))
		})
		r.Mount("/payments", h.payments.Routes(h.auth))
		r.Mount("/conversions", h.conversions.Routes(h.auth))
		r.Mount("/withdrawals", h.withdrawals.Routes(h.auth))
		r.Mount("/referrals", h.referrals.Routes(h.auth))
		r.Mount("/feed", h.feed.Routes(h.auth))
	})

	r.Mount("/webhooks", h.payments.WebhookRoutes())

	r.Route("/admin", func(r chi.Router) {
		r.Mount("/withdrawals", h.withdrawals.AdminRoutes(h.auth))
		r.Mount("/accounts", h.accounts.AdminRoutes(h.auth))
	})

	return r
}

// sweepOnFailure wakes the referral sweeper when an inline award fails.
type sweepOnFailure struct {
	awarder *referral.Awarder
	rdb     *redis.Client
}

func (a *sweepOnFailure) Award(ctx context.Context, referredID uuid.UUID) (*referral.AwardResult, error) {
	res, err := a.awarder.Award(ctx, referredID)
	if err != nil {
		worker.Notify(context.WithoutCancel(ctx), a.rdb)
	}
	return res, err
}
