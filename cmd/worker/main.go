package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/exceva/property-ledger/internal/app"
	"github.com/exceva/property-ledger/internal/billing"
	"github.com/exceva/property-ledger/internal/observability"
	"github.com/exceva/property-ledger/internal/payments"
	"github.com/exceva/property-ledger/internal/platform/cache"
	"github.com/exceva/property-ledger/internal/platform/db"
	"github.com/exceva/property-ledger/internal/renewal"
	"github.com/exceva/property-ledger/internal/shared"
	"github.com/exceva/property-ledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.LoadDotEnv(); err != nil {
		slog.Default().Warn("env file", slog.Any("error", err))
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, ConnectTimeout: 10 * time.Second})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	locks := shared.NewLockManager(redisClient, cfg.LockTTL)
	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	billingService := billing.NewService(billing.NewRepository(pool), billing.Config{
		Currency:          cfg.Currency,
		CommercialTaxRate: cfg.CommercialTaxRate,
		DueDays:           cfg.InvoiceDueDays,
	}, billing.Deps{Locks: locks, Audit: auditLogger, Logger: logger})
	paymentsService := payments.NewService(payments.NewRepository(pool), cfg.Currency, payments.Deps{
		Locks:  locks,
		Audit:  auditLogger,
		Logger: logger,
	})
	renewalService := renewal.NewService(renewal.NewRepository(pool), renewal.Config{
		Currency:          cfg.Currency,
		RequireAcceptance: cfg.RequireAcceptance,
	}, renewal.Deps{Locks: locks, Audit: auditLogger, Logger: logger})

	sweepJob := jobs.NewOverdueSweepJob(billingService, logger, metrics.Jobs())
	creditJob := &jobs.CreditSweepJob{Applier: paymentsService, Logger: logger, Metrics: metrics.Jobs()}
	cleanupJob := &jobs.IdempotencyCleanupJob{
		Store:     idempotencyStore,
		Retention: cfg.IdempotencyRetention,
		Logger:    logger,
		Metrics:   metrics.Jobs(),
	}
	notifyJob := renewal.NewNotifyJob(renewalService, logger)

	cleanupTask, err := jobs.NewIdempotencyCleanupTask(cfg.IdempotencyRetention)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskOverdueSweep, Handler: sweepJob.Handle},
			{Type: jobs.TaskCreditSweep, Handler: creditJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
			{Type: jobs.TaskRenewalNotify, Handler: notifyJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "10 0 * * *", Task: jobs.NewOverdueSweepTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "20 * * * *", Task: jobs.NewCreditSweepTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
			{Spec: "40 3 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsRouter := chi.NewRouter()
	metricsRouter.Method(http.MethodGet, "/metrics", metrics.Handler())
	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metricsRouter, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
