package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/exceva/property-ledger/internal/app"
	"github.com/exceva/property-ledger/internal/billing"
	"github.com/exceva/property-ledger/internal/observability"
	"github.com/exceva/property-ledger/internal/payments"
	"github.com/exceva/property-ledger/internal/platform/cache"
	"github.com/exceva/property-ledger/internal/platform/db"
	"github.com/exceva/property-ledger/internal/renewal"
	"github.com/exceva/property-ledger/internal/shared"
	"github.com/exceva/property-ledger/internal/statement"
	"github.com/exceva/property-ledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, ConnectTimeout: 10 * time.Second})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	locks := shared.NewLockManager(redisClient, cfg.LockTTL)
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	enqueuer := jobs.NewEnqueuer(redisOpts)
	defer func() {
		if err := enqueuer.Close(); err != nil {
			logger.Warn("enqueuer close", slog.Any("error", err))
		}
	}()

	paymentsService := payments.NewService(payments.NewRepository(dbpool), cfg.Currency, payments.Deps{
		Locks:       locks,
		Idempotency: idempotencyStore,
		Audit:       auditLogger,
		Logger:      logger,
	})
	billingService := billing.NewService(billing.NewRepository(dbpool), billing.Config{
		Currency:          cfg.Currency,
		CommercialTaxRate: cfg.CommercialTaxRate,
		DueDays:           cfg.InvoiceDueDays,
	}, billing.Deps{
		Credit:      paymentsService,
		CreditTotal: paymentsService,
		Locks:       locks,
		Idempotency: idempotencyStore,
		Audit:       auditLogger,
		Logger:      logger,
	})
	statementService := statement.NewService(statement.NewRepository(dbpool), cfg.Currency, logger)
	renewalService := renewal.NewService(renewal.NewRepository(dbpool), renewal.Config{
		Currency:          cfg.Currency,
		RequireAcceptance: cfg.RequireAcceptance,
	}, renewal.Deps{
		Locks:    locks,
		Enqueuer: enqueuer,
		Audit:    auditLogger,
		Logger:   logger,
	})

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		BillingHandler:   billing.NewHandler(logger, billingService),
		PaymentsHandler:  payments.NewHandler(logger, paymentsService),
		StatementHandler: statement.NewHandler(logger, statementService),
		RenewalHandler:   renewal.NewHandler(logger, renewalService),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          observability.NewMetrics(),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
