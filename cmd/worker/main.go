package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/arbor-billing/arbor/internal/app"
	"github.com/arbor-billing/arbor/internal/billing"
	jobmetrics "github.com/arbor-billing/arbor/internal/jobs"
	"github.com/arbor-billing/arbor/internal/ledger"
	"github.com/arbor-billing/arbor/internal/platform/cache"
	"github.com/arbor-billing/arbor/internal/platform/db"
	"github.com/arbor-billing/arbor/internal/shared"
	"github.com/arbor-billing/arbor/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
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

	metrics := jobmetrics.NewMetrics(nil)

	billingService := billing.NewService(billing.NewRepository(pool), cfg.LegacyCustomRounding, nil)
	ledgerService := ledger.NewService(ledger.NewRepository(pool), nil)

	documentsJob := jobs.NewRecomputeDocumentsJob(billingService, pool, logger, metrics)
	paymentsJob := jobs.NewRecomputePaymentsJob(ledgerService, pool, logger, metrics)
	cleanupJob := jobs.NewCleanupIdempotencyJob(shared.NewIdempotencyStore(pool), logger, metrics)

	documentsTask, err := jobs.NewRecomputeDocumentsTask(jobs.RecomputeDocumentsPayload{})
	if err != nil {
		logger.Error("build documents task", slog.Any("error", err))
		os.Exit(1)
	}
	paymentsTask, err := jobs.NewRecomputePaymentsTask(jobs.RecomputePaymentsPayload{})
	if err != nil {
		logger.Error("build payments task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskBillingRecomputeDocuments, Handler: documentsJob.Handle},
			{Type: jobs.TaskLedgerRecomputePayments, Handler: paymentsJob.Handle},
			{Type: jobs.TaskSharedCleanupIdempotency, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "15 1 * * *", Task: documentsTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "45 1 * * *", Task: paymentsTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 2 * * 0", Task: jobs.NewCleanupIdempotencyTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
