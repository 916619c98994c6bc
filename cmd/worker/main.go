package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/ledger/internal/app"
	jobmetrics "github.com/odyssey-erp/ledger/internal/jobs"
	"github.com/odyssey-erp/ledger/jobs"
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

	container, err := app.Bootstrap(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap", slog.Any("error", err))
		os.Exit(1)
	}
	defer container.Close()

	metrics := jobmetrics.NewMetrics(container.Metrics.Registerer())
	integrityJob := jobs.NewIntegrityJob(container.Reports, container.Store, logger, metrics)
	budgetJob := jobs.NewBudgetAlertJob(container.Accounts, container.Store, container.Events, logger, metrics)

	integrityTask, err := jobs.NewIntegrityTask("")
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}
	budgetTask, err := jobs.NewBudgetAlertTask("")
	if err != nil {
		logger.Error("build budget alert task", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpt, err := jobs.RedisOpt(cfg.RedisAddr)
	if err != nil {
		logger.Error("redis options", slog.Any("error", err))
		os.Exit(1)
	}
	worker := jobs.NewWorker(jobs.WorkerConfig{Redis: redisOpt, Logger: logger})
	worker.Handle(jobs.TaskLedgerIntegrity, integrityJob.Handle)
	worker.Handle(jobs.TaskLedgerBudgetAlerts, budgetJob.Handle)
	for _, entry := range []struct {
		spec string
		task *asynq.Task
	}{
		{"30 1 * * *", budgetTask},
		{"0 2 * * *", integrityTask},
	} {
		if err := worker.Schedule(entry.spec, entry.task, asynq.MaxRetry(3)); err != nil {
			logger.Error("schedule", slog.Any("error", err))
			os.Exit(1)
		}
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
