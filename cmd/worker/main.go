package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/agencyhub/agencyhub/internal/app"
	"github.com/agencyhub/agencyhub/internal/catalog"
	jobmetrics "github.com/agencyhub/agencyhub/internal/jobs"
	"github.com/agencyhub/agencyhub/internal/metrics"
	"github.com/agencyhub/agencyhub/internal/observability"
	"github.com/agencyhub/agencyhub/internal/platform/cache"
	"github.com/agencyhub/agencyhub/internal/platform/db"
	"github.com/agencyhub/agencyhub/internal/reports"
	"github.com/agencyhub/agencyhub/internal/snapshot"
	"github.com/agencyhub/agencyhub/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{
		ApplicationName:  "agencyhub-worker",
		StatementTimeout: 2 * cfg.QueryTimeout,
	})
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

	engineMetrics := observability.NewEngineMetrics(nil)
	metricService := metrics.NewService(metrics.Config{
		Catalogs: catalog.NewResolver(catalog.BuiltinRegistry(), catalog.NewPGRepository(pool)),
		Store:    metrics.NewPGStore(pool, cfg.QueryTimeout),
		Brands:   metrics.NewPGBrandVerifier(pool),
		Logger:   logger,
		Observer: engineMetrics,
		Timezone: cfg.ReportTimezone,
		Currency: cfg.ReportCurrency,
	})

	reportRepo := reports.NewPGRepository(pool)
	generator := reports.NewGenerator(reports.GeneratorConfig{
		Repo:        reportRepo,
		Querier:     metricService,
		Store:       snapshot.NewRedisStore(redisClient, cfg.SnapshotAdhocTTL),
		Formatter:   snapshot.NewFormatter(cfg.ReportLocale, cfg.ReportCurrency),
		Concurrency: cfg.SnapshotBatchConcurrency,
		AdhocTTL:    cfg.SnapshotAdhocTTL,
		Logger:      logger,
		Observer:    engineMetrics,
	})

	jobCfg := reports.JobConfig{
		Generator: generator,
		Repo:      reportRepo,
		Metrics:   jobmetrics.NewMetrics(nil),
	}
	snapshotJob := reports.NewSnapshotJob(withJobLogger(jobCfg, logger, jobs.TaskReportSnapshot))
	refreshJob := reports.NewRefreshJob(withJobLogger(jobCfg, logger, jobs.TaskDashboardRefresh))

	refreshTask, err := jobs.NewDashboardRefreshTask(jobs.DashboardRefreshPayload{})
	if err != nil {
		logger.Error("build dashboard refresh task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReportSnapshot, Handler: snapshotJob.Handle},
			{Type: jobs.TaskDashboardRefresh, Handler: refreshJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.DashboardCron, Task: refreshTask, Options: []asynq.Option{asynq.MaxRetry(3), asynq.Queue(jobs.QueueDefault)}},
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

func withJobLogger(cfg reports.JobConfig, logger *slog.Logger, job string) reports.JobConfig {
	cfg.Logger = logger.With(slog.String("job", job))
	return cfg
}
