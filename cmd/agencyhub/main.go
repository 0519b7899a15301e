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

	"github.com/agencyhub/agencyhub/internal/app"
	"github.com/agencyhub/agencyhub/internal/catalog"
	"github.com/agencyhub/agencyhub/internal/metrics"
	metricshttp "github.com/agencyhub/agencyhub/internal/metrics/http"
	"github.com/agencyhub/agencyhub/internal/observability"
	"github.com/agencyhub/agencyhub/internal/platform/cache"
	"github.com/agencyhub/agencyhub/internal/platform/db"
	"github.com/agencyhub/agencyhub/internal/query"
	"github.com/agencyhub/agencyhub/internal/reports"
	reportshttp "github.com/agencyhub/agencyhub/internal/reports/http"
	"github.com/agencyhub/agencyhub/internal/snapshot"
	"github.com/agencyhub/agencyhub/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
	slog.SetDefault(logger)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{
		ApplicationName:  "agencyhub-api",
		StatementTimeout: 2 * cfg.QueryTimeout,
	})
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

	promMetrics := observability.NewMetrics()
	engineMetrics := observability.NewEngineMetrics(promMetrics.Registerer())

	metricService := metrics.NewService(metrics.Config{
		Catalogs: catalog.NewResolver(catalog.BuiltinRegistry(), catalog.NewPGRepository(dbpool)),
		Planner:  query.NewPlanner(query.DefaultWhitelist()),
		Store:    metrics.NewPGStore(dbpool, cfg.QueryTimeout),
		Brands:   metrics.NewPGBrandVerifier(dbpool),
		Logger:   logger,
		Observer: engineMetrics,
		Timezone: cfg.ReportTimezone,
		Currency: cfg.ReportCurrency,
	})

	snapshots := snapshot.NewRedisStore(redisClient, cfg.SnapshotAdhocTTL)
	generator := reports.NewGenerator(reports.GeneratorConfig{
		Repo:        reports.NewPGRepository(dbpool),
		Querier:     metricService,
		Store:       snapshots,
		Formatter:   snapshot.NewFormatter(cfg.ReportLocale, cfg.ReportCurrency),
		Concurrency: cfg.SnapshotBatchConcurrency,
		AdhocTTL:    snapshots.AdhocTTL(),
		Logger:      logger,
		Observer:    engineMetrics,
	})

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		_ = inspector.Close()
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		MetricsHandler: metricshttp.NewHandler(logger, metricService, generator, cfg.QueryRateLimit, cfg.QueryTimeout),
		ReportsHandler: reportshttp.NewHandler(logger, generator, jobClient).WithInvalidator(snapshots),
		JobHandler:     jobs.NewHandler(inspector, logger),
		Metrics:        promMetrics,
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
