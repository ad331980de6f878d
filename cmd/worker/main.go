package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/laadstock/internal/app"
	"github.com/odyssey-erp/laadstock/internal/intake"
	"github.com/odyssey-erp/laadstock/internal/observability"
	"github.com/odyssey-erp/laadstock/internal/platform/cache"
	"github.com/odyssey-erp/laadstock/internal/platform/db"
	"github.com/odyssey-erp/laadstock/internal/shared"
	"github.com/odyssey-erp/laadstock/internal/stock"
	"github.com/odyssey-erp/laadstock/jobs"
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

	pool, err := db.New(ctx, cfg.Database("worker"))
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var redisClient *redis.Client
	if client, err := cache.New(ctx, cfg.Redis()); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	stockService := stock.NewService(
		stock.NewRepository(pool),
		intake.NewRepository(pool),
		stock.NewCache(redisClient, cfg.StockCacheTTL),
		shared.NewAuditLogger(pool),
		stock.ServiceConfig{DefaultBagWeight: cfg.StockDefaultBagWeight},
		logger,
	)

	auditJob := jobs.NewStockAuditJob(stockService, logger, metrics.Jobs())
	warmJob := jobs.NewCacheWarmJob(stockService, logger, metrics.Jobs())
	cleanupJob := &jobs.IdempotencyCleanupJob{
		Store:     shared.NewIdempotencyStore(pool),
		Retention: cfg.IdempotencyRetention,
		Logger:    logger,
		Metrics:   metrics.Jobs(),
	}

	auditTask, err := jobs.NewStockAuditTask("cron")
	if err != nil {
		logger.Error("build audit task", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpts, err := cfg.Redis().Asynq()
	if err != nil {
		logger.Error("asynq redis options", slog.Any("error", err))
		os.Exit(1)
	}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskStockAudit, Handler: auditJob.Handle},
			{Type: jobs.TaskStockCacheWarm, Handler: warmJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.StockAuditCron, Task: auditTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "@daily", Task: jobs.NewIdempotencyCleanupTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := app.Serve(ctx, metricsServer, logger, 5*time.Second); err != nil {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
