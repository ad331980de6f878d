package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/laadstock/internal/app"
	"github.com/odyssey-erp/laadstock/internal/intake"
	"github.com/odyssey-erp/laadstock/internal/observability"
	"github.com/odyssey-erp/laadstock/internal/platform/cache"
	"github.com/odyssey-erp/laadstock/internal/platform/db"
	"github.com/odyssey-erp/laadstock/internal/sales"
	"github.com/odyssey-erp/laadstock/internal/shared"
	"github.com/odyssey-erp/laadstock/internal/stock"
	"github.com/odyssey-erp/laadstock/jobs"
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

	dbpool, err := db.New(ctx, cfg.Database("api"))
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	// Redis is optional: without it the stock view is rebuilt per request and
	// intake runs without the delivery lock.
	var redisClient *redis.Client
	if client, err := cache.New(ctx, cfg.Redis()); err != nil {
		logger.Warn("redis unavailable, running without cache and locks", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	var locker *shared.Locker
	if redisClient != nil {
		locker = shared.NewLocker(redislock.New(redisClient), cfg.IntakeLockTTL, logger)
	}

	stockRepo := stock.NewRepository(dbpool)
	intakeRepo := intake.NewRepository(dbpool)
	stockCache := stock.NewCache(redisClient, cfg.StockCacheTTL)
	stockService := stock.NewService(stockRepo, intakeRepo, stockCache, auditLogger, stock.ServiceConfig{
		DefaultBagWeight: cfg.StockDefaultBagWeight,
	}, logger)

	salesService := sales.NewService(sales.NewRepository(dbpool), stockService.Ledger(), sales.Deps{
		Stock:       stockService,
		Audit:       auditLogger,
		Idempotency: idempotencyStore,
		Metrics:     metrics,
		Logger:      logger,
	})
	intakeService := intake.NewService(intakeRepo, stockService.Ledger(), intake.Deps{
		Locks:  locker,
		Stock:  stockService,
		Audit:  auditLogger,
		Logger: logger,
	})

	var jobHandler *jobs.Handler
	if redisClient != nil {
		redisOpts, err := cfg.Redis().Asynq()
		if err != nil {
			logger.Error("asynq redis options", slog.Any("error", err))
			os.Exit(1)
		}
		inspector := asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)

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
		if err := stockCache.Subscribe(ctx, func(version int64) {
			if err := jobClient.EnqueueCacheWarm(ctx, version); err != nil {
				logger.Warn("enqueue stock cache warm", slog.Int64("version", version), slog.Any("error", err))
			}
		}); err != nil {
			logger.Warn("subscribe stock cache bumps", slog.Any("error", err))
		}
	} else {
		jobHandler = jobs.NewHandler(nil, logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		StockHandler:  stock.NewHandler(logger, stockService),
		SalesHandler:  sales.NewHandler(logger, salesService),
		IntakeHandler: intake.NewHandler(logger, intakeService),
		JobHandler:    jobHandler,
		Metrics:       metrics,
		Ready: func(r *http.Request) error {
			return dbpool.Ping(r.Context())
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	if err := app.Serve(ctx, server, logger, 10*time.Second); err != nil {
		logger.Error("http server", slog.Any("error", err))
		os.Exit(1)
	}
}
