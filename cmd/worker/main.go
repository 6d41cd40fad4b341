package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/account-consolidation/internal/app"
	"github.com/odyssey-erp/account-consolidation/internal/consol"
	"github.com/odyssey-erp/account-consolidation/internal/consol/fx"
	jobmetrics "github.com/odyssey-erp/account-consolidation/internal/jobs"
	"github.com/odyssey-erp/account-consolidation/internal/platform/cache"
	"github.com/odyssey-erp/account-consolidation/internal/platform/db"
	"github.com/odyssey-erp/account-consolidation/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PoolOptions("consol-worker"))
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var redisClient *redis.Client
	if client, err := cache.New(ctx, cfg.CacheOptions()); err != nil {
		logger.Warn("redis cache unavailable", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	consolRepo := consol.NewRepository(pool)
	quotes := fx.NewCachedProvider(consolRepo, redisClient, cfg.FxCacheTTL)
	consolService := consol.NewService(consolRepo, fx.NewConverter(quotes), logger)
	runJob := jobs.NewConsolidateRunJob(consolService, logger, jobmetrics.NewMetrics(nil))

	cron, err := jobs.CronForHoldings(cfg.ConsolCronSpec, cfg.ConsolCronHoldings, cfg.ConsolQueue)
	if err != nil {
		logger.Error("build consolidation schedule", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   cfg.QueueRedis(),
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Queue:       cfg.ConsolQueue,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskConsolidateRun, Handler: runJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker",
		slog.String("queue", cfg.ConsolQueue),
		slog.Int("scheduled_holdings", len(cron)))
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
