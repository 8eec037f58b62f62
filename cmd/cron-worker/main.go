package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/ramp-settlement/internal/app"
	"github.com/angelmondragon/ramp-settlement/internal/cron"
	"github.com/angelmondragon/ramp-settlement/pkg/config"
	"github.com/angelmondragon/ramp-settlement/pkg/db"
	"github.com/angelmondragon/ramp-settlement/pkg/logger"
	"github.com/angelmondragon/ramp-settlement/pkg/metrics"
	"github.com/angelmondragon/ramp-settlement/pkg/migrate"
	"github.com/angelmondragon/ramp-settlement/pkg/outbox"
	"github.com/angelmondragon/ramp-settlement/pkg/redis"
)

const batchSize = 50

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	pipeline, err := app.BuildSettlement(ctx, cfg, logg, dbClient, redisClient, metrics.NewSettlementMetrics(prometheus.DefaultRegisterer))
	if err != nil {
		logg.Error(ctx, "failed to build settlement pipeline", err)
		os.Exit(1)
	}
	defer pipeline.Close()

	jobMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	registry, err := buildJobs(cfg, logg, pipeline, dbClient, jobMetrics)
	if err != nil {
		logg.Error(ctx, "failed to register cron jobs", err)
		os.Exit(1)
	}

	lock, err := redis.NewLock(redisClient, redisClient.LockKey("cron", lockScope(cfg.App.Env)), 0)
	if err != nil {
		logg.Error(ctx, "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  jobMetrics,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cron service", err)
		os.Exit(1)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"interval":    cfg.Cron.Interval.String(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildJobs(cfg *config.Config, logg *logger.Logger, pipeline *app.Settlement, dbClient *db.Client, jobMetrics *metrics.CronJobMetrics) (*cron.Registry, error) {
	params := cron.SettlementJobParams{Logger: logg, Metrics: jobMetrics, BatchSize: batchSize}

	payouts, err := cron.NewPayoutJob(pipeline.Service, params)
	if err != nil {
		return nil, fmt.Errorf("payout job: %w", err)
	}
	stale, err := cron.NewStaleTransferJob(pipeline.Service, cfg.Cron.StaleTransferAge, params)
	if err != nil {
		return nil, fmt.Errorf("stale transfer job: %w", err)
	}
	expiry, err := cron.NewOrderExpiryJob(pipeline.Service, cfg.Cron.OrderTTL, params)
	if err != nil {
		return nil, fmt.Errorf("order expiry job: %w", err)
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: outbox.NewRepository(dbClient.DB()),
		Metrics:    jobMetrics,
		Retention:  cfg.Cron.OutboxRetention,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}

	return cron.NewRegistry(payouts, stale, expiry, retention)
}

func lockScope(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
