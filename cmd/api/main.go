package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/ramp-settlement/api/controllers"
	"github.com/angelmondragon/ramp-settlement/api/routes"
	"github.com/angelmondragon/ramp-settlement/internal/app"
	"github.com/angelmondragon/ramp-settlement/internal/gateway"
	gatewaywebhook "github.com/angelmondragon/ramp-settlement/internal/webhooks/gateway"
	"github.com/angelmondragon/ramp-settlement/pkg/config"
	"github.com/angelmondragon/ramp-settlement/pkg/db"
	"github.com/angelmondragon/ramp-settlement/pkg/logger"
	"github.com/angelmondragon/ramp-settlement/pkg/metrics"
	"github.com/angelmondragon/ramp-settlement/pkg/migrate"
	"github.com/angelmondragon/ramp-settlement/pkg/outbox/idempotency"
	"github.com/angelmondragon/ramp-settlement/pkg/pubsub"
	"github.com/angelmondragon/ramp-settlement/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	pipeline, err := app.BuildSettlement(ctx, cfg, logg, dbClient, redisClient, metrics.NewSettlementMetrics(registry))
	if err != nil {
		logg.Error(ctx, "failed to build settlement pipeline", err)
		os.Exit(1)
	}
	defer pipeline.Close()

	readiness := []controllers.ReadinessCheck{
		{Name: "database", Ping: dbClient.Ping},
		{Name: "redis", Ping: redisClient.Ping},
		{Name: "ledger", Ping: pipeline.Ledger.Ping},
	}
	if cfg.GCP.ProjectID != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub client", err)
			}
		}()
		readiness = append(readiness, controllers.ReadinessCheck{Name: "pubsub", Ping: pubsubClient.Ping})
	}

	deps := routes.Dependencies{
		Settlements:    pipeline.Service,
		Calculator:     pipeline.Calculator,
		Redis:          redisClient,
		Readiness:      readiness,
		Metrics:        metrics.Handler(registry),
		RequestMetrics: metrics.NewHTTPMetrics(registry),
	}
	if err := wireWebhooks(cfg, logg, pipeline, redisClient, &deps); err != nil {
		logg.Error(ctx, "failed to wire gateway webhooks", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":     cfg.App.Env,
		"addr":    addr,
		"gateway": cfg.Gateway.Mode,
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, deps),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(logCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(logCtx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(logCtx, "graceful shutdown failed", err)
		}
	}
}

// wireWebhooks enables the gateway webhook when a webhook secret is configured.
func wireWebhooks(cfg *config.Config, logg *logger.Logger, pipeline *app.Settlement, redisClient *redis.Client, deps *routes.Dependencies) error {
	if cfg.Gateway.WebhookSecret == "" {
		logg.Warn(context.Background(), "gateway webhook secret not set, webhook deliveries will be rejected")
		return nil
	}
	bodyVerifier, err := gateway.NewProofVerifier(cfg.Gateway.WebhookSecret)
	if err != nil {
		return err
	}
	guard, err := idempotency.NewManager(redisClient, cfg.Idempotency.WebhookTTL)
	if err != nil {
		return err
	}
	webhookSvc, err := gatewaywebhook.NewService(gatewaywebhook.ServiceParams{
		Settlements: pipeline.Service,
		Signer:      pipeline.Verifier,
		Logger:      logg,
	})
	if err != nil {
		return err
	}
	deps.Webhooks = webhookSvc
	deps.WebhookVerifier = bodyVerifier
	deps.WebhookGuard = guard
	return nil
}
