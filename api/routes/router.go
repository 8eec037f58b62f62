package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/ramp-settlement/api/controllers"
	webhookcontrollers "github.com/angelmondragon/ramp-settlement/api/controllers/webhooks"
	"github.com/angelmondragon/ramp-settlement/api/middleware"
	"github.com/angelmondragon/ramp-settlement/internal/quote"
	"github.com/angelmondragon/ramp-settlement/internal/settlements"
	"github.com/angelmondragon/ramp-settlement/pkg/config"
	"github.com/angelmondragon/ramp-settlement/pkg/logger"
	pkgredis "github.com/angelmondragon/ramp-settlement/pkg/redis"
)

// RedisStore backs request replay and rate limiting. *redis.Client satisfies it.
type RedisStore interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

type webhookGuard interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	Delete(ctx context.Context, consumer, eventID string) error
}

type webhookVerifier interface {
	VerifyBody(body []byte, signature string) bool
}

type requestObserver interface {
	ObserveRequest(route, method string, status int, elapsed time.Duration)
}

// Dependencies are the services the HTTP surface dispatches to.
type Dependencies struct {
	Settlements     settlements.Service
	Calculator      *quote.Calculator
	Webhooks        webhookcontrollers.GatewayWebhookService
	WebhookVerifier webhookVerifier
	WebhookGuard    webhookGuard
	Redis           RedisStore
	Readiness       []controllers.ReadinessCheck
	Metrics         http.Handler
	RequestMetrics  requestObserver
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)
	if deps.RequestMetrics != nil {
		r.Use(middleware.Metrics(deps.RequestMetrics))
	}

	store := deps.Redis
	mutations := middleware.RateLimitPolicy{Name: "settlement-mutations", Window: cfg.RateLimit.Window, Limit: cfg.RateLimit.MutationLimit}
	webhooks := middleware.RateLimitPolicy{Name: "gateway-webhook", Window: cfg.RateLimit.Window, Limit: cfg.RateLimit.WebhookLimit}
	standard := middleware.Idempotency(store, cfg.Idempotency.DefaultTTL, logg)
	critical := middleware.Idempotency(store, cfg.Idempotency.CriticalTTL, logg)
	limited := middleware.RateLimit(mutations, store, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.Readiness, logg))
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/rates", controllers.Rates(deps.Calculator, logg))

		r.With(middleware.RateLimit(webhooks, store, logg)).
			Post("/webhooks/gateway", webhookcontrollers.GatewayWebhook(deps.Webhooks, deps.WebhookVerifier, deps.WebhookGuard, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))

			r.Post("/quotes", controllers.Quote(deps.Calculator, logg))

			r.Route("/onramp", func(r chi.Router) {
				r.With(limited, standard).Post("/orders", controllers.OnRampCreateOrder(deps.Settlements, logg))
				r.Get("/orders/{reference}", controllers.OnRampOrderStatus(deps.Settlements, logg))
				r.With(limited, critical).Post("/verify", controllers.OnRampVerify(deps.Settlements, logg))
				r.Post("/estimate", controllers.OnRampEstimate(deps.Settlements, logg))
			})

			r.Route("/offramp/withdrawals", func(r chi.Router) {
				r.With(limited, standard).Post("/", controllers.OffRampCreateWithdrawal(deps.Settlements, logg))
				r.With(limited, critical).Post("/{id}/deposit", controllers.OffRampVerifyDeposit(deps.Settlements, logg))
				r.With(limited, critical).Post("/{id}/payout", controllers.OffRampConfirmPayout(deps.Settlements, logg))
			})

			r.Route("/settlements", func(r chi.Router) {
				r.Get("/", controllers.SettlementsList(deps.Settlements, logg))
				r.Get("/stats", controllers.SettlementsStats(deps.Settlements, logg))
				r.Get("/{id}", controllers.SettlementsGet(deps.Settlements, logg))
				r.Get("/{id}/history", controllers.SettlementsHistory(deps.Settlements, logg))
				r.With(limited, critical).Post("/{id}/retry", controllers.SettlementsRetry(deps.Settlements, logg))
				r.With(limited, standard).Post("/{id}/cancel", controllers.SettlementsCancel(deps.Settlements, logg))
			})

			r.Route("/ledger", func(r chi.Router) {
				r.Get("/transactions/{hash}", controllers.LedgerTransaction(deps.Settlements, logg))
				r.Get("/balances/{address}", controllers.LedgerBalance(deps.Settlements, logg))
			})
		})
	})

	return r
}
