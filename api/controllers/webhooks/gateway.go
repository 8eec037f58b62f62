package webhooks

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/ramp-settlement/api/responses"
	gatewaywebhook "github.com/angelmondragon/ramp-settlement/internal/webhooks/gateway"
	pkgerrors "github.com/angelmondragon/ramp-settlement/pkg/errors"
	"github.com/angelmondragon/ramp-settlement/pkg/logger"
)

const (
	// GatewayConsumer scopes processed-delivery keys for the payment gateway.
	GatewayConsumer = "gateway-webhook"

	signatureHeader = "X-Razorpay-Signature"
	eventIDHeader   = "X-Razorpay-Event-Id"
	maxBodyBytes    = 1 << 20
)

type GatewayWebhookService interface {
	HandleEvent(ctx context.Context, event *gatewaywebhook.Event) error
}

type bodyVerifier interface {
	VerifyBody(body []byte, signature string) bool
}

type deliveryGuard interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	Delete(ctx context.Context, consumer, eventID string) error
}

// GatewayWebhook authenticates a gateway delivery against the webhook secret
// and applies it at most once per delivery id.
func GatewayWebhook(svc GatewayWebhookService, verifier bodyVerifier, guard deliveryGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if verifier == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook verifier unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		signature := strings.TrimSpace(r.Header.Get(signatureHeader))
		if signature == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature missing"))
			return
		}
		if !verifier.VerifyBody(payload, signature) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeSignatureMismatch, "webhook signature mismatch"))
			return
		}

		event, err := gatewaywebhook.ParseEvent(payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		deliveryID := strings.TrimSpace(r.Header.Get(eventIDHeader))
		if deliveryID == "" {
			deliveryID = event.DeliveryID()
		}
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{"delivery_id": deliveryID, "gateway_event": event.Event})
		}

		alreadyProcessed, err := guard.CheckAndMarkProcessed(ctx, GatewayConsumer, deliveryID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			if logg != nil {
				logg.Info(ctx, "webhook.duplicate")
			}
			responses.WriteSuccess(w, map[string]any{"duplicate": true})
			return
		}

		if err := svc.HandleEvent(ctx, event); err != nil {
			_ = guard.Delete(ctx, GatewayConsumer, deliveryID)
			if logg != nil {
				logg.Warn(logg.WithField(ctx, "retryable", pkgerrors.Retryable(err)), "webhook.failed")
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, "webhook.processed")
		}
		responses.WriteSuccess(w, map[string]any{"duplicate": false})
	}
}
