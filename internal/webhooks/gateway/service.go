package gatewaywebhook

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/angelmondragon/ramp-settlement/internal/settlements"
	pkgerrors "github.com/angelmondragon/ramp-settlement/pkg/errors"
	"github.com/angelmondragon/ramp-settlement/pkg/logger"
)

const (
	EventPaymentCaptured = "payment.captured"
	EventOrderPaid       = "order.paid"
	EventPaymentFailed   = "payment.failed"
)

// Event is the envelope the gateway posts to the webhook endpoint.
type Event struct {
	Entity    string       `json:"entity"`
	AccountID string       `json:"account_id"`
	Event     string       `json:"event"`
	Payload   EventPayload `json:"payload"`
	CreatedAt int64        `json:"created_at"`
}

type EventPayload struct {
	Payment *EntityWrapper[Payment] `json:"payment,omitempty"`
	Order   *EntityWrapper[Order]   `json:"order,omitempty"`
}

type EntityWrapper[T any] struct {
	Entity T `json:"entity"`
}

// Payment is the subset of the gateway payment entity the service reads.
type Payment struct {
	ID          string `json:"id"`
	OrderID     string `json:"order_id"`
	Status      string `json:"status"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
	ErrorCode   string `json:"error_code,omitempty"`
}

type Order struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ParseEvent decodes a raw webhook body.
func ParseEvent(body []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode gateway event")
	}
	if strings.TrimSpace(event.Event) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway event type missing")
	}
	return &event, nil
}

// DeliveryID identifies the event for de-duplication when the gateway omits
// its event id header.
func (e *Event) DeliveryID() string {
	paymentID := ""
	if e.Payload.Payment != nil {
		paymentID = e.Payload.Payment.Entity.ID
	}
	return e.Event + ":" + paymentID
}

type paymentConfirmer interface {
	ConfirmGatewayPayment(ctx context.Context, input settlements.VerifyPaymentInput) (*settlements.TransferOutcome, error)
}

type proofSigner interface {
	Sign(orderID, paymentID string) string
}

type ServiceParams struct {
	Settlements paymentConfirmer
	Signer      proofSigner
	Logger      *logger.Logger
}

// Service applies authenticated gateway events to settlements.
type Service struct {
	settlements paymentConfirmer
	signer      proofSigner
	logg        *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Settlements == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settlement service required")
	}
	if params.Signer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "proof signer required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		settlements: params.Settlements,
		signer:      params.Signer,
		logg:        params.Logger,
	}, nil
}

// HandleEvent confirms the payment carried by a captured-payment event. The
// body signature must already be verified. The payment proof is re-derived
// from the gateway key secret.
func (s *Service) HandleEvent(ctx context.Context, event *Event) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "gateway event required")
	}
	ctx = s.logg.WithField(ctx, "gateway_event", event.Event)

	switch event.Event {
	case EventPaymentCaptured, EventOrderPaid:
	case EventPaymentFailed:
		s.logg.Warn(ctx, "gateway reported failed payment")
		return nil
	default:
		s.logg.Info(ctx, "gateway event ignored")
		return nil
	}

	if event.Payload.Payment == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment entity missing")
	}
	payment := event.Payload.Payment.Entity
	orderID := strings.TrimSpace(payment.OrderID)
	if orderID == "" && event.Payload.Order != nil {
		orderID = strings.TrimSpace(event.Payload.Order.Entity.ID)
	}
	paymentID := strings.TrimSpace(payment.ID)
	if orderID == "" || paymentID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "order and payment ids are required")
	}

	outcome, err := s.settlements.ConfirmGatewayPayment(ctx, settlements.VerifyPaymentInput{
		OrderReference: orderID,
		PaymentID:      paymentID,
		Signature:      s.signer.Sign(orderID, paymentID),
	})
	if err != nil {
		return err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"settlement_id":   outcome.Settlement.ID.String(),
		"order_reference": orderID,
		"payment_id":      paymentID,
		"duplicate":       outcome.Duplicate,
	})
	if outcome.Failure != nil {
		// the payment is recorded; delivery is left to retry
		s.logg.Warn(s.logg.WithField(logCtx, "failure_code", outcome.Failure.Code), "webhook payment confirmed, transfer failed")
		return nil
	}
	s.logg.Info(logCtx, "webhook payment confirmed")
	return nil
}
