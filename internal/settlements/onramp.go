package settlements

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/ramp-settlement/internal/gateway"
	"github.com/angelmondragon/ramp-settlement/internal/history"
	"github.com/angelmondragon/ramp-settlement/pkg/db/models"
	"github.com/angelmondragon/ramp-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/ramp-settlement/pkg/errors"
	"github.com/angelmondragon/ramp-settlement/pkg/outbox"
	"github.com/angelmondragon/ramp-settlement/pkg/outbox/payloads"
)

const receiptDigits = 100_000_000

func (s *service) CreateOnRampOrder(ctx context.Context, userID uuid.UUID, input CreateOnRampInput) (*OnRampOrder, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	if !input.Asset.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported asset")
	}
	wallet, err := normalizeWallet(input.WalletAddress)
	if err != nil {
		return nil, err
	}
	q, err := s.calc.OnRamp(input.Asset, input.FiatAmount)
	if err != nil {
		return nil, err
	}
	strategy, err := s.executor.StrategyFor(input.Asset)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "asset is not deliverable")
	}

	now := s.now()
	amountMinor := q.TotalPayable.Shift(s.opts.Currency.MinorUnits()).Round(0).IntPart()
	receipt := fmt.Sprintf("onramp_%08d", now.UnixMilli()%receiptDigits)
	order, err := s.gateway.CreateOrder(ctx, gateway.CreateOrderInput{
		AmountMinor: amountMinor,
		Currency:    s.opts.Currency.String(),
		Receipt:     receipt,
		Capture:     1,
		Notes: map[string]string{
			"userId":        userID.String(),
			"tokenType":     input.Asset.String(),
			"walletAddress": wallet,
		},
	})
	if err != nil {
		return nil, err
	}

	metadata, err := json.Marshal(map[string]any{"client": input.ClientInfo, "receipt": receipt})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode settlement metadata")
	}

	rec := &models.Settlement{
		ID:               uuid.New(),
		OrderReference:   order.ID,
		OwnerID:          userID,
		Direction:        enums.DirectionOnRamp,
		AssetType:        input.Asset,
		WalletAddress:    wallet,
		Currency:         s.opts.Currency,
		FiatAmount:       q.FiatAmount,
		TokenAmount:      q.TokenAmount,
		ConversionRate:   q.Rate,
		GatewayFee:       q.GatewayFee,
		NetworkFee:       decimal.Zero,
		PlatformFee:      q.PlatformFee,
		TotalPayable:     q.TotalPayable,
		NetPayout:        decimal.Zero,
		Status:           enums.SettlementStatusCreated,
		PaymentStatus:    enums.PaymentStatusPending,
		GatewayOrderID:   &order.ID,
		TransferStrategy: strategy,
		TransferStatus:   enums.TransferStatusPending,
		Metadata:         metadata,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.create(ctx, rec, userID); err != nil {
		return nil, err
	}

	return &OnRampOrder{
		Settlement: toRecord(rec),
		Checkout: Checkout{
			KeyID:       s.gateway.KeyID(),
			OrderID:     order.ID,
			AmountMinor: amountMinor,
			Currency:    s.opts.Currency.String(),
			Receipt:     receipt,
		},
	}, nil
}

// create inserts rec with its initial history row and created event.
func (s *service) create(ctx context.Context, rec *models.Settlement, actor uuid.UUID) error {
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, rec); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create settlement")
		}
		if _, err := s.history.Record(ctx, tx, history.RecordInput{
			SettlementID: rec.ID,
			To:           rec.Status,
			ActorUserID:  actor,
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:   enums.EventSettlementCreated,
			AggregateID: rec.ID,
			Actor:       outbox.ActorFor(actor),
			Data: payloads.SettlementCreatedEvent{
				SettlementID:   rec.ID,
				OrderReference: rec.OrderReference,
				OwnerID:        rec.OwnerID,
				Direction:      rec.Direction,
				AssetType:      rec.AssetType,
				FiatAmount:     rec.FiatAmount,
				TokenAmount:    rec.TokenAmount,
				Currency:       rec.Currency,
			},
		})
	})
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.IncTransition(rec.Direction.String(), rec.Status.String())
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"settlement_id":   rec.ID.String(),
		"order_reference": rec.OrderReference,
		"direction":       rec.Direction,
		"asset":           rec.AssetType,
	}), "settlement created")
	return nil
}

func (s *service) VerifyPayment(ctx context.Context, userID uuid.UUID, input VerifyPaymentInput) (*TransferOutcome, error) {
	input, err := normalizeProof(input)
	if err != nil {
		return nil, err
	}
	rec, err := s.loadByReference(ctx, input.OrderReference)
	if err != nil {
		return nil, err
	}
	if err := authorize(rec, userID); err != nil {
		return nil, err
	}
	return s.verifyPayment(ctx, rec, userID, input)
}

// ConfirmGatewayPayment applies a proof received server to server from the
// gateway. The caller has already authenticated the gateway.
func (s *service) ConfirmGatewayPayment(ctx context.Context, input VerifyPaymentInput) (*TransferOutcome, error) {
	input, err := normalizeProof(input)
	if err != nil {
		return nil, err
	}
	rec, err := s.loadByReference(ctx, input.OrderReference)
	if err != nil {
		return nil, err
	}
	return s.verifyPayment(ctx, rec, uuid.Nil, input)
}

func (s *service) verifyPayment(ctx context.Context, rec *models.Settlement, actor uuid.UUID, input VerifyPaymentInput) (*TransferOutcome, error) {
	if err := requireDirection(rec, enums.DirectionOnRamp); err != nil {
		return nil, err
	}
	ctx = s.logg.WithSettlementID(ctx, rec.ID.String())
	valid := s.verifier.Verify(gatewayOrderID(rec), input.PaymentID, input.Signature)

	if rec.PaymentProofID != nil {
		if !valid {
			return nil, signatureMismatch()
		}
		if *rec.PaymentProofID != input.PaymentID {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already paid with a different payment")
		}
		if s.transferNeverStarted(rec) {
			s.logg.Info(ctx, "resuming transfer for redelivered payment proof")
			return s.startTransfer(ctx, rec, actor)
		}
		s.logg.Info(ctx, "duplicate payment proof ignored")
		return &TransferOutcome{Settlement: toRecord(rec), Duplicate: true}, nil
	}
	if rec.PaymentStatus == enums.PaymentStatusFailed {
		return nil, pkgerrors.New(pkgerrors.CodeSignatureMismatch, "payment was previously rejected")
	}
	if err := ValidateTransition(rec.Direction, rec.Status, enums.SettlementStatusPaymentVerified); err != nil {
		return nil, err
	}
	if !valid {
		if err := s.rejectPayment(ctx, rec, actor, input.PaymentID); err != nil {
			return nil, err
		}
		return nil, signatureMismatch()
	}

	now := s.now()
	ok, err := s.commit(ctx, transition{
		rec: rec,
		to:  enums.SettlementStatusPaymentVerified,
		guard: Guard{
			Statuses:      []enums.SettlementStatus{enums.SettlementStatusCreated},
			PaymentStatus: enums.PaymentStatusPending,
			ProofUnset:    true,
		},
		updates: map[string]any{
			"payment_status":    enums.PaymentStatusVerified,
			"payment_proof_id":  input.PaymentID,
			"proof_verified_at": now,
		},
		reason: "payment proof verified",
		actor:  actor,
		meta:   map[string]any{"payment_id": input.PaymentID},
		events: []outbox.DomainEvent{{
			EventType: enums.EventPaymentVerified,
			Data: payloads.SettlementTransitionEvent{
				SettlementID:   rec.ID,
				OrderReference: rec.OrderReference,
				FromStatus:     rec.Status,
				ToStatus:       enums.SettlementStatusPaymentVerified,
				PaymentID:      input.PaymentID,
				OccurredAt:     now,
			},
		}},
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		// another request recorded a proof first
		current, err := s.load(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
		if current.PaymentProofID != nil && *current.PaymentProofID == input.PaymentID {
			return &TransferOutcome{Settlement: toRecord(current), Duplicate: true}, nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "settlement payment already processed")
	}

	verified, err := s.load(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	return s.startTransfer(ctx, verified, actor)
}

// resumeAfter is how long a verified payment may sit without a transfer
// before a redelivered proof starts it.
const resumeAfter = time.Minute

func (s *service) transferNeverStarted(rec *models.Settlement) bool {
	if rec.Status != enums.SettlementStatusPaymentVerified || rec.TransferStatus != enums.TransferStatusPending {
		return false
	}
	return rec.ProofVerifiedAt == nil || s.now().Sub(*rec.ProofVerifiedAt) >= resumeAfter
}

// startTransfer runs the first delivery for a verified payment. A delivery
// already running elsewhere is reported as a duplicate.
func (s *service) startTransfer(ctx context.Context, rec *models.Settlement, actor uuid.UUID) (*TransferOutcome, error) {
	outcome, err := s.runTransfer(ctx, rec, actor, false)
	if errors.Is(err, errTransferBusy) {
		current, loadErr := s.load(ctx, rec.ID)
		if loadErr != nil {
			return nil, loadErr
		}
		return &TransferOutcome{Settlement: toRecord(current), Duplicate: true}, nil
	}
	return outcome, err
}

func (s *service) rejectPayment(ctx context.Context, rec *models.Settlement, actor uuid.UUID, paymentID string) error {
	now := s.now()
	reason := "payment signature mismatch"
	_, err := s.commit(ctx, transition{
		rec: rec,
		to:  rec.Status,
		guard: Guard{
			Statuses:      []enums.SettlementStatus{enums.SettlementStatusCreated},
			PaymentStatus: enums.PaymentStatusPending,
			ProofUnset:    true,
		},
		updates: map[string]any{
			"payment_status": enums.PaymentStatusFailed,
			"failure_code":   enums.FailureSignatureMismatch,
			"failure_reason": reason,
			"failed_at":      now,
		},
		reason: reason,
		actor:  actor,
		meta:   map[string]any{"payment_id": paymentID},
		events: []outbox.DomainEvent{{
			EventType: enums.EventPaymentRejected,
			Data: payloads.SettlementTransitionEvent{
				SettlementID:   rec.ID,
				OrderReference: rec.OrderReference,
				FromStatus:     rec.Status,
				ToStatus:       rec.Status,
				Reason:         reason,
				PaymentID:      paymentID,
				OccurredAt:     now,
			},
		}},
	})
	if err != nil {
		return err
	}
	s.logg.Warn(ctx, "payment proof rejected")
	return nil
}

func (s *service) Retry(ctx context.Context, userID, settlementID uuid.UUID) (*TransferOutcome, error) {
	rec, err := s.loadOwned(ctx, userID, settlementID)
	if err != nil {
		return nil, err
	}
	if rec.Direction != enums.DirectionOnRamp {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "only on-ramp transfers can be retried")
	}
	if rec.Status != enums.SettlementStatusFailed {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "only failed settlements can be retried").
			WithDetails(map[string]any{"status": rec.Status.String()})
	}
	if rec.PaymentProofID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "settlement has no verified payment")
	}
	ctx = s.logg.WithSettlementID(ctx, rec.ID.String())
	return s.runTransfer(ctx, rec, userID, true)
}

func (s *service) EstimateCost(ctx context.Context, input EstimateInput) (*CostEstimate, error) {
	if !input.Asset.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported asset")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if _, err := normalizeWallet(input.WalletAddress); err != nil {
		return nil, err
	}
	strategy, err := s.executor.StrategyFor(input.Asset)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "asset is not deliverable")
	}

	estimate := &CostEstimate{
		AssetType:  input.Asset,
		Strategy:   strategy,
		GasPrice:   "0",
		NativeCost: decimal.Zero,
		FiatCost:   decimal.Zero,
		Currency:   s.opts.Currency,
	}
	if strategy == enums.TransferStrategySimulated {
		estimate.Simulated = true
		return estimate, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.opts.LookupTimeout)
	defer cancel()
	fee, err := s.ledger.EstimateFee(lookupCtx, input.Asset)
	if err != nil {
		return nil, ledgerError(err, "estimate network fee")
	}
	estimate.GasUnits = fee.GasUnits
	if fee.GasPrice != nil {
		estimate.GasPrice = fee.GasPrice.String()
	}
	estimate.NativeCost = fee.NativeCost
	if rate, ok := s.calc.OnRampRate(nativeAsset()); ok && rate.IsPositive() {
		estimate.FiatCost = fee.NativeCost.Div(rate).Round(2)
	}
	return estimate, nil
}

func (s *service) GatewayOrderStatus(ctx context.Context, userID uuid.UUID, orderReference string) (*GatewayOrderStatus, error) {
	rec, err := s.loadByReference(ctx, strings.TrimSpace(orderReference))
	if err != nil {
		return nil, err
	}
	if err := authorize(rec, userID); err != nil {
		return nil, err
	}
	order, err := s.gateway.FetchOrder(ctx, gatewayOrderID(rec))
	if err != nil {
		return nil, err
	}
	return &GatewayOrderStatus{
		Settlement:  toRecord(rec),
		OrderID:     order.ID,
		OrderStatus: order.Status,
		AmountMinor: order.AmountMinor,
		AmountPaid:  order.AmountPaid,
		Currency:    order.Currency,
	}, nil
}

func normalizeProof(input VerifyPaymentInput) (VerifyPaymentInput, error) {
	input.OrderReference = strings.TrimSpace(input.OrderReference)
	input.PaymentID = strings.TrimSpace(input.PaymentID)
	input.Signature = strings.TrimSpace(input.Signature)
	if input.OrderReference == "" || input.PaymentID == "" || input.Signature == "" {
		return input, pkgerrors.New(pkgerrors.CodeValidation, "order reference, payment id and signature are required")
	}
	return input, nil
}

func normalizeWallet(address string) (string, error) {
	trimmed := strings.TrimSpace(address)
	if !common.IsHexAddress(trimmed) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid wallet address")
	}
	return common.HexToAddress(trimmed).Hex(), nil
}

func gatewayOrderID(rec *models.Settlement) string {
	if rec.GatewayOrderID != nil && *rec.GatewayOrderID != "" {
		return *rec.GatewayOrderID
	}
	return rec.OrderReference
}

func signatureMismatch() error {
	return pkgerrors.New(pkgerrors.CodeSignatureMismatch, "invalid payment signature")
}

func nativeAsset() enums.AssetType {
	for _, asset := range enums.AssetTypes() {
		if asset.IsNative() {
			return asset
		}
	}
	return enums.AssetETH
}
