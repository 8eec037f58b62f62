package settlements

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/ramp-settlement/internal/gateway"
	"github.com/angelmondragon/ramp-settlement/internal/payouts"
	"github.com/angelmondragon/ramp-settlement/pkg/db/models"
	"github.com/angelmondragon/ramp-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/ramp-settlement/pkg/errors"
	"github.com/angelmondragon/ramp-settlement/pkg/outbox"
	"github.com/angelmondragon/ramp-settlement/pkg/outbox/payloads"
)

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

func (s *service) CreateWithdrawal(ctx context.Context, userID uuid.UUID, input CreateWithdrawalInput) (*Withdrawal, error) {
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
	bankRef := strings.TrimSpace(input.BankAccountRef)
	if bankRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bank account reference is required")
	}
	q, err := s.calc.OffRamp(input.Asset, input.TokenAmount)
	if err != nil {
		return nil, err
	}
	depositAddress, err := s.depositAddress()
	if err != nil {
		return nil, err
	}

	metadata, err := json.Marshal(map[string]any{"client": input.ClientInfo})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode settlement metadata")
	}
	now := s.now()
	rec := &models.Settlement{
		ID:               uuid.New(),
		OrderReference:   "offramp_" + gateway.RandomID(14),
		OwnerID:          userID,
		Direction:        enums.DirectionOffRamp,
		AssetType:        input.Asset,
		WalletAddress:    wallet,
		Currency:         s.opts.Currency,
		FiatAmount:       q.GrossFiat,
		TokenAmount:      q.TokenAmount,
		ConversionRate:   q.Rate,
		GatewayFee:       decimal.Zero,
		NetworkFee:       decimal.Zero,
		PlatformFee:      q.PlatformFee,
		TotalPayable:     q.GrossFiat,
		NetPayout:        q.NetPayout,
		Status:           enums.SettlementStatusWithdrawalRequested,
		PaymentStatus:    enums.PaymentStatusPending,
		TransferStrategy: enums.TransferStrategyReal,
		TransferStatus:   enums.TransferStatusPending,
		BankAccountRef:   &bankRef,
		Metadata:         metadata,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.create(ctx, rec, userID); err != nil {
		return nil, err
	}

	return &Withdrawal{
		Settlement: toRecord(rec),
		Deposit: DepositInstructions{
			Address: depositAddress,
			Asset:   rec.AssetType,
			Amount:  rec.TokenAmount,
			ChainID: s.opts.ChainID,
		},
	}, nil
}

func (s *service) depositAddress() (string, error) {
	if addr := strings.TrimSpace(s.opts.DepositAddress); addr != "" {
		return common.HexToAddress(addr).Hex(), nil
	}
	if signer := s.ledger.SignerAddress(); signer != (common.Address{}) {
		return signer.Hex(), nil
	}
	return "", pkgerrors.New(pkgerrors.CodeDependency, "deposit address not configured")
}

func (s *service) VerifyDeposit(ctx context.Context, userID, settlementID uuid.UUID, txHash string) (*Record, error) {
	txHash = strings.TrimSpace(txHash)
	if !txHashPattern.MatchString(txHash) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction hash")
	}
	rec, err := s.loadOwned(ctx, userID, settlementID)
	if err != nil {
		return nil, err
	}
	if err := requireDirection(rec, enums.DirectionOffRamp); err != nil {
		return nil, err
	}
	if rec.DepositTxHash != nil && strings.EqualFold(*rec.DepositTxHash, txHash) {
		out := toRecord(rec)
		return &out, nil
	}
	if err := ValidateTransition(rec.Direction, rec.Status, enums.SettlementStatusDepositVerified); err != nil {
		return nil, err
	}
	ctx = s.logg.WithSettlementID(ctx, rec.ID.String())

	if existing, err := s.repo.GetByDepositHash(ctx, txHash); err == nil && existing.ID != rec.ID {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "deposit transaction already claimed")
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check deposit transaction")
	}

	method, err := s.checkDeposit(ctx, rec, txHash)
	if err != nil {
		return nil, err
	}

	now := s.now()
	dueAt := now.Add(s.opts.PayoutDelay)
	ok, err := s.commit(ctx, transition{
		rec:   rec,
		to:    enums.SettlementStatusDepositVerified,
		guard: Guard{Statuses: []enums.SettlementStatus{enums.SettlementStatusWithdrawalRequested}},
		updates: map[string]any{
			"deposit_tx_hash":     txHash,
			"deposit_method":      method,
			"deposit_verified_at": now,
			"payout_due_at":       dueAt,
		},
		reason: "deposit verified",
		actor:  userID,
		meta:   map[string]any{"deposit_tx_hash": txHash, "method": method},
		events: []outbox.DomainEvent{{
			EventType: enums.EventDepositVerified,
			Data: payloads.SettlementTransitionEvent{
				SettlementID:   rec.ID,
				OrderReference: rec.OrderReference,
				FromStatus:     rec.Status,
				ToStatus:       enums.SettlementStatusDepositVerified,
				DepositTxHash:  txHash,
				DepositMethod:  method,
				OccurredAt:     now,
			},
		}},
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "withdrawal is no longer awaiting a deposit")
	}
	current, err := s.load(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	out := toRecord(current)
	return &out, nil
}

// checkDeposit looks the deposit up on the ledger. When the lookup fails and
// unverified deposits are allowed the deposit is accepted as demo_accepted.
func (s *service) checkDeposit(ctx context.Context, rec *models.Settlement, txHash string) (enums.DepositVerificationMethod, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, s.opts.LookupTimeout)
	defer cancel()

	info, err := s.ledger.LookupTransaction(lookupCtx, common.HexToHash(txHash))
	if err != nil {
		if s.opts.AllowUnverifiedDeposits {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "deposit lookup failed, accepting unverified deposit")
			return enums.DepositDemoAccepted, nil
		}
		return "", ledgerError(err, "look up deposit transaction")
	}
	if info.Pending {
		return "", pkgerrors.New(pkgerrors.CodeConflict, "deposit transaction is not final yet")
	}
	if !info.Success {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "deposit transaction failed on ledger")
	}
	if info.To == "" || !info.Asset.IsValid() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "deposit transaction is not a recognised asset transfer")
	}
	if !strings.EqualFold(info.From, rec.WalletAddress) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "deposit sender does not match withdrawal wallet")
	}
	if info.Asset != rec.AssetType {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "deposit asset does not match withdrawal").
			WithDetails(map[string]any{"expected": rec.AssetType.String(), "actual": info.Asset.String()})
	}
	if expected, err := s.depositAddress(); err == nil && !strings.EqualFold(info.To, expected) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "deposit sent to the wrong address")
	}
	if info.Amount.LessThan(rec.TokenAmount) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "deposit amount below withdrawal amount").
			WithDetails(map[string]any{"expected": rec.TokenAmount.String(), "actual": info.Amount.String()})
	}
	return enums.DepositLedgerConfirmed, nil
}

func (s *service) ConfirmPayout(ctx context.Context, userID, settlementID uuid.UUID) (*Record, error) {
	rec, err := s.loadOwned(ctx, userID, settlementID)
	if err != nil {
		return nil, err
	}
	if err := requireDirection(rec, enums.DirectionOffRamp); err != nil {
		return nil, err
	}
	switch rec.Status {
	case enums.SettlementStatusDepositVerified, enums.SettlementStatusPayoutInitiated, enums.SettlementStatusCompleted:
	default:
		return nil, ValidateTransition(rec.Direction, rec.Status, enums.SettlementStatusPayoutInitiated)
	}
	ctx = s.logg.WithSettlementID(ctx, rec.ID.String())
	current, err := s.advancePayout(ctx, rec, userID)
	if err != nil {
		return nil, err
	}
	out := toRecord(current)
	return &out, nil
}

// ProcessDuePayouts advances every off-ramp record whose payout is due.
func (s *service) ProcessDuePayouts(ctx context.Context, limit int) (BatchResult, error) {
	var result BatchResult
	rows, err := s.repo.ListPayoutCandidates(ctx, s.now(), limit)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payout candidates")
	}
	result.Scanned = len(rows)

	var errs error
	for i := range rows {
		rec := &rows[i]
		recCtx := s.logg.WithSettlementID(ctx, rec.ID.String())
		current, err := s.advancePayout(recCtx, rec, uuid.Nil)
		if err != nil {
			s.logg.Error(recCtx, "payout processing failed", err)
			errs = multierr.Append(errs, err)
			continue
		}
		if current.Status == enums.SettlementStatusCompleted {
			result.Processed++
		} else {
			result.Skipped++
		}
	}
	return result, errs
}

func (s *service) advancePayout(ctx context.Context, rec *models.Settlement, actor uuid.UUID) (*models.Settlement, error) {
	var err error
	if rec.Status == enums.SettlementStatusDepositVerified {
		if rec, err = s.initiatePayout(ctx, rec, actor); err != nil {
			return nil, err
		}
	}
	if rec.Status == enums.SettlementStatusPayoutInitiated {
		if rec, err = s.completePayout(ctx, rec, actor); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

func (s *service) initiatePayout(ctx context.Context, rec *models.Settlement, actor uuid.UUID) (*models.Settlement, error) {
	bankRef := ""
	if rec.BankAccountRef != nil {
		bankRef = *rec.BankAccountRef
	}
	payout, err := s.payouts.Initiate(ctx, payouts.Request{
		SettlementID:   rec.ID,
		BankAccountRef: bankRef,
		Amount:         rec.NetPayout,
		Currency:       rec.Currency,
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "initiate payout")
	}

	now := s.now()
	_, err = s.commit(ctx, transition{
		rec:   rec,
		to:    enums.SettlementStatusPayoutInitiated,
		guard: Guard{Statuses: []enums.SettlementStatus{enums.SettlementStatusDepositVerified}},
		updates: map[string]any{
			"payout_reference":    payout.Reference,
			"payout_initiated_at": now,
		},
		reason: "payout initiated",
		actor:  actor,
		meta:   map[string]any{"payout_reference": payout.Reference},
		events: []outbox.DomainEvent{{
			EventType: enums.EventPayoutInitiated,
			Data:      payoutEvent(rec, payout.Reference),
		}},
	})
	if err != nil {
		return nil, err
	}
	return s.load(ctx, rec.ID)
}

func (s *service) completePayout(ctx context.Context, rec *models.Settlement, actor uuid.UUID) (*models.Settlement, error) {
	reference := ""
	if rec.PayoutReference != nil {
		reference = *rec.PayoutReference
	}
	_, err := s.commit(ctx, transition{
		rec:     rec,
		to:      enums.SettlementStatusCompleted,
		guard:   Guard{Statuses: []enums.SettlementStatus{enums.SettlementStatusPayoutInitiated}},
		updates: map[string]any{"settled_at": s.now()},
		reason:  "payout completed",
		actor:   actor,
		meta:    map[string]any{"payout_reference": reference},
		events: []outbox.DomainEvent{{
			EventType: enums.EventPayoutCompleted,
			Data:      payoutEvent(rec, reference),
		}},
	})
	if err != nil {
		return nil, err
	}
	return s.load(ctx, rec.ID)
}

func payoutEvent(rec *models.Settlement, reference string) payloads.PayoutEvent {
	event := payloads.PayoutEvent{
		SettlementID:    rec.ID,
		OrderReference:  rec.OrderReference,
		NetPayout:       rec.NetPayout,
		Currency:        rec.Currency,
		PayoutReference: reference,
		DueAt:           rec.PayoutDueAt,
	}
	if rec.BankAccountRef != nil {
		event.BankAccountRef = *rec.BankAccountRef
	}
	return event
}
