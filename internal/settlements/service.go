package settlements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/ramp-settlement/internal/chain"
	"github.com/angelmondragon/ramp-settlement/internal/gateway"
	"github.com/angelmondragon/ramp-settlement/internal/history"
	"github.com/angelmondragon/ramp-settlement/internal/payouts"
	"github.com/angelmondragon/ramp-settlement/internal/quote"
	"github.com/angelmondragon/ramp-settlement/internal/transfer"
	"github.com/angelmondragon/ramp-settlement/pkg/db"
	"github.com/angelmondragon/ramp-settlement/pkg/db/models"
	"github.com/angelmondragon/ramp-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/ramp-settlement/pkg/errors"
	"github.com/angelmondragon/ramp-settlement/pkg/logger"
	"github.com/angelmondragon/ramp-settlement/pkg/outbox"
)

// Service orchestrates on-ramp and off-ramp settlements.
type Service interface {
	CreateOnRampOrder(ctx context.Context, userID uuid.UUID, input CreateOnRampInput) (*OnRampOrder, error)
	VerifyPayment(ctx context.Context, userID uuid.UUID, input VerifyPaymentInput) (*TransferOutcome, error)
	ConfirmGatewayPayment(ctx context.Context, input VerifyPaymentInput) (*TransferOutcome, error)
	EstimateCost(ctx context.Context, input EstimateInput) (*CostEstimate, error)
	GatewayOrderStatus(ctx context.Context, userID uuid.UUID, orderReference string) (*GatewayOrderStatus, error)
	Retry(ctx context.Context, userID, settlementID uuid.UUID) (*TransferOutcome, error)

	CreateWithdrawal(ctx context.Context, userID uuid.UUID, input CreateWithdrawalInput) (*Withdrawal, error)
	VerifyDeposit(ctx context.Context, userID, settlementID uuid.UUID, txHash string) (*Record, error)
	ConfirmPayout(ctx context.Context, userID, settlementID uuid.UUID) (*Record, error)
	ProcessDuePayouts(ctx context.Context, limit int) (BatchResult, error)

	Cancel(ctx context.Context, userID, settlementID uuid.UUID, reason string) (*Record, error)
	Get(ctx context.Context, userID, settlementID uuid.UUID) (*Record, error)
	List(ctx context.Context, userID uuid.UUID, input ListInput) (*ListResult, error)
	Stats(ctx context.Context, userID uuid.UUID) ([]StatsRow, error)
	History(ctx context.Context, userID, settlementID uuid.UUID) ([]history.Entry, error)
	TxInfo(ctx context.Context, hash string) (*chain.TxInfo, error)
	Balance(ctx context.Context, asset enums.AssetType, address string) (*BalanceView, error)

	ReconcileStale(ctx context.Context, olderThan time.Duration, limit int) (BatchResult, error)
	ExpireStale(ctx context.Context, olderThan time.Duration, limit int) (BatchResult, error)
}

// TxRunner opens database transactions. *db.Client satisfies it.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Ledger is the subset of the chain adapter the orchestrator reads from.
type Ledger interface {
	EstimateFee(ctx context.Context, asset enums.AssetType) (chain.NetworkFee, error)
	LookupTransaction(ctx context.Context, hash common.Hash) (*chain.TxInfo, error)
	Balance(ctx context.Context, asset enums.AssetType, owner common.Address) (decimal.Decimal, error)
	SignerAddress() common.Address
}

// TransferExecutor delivers tokens for verified on-ramp payments.
type TransferExecutor interface {
	StrategyFor(asset enums.AssetType) (enums.TransferStrategy, error)
	Execute(ctx context.Context, req transfer.Request, hooks transfer.Hooks) (*transfer.Result, error)
}

// ProofVerifier checks gateway payment signatures.
type ProofVerifier interface {
	Verify(orderID, paymentID, signature string) bool
}

// Locker is a distributed lease held while a record's transfer runs.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LockFactory returns the lease guarding one settlement.
type LockFactory func(settlementID uuid.UUID) (Locker, error)

type transitionRecorder interface {
	IncTransition(direction, to string)
}

// Options carries the settlement policy knobs.
type Options struct {
	Currency                enums.Currency
	DepositAddress          string
	ChainID                 int64
	AllowUnverifiedDeposits bool
	PayoutDelay             time.Duration
	LookupTimeout           time.Duration
}

// ServiceParams wires the orchestrator. Locks and Metrics are optional.
type ServiceParams struct {
	DB         TxRunner
	Repo       Repository
	History    history.Service
	Outbox     *outbox.Service
	Calculator *quote.Calculator
	Gateway    gateway.Gateway
	Verifier   ProofVerifier
	Executor   TransferExecutor
	Ledger     Ledger
	Payouts    payouts.Provider
	Locks      LockFactory
	Metrics    transitionRecorder
	Logger     *logger.Logger
	Options    Options
	Clock      func() time.Time
}

type service struct {
	db       TxRunner
	repo     Repository
	history  history.Service
	outbox   *outbox.Service
	calc     *quote.Calculator
	gateway  gateway.Gateway
	verifier ProofVerifier
	executor TransferExecutor
	ledger   Ledger
	payouts  payouts.Provider
	locks    LockFactory
	metrics  transitionRecorder
	logg     *logger.Logger
	opts     Options
	clock    func() time.Time
}

// NewService validates params and builds the orchestrator.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("db required")
	case params.Repo == nil:
		return nil, fmt.Errorf("settlement repository required")
	case params.History == nil:
		return nil, fmt.Errorf("history service required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox service required")
	case params.Calculator == nil:
		return nil, fmt.Errorf("quote calculator required")
	case params.Gateway == nil:
		return nil, fmt.Errorf("payment gateway required")
	case params.Verifier == nil:
		return nil, fmt.Errorf("proof verifier required")
	case params.Executor == nil:
		return nil, fmt.Errorf("transfer executor required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger required")
	case params.Payouts == nil:
		return nil, fmt.Errorf("payout provider required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}

	opts := params.Options
	if !opts.Currency.IsValid() {
		opts.Currency = enums.CurrencyINR
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = 10 * time.Second
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}

	return &service{
		db:       params.DB,
		repo:     params.Repo,
		history:  params.History,
		outbox:   params.Outbox,
		calc:     params.Calculator,
		gateway:  params.Gateway,
		verifier: params.Verifier,
		executor: params.Executor,
		ledger:   params.Ledger,
		payouts:  params.Payouts,
		locks:    params.Locks,
		metrics:  params.Metrics,
		logg:     params.Logger,
		opts:     opts,
		clock:    clock,
	}, nil
}

func (s *service) now() time.Time {
	return s.clock().UTC()
}

// transition is one guarded status change and the audit rows committed with it.
type transition struct {
	rec     *models.Settlement
	to      enums.SettlementStatus
	guard   Guard
	updates map[string]any
	reason  string
	actor   uuid.UUID
	meta    map[string]any
	events  []outbox.DomainEvent
}

// commit applies t in one transaction: the guarded update, the history row and
// the outbox events. It returns false when the guard no longer matched.
func (s *service) commit(ctx context.Context, t transition) (bool, error) {
	from := t.rec.Status
	if t.to != from {
		if err := ValidateTransition(t.rec.Direction, from, t.to); err != nil {
			return false, err
		}
		t.updates["status"] = t.to
	}

	applied := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).Update(ctx, t.rec.ID, t.guard, t.updates)
		if db.IsUniqueViolation(err, "") {
			// a concurrent request claimed the same deposit hash first
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "settlement value already claimed")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update settlement")
		}
		if !ok {
			return nil
		}
		if _, err := s.history.Record(ctx, tx, history.RecordInput{
			SettlementID: t.rec.ID,
			From:         &from,
			To:           t.to,
			Reason:       t.reason,
			ActorUserID:  t.actor,
			Metadata:     t.meta,
		}); err != nil {
			return err
		}
		for _, event := range t.events {
			event.AggregateID = t.rec.ID
			if event.Actor == nil {
				event.Actor = outbox.ActorFor(t.actor)
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit settlement event")
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if applied && t.to != from && s.metrics != nil {
		s.metrics.IncTransition(t.rec.Direction.String(), t.to.String())
	}
	if applied {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"settlement_id":   t.rec.ID.String(),
			"order_reference": t.rec.OrderReference,
			"from_status":     from,
			"to_status":       t.to,
		}), "settlement transition applied")
	}
	return applied, nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Settlement, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "settlement not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settlement")
	}
	return rec, nil
}

func (s *service) loadByReference(ctx context.Context, orderReference string) (*models.Settlement, error) {
	rec, err := s.repo.GetByReference(ctx, orderReference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "settlement not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settlement")
	}
	return rec, nil
}

func (s *service) loadOwned(ctx context.Context, userID, id uuid.UUID) (*models.Settlement, error) {
	rec, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(rec, userID); err != nil {
		return nil, err
	}
	return rec, nil
}

func authorize(rec *models.Settlement, userID uuid.UUID) error {
	if userID == uuid.Nil || rec.OwnerID != userID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "settlement belongs to another user")
	}
	return nil
}

func requireDirection(rec *models.Settlement, direction enums.SettlementDirection) error {
	if rec.Direction != direction {
		return pkgerrors.New(pkgerrors.CodeValidation, "settlement direction mismatch").
			WithDetails(map[string]any{"expected": direction.String(), "actual": rec.Direction.String()})
	}
	return nil
}

// ledgerError maps adapter failures onto the API taxonomy.
func ledgerError(err error, msg string) error {
	switch {
	case errors.Is(err, chain.ErrTxNotFound):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "transaction not found")
	case errors.Is(err, context.DeadlineExceeded):
		return pkgerrors.Wrap(pkgerrors.CodeTimeout, err, msg)
	case errors.Is(err, chain.ErrUnavailable):
		return pkgerrors.Wrap(pkgerrors.CodeLedgerUnavailable, err, msg)
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeLedgerUnavailable, err, msg)
}

func stringPtr(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func timePtr(t time.Time) *time.Time {
	return &t
}
