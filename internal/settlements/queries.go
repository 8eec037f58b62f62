package settlements

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/angelmondragon/ramp-settlement/internal/chain"
	"github.com/angelmondragon/ramp-settlement/internal/history"
	"github.com/angelmondragon/ramp-settlement/pkg/db/models"
	"github.com/angelmondragon/ramp-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/ramp-settlement/pkg/errors"
	"github.com/angelmondragon/ramp-settlement/pkg/outbox"
	"github.com/angelmondragon/ramp-settlement/pkg/outbox/payloads"
	"github.com/angelmondragon/ramp-settlement/pkg/pagination"
)

func (s *service) Get(ctx context.Context, userID, settlementID uuid.UUID) (*Record, error) {
	rec, err := s.loadOwned(ctx, userID, settlementID)
	if err != nil {
		return nil, err
	}
	out := toRecord(rec)
	return &out, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID, input ListInput) (*ListResult, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	if input.Status != nil && !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	if input.Direction != nil && !input.Direction.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid direction filter")
	}
	if input.Asset != nil && !input.Asset.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid asset filter")
	}
	if _, err := pagination.Decode(input.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, next, err := s.repo.ListByOwner(ctx, userID, ListFilters{
		Status:    input.Status,
		Direction: input.Direction,
		Asset:     input.Asset,
	}, pagination.Params{Limit: input.Limit, Cursor: input.Cursor})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list settlements")
	}

	result := &ListResult{Items: make([]Record, 0, len(rows))}
	for i := range rows {
		result.Items = append(result.Items, toRecord(&rows[i]))
	}
	if next != nil {
		result.NextCursor = next.Encode()
	}
	return result, nil
}

func (s *service) Stats(ctx context.Context, userID uuid.UUID) ([]StatsRow, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	rows, err := s.repo.Stats(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate settlements")
	}
	if rows == nil {
		rows = []StatsRow{}
	}
	return rows, nil
}

func (s *service) History(ctx context.Context, userID, settlementID uuid.UUID) ([]history.Entry, error) {
	if _, err := s.loadOwned(ctx, userID, settlementID); err != nil {
		return nil, err
	}
	return s.history.List(ctx, settlementID)
}

func (s *service) TxInfo(ctx context.Context, hash string) (*chain.TxInfo, error) {
	hash = strings.TrimSpace(hash)
	if !txHashPattern.MatchString(hash) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction hash")
	}
	lookupCtx, cancel := context.WithTimeout(ctx, s.opts.LookupTimeout)
	defer cancel()
	info, err := s.ledger.LookupTransaction(lookupCtx, common.HexToHash(hash))
	if err != nil {
		return nil, ledgerError(err, "look up transaction")
	}
	return info, nil
}

func (s *service) Balance(ctx context.Context, asset enums.AssetType, address string) (*BalanceView, error) {
	if !asset.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported asset")
	}
	wallet, err := normalizeWallet(address)
	if err != nil {
		return nil, err
	}
	lookupCtx, cancel := context.WithTimeout(ctx, s.opts.LookupTimeout)
	defer cancel()
	balance, err := s.ledger.Balance(lookupCtx, asset, common.HexToAddress(wallet))
	if err != nil {
		return nil, ledgerError(err, "read wallet balance")
	}
	return &BalanceView{Address: wallet, AssetType: asset, Balance: balance}, nil
}

func (s *service) Cancel(ctx context.Context, userID, settlementID uuid.UUID, reason string) (*Record, error) {
	rec, err := s.loadOwned(ctx, userID, settlementID)
	if err != nil {
		return nil, err
	}
	if rec.Status == enums.SettlementStatusCancelled {
		out := toRecord(rec)
		return &out, nil
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "cancelled by owner"
	}
	if err := s.cancel(ctx, rec, userID, reason); err != nil {
		return nil, err
	}
	current, err := s.load(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	out := toRecord(current)
	return &out, nil
}

// cancel moves an initial-state record without a payment proof to CANCELLED.
func (s *service) cancel(ctx context.Context, rec *models.Settlement, actor uuid.UUID, reason string) error {
	initial := InitialStatus(rec.Direction)
	if rec.Status != initial || rec.PaymentProofID != nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "only settlements in their initial state can be cancelled").
			WithDetails(map[string]any{"status": rec.Status.String()})
	}
	now := s.now()
	ok, err := s.commit(ctx, transition{
		rec:     rec,
		to:      enums.SettlementStatusCancelled,
		guard:   Guard{Statuses: []enums.SettlementStatus{initial}, ProofUnset: true},
		updates: map[string]any{"cancelled_at": now},
		reason:  reason,
		actor:   actor,
		events: []outbox.DomainEvent{{
			EventType: enums.EventSettlementCancelled,
			Data: payloads.SettlementTransitionEvent{
				SettlementID:   rec.ID,
				OrderReference: rec.OrderReference,
				FromStatus:     rec.Status,
				ToStatus:       enums.SettlementStatusCancelled,
				Reason:         reason,
				OccurredAt:     now,
			},
		}},
	})
	if err != nil {
		return err
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "settlement changed before it could be cancelled")
	}
	return nil
}
