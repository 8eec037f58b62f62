package settlements

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/ramp-settlement/internal/chain"
	"github.com/angelmondragon/ramp-settlement/internal/transfer"
	"github.com/angelmondragon/ramp-settlement/pkg/db/models"
	"github.com/angelmondragon/ramp-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/ramp-settlement/pkg/errors"
	"github.com/angelmondragon/ramp-settlement/pkg/outbox"
	"github.com/angelmondragon/ramp-settlement/pkg/outbox/payloads"
)

var claimableTransferStatuses = []enums.TransferStatus{
	enums.TransferStatusPending,
	enums.TransferStatusFailed,
	enums.TransferStatusTimedOut,
}

var errTransferBusy = pkgerrors.New(pkgerrors.CodeStateConflict, "settlement transfer already in progress")

// runTransfer claims rec, executes the delivery and persists the outcome before
// returning. A failed delivery is reported through TransferOutcome.Failure.
// When an earlier attempt left a submitted hash, the ledger is consulted first
// and a landed transfer is completed instead of being sent again.
func (s *service) runTransfer(ctx context.Context, rec *models.Settlement, actor uuid.UUID, retry bool) (*TransferOutcome, error) {
	release, err := s.lockTransfer(ctx, rec.ID)
	if err != nil {
		if errors.Is(err, errTransferBusy) {
			return nil, err
		}
		return s.abortTransfer(ctx, rec, err, actor)
	}
	defer release()

	token, err := s.claimTransfer(ctx, rec)
	if err != nil {
		if errors.Is(err, errTransferBusy) {
			return nil, err
		}
		return s.abortTransfer(ctx, rec, err, actor)
	}

	// the delivery outlives the caller's request
	runCtx := context.WithoutCancel(ctx)

	if hash := submittedHash(rec); hash != "" {
		info, state, err := s.checkSubmitted(runCtx, hash)
		switch {
		case err != nil:
			s.releaseClaim(runCtx, rec, token)
			return nil, err
		case state == submissionPending:
			// left claimed so ReconcileStale settles it once final
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "previous transfer is still pending on the ledger").
				WithDetails(map[string]any{"transfer_hash": hash})
		case state == submissionLanded:
			return s.completeTransfer(runCtx, rec, token, submittedResult(rec, info), actor, retry)
		}
	}

	req := transfer.Request{
		SettlementID:   rec.ID,
		OrderReference: rec.OrderReference,
		Asset:          rec.AssetType,
		WalletAddress:  rec.WalletAddress,
		Amount:         rec.TokenAmount,
	}
	hooks := transfer.Hooks{
		OnSubmitted: func(hookCtx context.Context, hash string) error {
			_, err := s.repo.Update(hookCtx, rec.ID, Guard{ClaimToken: token}, map[string]any{"transfer_hash": hash})
			return err
		},
	}

	result, execErr := s.executor.Execute(runCtx, req, hooks)
	if execErr != nil {
		return s.failTransfer(runCtx, rec, token, result, execErr, actor, retry)
	}
	return s.completeTransfer(runCtx, rec, token, result, actor, retry)
}

// lockTransfer takes the distributed lease for id. The returned func releases
// it. errTransferBusy means another worker holds it.
func (s *service) lockTransfer(ctx context.Context, id uuid.UUID) (func(), error) {
	if s.locks == nil {
		return func() {}, nil
	}
	lock, err := s.locks(id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build settlement lock")
	}
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire settlement lock")
	}
	if !acquired {
		return nil, errTransferBusy
	}
	return func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "release settlement lock failed")
		}
	}, nil
}

func (s *service) claimTransfer(ctx context.Context, rec *models.Settlement) (string, error) {
	token := uuid.NewString()
	claimed, err := s.repo.Update(ctx, rec.ID, Guard{
		Statuses:         []enums.SettlementStatus{rec.Status},
		TransferStatuses: claimableTransferStatuses,
	}, map[string]any{
		"transfer_status": enums.TransferStatusInFlight,
		"claim_token":     token,
		"claimed_at":      s.now(),
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim settlement transfer")
	}
	if !claimed {
		return "", errTransferBusy
	}
	rec.ClaimToken = &token
	return token, nil
}

// releaseClaim hands an unexecuted claim back, restoring the prior transfer status.
func (s *service) releaseClaim(ctx context.Context, rec *models.Settlement, token string) {
	_, err := s.repo.Update(ctx, rec.ID, Guard{ClaimToken: token}, map[string]any{
		"transfer_status": rec.TransferStatus,
		"claim_token":     nil,
	})
	if err != nil {
		s.logg.Error(ctx, "release settlement claim failed", err)
		return
	}
	rec.ClaimToken = nil
}

// abortTransfer records a transfer that could not be started so the record
// leaves PAYMENT_VERIFIED and becomes retryable. Already failed records are
// left as they are.
func (s *service) abortTransfer(ctx context.Context, rec *models.Settlement, cause error, actor uuid.UUID) (*TransferOutcome, error) {
	if rec.Status == enums.SettlementStatusFailed {
		return nil, cause
	}
	var typed *pkgerrors.Error
	if !errors.As(cause, &typed) {
		typed = pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "start settlement transfer")
	}
	failure := transfer.Failure{
		Code:   enums.FailureInternal,
		Reason: "transfer not started: " + cause.Error(),
		Err:    typed,
	}
	ctx = context.WithoutCancel(ctx)
	ok, err := s.commit(ctx, transition{
		rec: rec,
		to:  enums.SettlementStatusFailed,
		guard: Guard{
			Statuses:         []enums.SettlementStatus{rec.Status},
			TransferStatuses: claimableTransferStatuses,
		},
		updates: map[string]any{
			"transfer_status": enums.TransferStatusFailed,
			"failure_code":    failure.Code,
			"failure_reason":  failure.Reason,
			"failed_at":       s.now(),
		},
		reason: failure.Reason,
		actor:  actor,
		meta:   map[string]any{"failure_code": failure.Code, "started": false},
		events: []outbox.DomainEvent{{
			EventType: enums.EventTransferFailed,
			Data:      transferEvent(rec, &transfer.Result{}, rec.TransferStrategy, enums.TransferStatusFailed, &failure, rec.RetryCount+1),
		}},
	})
	if err != nil {
		s.logg.Error(ctx, "persist unstarted transfer failed", err)
		return nil, cause
	}
	if !ok {
		return nil, errTransferBusy
	}

	current, err := s.load(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	return &TransferOutcome{
		Settlement: toRecord(current),
		Failure: &FailureView{
			Code:      failure.Code,
			Reason:    failure.Reason,
			Retryable: failure.Code.Retryable(),
		},
		failureErr: typed,
	}, nil
}

type submissionState int

const (
	submissionMissing submissionState = iota
	submissionPending
	submissionReverted
	submissionLanded
)

// submittedHash is the ledger hash of an earlier real delivery attempt, if any.
func submittedHash(rec *models.Settlement) string {
	if rec.TransferHash == nil || *rec.TransferHash == "" {
		return ""
	}
	if rec.Simulated || rec.TransferStrategy == enums.TransferStrategySimulated {
		return ""
	}
	return *rec.TransferHash
}

// checkSubmitted resolves a previously submitted hash against the ledger.
func (s *service) checkSubmitted(ctx context.Context, hash string) (*chain.TxInfo, submissionState, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, s.opts.LookupTimeout)
	defer cancel()
	info, err := s.ledger.LookupTransaction(lookupCtx, common.HexToHash(hash))
	if err != nil {
		if errors.Is(err, chain.ErrTxNotFound) {
			return nil, submissionMissing, nil
		}
		return nil, submissionMissing, ledgerError(err, "look up submitted transfer")
	}
	switch {
	case info.Pending:
		return info, submissionPending, nil
	case !info.Success:
		return info, submissionReverted, nil
	}
	return info, submissionLanded, nil
}

func submittedResult(rec *models.Settlement, info *chain.TxInfo) *transfer.Result {
	return &transfer.Result{
		Strategy:          rec.TransferStrategy,
		Hash:              info.Hash,
		ExplorerReference: info.ExplorerURL,
		BlockNumber:       info.BlockNumber,
		GasUsed:           info.GasUsed,
	}
}

func (s *service) completeTransfer(ctx context.Context, rec *models.Settlement, token string, result *transfer.Result, actor uuid.UUID, retry bool) (*TransferOutcome, error) {
	now := s.now()
	strategy := result.Strategy
	if strategy == "" {
		strategy = rec.TransferStrategy
	}
	updates := map[string]any{
		"transfer_status":    enums.TransferStatusSucceeded,
		"transfer_strategy":  strategy,
		"transfer_hash":      result.Hash,
		"explorer_reference": stringPtr(result.ExplorerReference),
		"simulated":          result.Simulated,
		"settled_at":         now,
		"claim_token":        nil,
		"failure_code":       nil,
		"failure_reason":     nil,
	}
	attempt := rec.RetryCount + 1
	events := []outbox.DomainEvent{{
		EventType: enums.EventTransferCompleted,
		Data:      transferEvent(rec, result, strategy, enums.TransferStatusSucceeded, nil, attempt),
	}}
	reason := "transfer completed"
	if retry {
		updates["retry_attempt"] = true
		updates["retried_at"] = now
		updates["retry_count"] = gorm.Expr("retry_count + ?", 1)
		events = append(events, outbox.DomainEvent{
			EventType: enums.EventTransferRetried,
			Data:      transferEvent(rec, result, strategy, enums.TransferStatusSucceeded, nil, attempt),
		})
		reason = "transfer completed on retry"
	}

	ok, err := s.commit(ctx, transition{
		rec:     rec,
		to:      enums.SettlementStatusCompleted,
		guard:   Guard{Statuses: []enums.SettlementStatus{rec.Status}, ClaimToken: token},
		updates: updates,
		reason:  reason,
		actor:   actor,
		meta: map[string]any{
			"transfer_hash": result.Hash,
			"simulated":     result.Simulated,
			"strategy":      strategy,
		},
		events: events,
	})
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "transfer_hash", result.Hash), "persist completed transfer failed", err)
		return nil, err
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "settlement transfer claim lost")
	}

	current, err := s.load(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	return &TransferOutcome{Settlement: toRecord(current)}, nil
}

func (s *service) failTransfer(ctx context.Context, rec *models.Settlement, token string, result *transfer.Result, execErr error, actor uuid.UUID, retry bool) (*TransferOutcome, error) {
	failure := transfer.Classify(execErr)
	now := s.now()
	updates := map[string]any{
		"transfer_status": failure.TransferStatus(),
		"failure_code":    failure.Code,
		"failure_reason":  failure.Reason,
		"failed_at":       now,
		"claim_token":     nil,
	}
	if result != nil && result.Hash != "" {
		updates["transfer_hash"] = result.Hash
		updates["explorer_reference"] = stringPtr(result.ExplorerReference)
	}
	if retry {
		updates["retried_at"] = now
		updates["retry_count"] = gorm.Expr("retry_count + ?", 1)
	}

	outcomeResult := result
	if outcomeResult == nil {
		outcomeResult = &transfer.Result{}
	}
	ok, err := s.commit(ctx, transition{
		rec:     rec,
		to:      enums.SettlementStatusFailed,
		guard:   Guard{Statuses: []enums.SettlementStatus{rec.Status}, ClaimToken: token},
		updates: updates,
		reason:  failure.Reason,
		actor:   actor,
		meta: map[string]any{
			"failure_code": failure.Code,
			"retry":        retry,
			"timed_out":    failure.TimedOut,
		},
		events: []outbox.DomainEvent{{
			EventType: enums.EventTransferFailed,
			Data:      transferEvent(rec, outcomeResult, rec.TransferStrategy, failure.TransferStatus(), &failure, rec.RetryCount+1),
		}},
	})
	if err != nil {
		s.logg.Error(ctx, "persist failed transfer failed", err)
		return nil, err
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "settlement transfer claim lost")
	}

	current, err := s.load(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	return &TransferOutcome{
		Settlement: toRecord(current),
		Failure: &FailureView{
			Code:      failure.Code,
			Reason:    failure.Reason,
			Retryable: failure.Code.Retryable(),
			TimedOut:  failure.TimedOut,
		},
		failureErr: failure.Err,
	}, nil
}

func transferEvent(rec *models.Settlement, result *transfer.Result, strategy enums.TransferStrategy, status enums.TransferStatus, failure *transfer.Failure, attempt int) payloads.TransferOutcomeEvent {
	event := payloads.TransferOutcomeEvent{
		SettlementID:      rec.ID,
		OrderReference:    rec.OrderReference,
		AssetType:         rec.AssetType,
		WalletAddress:     rec.WalletAddress,
		TokenAmount:       rec.TokenAmount,
		Strategy:          strategy,
		TransferStatus:    status,
		TransferHash:      result.Hash,
		ExplorerReference: result.ExplorerReference,
		Simulated:         result.Simulated,
		Attempt:           attempt,
	}
	if failure != nil {
		event.FailureCode = failure.Code
		event.FailureReason = failure.Reason
	}
	return event
}
