package settlements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/ramp-settlement/internal/chain"
	"github.com/angelmondragon/ramp-settlement/internal/transfer"
	"github.com/angelmondragon/ramp-settlement/pkg/db/models"
	"github.com/angelmondragon/ramp-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/ramp-settlement/pkg/errors"
)

var errTransferAbandoned = fmt.Errorf("%w: transfer abandoned before finality", chain.ErrUnavailable)

// ReconcileStale settles transfers that made no progress for olderThan,
// usually because the process running them stopped. Submitted transfers are
// resolved from the ledger and unsubmitted ones are failed so they can be
// retried. Verified payments whose transfer never started are run.
func (s *service) ReconcileStale(ctx context.Context, olderThan time.Duration, limit int) (BatchResult, error) {
	var result BatchResult
	rows, err := s.repo.ListStaleTransfers(ctx, s.now().Add(-olderThan), limit)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale transfers")
	}
	result.Scanned = len(rows)

	var errs error
	for i := range rows {
		rec := &rows[i]
		recCtx := s.logg.WithSettlementID(ctx, rec.ID.String())
		resolved, err := s.reconcile(recCtx, rec)
		if err != nil {
			s.logg.Error(recCtx, "reconcile stale transfer failed", err)
			errs = multierr.Append(errs, err)
			continue
		}
		if resolved {
			result.Processed++
		} else {
			result.Skipped++
		}
	}
	return result, errs
}

func (s *service) reconcile(ctx context.Context, rec *models.Settlement) (bool, error) {
	switch rec.TransferStatus {
	case enums.TransferStatusInFlight:
		return s.reconcileInFlight(ctx, rec)
	case enums.TransferStatusPending:
		_, err := s.runTransfer(ctx, rec, uuid.Nil, false)
		return busyOr(err)
	case enums.TransferStatusTimedOut:
		return s.reconcileTimedOut(ctx, rec)
	}
	return false, nil
}

func (s *service) reconcileInFlight(ctx context.Context, rec *models.Settlement) (bool, error) {
	if rec.ClaimToken == nil {
		return false, nil
	}
	token := *rec.ClaimToken
	retry := rec.Status == enums.SettlementStatusFailed

	if rec.TransferHash == nil || *rec.TransferHash == "" {
		_, err := s.failTransfer(ctx, rec, token, nil, errTransferAbandoned, uuid.Nil, retry)
		return err == nil, err
	}
	return s.resolveSubmitted(ctx, rec, token, retry)
}

// reconcileTimedOut claims a timed out record and resolves its hash. Landed
// transfers complete; dropped or reverted ones become plain failures.
func (s *service) reconcileTimedOut(ctx context.Context, rec *models.Settlement) (bool, error) {
	release, err := s.lockTransfer(ctx, rec.ID)
	if err != nil {
		return busyOr(err)
	}
	defer release()
	token, err := s.claimTransfer(ctx, rec)
	if err != nil {
		return busyOr(err)
	}
	resolved, err := s.resolveSubmitted(ctx, rec, token, false)
	if err != nil || !resolved {
		s.releaseClaim(ctx, rec, token)
	}
	return resolved, err
}

func (s *service) resolveSubmitted(ctx context.Context, rec *models.Settlement, token string, retry bool) (bool, error) {
	hash := *rec.TransferHash
	info, state, err := s.checkSubmitted(ctx, hash)
	if err != nil {
		return false, err
	}
	switch state {
	case submissionPending:
		return false, nil
	case submissionMissing:
		// dropped from the mempool
		_, err := s.failTransfer(ctx, rec, token, &transfer.Result{Hash: hash}, errTransferAbandoned, uuid.Nil, retry)
		return err == nil, err
	case submissionReverted:
		_, err := s.failTransfer(ctx, rec, token, submittedResult(rec, info), fmt.Errorf("%w: %s", chain.ErrReverted, info.Hash), uuid.Nil, retry)
		return err == nil, err
	}
	_, err = s.completeTransfer(ctx, rec, token, submittedResult(rec, info), uuid.Nil, retry)
	return err == nil, err
}

// busyOr reports a record another worker holds as skipped rather than failed.
func busyOr(err error) (bool, error) {
	if errors.Is(err, errTransferBusy) {
		return false, nil
	}
	return err == nil, err
}

// ExpireStale cancels initial-state records older than olderThan that never
// received a payment proof or deposit.
func (s *service) ExpireStale(ctx context.Context, olderThan time.Duration, limit int) (BatchResult, error) {
	var result BatchResult
	rows, err := s.repo.ListExpirable(ctx, s.now().Add(-olderThan), limit)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expirable settlements")
	}
	result.Scanned = len(rows)

	var errs error
	for i := range rows {
		rec := &rows[i]
		if err := s.cancel(ctx, rec, uuid.Nil, "expired"); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
				result.Skipped++
				continue
			}
			errs = multierr.Append(errs, err)
			continue
		}
		result.Processed++
	}
	return result, errs
}
