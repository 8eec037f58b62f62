package transfer

import (
	"context"
	"errors"

	"github.com/angelmondragon/ramp-settlement/internal/chain"
	"github.com/angelmondragon/ramp-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/ramp-settlement/pkg/errors"
)

// Failure is a classified transfer error: the persisted failure code plus the
// API error surfaced to callers.
type Failure struct {
	Code     enums.FailureCode
	Reason   string
	TimedOut bool
	Err      *pkgerrors.Error
}

// Classify maps a strategy error onto the settlement failure taxonomy.
// Simulation rejections and transport failures stay distinguishable.
func Classify(err error) Failure {
	if err == nil {
		return Failure{}
	}
	reason := err.Error()
	switch {
	case errors.Is(err, ErrInsufficientBalance):
		return Failure{Code: enums.FailureInsufficientBalance, Reason: reason, Err: pkgerrors.Wrap(pkgerrors.CodeInsufficientBalance, err, "insufficient settlement balance")}
	case errors.Is(err, chain.ErrSimulationRejected):
		return Failure{Code: enums.FailureSimulationRejected, Reason: reason, Err: pkgerrors.Wrap(pkgerrors.CodeSimulationRejected, err, "transfer rejected by ledger simulation")}
	case errors.Is(err, context.DeadlineExceeded):
		return Failure{Code: enums.FailureTimeout, Reason: reason, TimedOut: true, Err: pkgerrors.Wrap(pkgerrors.CodeTimeout, err, "transfer timed out")}
	case errors.Is(err, chain.ErrReverted):
		return Failure{Code: enums.FailureTransferReverted, Reason: reason, Err: pkgerrors.Wrap(pkgerrors.CodeLedgerUnavailable, err, "transfer reverted on ledger")}
	case errors.Is(err, chain.ErrUnavailable), errors.Is(err, chain.ErrQueueFull), errors.Is(err, chain.ErrQueueClosed), errors.Is(err, context.Canceled):
		return Failure{Code: enums.FailureLedgerUnavailable, Reason: reason, Err: pkgerrors.Wrap(pkgerrors.CodeLedgerUnavailable, err, "ledger unavailable")}
	}
	if typed := pkgerrors.As(err); typed != nil {
		return Failure{Code: enums.FailureInternal, Reason: reason, Err: typed}
	}
	return Failure{Code: enums.FailureInternal, Reason: reason, Err: pkgerrors.Wrap(pkgerrors.CodeInternal, err, "transfer failed")}
}

// TransferStatus is the transfer sub-status to persist for this failure.
func (f Failure) TransferStatus() enums.TransferStatus {
	if f.TimedOut {
		return enums.TransferStatusTimedOut
	}
	return enums.TransferStatusFailed
}
