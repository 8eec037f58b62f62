package settlements

import (
	"github.com/angelmondragon/ramp-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/ramp-settlement/pkg/errors"
)

var legalTransitions = map[enums.SettlementDirection]map[enums.SettlementStatus]map[enums.SettlementStatus]bool{
	enums.DirectionOnRamp: {
		enums.SettlementStatusCreated: {
			enums.SettlementStatusPaymentVerified: true,
			enums.SettlementStatusCancelled:       true,
		},
		enums.SettlementStatusPaymentVerified: {
			enums.SettlementStatusCompleted: true,
			enums.SettlementStatusFailed:    true,
		},
		// FAILED only leaves through an explicit retry
		enums.SettlementStatusFailed: {
			enums.SettlementStatusCompleted: true,
		},
	},
	enums.DirectionOffRamp: {
		enums.SettlementStatusWithdrawalRequested: {
			enums.SettlementStatusDepositVerified: true,
			enums.SettlementStatusCancelled:       true,
		},
		enums.SettlementStatusDepositVerified: {
			enums.SettlementStatusPayoutInitiated: true,
		},
		enums.SettlementStatusPayoutInitiated: {
			enums.SettlementStatusCompleted: true,
		},
	},
}

// InitialStatus is the status a new record of direction starts in.
func InitialStatus(direction enums.SettlementDirection) enums.SettlementStatus {
	if direction == enums.DirectionOffRamp {
		return enums.SettlementStatusWithdrawalRequested
	}
	return enums.SettlementStatusCreated
}

// CanTransition reports whether from -> to is an edge of direction's state machine.
func CanTransition(direction enums.SettlementDirection, from, to enums.SettlementStatus) bool {
	return legalTransitions[direction][from][to]
}

// ValidateTransition returns a STATE_CONFLICT error for an illegal edge.
func ValidateTransition(direction enums.SettlementDirection, from, to enums.SettlementStatus) error {
	if CanTransition(direction, from, to) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, "settlement status transition not allowed").
		WithDetails(map[string]any{
			"direction": direction.String(),
			"from":      from.String(),
			"to":        to.String(),
		})
}
