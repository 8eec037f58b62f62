package enums

import "fmt"

// SettlementStatus is the lifecycle state of a settlement record.
type SettlementStatus string

const (
	SettlementStatusCreated         SettlementStatus = "created"
	SettlementStatusPaymentVerified SettlementStatus = "payment_verified"
	SettlementStatusCompleted       SettlementStatus = "completed"
	SettlementStatusFailed          SettlementStatus = "failed"
	SettlementStatusCancelled       SettlementStatus = "cancelled"

	SettlementStatusWithdrawalRequested SettlementStatus = "withdrawal_requested"
	SettlementStatusDepositVerified     SettlementStatus = "deposit_verified"
	SettlementStatusPayoutInitiated     SettlementStatus = "payout_initiated"
)

var validSettlementStatuses = []SettlementStatus{
	SettlementStatusCreated,
	SettlementStatusPaymentVerified,
	SettlementStatusCompleted,
	SettlementStatusFailed,
	SettlementStatusCancelled,
	SettlementStatusWithdrawalRequested,
	SettlementStatusDepositVerified,
	SettlementStatusPayoutInitiated,
}

// String implements fmt.Stringer.
func (s SettlementStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SettlementStatus.
func (s SettlementStatus) IsValid() bool {
	for _, candidate := range validSettlementStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no automatic transition leaves this status.
// FAILED is terminal for automation; only an explicit retry moves it.
func (s SettlementStatus) IsTerminal() bool {
	switch s {
	case SettlementStatusCompleted, SettlementStatusFailed, SettlementStatusCancelled:
		return true
	default:
		return false
	}
}

// ParseSettlementStatus converts raw input into a SettlementStatus.
func ParseSettlementStatus(value string) (SettlementStatus, error) {
	for _, candidate := range validSettlementStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid settlement status %q", value)
}
