package enums

import "fmt"

// TransferStatus tracks the ledger transfer sub-state of a settlement.
type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "pending"
	TransferStatusInFlight  TransferStatus = "in_flight"
	TransferStatusSucceeded TransferStatus = "succeeded"
	TransferStatusFailed    TransferStatus = "failed"
	TransferStatusTimedOut  TransferStatus = "timed_out"
)

var validTransferStatuses = []TransferStatus{
	TransferStatusPending,
	TransferStatusInFlight,
	TransferStatusSucceeded,
	TransferStatusFailed,
	TransferStatusTimedOut,
}

// String implements fmt.Stringer.
func (t TransferStatus) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TransferStatus.
func (t TransferStatus) IsValid() bool {
	for _, candidate := range validTransferStatuses {
		if candidate == t {
			return true
		}
	}
	return false
}

// Claimable reports whether a worker may start a transfer from this state.
func (t TransferStatus) Claimable() bool {
	switch t {
	case TransferStatusPending, TransferStatusFailed, TransferStatusTimedOut:
		return true
	default:
		return false
	}
}

// ParseTransferStatus converts raw input into a TransferStatus.
func ParseTransferStatus(value string) (TransferStatus, error) {
	for _, candidate := range validTransferStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transfer status %q", value)
}
