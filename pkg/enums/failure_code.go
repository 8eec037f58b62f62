package enums

// FailureCode classifies the persisted reason a settlement step failed.
type FailureCode string

const (
	FailureSignatureMismatch   FailureCode = "signature_mismatch"
	FailureInsufficientBalance FailureCode = "insufficient_balance"
	FailureLedgerUnavailable   FailureCode = "ledger_unavailable"
	FailureSimulationRejected  FailureCode = "simulation_rejected"
	FailureTimeout             FailureCode = "timeout"
	FailureTransferReverted    FailureCode = "transfer_reverted"
	FailurePayoutFailed        FailureCode = "payout_failed"
	FailureInternal            FailureCode = "internal"
)

var retryableFailureCodes = map[FailureCode]bool{
	FailureInsufficientBalance: true,
	FailureLedgerUnavailable:   true,
	FailureTimeout:             true,
	FailureTransferReverted:    true,
	FailureInternal:            true,
}

// String implements fmt.Stringer.
func (f FailureCode) String() string {
	return string(f)
}

// Retryable reports whether a retry can reasonably succeed without operator action.
func (f FailureCode) Retryable() bool {
	return retryableFailureCodes[f]
}
