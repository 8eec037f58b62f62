package enums

// DepositVerificationMethod records how an off-ramp deposit was accepted.
type DepositVerificationMethod string

const (
	DepositLedgerConfirmed DepositVerificationMethod = "ledger_confirmed"
	// DepositDemoAccepted marks a deposit accepted without a ledger lookup.
	DepositDemoAccepted DepositVerificationMethod = "demo_accepted"
)

func (d DepositVerificationMethod) IsValid() bool {
	return d == DepositLedgerConfirmed || d == DepositDemoAccepted
}
