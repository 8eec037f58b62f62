package settlements

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/ramp-settlement/pkg/db/models"
	"github.com/angelmondragon/ramp-settlement/pkg/enums"
)

// DisplayPaymentReceivedTransferPending is shown for on-ramp records whose
// payment verified but whose token transfer has not succeeded.
const DisplayPaymentReceivedTransferPending = "payment_received_transfer_pending"

// CreateOnRampInput opens a checkout for buying Asset with FiatAmount.
type CreateOnRampInput struct {
	FiatAmount    decimal.Decimal
	Asset         enums.AssetType
	WalletAddress string
	ClientInfo    map[string]any
}

// VerifyPaymentInput is the gateway proof returned to the client after checkout.
type VerifyPaymentInput struct {
	OrderReference string
	PaymentID      string
	Signature      string
}

// EstimateInput asks for the network cost of delivering Amount of Asset.
type EstimateInput struct {
	Amount        decimal.Decimal
	Asset         enums.AssetType
	WalletAddress string
}

// CreateWithdrawalInput opens an off-ramp withdrawal.
type CreateWithdrawalInput struct {
	TokenAmount    decimal.Decimal
	Asset          enums.AssetType
	WalletAddress  string
	BankAccountRef string
	ClientInfo     map[string]any
}

// ListInput filters and pages an owner's records.
type ListInput struct {
	Status    *enums.SettlementStatus
	Direction *enums.SettlementDirection
	Asset     *enums.AssetType
	Limit     int
	Cursor    string
}

// Amounts groups the priced values of a record.
type Amounts struct {
	Fiat         decimal.Decimal `json:"fiat"`
	Token        decimal.Decimal `json:"token"`
	TotalPayable decimal.Decimal `json:"total_payable"`
	NetPayout    decimal.Decimal `json:"net_payout"`
}

// Fees groups the fee components of a record.
type Fees struct {
	GatewayFee  decimal.Decimal `json:"gateway_fee"`
	NetworkFee  decimal.Decimal `json:"network_fee"`
	PlatformFee decimal.Decimal `json:"platform_fee"`
}

// Timestamps groups the lifecycle timestamps of a record.
type Timestamps struct {
	Created         time.Time  `json:"created"`
	ProofVerified   *time.Time `json:"proof_verified,omitempty"`
	DepositVerified *time.Time `json:"deposit_verified,omitempty"`
	PayoutInitiated *time.Time `json:"payout_initiated,omitempty"`
	Settled         *time.Time `json:"settled,omitempty"`
	Failed          *time.Time `json:"failed,omitempty"`
	Cancelled       *time.Time `json:"cancelled,omitempty"`
	Updated         time.Time  `json:"updated"`
}

// RetryInfo is the audit trail of manual transfer retries.
type RetryInfo struct {
	Count       int        `json:"count"`
	Attempt     bool       `json:"retry_attempt"`
	RetriedAt   *time.Time `json:"retried_at,omitempty"`
	RetryFailed bool       `json:"retry_failed"`
	RetryError  string     `json:"retry_error,omitempty"`
}

// Record is the API view of a settlement.
type Record struct {
	ID                uuid.UUID                        `json:"id"`
	OrderReference    string                           `json:"order_reference"`
	OwnerID           uuid.UUID                        `json:"owner_id"`
	Direction         enums.SettlementDirection        `json:"direction"`
	AssetType         enums.AssetType                  `json:"asset_type"`
	WalletAddress     string                           `json:"wallet_address"`
	Currency          enums.Currency                   `json:"currency"`
	Amount            Amounts                          `json:"amount"`
	ConversionRate    decimal.Decimal                  `json:"conversion_rate"`
	Fees              Fees                             `json:"fees"`
	Status            enums.SettlementStatus           `json:"status"`
	DisplayStatus     string                           `json:"display_status"`
	PaymentStatus     enums.PaymentStatus              `json:"payment_status,omitempty"`
	PaymentProofID    *string                          `json:"payment_proof_id,omitempty"`
	TransferStrategy  enums.TransferStrategy           `json:"transfer_strategy,omitempty"`
	TransferStatus    enums.TransferStatus             `json:"transfer_status,omitempty"`
	TransferHash      *string                          `json:"transfer_hash,omitempty"`
	ExplorerReference *string                          `json:"explorer_reference,omitempty"`
	Simulated         bool                             `json:"simulated"`
	FailureCode       *enums.FailureCode               `json:"failure_code,omitempty"`
	FailureReason     *string                          `json:"failure_reason,omitempty"`
	Retry             RetryInfo                        `json:"retry"`
	BankAccountRef    *string                          `json:"bank_account_ref,omitempty"`
	DepositTxHash     *string                          `json:"deposit_tx_hash,omitempty"`
	DepositMethod     *enums.DepositVerificationMethod `json:"deposit_method,omitempty"`
	PayoutReference   *string                          `json:"payout_reference,omitempty"`
	PayoutDueAt       *time.Time                       `json:"payout_due_at,omitempty"`
	Timestamps        Timestamps                       `json:"timestamps"`
	Metadata          json.RawMessage                  `json:"metadata,omitempty"`
}

// Checkout carries the parameters the client passes to the gateway widget.
type Checkout struct {
	KeyID       string `json:"key"`
	OrderID     string `json:"order_id"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
	Receipt     string `json:"receipt"`
}

// OnRampOrder is the result of opening an on-ramp checkout.
type OnRampOrder struct {
	Settlement Record   `json:"settlement"`
	Checkout   Checkout `json:"checkout"`
}

// FailureView describes a persisted transfer failure.
type FailureView struct {
	Code      enums.FailureCode `json:"code"`
	Reason    string            `json:"reason"`
	Retryable bool              `json:"retryable"`
	TimedOut  bool              `json:"timed_out"`
}

// TransferOutcome is returned by payment verification and retry. Exactly one
// of the settlement being completed or Failure being set holds unless
// Duplicate reports an already processed proof.
type TransferOutcome struct {
	Settlement Record       `json:"settlement"`
	Duplicate  bool         `json:"duplicate"`
	Failure    *FailureView `json:"failure,omitempty"`
	failureErr error
}

// Err returns the typed error for a failed transfer, or nil.
func (o *TransferOutcome) Err() error {
	if o == nil {
		return nil
	}
	return o.failureErr
}

// CostEstimate is the network fee of a transfer, expressed in native units and fiat.
type CostEstimate struct {
	AssetType  enums.AssetType        `json:"asset_type"`
	Strategy   enums.TransferStrategy `json:"strategy"`
	GasUnits   uint64                 `json:"gas_units"`
	GasPrice   string                 `json:"gas_price_wei"`
	NativeCost decimal.Decimal        `json:"native_cost"`
	FiatCost   decimal.Decimal        `json:"fiat_cost"`
	Currency   enums.Currency         `json:"currency"`
	Simulated  bool                   `json:"simulated"`
}

// DepositInstructions tell the seller where to send tokens.
type DepositInstructions struct {
	Address string          `json:"address"`
	Asset   enums.AssetType `json:"asset_type"`
	Amount  decimal.Decimal `json:"amount"`
	ChainID int64           `json:"chain_id,omitempty"`
}

// Withdrawal is the result of opening an off-ramp withdrawal.
type Withdrawal struct {
	Settlement Record              `json:"settlement"`
	Deposit    DepositInstructions `json:"deposit"`
}

// ListResult is a page of records.
type ListResult struct {
	Items      []Record `json:"items"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

// BatchResult summarises a background pass over many records.
type BatchResult struct {
	Scanned   int
	Processed int
	Skipped   int
}

func toRecord(m *models.Settlement) Record {
	rec := Record{
		ID:             m.ID,
		OrderReference: m.OrderReference,
		OwnerID:        m.OwnerID,
		Direction:      m.Direction,
		AssetType:      m.AssetType,
		WalletAddress:  m.WalletAddress,
		Currency:       m.Currency,
		Amount: Amounts{
			Fiat:         m.FiatAmount,
			Token:        m.TokenAmount,
			TotalPayable: m.TotalPayable,
			NetPayout:    m.NetPayout,
		},
		ConversionRate: m.ConversionRate,
		Fees: Fees{
			GatewayFee:  m.GatewayFee,
			NetworkFee:  m.NetworkFee,
			PlatformFee: m.PlatformFee,
		},
		Status:            m.Status,
		DisplayStatus:     displayStatus(m),
		PaymentProofID:    m.PaymentProofID,
		TransferHash:      m.TransferHash,
		ExplorerReference: m.ExplorerReference,
		Simulated:         m.Simulated,
		FailureCode:       m.FailureCode,
		FailureReason:     m.FailureReason,
		Retry: RetryInfo{
			Count:     m.RetryCount,
			Attempt:   m.RetryAttempt,
			RetriedAt: m.RetriedAt,
		},
		BankAccountRef:  m.BankAccountRef,
		DepositTxHash:   m.DepositTxHash,
		DepositMethod:   m.DepositMethod,
		PayoutReference: m.PayoutReference,
		PayoutDueAt:     m.PayoutDueAt,
		Timestamps: Timestamps{
			Created:         m.CreatedAt,
			ProofVerified:   m.ProofVerifiedAt,
			DepositVerified: m.DepositVerifiedAt,
			PayoutInitiated: m.PayoutInitiatedAt,
			Settled:         m.SettledAt,
			Failed:          m.FailedAt,
			Cancelled:       m.CancelledAt,
			Updated:         m.UpdatedAt,
		},
		Metadata: m.Metadata,
	}
	if m.Direction == enums.DirectionOnRamp {
		rec.PaymentStatus = m.PaymentStatus
		rec.TransferStrategy = m.TransferStrategy
		rec.TransferStatus = m.TransferStatus
	}
	if m.RetryCount > 0 && m.Status == enums.SettlementStatusFailed {
		rec.Retry.RetryFailed = true
		if m.FailureReason != nil {
			rec.Retry.RetryError = *m.FailureReason
		}
	}
	return rec
}

func displayStatus(m *models.Settlement) string {
	if m.Direction != enums.DirectionOnRamp {
		return m.Status.String()
	}
	switch m.Status {
	case enums.SettlementStatusPaymentVerified, enums.SettlementStatusFailed:
		if m.PaymentProofID != nil {
			return DisplayPaymentReceivedTransferPending
		}
	case enums.SettlementStatusCreated:
		if m.PaymentStatus == enums.PaymentStatusFailed {
			return "payment_failed"
		}
	}
	return m.Status.String()
}

// GatewayOrderStatus pairs a record with the gateway's view of its order.
type GatewayOrderStatus struct {
	Settlement  Record `json:"settlement"`
	OrderID     string `json:"order_id"`
	OrderStatus string `json:"order_status"`
	AmountMinor int64  `json:"amount"`
	AmountPaid  int64  `json:"amount_paid"`
	Currency    string `json:"currency"`
}

// BalanceView is a wallet balance read from the ledger.
type BalanceView struct {
	Address   string          `json:"address"`
	AssetType enums.AssetType `json:"asset_type"`
	Balance   decimal.Decimal `json:"balance"`
}
