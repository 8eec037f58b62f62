package payloads

import (
	"time"

	"github.com/angelmondragon/ramp-settlement/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SettlementCreatedEvent is emitted when an on-ramp order or off-ramp withdrawal is opened.
type SettlementCreatedEvent struct {
	SettlementID   uuid.UUID                 `json:"settlement_id"`
	OrderReference string                    `json:"order_reference"`
	OwnerID        uuid.UUID                 `json:"owner_id"`
	Direction      enums.SettlementDirection `json:"direction"`
	AssetType      enums.AssetType           `json:"asset_type"`
	FiatAmount     decimal.Decimal           `json:"fiat_amount"`
	TokenAmount    decimal.Decimal           `json:"token_amount"`
	Currency       enums.Currency            `json:"currency"`
}

// SettlementTransitionEvent carries a status change that needs no extra data.
type SettlementTransitionEvent struct {
	SettlementID   uuid.UUID                       `json:"settlement_id"`
	OrderReference string                          `json:"order_reference"`
	FromStatus     enums.SettlementStatus          `json:"from_status"`
	ToStatus       enums.SettlementStatus          `json:"to_status"`
	Reason         string                          `json:"reason,omitempty"`
	PaymentID      string                          `json:"payment_id,omitempty"`
	DepositTxHash  string                          `json:"deposit_tx_hash,omitempty"`
	DepositMethod  enums.DepositVerificationMethod `json:"deposit_method,omitempty"`
	OccurredAt     time.Time                       `json:"occurred_at"`
}

// TransferOutcomeEvent reports the result of a token delivery attempt.
type TransferOutcomeEvent struct {
	SettlementID      uuid.UUID              `json:"settlement_id"`
	OrderReference    string                 `json:"order_reference"`
	AssetType         enums.AssetType        `json:"asset_type"`
	WalletAddress     string                 `json:"wallet_address"`
	TokenAmount       decimal.Decimal        `json:"token_amount"`
	Strategy          enums.TransferStrategy `json:"strategy"`
	TransferStatus    enums.TransferStatus   `json:"transfer_status"`
	TransferHash      string                 `json:"transfer_hash,omitempty"`
	ExplorerReference string                 `json:"explorer_reference,omitempty"`
	Simulated         bool                   `json:"simulated"`
	FailureCode       enums.FailureCode      `json:"failure_code,omitempty"`
	FailureReason     string                 `json:"failure_reason,omitempty"`
	Attempt           int                    `json:"attempt"`
}

// PayoutEvent reports an off-ramp fiat payout step.
type PayoutEvent struct {
	SettlementID    uuid.UUID       `json:"settlement_id"`
	OrderReference  string          `json:"order_reference"`
	BankAccountRef  string          `json:"bank_account_ref"`
	NetPayout       decimal.Decimal `json:"net_payout"`
	Currency        enums.Currency  `json:"currency"`
	PayoutReference string          `json:"payout_reference,omitempty"`
	DueAt           *time.Time      `json:"due_at,omitempty"`
}
