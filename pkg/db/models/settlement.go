package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/ramp-settlement/pkg/enums"
)

// Settlement is one on-ramp or off-ramp attempt. Rows are never deleted.
type Settlement struct {
	ID             uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	OrderReference string                    `gorm:"column:order_reference;not null;uniqueIndex"`
	OwnerID        uuid.UUID                 `gorm:"column:owner_id;type:uuid;not null"`
	Direction      enums.SettlementDirection `gorm:"column:direction;not null"`
	AssetType      enums.AssetType           `gorm:"column:asset_type;not null"`
	WalletAddress  string                    `gorm:"column:wallet_address;not null"`
	Currency       enums.Currency            `gorm:"column:currency;not null"`

	FiatAmount     decimal.Decimal `gorm:"column:fiat_amount;type:numeric(36,18);not null"`
	TokenAmount    decimal.Decimal `gorm:"column:token_amount;type:numeric(36,18);not null"`
	ConversionRate decimal.Decimal `gorm:"column:conversion_rate;type:numeric(36,18);not null"`
	GatewayFee     decimal.Decimal `gorm:"column:gateway_fee;type:numeric(36,18);not null"`
	NetworkFee     decimal.Decimal `gorm:"column:network_fee;type:numeric(36,18);not null"`
	PlatformFee    decimal.Decimal `gorm:"column:platform_fee;type:numeric(36,18);not null"`
	TotalPayable   decimal.Decimal `gorm:"column:total_payable;type:numeric(36,18);not null"`
	NetPayout      decimal.Decimal `gorm:"column:net_payout;type:numeric(36,18);not null"`

	Status        enums.SettlementStatus `gorm:"column:status;not null"`
	PaymentStatus enums.PaymentStatus    `gorm:"column:payment_status;not null"`

	GatewayOrderID  *string    `gorm:"column:gateway_order_id"`
	PaymentProofID  *string    `gorm:"column:payment_proof_id"`
	ProofVerifiedAt *time.Time `gorm:"column:proof_verified_at"`

	TransferStrategy  enums.TransferStrategy `gorm:"column:transfer_strategy;not null"`
	TransferStatus    enums.TransferStatus   `gorm:"column:transfer_status;not null"`
	TransferHash      *string                `gorm:"column:transfer_hash"`
	ExplorerReference *string                `gorm:"column:explorer_reference"`
	Simulated         bool                   `gorm:"column:simulated;not null;default:false"`
	ClaimToken        *string                `gorm:"column:claim_token"`
	ClaimedAt         *time.Time             `gorm:"column:claimed_at"`
	SettledAt         *time.Time             `gorm:"column:settled_at"`

	FailureCode   *enums.FailureCode `gorm:"column:failure_code"`
	FailureReason *string            `gorm:"column:failure_reason"`
	FailedAt      *time.Time         `gorm:"column:failed_at"`

	RetryCount   int        `gorm:"column:retry_count;not null;default:0"`
	RetryAttempt bool       `gorm:"column:retry_attempt;not null;default:false"`
	RetriedAt    *time.Time `gorm:"column:retried_at"`

	BankAccountRef    *string                          `gorm:"column:bank_account_ref"`
	DepositTxHash     *string                          `gorm:"column:deposit_tx_hash;uniqueIndex:ux_settlements_deposit_tx_hash,where:deposit_tx_hash IS NOT NULL"`
	DepositMethod     *enums.DepositVerificationMethod `gorm:"column:deposit_method"`
	DepositVerifiedAt *time.Time                       `gorm:"column:deposit_verified_at"`
	PayoutReference   *string                          `gorm:"column:payout_reference"`
	PayoutDueAt       *time.Time                       `gorm:"column:payout_due_at"`
	PayoutInitiatedAt *time.Time                       `gorm:"column:payout_initiated_at"`
	CancelledAt       *time.Time                       `gorm:"column:cancelled_at"`

	Metadata  json.RawMessage `gorm:"column:metadata;type:jsonb"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Settlement) TableName() string { return "settlements" }
