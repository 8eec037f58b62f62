package transfer

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/ramp-settlement/pkg/enums"
)

// ErrInsufficientBalance means the signer could not cover the transfer even after a top-up.
var ErrInsufficientBalance = errors.New("insufficient signer balance")

// Request describes one outbound token delivery for a settlement.
type Request struct {
	SettlementID   uuid.UUID
	OrderReference string
	Asset          enums.AssetType
	WalletAddress  string
	Amount         decimal.Decimal
}

// Result is the outcome of a successful delivery.
type Result struct {
	Strategy          enums.TransferStrategy
	Hash              string
	ExplorerReference string
	Simulated         bool
	BlockNumber       uint64
	GasUsed           uint64
	ToppedUp          bool
}

// Hooks let the caller persist progress while a transfer is still running.
type Hooks struct {
	// OnSubmitted runs once the transaction hash is known and before the finality wait.
	OnSubmitted func(ctx context.Context, hash string) error
}

func (h Hooks) submitted(ctx context.Context, hash string) error {
	if h.OnSubmitted == nil {
		return nil
	}
	return h.OnSubmitted(ctx, hash)
}

// Strategy delivers tokens for a settlement.
type Strategy interface {
	Name() enums.TransferStrategy
	Execute(ctx context.Context, req Request, hooks Hooks) (*Result, error)
}
