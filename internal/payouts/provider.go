package payouts

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/ramp-settlement/internal/gateway"
	"github.com/angelmondragon/ramp-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/ramp-settlement/pkg/errors"
)

// Request asks the provider to pay Amount to a bank account on file.
type Request struct {
	SettlementID   uuid.UUID
	BankAccountRef string
	Amount         decimal.Decimal
	Currency       enums.Currency
}

// Result is the provider's acknowledgement of a payout.
type Result struct {
	Reference string
}

// Provider sends fiat to bank accounts. Initiate must be idempotent per settlement.
type Provider interface {
	Initiate(ctx context.Context, req Request) (*Result, error)
}

// SimulatedProvider acknowledges payouts with generated references. It returns
// the same reference when a settlement is paid out twice.
type SimulatedProvider struct {
	mu         sync.Mutex
	references map[uuid.UUID]string
}

func NewSimulatedProvider() *SimulatedProvider {
	return &SimulatedProvider{references: make(map[uuid.UUID]string)}
}

func (p *SimulatedProvider) Initiate(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.SettlementID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "settlement id is required")
	}
	if strings.TrimSpace(req.BankAccountRef) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bank account reference is required")
	}
	if !req.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout amount must be positive")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if ref, ok := p.references[req.SettlementID]; ok {
		return &Result{Reference: ref}, nil
	}
	ref := "pay_" + gateway.RandomID(14)
	p.references[req.SettlementID] = ref
	return &Result{Reference: ref}, nil
}
