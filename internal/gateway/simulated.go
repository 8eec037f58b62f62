package gateway

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	pkgerrors "github.com/angelmondragon/ramp-settlement/pkg/errors"
)

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// SimulatedGateway issues gateway-shaped order ids locally. Used in development and tests.
type SimulatedGateway struct {
	keyID string

	mu     sync.RWMutex
	orders map[string]Order
}

func NewSimulatedGateway(keyID string) *SimulatedGateway {
	return &SimulatedGateway{keyID: keyID, orders: make(map[string]Order)}
}

func (g *SimulatedGateway) KeyID() string {
	return g.keyID
}

func (g *SimulatedGateway) CreateOrder(ctx context.Context, input CreateOrderInput) (*Order, error) {
	if input.AmountMinor <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order amount must be positive")
	}
	order := Order{
		ID:          "order_" + RandomID(14),
		AmountMinor: input.AmountMinor,
		Currency:    input.Currency,
		Receipt:     input.Receipt,
		Status:      "created",
		CreatedAt:   time.Now().Unix(),
	}
	g.mu.Lock()
	g.orders[order.ID] = order
	g.mu.Unlock()
	return &order, nil
}

func (g *SimulatedGateway) FetchOrder(ctx context.Context, orderID string) (*Order, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	order, ok := g.orders[orderID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "gateway order not found")
	}
	return &order, nil
}

// RandomID returns n characters drawn from [A-Za-z0-9].
func RandomID(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	for i, b := range buf {
		buf[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return string(buf)
}
