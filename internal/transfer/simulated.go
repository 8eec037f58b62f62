package transfer

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/angelmondragon/ramp-settlement/pkg/enums"
)

// SimulatedStrategy produces a well-formed but non-chain transaction id after a
// bounded delay. Assets are routed here by configuration, never as an error fallback.
type SimulatedStrategy struct {
	minDelay time.Duration
	maxDelay time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewSimulatedStrategy builds the strategy with a delay drawn from [minDelay, maxDelay].
func NewSimulatedStrategy(minDelay, maxDelay time.Duration) *SimulatedStrategy {
	if minDelay < 0 {
		minDelay = 0
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &SimulatedStrategy{minDelay: minDelay, maxDelay: maxDelay, sleep: sleepContext}
}

func (s *SimulatedStrategy) Name() enums.TransferStrategy {
	return enums.TransferStrategySimulated
}

func (s *SimulatedStrategy) Execute(ctx context.Context, req Request, hooks Hooks) (*Result, error) {
	if err := s.sleep(ctx, s.delay()); err != nil {
		return nil, err
	}
	hash, err := syntheticHash()
	if err != nil {
		return nil, fmt.Errorf("generate simulated hash: %w", err)
	}
	if err := hooks.submitted(ctx, hash); err != nil {
		return nil, err
	}
	return &Result{
		Strategy:  enums.TransferStrategySimulated,
		Hash:      hash,
		Simulated: true,
	}, nil
}

func (s *SimulatedStrategy) delay() time.Duration {
	spread := s.maxDelay - s.minDelay
	if spread <= 0 {
		return s.minDelay
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(spread)))
	if err != nil {
		return s.minDelay
	}
	return s.minDelay + time.Duration(n.Int64())
}

// syntheticHash returns a 0x-prefixed 32 byte hex id, the same shape as a chain hash.
func syntheticHash() (string, error) {
	buf := make([]byte, common.HashLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return common.BytesToHash(buf).Hex(), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
