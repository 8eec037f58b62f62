package transfer

import (
	"context"
	"errors"
	"io"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/ramp-settlement/internal/chain"
	"github.com/angelmondragon/ramp-settlement/pkg/enums"
	"github.com/angelmondragon/ramp-settlement/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "transfer-test", Output: io.Discard})
}

type fakeLedger struct {
	mu          sync.Mutex
	balances    []decimal.Decimal
	balanceErr  error
	buildErr    error
	simulateErr error
	submitErr   error
	finalityErr error
	balanceCall int
	submitted   int
	hash        common.Hash
}

func (f *fakeLedger) SignerAddress() common.Address {
	return common.HexToAddress("0x00000000000000000000000000000000000000aa")
}

func (f *fakeLedger) SignerBalance(ctx context.Context, asset enums.AssetType) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balanceErr != nil {
		return decimal.Zero, f.balanceErr
	}
	idx := f.balanceCall
	if idx >= len(f.balances) {
		idx = len(f.balances) - 1
	}
	f.balanceCall++
	return f.balances[idx], nil
}

func (f *fakeLedger) Build(ctx context.Context, req chain.TransferRequest) (*chain.PreparedTransfer, error) {
	if f.buildErr != nil {
		return nil, f.buildErr
	}
	return &chain.PreparedTransfer{}, nil
}

func (f *fakeLedger) Simulate(ctx context.Context, p *chain.PreparedTransfer) error {
	return f.simulateErr
}

func (f *fakeLedger) Sign(p *chain.PreparedTransfer) (*gethtypes.Transaction, error) {
	return gethtypes.NewTx(&gethtypes.LegacyTx{Nonce: 1, GasPrice: big.NewInt(1), Gas: 21000, Value: big.NewInt(1)}), nil
}

func (f *fakeLedger) Submit(ctx context.Context, tx *gethtypes.Transaction) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return common.Hash{}, f.submitErr
	}
	f.submitted++
	f.hash = tx.Hash()
	return f.hash, nil
}

func (f *fakeLedger) WaitFinality(ctx context.Context, hash common.Hash) (*chain.Receipt, error) {
	if f.finalityErr != nil {
		return nil, f.finalityErr
	}
	return &chain.Receipt{Hash: hash, BlockNumber: 42, GasUsed: 21000, Confirmations: 1}, nil
}

func (f *fakeLedger) ExplorerURL(hash string) string {
	return "https://explorer.test/tx/" + hash
}

type fakeFaucet struct {
	calls  int
	amount decimal.Decimal
	err    error
}

func (f *fakeFaucet) Fund(ctx context.Context, address common.Address, amount decimal.Decimal) error {
	f.calls++
	f.amount = amount
	return f.err
}

type inlineQueue struct {
	calls int
	err   error
}

func (q *inlineQueue) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	q.calls++
	if q.err != nil {
		return q.err
	}
	return fn(ctx)
}

type fakeStrategy struct {
	name   enums.TransferStrategy
	result *Result
	err    error
	calls  int
}

func (f *fakeStrategy) Name() enums.TransferStrategy { return f.name }

func (f *fakeStrategy) Execute(ctx context.Context, req Request, hooks Hooks) (*Result, error) {
	f.calls++
	return f.result, f.err
}

var errBoom = errors.New("boom")
