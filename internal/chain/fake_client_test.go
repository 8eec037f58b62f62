package chain

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

type fakeRPCError struct {
	code int
	msg  string
}

func (e fakeRPCError) Error() string  { return e.msg }
func (e fakeRPCError) ErrorCode() int { return e.code }

type fakeEVM struct {
	mu sync.Mutex

	chainID     *big.Int
	balances    map[common.Address]*big.Int
	tokenOut    []byte
	nonce       uint64
	gasPrice    *big.Int
	estimateGas uint64
	estimateErr error
	sendErr     error
	sent        []*gethtypes.Transaction
	txs         map[common.Hash]*gethtypes.Transaction
	pending     bool
	receipts    map[common.Hash]*gethtypes.Receipt
	receiptErrs []error
	head        *big.Int
}

func newFakeEVM() *fakeEVM {
	return &fakeEVM{
		chainID:     big.NewInt(1337),
		balances:    map[common.Address]*big.Int{},
		gasPrice:    big.NewInt(1_000_000_000),
		estimateGas: 21000,
		txs:         map[common.Hash]*gethtypes.Transaction{},
		receipts:    map[common.Hash]*gethtypes.Receipt{},
		head:        big.NewInt(100),
	}
}

func (f *fakeEVM) ChainID(context.Context) (*big.Int, error) { return f.chainID, nil }

func (f *fakeEVM) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if bal, ok := f.balances[account]; ok {
		return bal, nil
	}
	return big.NewInt(0), nil
}

func (f *fakeEVM) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce, nil
}

func (f *fakeEVM) SuggestGasPrice(context.Context) (*big.Int, error) { return f.gasPrice, nil }

func (f *fakeEVM) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return f.estimateGas, nil
}

func (f *fakeEVM) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return f.tokenOut, nil
}

func (f *fakeEVM) SendTransaction(_ context.Context, tx *gethtypes.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	f.txs[tx.Hash()] = tx
	f.nonce++
	return nil
}

func (f *fakeEVM) TransactionByHash(_ context.Context, hash common.Hash) (*gethtypes.Transaction, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.txs[hash]
	if !ok {
		return nil, false, ethereum.NotFound
	}
	return tx, f.pending, nil
}

func (f *fakeEVM) TransactionReceipt(_ context.Context, hash common.Hash) (*gethtypes.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.receiptErrs) > 0 {
		err := f.receiptErrs[0]
		f.receiptErrs = f.receiptErrs[1:]
		return nil, err
	}
	receipt, ok := f.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (f *fakeEVM) HeaderByNumber(context.Context, *big.Int) (*gethtypes.Header, error) {
	return &gethtypes.Header{Number: f.head}, nil
}
