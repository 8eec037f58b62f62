package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/ramp-settlement/pkg/enums"
)

var (
	tokenContract = common.HexToAddress("0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238")
	recipient     = common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
)

func newTestAdapter(t *testing.T, client *fakeEVM, opts Options) (*Adapter, *Signer) {
	t.Helper()
	key, err := gethcrypto.GenerateKey()
	require.NoError(t, err)
	signer := NewSignerFromKey(key, 1337)
	contract := tokenContract
	opts.PollInterval = 5 * time.Millisecond
	adapter, err := NewAdapter(client, signer, []Asset{
		{Type: enums.AssetETH, Decimals: 18},
		{Type: enums.AssetUSDC, Contract: &contract, Decimals: 6},
	}, opts)
	require.NoError(t, err)
	return adapter, signer
}

func TestNativeTransferLifecycle(t *testing.T) {
	client := newFakeEVM()
	client.nonce = 7
	adapter, signer := newTestAdapter(t, client, Options{})
	ctx := context.Background()

	prepared, err := adapter.Build(ctx, TransferRequest{Asset: enums.AssetETH, To: recipient, Amount: decimal.RequireFromString("1.5")})
	require.NoError(t, err)
	require.NoError(t, adapter.Simulate(ctx, prepared))

	tx, err := adapter.Sign(prepared)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, recipient, *tx.To())
	assert.Equal(t, "1500000000000000000", tx.Value().String())

	from, err := gethtypes.Sender(gethtypes.LatestSignerForChainID(big.NewInt(1337)), tx)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), from)

	hash, err := adapter.Submit(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, tx.Hash(), hash)

	client.receiptErrs = []error{ethereum.NotFound, ethereum.NotFound}
	client.receipts[hash] = &gethtypes.Receipt{Status: gethtypes.ReceiptStatusSuccessful, BlockNumber: big.NewInt(99), GasUsed: 21000}

	receipt, err := adapter.WaitFinality(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, uint64(99), receipt.BlockNumber)
}

func TestTokenTransferEncodesCalldata(t *testing.T) {
	client := newFakeEVM()
	client.estimateGas = 90000
	adapter, _ := newTestAdapter(t, client, Options{})

	prepared, err := adapter.Build(context.Background(), TransferRequest{Asset: enums.AssetUSDC, To: recipient, Amount: decimal.RequireFromString("12.5")})
	require.NoError(t, err)
	require.NoError(t, adapter.Simulate(context.Background(), prepared))
	assert.Equal(t, uint64(90000), prepared.GasLimit(), "estimate above the configured limit wins")

	tx, err := adapter.Sign(prepared)
	require.NoError(t, err)
	assert.Equal(t, tokenContract, *tx.To())
	to, amount, ok := decodeTransfer(tx.Data())
	require.True(t, ok)
	assert.Equal(t, recipient, to)
	assert.Equal(t, "12500000", amount.String())
}

func TestSimulateClassifiesErrors(t *testing.T) {
	client := newFakeEVM()
	adapter, _ := newTestAdapter(t, client, Options{})
	prepared, err := adapter.Build(context.Background(), TransferRequest{Asset: enums.AssetETH, To: recipient, Amount: decimal.NewFromInt(1)})
	require.NoError(t, err)

	client.estimateErr = fakeRPCError{code: -32000, msg: "insufficient funds for transfer"}
	err = adapter.Simulate(context.Background(), prepared)
	assert.ErrorIs(t, err, ErrSimulationRejected)

	client.estimateErr = errors.New("dial tcp: connection refused")
	err = adapter.Simulate(context.Background(), prepared)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrSimulationRejected)
}

func TestWaitFinalityReverted(t *testing.T) {
	client := newFakeEVM()
	adapter, _ := newTestAdapter(t, client, Options{})
	hash := common.HexToHash("0x01")
	client.receipts[hash] = &gethtypes.Receipt{Status: gethtypes.ReceiptStatusFailed, BlockNumber: big.NewInt(1)}

	_, err := adapter.WaitFinality(context.Background(), hash)
	assert.ErrorIs(t, err, ErrReverted)
}

func TestWaitFinalityHonoursDeadline(t *testing.T) {
	client := newFakeEVM()
	adapter, _ := newTestAdapter(t, client, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := adapter.WaitFinality(ctx, common.HexToHash("0x02"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestWaitFinalityWaitsForConfirmations(t *testing.T) {
	client := newFakeEVM()
	adapter, _ := newTestAdapter(t, client, Options{Confirmations: 3})
	hash := common.HexToHash("0x03")
	client.receipts[hash] = &gethtypes.Receipt{Status: gethtypes.ReceiptStatusSuccessful, BlockNumber: big.NewInt(99)}
	client.head = big.NewInt(99)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := adapter.WaitFinality(ctx, hash)
	require.Error(t, err, "one confirmation is not enough")

	client.head = big.NewInt(101)
	receipt, err := adapter.WaitFinality(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), receipt.Confirmations)
}

func TestBalances(t *testing.T) {
	client := newFakeEVM()
	adapter, signer := newTestAdapter(t, client, Options{})
	client.balances[signer.Address()] = new(big.Int).Mul(big.NewInt(2), big.NewInt(1e18))
	client.tokenOut = common.LeftPadBytes(big.NewInt(3_250_000).Bytes(), 32)

	eth, err := adapter.SignerBalance(context.Background(), enums.AssetETH)
	require.NoError(t, err)
	assert.True(t, eth.Equal(decimal.NewFromInt(2)))

	usdc, err := adapter.Balance(context.Background(), enums.AssetUSDC, recipient)
	require.NoError(t, err)
	assert.True(t, usdc.Equal(decimal.RequireFromString("3.25")))
}

func TestLookupTransactionDecodesNativeTransfer(t *testing.T) {
	client := newFakeEVM()
	adapter, signer := newTestAdapter(t, client, Options{ExplorerTemplate: "https://explorer.test/tx/%s"})
	ctx := context.Background()

	prepared, err := adapter.Build(ctx, TransferRequest{Asset: enums.AssetETH, To: recipient, Amount: decimal.RequireFromString("0.25")})
	require.NoError(t, err)
	tx, err := adapter.Sign(prepared)
	require.NoError(t, err)
	hash, err := adapter.Submit(ctx, tx)
	require.NoError(t, err)
	client.receipts[hash] = &gethtypes.Receipt{Status: gethtypes.ReceiptStatusSuccessful, BlockNumber: big.NewInt(5)}

	info, err := adapter.LookupTransaction(ctx, hash)
	require.NoError(t, err)
	assert.True(t, info.Success)
	assert.Equal(t, signer.Address().Hex(), info.From)
	assert.Equal(t, recipient.Hex(), info.To)
	assert.Equal(t, enums.AssetETH, info.Asset)
	assert.True(t, info.Amount.Equal(decimal.RequireFromString("0.25")))
	assert.Equal(t, "https://explorer.test/tx/"+hash.Hex(), info.ExplorerURL)

	_, err = adapter.LookupTransaction(ctx, common.HexToHash("0xdead"))
	assert.ErrorIs(t, err, ErrTxNotFound)
}

func TestLookupTransactionRequiresTokenTransferLog(t *testing.T) {
	client := newFakeEVM()
	adapter, _ := newTestAdapter(t, client, Options{})
	ctx := context.Background()

	prepared, err := adapter.Build(ctx, TransferRequest{Asset: enums.AssetUSDC, To: recipient, Amount: decimal.NewFromInt(4)})
	require.NoError(t, err)
	tx, err := adapter.Sign(prepared)
	require.NoError(t, err)
	hash, err := adapter.Submit(ctx, tx)
	require.NoError(t, err)

	client.receipts[hash] = &gethtypes.Receipt{Status: gethtypes.ReceiptStatusSuccessful, BlockNumber: big.NewInt(5)}
	info, err := adapter.LookupTransaction(ctx, hash)
	require.NoError(t, err)
	assert.False(t, info.Success, "no Transfer event means the deposit did not land")

	client.receipts[hash] = &gethtypes.Receipt{
		Status:      gethtypes.ReceiptStatusSuccessful,
		BlockNumber: big.NewInt(5),
		Logs: []*gethtypes.Log{{
			Address: tokenContract,
			Topics: []common.Hash{
				transferEventSignature,
				common.BytesToHash(adapter.SignerAddress().Bytes()),
				common.BytesToHash(recipient.Bytes()),
			},
			Data: common.LeftPadBytes(big.NewInt(4_000_000).Bytes(), 32),
		}},
	}
	info, err = adapter.LookupTransaction(ctx, hash)
	require.NoError(t, err)
	assert.True(t, info.Success)
	assert.Equal(t, enums.AssetUSDC, info.Asset)
	assert.True(t, info.Amount.Equal(decimal.NewFromInt(4)))
}

func TestEstimateFee(t *testing.T) {
	client := newFakeEVM()
	adapter, _ := newTestAdapter(t, client, Options{NativeGasLimit: 21000, TokenGasLimit: 60000})

	native, err := adapter.EstimateFee(context.Background(), enums.AssetETH)
	require.NoError(t, err)
	assert.Equal(t, uint64(21000), native.GasUnits)
	assert.True(t, native.NativeCost.Equal(decimal.RequireFromString("0.000021")))

	token, err := adapter.EstimateFee(context.Background(), enums.AssetUSDC)
	require.NoError(t, err)
	assert.Equal(t, uint64(90000), token.GasUnits)
}

func TestExplorerURL(t *testing.T) {
	adapter, _ := newTestAdapter(t, newFakeEVM(), Options{ExplorerTemplate: "https://explorer.test/tx/"})
	assert.Equal(t, "https://explorer.test/tx/0xabc", adapter.ExplorerURL("0xabc"))
}
