package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/ramp-settlement/pkg/enums"
)

// TransferRequest asks the adapter to move Amount of Asset to To from the signer.
type TransferRequest struct {
	Asset  enums.AssetType
	To     common.Address
	Amount decimal.Decimal
}

// PreparedTransfer is an unsigned transfer ready for simulation.
type PreparedTransfer struct {
	asset    Asset
	msg      ethereum.CallMsg
	nonce    uint64
	gasPrice *big.Int
	gasLimit uint64
}

// GasLimit returns the gas limit that will be signed.
func (p *PreparedTransfer) GasLimit() uint64 {
	return p.gasLimit
}

// Receipt summarises a finalised transfer.
type Receipt struct {
	Hash          common.Hash
	BlockNumber   uint64
	GasUsed       uint64
	Confirmations uint64
}

// Balance returns the balance of owner in whole asset units.
func (a *Adapter) Balance(ctx context.Context, assetType enums.AssetType, owner common.Address) (decimal.Decimal, error) {
	asset, err := a.Asset(assetType)
	if err != nil {
		return decimal.Zero, err
	}
	if asset.IsNative() {
		wei, err := a.client.BalanceAt(ctx, owner, nil)
		if err != nil {
			return decimal.Zero, unavailable(err)
		}
		return fromBaseUnits(wei, asset.Decimals), nil
	}
	out, err := a.client.CallContract(ctx, ethereum.CallMsg{To: asset.Contract, Data: encodeBalanceOf(owner)}, nil)
	if err != nil {
		return decimal.Zero, unavailable(err)
	}
	return fromBaseUnits(new(big.Int).SetBytes(out), asset.Decimals), nil
}

// SignerBalance returns the hot wallet balance for assetType.
func (a *Adapter) SignerBalance(ctx context.Context, assetType enums.AssetType) (decimal.Decimal, error) {
	if a.signer == nil {
		return decimal.Zero, fmt.Errorf("signer not configured")
	}
	return a.Balance(ctx, assetType, a.signer.Address())
}

// Build assembles an unsigned transfer using the signer's pending nonce.
func (a *Adapter) Build(ctx context.Context, req TransferRequest) (*PreparedTransfer, error) {
	if a.signer == nil {
		return nil, fmt.Errorf("signer not configured")
	}
	asset, err := a.Asset(req.Asset)
	if err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("transfer amount must be positive")
	}
	if (req.To == common.Address{}) {
		return nil, fmt.Errorf("recipient address required")
	}

	amount := toBaseUnits(req.Amount, asset.Decimals)
	from := a.signer.Address()
	msg := ethereum.CallMsg{From: from}
	gasLimit := a.opts.NativeGasLimit
	if asset.IsNative() {
		to := req.To
		msg.To = &to
		msg.Value = amount
	} else {
		msg.To = asset.Contract
		msg.Value = big.NewInt(0)
		msg.Data = encodeTransfer(req.To, amount)
		gasLimit = a.opts.TokenGasLimit
	}

	nonce, err := a.client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, unavailable(err)
	}
	gasPrice, err := a.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, unavailable(err)
	}
	msg.GasPrice = gasPrice

	return &PreparedTransfer{asset: asset, msg: msg, nonce: nonce, gasPrice: gasPrice, gasLimit: gasLimit}, nil
}

// Simulate dry-runs the transfer through gas estimation. A node-side rejection
// returns ErrSimulationRejected; transport failures return ErrUnavailable.
func (a *Adapter) Simulate(ctx context.Context, p *PreparedTransfer) error {
	gas, err := a.client.EstimateGas(ctx, p.msg)
	if err != nil {
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) {
			return fmt.Errorf("%w: %s", ErrSimulationRejected, rpcErr.Error())
		}
		return unavailable(err)
	}
	if gas > p.gasLimit {
		p.gasLimit = gas
	}
	return nil
}

// Sign produces the signed legacy transaction for p.
func (a *Adapter) Sign(p *PreparedTransfer) (*gethtypes.Transaction, error) {
	if a.signer == nil {
		return nil, fmt.Errorf("signer not configured")
	}
	tx := gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    p.nonce,
		GasPrice: p.gasPrice,
		Gas:      p.gasLimit,
		To:       p.msg.To,
		Value:    p.msg.Value,
		Data:     p.msg.Data,
	})
	return a.signer.Sign(tx)
}

// Submit broadcasts a signed transaction.
func (a *Adapter) Submit(ctx context.Context, tx *gethtypes.Transaction) (common.Hash, error) {
	if err := a.client.SendTransaction(ctx, tx); err != nil {
		return common.Hash{}, unavailable(err)
	}
	return tx.Hash(), nil
}

// WaitFinality polls until hash is mined with the configured confirmations or
// ctx ends. A mined but failed transaction returns ErrReverted.
func (a *Adapter) WaitFinality(ctx context.Context, hash common.Hash) (*Receipt, error) {
	ticker := time.NewTicker(a.opts.PollInterval)
	defer ticker.Stop()

	for {
		receipt, done, err := a.checkFinality(ctx, hash)
		if err != nil || done {
			return receipt, err
		}
		select {
		case <-ctx.Done():
			return nil, unavailable(ctx.Err())
		case <-ticker.C:
		}
	}
}

func (a *Adapter) checkFinality(ctx context.Context, hash common.Hash) (*Receipt, bool, error) {
	receipt, err := a.client.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, false, nil
		}
		if ctx.Err() != nil {
			return nil, false, unavailable(ctx.Err())
		}
		// transient node errors keep polling until the deadline
		return nil, false, nil
	}
	if receipt == nil {
		return nil, false, nil
	}
	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		return nil, true, fmt.Errorf("%w: %s", ErrReverted, hash.Hex())
	}

	out := &Receipt{Hash: hash, GasUsed: receipt.GasUsed, Confirmations: 1}
	if receipt.BlockNumber != nil {
		out.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if a.opts.Confirmations <= 1 {
		return out, true, nil
	}

	header, err := a.client.HeaderByNumber(ctx, nil)
	if err != nil || header == nil || header.Number == nil || receipt.BlockNumber == nil {
		return nil, false, nil
	}
	if header.Number.Cmp(receipt.BlockNumber) < 0 {
		return nil, false, nil
	}
	confirmed := new(big.Int).Sub(header.Number, receipt.BlockNumber)
	confirmed.Add(confirmed, big.NewInt(1))
	out.Confirmations = confirmed.Uint64()
	if out.Confirmations < a.opts.Confirmations {
		return nil, false, nil
	}
	return out, true, nil
}

// NetworkFee is an estimate of the cost to deliver a transfer.
type NetworkFee struct {
	GasUnits   uint64
	GasPrice   *big.Int
	NativeCost decimal.Decimal
}

// EstimateFee prices a transfer of assetType at the node's current gas price.
// Token transfers carry a 1.5x margin over the configured gas limit.
func (a *Adapter) EstimateFee(ctx context.Context, assetType enums.AssetType) (NetworkFee, error) {
	asset, err := a.Asset(assetType)
	if err != nil {
		return NetworkFee{}, err
	}
	gasPrice, err := a.client.SuggestGasPrice(ctx)
	if err != nil {
		return NetworkFee{}, unavailable(err)
	}
	units := a.opts.NativeGasLimit
	if !asset.IsNative() {
		units = a.opts.TokenGasLimit * 3 / 2
	}
	wei := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(units))
	return NetworkFee{
		GasUnits:   units,
		GasPrice:   gasPrice,
		NativeCost: fromBaseUnits(wei, nativeDecimals),
	}, nil
}

func toBaseUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Truncate(0).BigInt()
}

func fromBaseUnits(value *big.Int, decimals int32) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(value, -decimals)
}
