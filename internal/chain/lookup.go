package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/ramp-settlement/pkg/enums"
)

// TxInfo is the decoded view of a ledger transaction.
type TxInfo struct {
	Hash        string          `json:"hash"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Asset       enums.AssetType `json:"asset_type,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Pending     bool            `json:"pending"`
	Success     bool            `json:"success"`
	BlockNumber uint64          `json:"block_number,omitempty"`
	GasUsed     uint64          `json:"gas_used,omitempty"`
	ExplorerURL string          `json:"explorer_url,omitempty"`
}

// LookupTransaction fetches a transaction and its receipt by hash. Native and
// configured token transfers are decoded into recipient and amount.
func (a *Adapter) LookupTransaction(ctx context.Context, hash common.Hash) (*TxInfo, error) {
	tx, pending, err := a.client.TransactionByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTxNotFound, hash.Hex())
		}
		return nil, unavailable(err)
	}

	info := &TxInfo{Hash: hash.Hex(), Pending: pending, ExplorerURL: a.ExplorerURL(hash.Hex())}
	if from, err := gethtypes.Sender(gethtypes.LatestSignerForChainID(tx.ChainId()), tx); err == nil {
		info.From = from.Hex()
	}
	a.describeTransfer(tx, info)

	if pending {
		return info, nil
	}
	receipt, err := a.client.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			info.Pending = true
			return info, nil
		}
		return nil, unavailable(err)
	}
	info.Success = receipt.Status == gethtypes.ReceiptStatusSuccessful
	info.GasUsed = receipt.GasUsed
	if receipt.BlockNumber != nil {
		info.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if !info.Asset.IsValid() || info.Asset.IsNative() {
		return info, nil
	}
	// token transfers are confirmed from the emitted Transfer event
	a.applyTransferLog(receipt, info)
	return info, nil
}

func (a *Adapter) describeTransfer(tx *gethtypes.Transaction, info *TxInfo) {
	to := tx.To()
	if to == nil {
		return
	}
	for _, asset := range a.assets {
		if asset.IsNative() {
			continue
		}
		if *asset.Contract != *to {
			continue
		}
		recipient, amount, ok := decodeTransfer(tx.Data())
		if !ok {
			return
		}
		info.Asset = asset.Type
		info.To = recipient.Hex()
		info.Amount = fromBaseUnits(amount, asset.Decimals)
		return
	}
	info.To = to.Hex()
	for _, asset := range a.assets {
		if asset.IsNative() {
			info.Asset = asset.Type
			info.Amount = fromBaseUnits(tx.Value(), asset.Decimals)
			return
		}
	}
	info.Amount = fromBaseUnits(tx.Value(), nativeDecimals)
}

func (a *Adapter) applyTransferLog(receipt *gethtypes.Receipt, info *TxInfo) {
	asset := a.assets[info.Asset]
	for _, log := range receipt.Logs {
		if log == nil || asset.Contract == nil || log.Address != *asset.Contract {
			continue
		}
		if len(log.Topics) < 3 || log.Topics[0] != transferEventSignature {
			continue
		}
		if common.BytesToAddress(log.Topics[2].Bytes()).Hex() != info.To {
			continue
		}
		return
	}
	info.Success = false
}
