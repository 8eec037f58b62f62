package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/angelmondragon/ramp-settlement/pkg/enums"
)

// EVMClient is the subset of the Ethereum RPC used by the adapter.
type EVMClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error
	TransactionByHash(ctx context.Context, hash common.Hash) (*gethtypes.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error)
}

// Dial initialises an EVM RPC client for the provided endpoint.
func Dial(ctx context.Context, endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("ledger rpc endpoint required")
	}
	return ethclient.DialContext(ctx, trimmed)
}

// Asset describes how an asset is moved on chain. A nil Contract means the
// native coin.
type Asset struct {
	Type     enums.AssetType
	Contract *common.Address
	Decimals int32
}

// IsNative reports whether the asset is the chain's native coin.
func (a Asset) IsNative() bool {
	return a.Contract == nil
}

// Options tunes finality and gas behaviour.
type Options struct {
	Confirmations    uint64
	PollInterval     time.Duration
	NativeGasLimit   uint64
	TokenGasLimit    uint64
	ExplorerTemplate string
}

// Adapter exposes the ledger operations needed to settle transfers.
type Adapter struct {
	client EVMClient
	signer *Signer
	assets map[enums.AssetType]Asset
	opts   Options
}

// NewAdapter wires an adapter. signer may be nil for read-only use.
func NewAdapter(client EVMClient, signer *Signer, assets []Asset, opts Options) (*Adapter, error) {
	if client == nil {
		return nil, fmt.Errorf("evm client required")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.NativeGasLimit == 0 {
		opts.NativeGasLimit = 21000
	}
	if opts.TokenGasLimit == 0 {
		opts.TokenGasLimit = 65000
	}
	if opts.Confirmations == 0 {
		opts.Confirmations = 1
	}
	byType := make(map[enums.AssetType]Asset, len(assets))
	for _, asset := range assets {
		if !asset.Type.IsValid() {
			return nil, fmt.Errorf("unknown asset %q", asset.Type)
		}
		byType[asset.Type] = asset
	}
	return &Adapter{client: client, signer: signer, assets: byType, opts: opts}, nil
}

// Asset returns the on-chain description of assetType.
func (a *Adapter) Asset(assetType enums.AssetType) (Asset, error) {
	asset, ok := a.assets[assetType]
	if !ok {
		return Asset{}, fmt.Errorf("asset %s not configured on ledger", assetType)
	}
	return asset, nil
}

// SignerAddress returns the hot wallet address, or the zero address when no signer is configured.
func (a *Adapter) SignerAddress() common.Address {
	if a.signer == nil {
		return common.Address{}
	}
	return a.signer.Address()
}

// ExplorerURL renders the block explorer link for hash.
func (a *Adapter) ExplorerURL(hash string) string {
	if a.opts.ExplorerTemplate == "" {
		return ""
	}
	if strings.Contains(a.opts.ExplorerTemplate, "%s") {
		return fmt.Sprintf(a.opts.ExplorerTemplate, hash)
	}
	return strings.TrimRight(a.opts.ExplorerTemplate, "/") + "/" + hash
}

// Ping checks that the node responds.
func (a *Adapter) Ping(ctx context.Context) error {
	if _, err := a.client.ChainID(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
