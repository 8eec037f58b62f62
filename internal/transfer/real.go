package transfer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/ramp-settlement/internal/chain"
	"github.com/angelmondragon/ramp-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/ramp-settlement/pkg/errors"
	"github.com/angelmondragon/ramp-settlement/pkg/logger"
)

type ledger interface {
	SignerAddress() common.Address
	SignerBalance(ctx context.Context, asset enums.AssetType) (decimal.Decimal, error)
	Build(ctx context.Context, req chain.TransferRequest) (*chain.PreparedTransfer, error)
	Simulate(ctx context.Context, p *chain.PreparedTransfer) error
	Sign(p *chain.PreparedTransfer) (*gethtypes.Transaction, error)
	Submit(ctx context.Context, tx *gethtypes.Transaction) (common.Hash, error)
	WaitFinality(ctx context.Context, hash common.Hash) (*chain.Receipt, error)
	ExplorerURL(hash string) string
}

type funder interface {
	Fund(ctx context.Context, address common.Address, amount decimal.Decimal) error
}

type signerQueue interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

type topUpRecorder interface {
	IncTopUp(asset, outcome string)
}

// RealOptions bounds every suspension point of a real transfer.
type RealOptions struct {
	StepTimeout     time.Duration
	FinalityTimeout time.Duration
	SettleDelay     time.Duration
	MinTopUp        decimal.Decimal
}

// RealStrategy moves funds on chain from the shared signer.
type RealStrategy struct {
	ledger  ledger
	faucet  funder
	queue   signerQueue
	opts    RealOptions
	logg    *logger.Logger
	metrics topUpRecorder
	sleep   func(ctx context.Context, d time.Duration) error
}

// RealStrategyParams wires the real strategy. Faucet and Metrics are optional.
type RealStrategyParams struct {
	Ledger  ledger
	Faucet  funder
	Queue   signerQueue
	Options RealOptions
	Logger  *logger.Logger
	Metrics topUpRecorder
}

func NewRealStrategy(params RealStrategyParams) (*RealStrategy, error) {
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger adapter required")
	}
	if params.Queue == nil {
		return nil, fmt.Errorf("signer queue required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	opts := params.Options
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = 15 * time.Second
	}
	if opts.FinalityTimeout <= 0 {
		opts.FinalityTimeout = 2 * time.Minute
	}
	return &RealStrategy{
		ledger:  params.Ledger,
		faucet:  params.Faucet,
		queue:   params.Queue,
		opts:    opts,
		logg:    params.Logger,
		metrics: params.Metrics,
		sleep:   sleepContext,
	}, nil
}

func (s *RealStrategy) Name() enums.TransferStrategy {
	return enums.TransferStrategyReal
}

func (s *RealStrategy) Execute(ctx context.Context, req Request, hooks Hooks) (*Result, error) {
	to, err := parseAddress(req.WalletAddress)
	if err != nil {
		return nil, err
	}

	toppedUp, err := s.ensureBalance(ctx, req)
	if err != nil {
		return nil, err
	}

	// nonce allocation through submission must not interleave with other transfers
	var hash common.Hash
	err = s.queue.Do(ctx, func(qctx context.Context) error {
		var submitErr error
		hash, submitErr = s.submit(qctx, chain.TransferRequest{Asset: req.Asset, To: to, Amount: req.Amount})
		return submitErr
	})
	if err != nil {
		return nil, err
	}

	hashHex := hash.Hex()
	logCtx := s.logg.WithField(ctx, "transfer_hash", hashHex)
	s.logg.Info(logCtx, "transfer submitted")
	if err := hooks.submitted(ctx, hashHex); err != nil {
		s.logg.Error(logCtx, "failed to persist submitted transfer hash", err)
	}

	finalityCtx, cancel := context.WithTimeout(ctx, s.opts.FinalityTimeout)
	defer cancel()
	receipt, err := s.ledger.WaitFinality(finalityCtx, hash)
	if err != nil {
		return &Result{Strategy: enums.TransferStrategyReal, Hash: hashHex, ExplorerReference: s.ledger.ExplorerURL(hashHex), ToppedUp: toppedUp}, err
	}

	return &Result{
		Strategy:          enums.TransferStrategyReal,
		Hash:              hashHex,
		ExplorerReference: s.ledger.ExplorerURL(hashHex),
		BlockNumber:       receipt.BlockNumber,
		GasUsed:           receipt.GasUsed,
		ToppedUp:          toppedUp,
	}, nil
}

func (s *RealStrategy) submit(ctx context.Context, req chain.TransferRequest) (common.Hash, error) {
	stepCtx, cancel := context.WithTimeout(ctx, s.opts.StepTimeout)
	defer cancel()

	prepared, err := s.ledger.Build(stepCtx, req)
	if err != nil {
		return common.Hash{}, err
	}
	if err := s.ledger.Simulate(stepCtx, prepared); err != nil {
		return common.Hash{}, err
	}
	signed, err := s.ledger.Sign(prepared)
	if err != nil {
		return common.Hash{}, err
	}
	return s.ledger.Submit(stepCtx, signed)
}

// ensureBalance checks the signer can cover the amount, requesting one faucet
// top-up and re-checking once after the settle delay.
func (s *RealStrategy) ensureBalance(ctx context.Context, req Request) (bool, error) {
	balance, err := s.signerBalance(ctx, req.Asset)
	if err != nil {
		return false, err
	}
	if balance.GreaterThanOrEqual(req.Amount) {
		return false, nil
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"asset":    req.Asset,
		"balance":  balance.String(),
		"required": req.Amount.String(),
	})
	if s.faucet == nil {
		return false, fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, balance, req.Amount)
	}

	topUp := decimal.Max(s.opts.MinTopUp, req.Amount.Mul(decimal.NewFromInt(2)))
	s.logg.Warn(logCtx, "signer balance short, requesting top-up")
	fundCtx, cancel := context.WithTimeout(ctx, s.opts.StepTimeout)
	err = s.faucet.Fund(fundCtx, s.ledger.SignerAddress(), topUp)
	cancel()
	if err != nil {
		s.recordTopUp(req.Asset, "failed")
		s.logg.Error(logCtx, "faucet top-up failed", err)
		return false, fmt.Errorf("%w: top-up failed: %w", ErrInsufficientBalance, err)
	}
	s.recordTopUp(req.Asset, "funded")

	if err := s.sleep(ctx, s.opts.SettleDelay); err != nil {
		return true, err
	}

	balance, err = s.signerBalance(ctx, req.Asset)
	if err != nil {
		return true, err
	}
	if balance.LessThan(req.Amount) {
		return true, fmt.Errorf("%w: have %s after top-up, need %s", ErrInsufficientBalance, balance, req.Amount)
	}
	return true, nil
}

func (s *RealStrategy) signerBalance(ctx context.Context, asset enums.AssetType) (decimal.Decimal, error) {
	stepCtx, cancel := context.WithTimeout(ctx, s.opts.StepTimeout)
	defer cancel()
	return s.ledger.SignerBalance(stepCtx, asset)
}

func (s *RealStrategy) recordTopUp(asset enums.AssetType, outcome string) {
	if s.metrics != nil {
		s.metrics.IncTopUp(string(asset), outcome)
	}
}

func parseAddress(value string) (common.Address, error) {
	trimmed := strings.TrimSpace(value)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid wallet address %q", value))
	}
	return common.HexToAddress(trimmed), nil
}
