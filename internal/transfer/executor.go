package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/ramp-settlement/pkg/enums"
	"github.com/angelmondragon/ramp-settlement/pkg/logger"
)

type transferRecorder interface {
	ObserveTransfer(strategy, asset, outcome string, elapsed time.Duration)
}

// Executor routes each asset to the strategy chosen for it in configuration.
type Executor struct {
	routes  map[enums.AssetType]enums.TransferStrategy
	byName  map[enums.TransferStrategy]Strategy
	timeout time.Duration
	logg    *logger.Logger
	metrics transferRecorder
}

// ExecutorParams wires the executor. Routes maps asset to strategy name; every
// routed name must have a registered strategy.
type ExecutorParams struct {
	Routes     map[enums.AssetType]enums.TransferStrategy
	Strategies []Strategy
	Timeout    time.Duration
	Logger     *logger.Logger
	Metrics    transferRecorder
}

func NewExecutor(params ExecutorParams) (*Executor, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	byName := make(map[enums.TransferStrategy]Strategy, len(params.Strategies))
	for _, strategy := range params.Strategies {
		if strategy == nil {
			continue
		}
		byName[strategy.Name()] = strategy
	}
	routes := make(map[enums.AssetType]enums.TransferStrategy, len(params.Routes))
	for asset, name := range params.Routes {
		if !asset.IsValid() {
			return nil, fmt.Errorf("unknown asset %q in transfer routes", asset)
		}
		if _, ok := byName[name]; !ok {
			return nil, fmt.Errorf("asset %s routed to unregistered strategy %q", asset, name)
		}
		routes[asset] = name
	}
	return &Executor{
		routes:  routes,
		byName:  byName,
		timeout: params.Timeout,
		logg:    params.Logger,
		metrics: params.Metrics,
	}, nil
}

// StrategyFor returns the strategy name configured for asset.
func (e *Executor) StrategyFor(asset enums.AssetType) (enums.TransferStrategy, error) {
	name, ok := e.routes[asset]
	if !ok {
		return "", fmt.Errorf("no transfer strategy configured for %s", asset)
	}
	return name, nil
}

// Execute runs the configured strategy for req.Asset under the overall transfer timeout.
// On failure the returned Result may still carry a submitted hash.
func (e *Executor) Execute(ctx context.Context, req Request, hooks Hooks) (*Result, error) {
	name, err := e.StrategyFor(req.Asset)
	if err != nil {
		return nil, err
	}
	strategy := e.byName[name]

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	logCtx := e.logg.WithFields(ctx, map[string]any{
		"settlement_id":   req.SettlementID.String(),
		"order_reference": req.OrderReference,
		"asset":           req.Asset,
		"strategy":        name,
		"amount":          req.Amount.String(),
	})
	e.logg.Info(logCtx, "transfer started")

	started := time.Now()
	result, err := strategy.Execute(ctx, req, hooks)
	elapsed := time.Since(started)
	if err != nil {
		failure := Classify(err)
		e.observe(name, req.Asset, string(failure.TransferStatus()), elapsed)
		e.logg.Warn(e.logg.WithFields(logCtx, map[string]any{
			"failure_code": failure.Code,
			"error":        err.Error(),
		}), "transfer failed")
		return result, err
	}
	e.observe(name, req.Asset, string(enums.TransferStatusSucceeded), elapsed)
	e.logg.Info(e.logg.WithField(logCtx, "transfer_hash", result.Hash), "transfer succeeded")
	return result, nil
}

func (e *Executor) observe(name enums.TransferStrategy, asset enums.AssetType, outcome string, elapsed time.Duration) {
	if e.metrics != nil {
		e.metrics.ObserveTransfer(string(name), string(asset), outcome, elapsed)
	}
}
