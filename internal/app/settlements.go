// Package app assembles the settlement pipeline shared by the API and the
// background workers.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/ramp-settlement/internal/chain"
	"github.com/angelmondragon/ramp-settlement/internal/gateway"
	"github.com/angelmondragon/ramp-settlement/internal/history"
	"github.com/angelmondragon/ramp-settlement/internal/payouts"
	"github.com/angelmondragon/ramp-settlement/internal/quote"
	"github.com/angelmondragon/ramp-settlement/internal/settlements"
	"github.com/angelmondragon/ramp-settlement/internal/transfer"
	"github.com/angelmondragon/ramp-settlement/pkg/config"
	"github.com/angelmondragon/ramp-settlement/pkg/db"
	"github.com/angelmondragon/ramp-settlement/pkg/enums"
	"github.com/angelmondragon/ramp-settlement/pkg/logger"
	"github.com/angelmondragon/ramp-settlement/pkg/metrics"
	"github.com/angelmondragon/ramp-settlement/pkg/outbox"
	"github.com/angelmondragon/ramp-settlement/pkg/redis"
)

// Settlement holds the wired pipeline. Close stops the signer queue and the
// ledger connection.
type Settlement struct {
	Service    settlements.Service
	Calculator *quote.Calculator
	Verifier   *gateway.ProofVerifier
	Ledger     *chain.Adapter
	Outbox     *outbox.Service

	queue  *chain.Queue
	cancel context.CancelFunc
	close  func()
}

// Close stops background work started by BuildSettlement.
func (s *Settlement) Close() {
	if s == nil {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.queue != nil {
		<-s.queue.Stopped()
	}
	if s.close != nil {
		s.close()
	}
}

// BuildSettlement dials the ledger, starts the signer queue and wires the
// orchestrator with its gateway, transfer and payout collaborators.
func BuildSettlement(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, m *metrics.SettlementMetrics) (*Settlement, error) {
	calcCfg, err := quote.ConfigFromSettings(cfg.Assets, cfg.Pricing, cfg.Gateway)
	if err != nil {
		return nil, fmt.Errorf("pricing config: %w", err)
	}
	calc, err := quote.NewCalculator(calcCfg)
	if err != nil {
		return nil, fmt.Errorf("quote calculator: %w", err)
	}

	verifier, err := gateway.NewProofVerifier(cfg.Gateway.KeySecret)
	if err != nil {
		return nil, err
	}
	gw, err := buildGateway(cfg.Gateway)
	if err != nil {
		return nil, err
	}

	routes, err := transfer.RoutesFromConfig(cfg.Assets.Strategies)
	if err != nil {
		return nil, fmt.Errorf("transfer strategies: %w", err)
	}
	assets, err := chain.AssetsFromConfig(cfg.Assets)
	if err != nil {
		return nil, err
	}

	var signer *chain.Signer
	if strings.TrimSpace(cfg.Ledger.SignerPrivateKey) != "" {
		signer, err = chain.NewSigner(cfg.Ledger.SignerPrivateKey, cfg.Ledger.ChainID)
		if err != nil {
			return nil, err
		}
	} else if transfer.UsesReal(routes) {
		return nil, fmt.Errorf("%s is required when an asset uses the real transfer strategy", config.EnvLedgerSignerKey)
	}

	rpc, err := chain.Dial(ctx, cfg.Ledger.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial ledger: %w", err)
	}
	adapter, err := chain.NewAdapter(rpc, signer, assets, chain.Options{
		Confirmations:    cfg.Ledger.Confirmations,
		PollInterval:     cfg.Ledger.PollInterval,
		NativeGasLimit:   cfg.Ledger.NativeGasLimit,
		TokenGasLimit:    cfg.Ledger.TokenGasLimit,
		ExplorerTemplate: cfg.Ledger.ExplorerTemplate,
	})
	if err != nil {
		rpc.Close()
		return nil, err
	}

	strategies := []transfer.Strategy{
		transfer.NewSimulatedStrategy(cfg.Transfer.SimulatedDelayMin, cfg.Transfer.SimulatedDelayMax),
	}

	queueCtx, cancel := context.WithCancel(context.Background())
	queue := chain.NewQueue(cfg.Ledger.QueueSize, m)
	go queue.Run(queueCtx)
	abort := func(err error) (*Settlement, error) {
		cancel()
		rpc.Close()
		return nil, err
	}

	if signer != nil {
		realStrategy, err := buildRealStrategy(cfg, logg, adapter, queue, m)
		if err != nil {
			return abort(err)
		}
		strategies = append(strategies, realStrategy)
	}

	executor, err := transfer.NewExecutor(transfer.ExecutorParams{
		Routes:     routes,
		Strategies: strategies,
		Timeout:    cfg.Transfer.Timeout,
		Logger:     logg,
		Metrics:    m,
	})
	if err != nil {
		return abort(err)
	}

	currency, err := enums.ParseCurrency(cfg.Gateway.Currency)
	if err != nil {
		return abort(err)
	}

	historySvc, err := history.NewService(history.NewRepository(dbClient.DB()))
	if err != nil {
		return abort(err)
	}
	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	var locks settlements.LockFactory
	if redisClient != nil {
		locks = func(settlementID uuid.UUID) (settlements.Locker, error) {
			return redis.NewLock(redisClient, redisClient.LockKey("settlement", settlementID.String()), cfg.Transfer.ClaimLockTTL)
		}
	}

	svc, err := settlements.NewService(settlements.ServiceParams{
		DB:         dbClient,
		Repo:       settlements.NewRepository(dbClient.DB()),
		History:    historySvc,
		Outbox:     outboxSvc,
		Calculator: calc,
		Gateway:    gw,
		Verifier:   verifier,
		Executor:   executor,
		Ledger:     adapter,
		Payouts:    payouts.NewSimulatedProvider(),
		Locks:      locks,
		Metrics:    m,
		Logger:     logg,
		Options: settlements.Options{
			Currency:                currency,
			DepositAddress:          cfg.OffRamp.DepositAddress,
			ChainID:                 cfg.Ledger.ChainID,
			AllowUnverifiedDeposits: cfg.OffRamp.AllowUnverifiedDeposits,
			PayoutDelay:             cfg.OffRamp.PayoutDelay,
			LookupTimeout:           cfg.OffRamp.DepositLookupTimeout,
		},
	})
	if err != nil {
		return abort(err)
	}

	return &Settlement{
		Service:    svc,
		Calculator: calc,
		Verifier:   verifier,
		Ledger:     adapter,
		Outbox:     outboxSvc,
		queue:      queue,
		cancel:     cancel,
		close:      rpc.Close,
	}, nil
}

func buildGateway(cfg config.GatewayConfig) (gateway.Gateway, error) {
	if !cfg.IsLive() {
		return gateway.NewSimulatedGateway(cfg.KeyID), nil
	}
	client, err := gateway.NewClient(cfg.KeyID, cfg.KeySecret, cfg.Timeout, gateway.WithBaseURL(cfg.BaseURL))
	if err != nil {
		return nil, err
	}
	return client, nil
}

func buildRealStrategy(cfg *config.Config, logg *logger.Logger, adapter *chain.Adapter, queue *chain.Queue, m *metrics.SettlementMetrics) (*transfer.RealStrategy, error) {
	minTopUp, err := decimal.NewFromString(cfg.Faucet.MinTopUp)
	if err != nil {
		return nil, fmt.Errorf("parse faucet minimum top-up: %w", err)
	}

	params := transfer.RealStrategyParams{
		Ledger: adapter,
		Queue:  queue,
		Options: transfer.RealOptions{
			StepTimeout:     cfg.Ledger.StepTimeout,
			FinalityTimeout: cfg.Ledger.FinalityTimeout,
			SettleDelay:     cfg.Faucet.SettleDelay,
			MinTopUp:        minTopUp,
		},
		Logger:  logg,
		Metrics: m,
	}
	if strings.TrimSpace(cfg.Faucet.URL) != "" {
		faucet, err := chain.NewFaucetClient(cfg.Faucet.URL, cfg.Faucet.RequestsPerMinute, cfg.Faucet.Timeout)
		if err != nil {
			return nil, err
		}
		params.Faucet = faucet
	}
	return transfer.NewRealStrategy(params)
}
