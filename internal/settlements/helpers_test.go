package settlements

import (
	"context"
	"io"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/ramp-settlement/internal/chain"
	"github.com/angelmondragon/ramp-settlement/internal/gateway"
	"github.com/angelmondragon/ramp-settlement/internal/history"
	"github.com/angelmondragon/ramp-settlement/internal/payouts"
	"github.com/angelmondragon/ramp-settlement/internal/quote"
	"github.com/angelmondragon/ramp-settlement/internal/transfer"
	"github.com/angelmondragon/ramp-settlement/pkg/db"
	"github.com/angelmondragon/ramp-settlement/pkg/db/dbtest"
	"github.com/angelmondragon/ramp-settlement/pkg/db/models"
	"github.com/angelmondragon/ramp-settlement/pkg/enums"
	"github.com/angelmondragon/ramp-settlement/pkg/logger"
	"github.com/angelmondragon/ramp-settlement/pkg/outbox"
)

const (
	testSecret  = "gateway_test_secret"
	testWallet  = "0x1111111111111111111111111111111111111111"
	testDeposit = "0x2222222222222222222222222222222222222222"
)

type fakeExecutor struct {
	mu     sync.Mutex
	routes map[enums.AssetType]enums.TransferStrategy
	calls  int
	delay  time.Duration
	execFn func(req transfer.Request, hooks transfer.Hooks) (*transfer.Result, error)
}

func (f *fakeExecutor) StrategyFor(asset enums.AssetType) (enums.TransferStrategy, error) {
	name, ok := f.routes[asset]
	if !ok {
		return "", errNoRoute
	}
	return name, nil
}

func (f *fakeExecutor) Execute(ctx context.Context, req transfer.Request, hooks transfer.Hooks) (*transfer.Result, error) {
	f.mu.Lock()
	f.calls++
	fn := f.execFn
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if fn != nil {
		return fn(req, hooks)
	}
	hash := common.BytesToHash(req.SettlementID[:]).Hex()
	if hooks.OnSubmitted != nil {
		if err := hooks.OnSubmitted(ctx, hash); err != nil {
			return nil, err
		}
	}
	return &transfer.Result{
		Strategy:          enums.TransferStrategyReal,
		Hash:              hash,
		ExplorerReference: "https://explorer.test/tx/" + hash,
	}, nil
}

func (f *fakeExecutor) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type errString string

func (e errString) Error() string { return string(e) }

const errNoRoute = errString("no route")

type fakeLedger struct {
	mu      sync.Mutex
	txs     map[common.Hash]*chain.TxInfo
	txErr   error
	fee     chain.NetworkFee
	feeErr  error
	balance decimal.Decimal
	signer  common.Address
}

func (f *fakeLedger) EstimateFee(ctx context.Context, asset enums.AssetType) (chain.NetworkFee, error) {
	return f.fee, f.feeErr
}

func (f *fakeLedger) LookupTransaction(ctx context.Context, hash common.Hash) (*chain.TxInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.txErr != nil {
		return nil, f.txErr
	}
	info, ok := f.txs[hash]
	if !ok {
		return nil, chain.ErrTxNotFound
	}
	return info, nil
}

func (f *fakeLedger) Balance(ctx context.Context, asset enums.AssetType, owner common.Address) (decimal.Decimal, error) {
	return f.balance, nil
}

func (f *fakeLedger) SignerAddress() common.Address {
	return f.signer
}

func (f *fakeLedger) addTx(info *chain.TxInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.txs == nil {
		f.txs = map[common.Hash]*chain.TxInfo{}
	}
	f.txs[common.HexToHash(info.Hash)] = info
}

type fakeLocker struct {
	mu         sync.Mutex
	acquireErr error
	held       bool
}

func (l *fakeLocker) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.acquireErr != nil {
		return false, l.acquireErr
	}
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *fakeLocker) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	return nil
}

func (l *fakeLocker) setAcquireErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquireErr = err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	svc      Service
	conn     *gorm.DB
	exec     *fakeExecutor
	ledger   *fakeLedger
	verifier *gateway.ProofVerifier
	clock    *fakeClock
	owner    uuid.UUID
}

type harnessOption func(*ServiceParams)

func withAllowUnverified() harnessOption {
	return func(p *ServiceParams) { p.Options.AllowUnverifiedDeposits = true }
}

func withExecutor(exec TransferExecutor) harnessOption {
	return func(p *ServiceParams) { p.Executor = exec }
}

// withLock routes every settlement through one shared lease.
func withLock(lock *fakeLocker) harnessOption {
	return func(p *ServiceParams) {
		p.Locks = func(uuid.UUID) (Locker, error) { return lock, nil }
	}
}

func testCalculator(t *testing.T) *quote.Calculator {
	t.Helper()
	calc, err := quote.NewCalculator(quote.Config{
		OnRampRates: map[enums.AssetType]decimal.Decimal{
			enums.AssetETH:  decimal.RequireFromString("0.1"),
			enums.AssetUSDC: decimal.RequireFromString("0.012"),
		},
		OffRampRates: map[enums.AssetType]decimal.Decimal{
			enums.AssetETH: decimal.NewFromInt(10),
		},
		OnRampLimits:  quote.Limits{Min: decimal.NewFromInt(10), Max: decimal.NewFromInt(100000)},
		OffRampLimits: quote.Limits{Min: decimal.RequireFromString("0.01"), Max: decimal.NewFromInt(1000)},
		OnRampFee: quote.FeePolicy{
			Rate: decimal.RequireFromString("0.005"),
			Min:  decimal.NewFromInt(1),
			Max:  decimal.NewFromInt(100),
		},
		OffRampFee: quote.FeePolicy{
			Rate: decimal.RequireFromString("0.025"),
			Min:  decimal.NewFromInt(5),
			Max:  decimal.NewFromInt(500),
		},
		GatewayFeeRate: decimal.RequireFromString("0.02"),
		MinNetPayout:   decimal.NewFromInt(5),
	})
	require.NoError(t, err)
	return calc
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "settlements-test", Output: io.Discard})
	hist, err := history.NewService(history.NewRepository(conn))
	require.NoError(t, err)
	verifier, err := gateway.NewProofVerifier(testSecret)
	require.NoError(t, err)

	exec := &fakeExecutor{routes: map[enums.AssetType]enums.TransferStrategy{
		enums.AssetETH:  enums.TransferStrategyReal,
		enums.AssetUSDC: enums.TransferStrategySimulated,
	}}
	ledger := &fakeLedger{
		signer: common.HexToAddress(testDeposit),
		fee: chain.NetworkFee{
			GasUnits:   21000,
			GasPrice:   big.NewInt(1_000_000_000_000),
			NativeCost: decimal.RequireFromString("0.021"),
		},
	}
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	params := ServiceParams{
		DB:         db.NewFromConn(conn),
		Repo:       NewRepository(conn),
		History:    hist,
		Outbox:     outbox.NewService(outbox.NewRepository(conn), logg),
		Calculator: testCalculator(t),
		Gateway:    gateway.NewSimulatedGateway("rzp_test_key"),
		Verifier:   verifier,
		Executor:   exec,
		Ledger:     ledger,
		Payouts:    payouts.NewSimulatedProvider(),
		Logger:     logg,
		Options: Options{
			Currency:      enums.CurrencyINR,
			ChainID:       11155111,
			PayoutDelay:   30 * time.Second,
			LookupTimeout: time.Second,
		},
		Clock: clock.Now,
	}
	for _, opt := range opts {
		opt(&params)
	}
	svc, err := NewService(params)
	require.NoError(t, err)

	return &harness{
		svc:      svc,
		conn:     conn,
		exec:     exec,
		ledger:   ledger,
		verifier: verifier,
		clock:    clock,
		owner:    uuid.New(),
	}
}

func (h *harness) createOrder(t *testing.T, fiat string, asset enums.AssetType) *OnRampOrder {
	t.Helper()
	order, err := h.svc.CreateOnRampOrder(context.Background(), h.owner, CreateOnRampInput{
		FiatAmount:    decimal.RequireFromString(fiat),
		Asset:         asset,
		WalletAddress: testWallet,
	})
	require.NoError(t, err)
	return order
}

func (h *harness) proof(order *OnRampOrder, paymentID string) VerifyPaymentInput {
	return VerifyPaymentInput{
		OrderReference: order.Settlement.OrderReference,
		PaymentID:      paymentID,
		Signature:      h.verifier.Sign(order.Checkout.OrderID, paymentID),
	}
}

func (h *harness) reload(t *testing.T, id uuid.UUID) *models.Settlement {
	t.Helper()
	var row models.Settlement
	require.NoError(t, h.conn.Where("id = ?", id).First(&row).Error)
	return &row
}

// markVerified records a payment proof as accepted without starting its transfer.
func (h *harness) markVerified(t *testing.T, order *OnRampOrder, paymentID string) {
	t.Helper()
	require.NoError(t, h.conn.Model(&models.Settlement{}).Where("id = ?", order.Settlement.ID).Updates(map[string]any{
		"status":            enums.SettlementStatusPaymentVerified,
		"payment_status":    enums.PaymentStatusVerified,
		"payment_proof_id":  paymentID,
		"proof_verified_at": h.clock.Now(),
	}).Error)
}

func (h *harness) eventTypes(t *testing.T, id uuid.UUID) []enums.OutboxEventType {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, h.conn.Where("aggregate_id = ?", id).Order("created_at ASC").Find(&rows).Error)
	out := make([]enums.OutboxEventType, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.EventType)
	}
	return out
}

func (h *harness) transitions(t *testing.T, id uuid.UUID) []enums.SettlementStatus {
	t.Helper()
	var rows []models.SettlementTransition
	require.NoError(t, h.conn.Where("settlement_id = ?", id).Order("created_at ASC").Order("id ASC").Find(&rows).Error)
	out := make([]enums.SettlementStatus, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ToStatus)
	}
	return out
}
