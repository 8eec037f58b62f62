package settlements

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/ramp-settlement/internal/chain"
	"github.com/angelmondragon/ramp-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/ramp-settlement/pkg/errors"
)

const depositHash = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

func (h *harness) createWithdrawal(t *testing.T, tokens string) *Withdrawal {
	t.Helper()
	w, err := h.svc.CreateWithdrawal(context.Background(), h.owner, CreateWithdrawalInput{
		TokenAmount:    decimal.RequireFromString(tokens),
		Asset:          enums.AssetETH,
		WalletAddress:  testWallet,
		BankAccountRef: "acct_123",
	})
	require.NoError(t, err)
	return w
}

func (h *harness) confirmDeposit(hash string, amount decimal.Decimal) {
	h.ledger.addTx(&chain.TxInfo{
		Hash:    hash,
		From:    testWallet,
		To:      testDeposit,
		Asset:   enums.AssetETH,
		Amount:  amount,
		Success: true,
	})
}

func TestWithdrawalLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	w := h.createWithdrawal(t, "10")
	rec := w.Settlement
	assert.True(t, strings.HasPrefix(rec.OrderReference, "offramp_"))
	assert.Equal(t, enums.SettlementStatusWithdrawalRequested, rec.Status)
	assert.True(t, rec.Amount.Fiat.Equal(decimal.NewFromInt(100)))
	assert.True(t, rec.Fees.PlatformFee.Equal(decimal.NewFromInt(5)))
	assert.True(t, rec.Amount.NetPayout.Equal(decimal.NewFromInt(95)))
	assert.True(t, strings.EqualFold(testDeposit, w.Deposit.Address))
	assert.Equal(t, int64(11155111), w.Deposit.ChainID)
	assert.Empty(t, rec.PaymentStatus, "payment sub-status is on-ramp only")

	h.confirmDeposit(depositHash, decimal.NewFromInt(10))
	verified, err := h.svc.VerifyDeposit(ctx, h.owner, rec.ID, depositHash)
	require.NoError(t, err)
	assert.Equal(t, enums.SettlementStatusDepositVerified, verified.Status)
	require.NotNil(t, verified.DepositMethod)
	assert.Equal(t, enums.DepositLedgerConfirmed, *verified.DepositMethod)
	require.NotNil(t, verified.PayoutDueAt)
	assert.True(t, verified.PayoutDueAt.Equal(h.clock.Now().Add(30*time.Second)))

	again, err := h.svc.VerifyDeposit(ctx, h.owner, rec.ID, depositHash)
	require.NoError(t, err)
	assert.Equal(t, enums.SettlementStatusDepositVerified, again.Status)

	paid, err := h.svc.ConfirmPayout(ctx, h.owner, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.SettlementStatusCompleted, paid.Status)
	require.NotNil(t, paid.PayoutReference)
	assert.True(t, strings.HasPrefix(*paid.PayoutReference, "pay_"))
	assert.NotNil(t, paid.Timestamps.Settled)

	repeat, err := h.svc.ConfirmPayout(ctx, h.owner, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, *paid.PayoutReference, *repeat.PayoutReference)

	assert.Equal(t, []enums.SettlementStatus{
		enums.SettlementStatusWithdrawalRequested,
		enums.SettlementStatusDepositVerified,
		enums.SettlementStatusPayoutInitiated,
		enums.SettlementStatusCompleted,
	}, h.transitions(t, rec.ID))
	assert.ElementsMatch(t, []enums.OutboxEventType{
		enums.EventSettlementCreated,
		enums.EventDepositVerified,
		enums.EventPayoutInitiated,
		enums.EventPayoutCompleted,
	}, h.eventTypes(t, rec.ID))
}

func TestCreateWithdrawalValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.CreateWithdrawal(ctx, h.owner, CreateWithdrawalInput{
		TokenAmount: decimal.NewFromInt(1), Asset: enums.AssetETH, WalletAddress: testWallet,
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "bank account required")

	_, err = h.svc.CreateWithdrawal(ctx, h.owner, CreateWithdrawalInput{
		TokenAmount: decimal.RequireFromString("0.5"), Asset: enums.AssetETH, WalletAddress: testWallet, BankAccountRef: "acct",
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "net payout below minimum")

	_, err = h.svc.CreateWithdrawal(ctx, h.owner, CreateWithdrawalInput{
		TokenAmount: decimal.NewFromInt(1), Asset: enums.AssetUSDC, WalletAddress: testWallet, BankAccountRef: "acct",
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "no off-ramp rate")
}

func TestVerifyDepositRejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w := h.createWithdrawal(t, "10")

	_, err := h.svc.VerifyDeposit(ctx, h.owner, w.Settlement.ID, "0x1234")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.svc.VerifyDeposit(ctx, uuid.New(), w.Settlement.ID, depositHash)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = h.svc.VerifyDeposit(ctx, h.owner, w.Settlement.ID, depositHash)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "unknown transaction")

	h.confirmDeposit(depositHash, decimal.NewFromInt(9))
	_, err = h.svc.VerifyDeposit(ctx, h.owner, w.Settlement.ID, depositHash)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "short deposit")

	pending := "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	h.ledger.addTx(&chain.TxInfo{Hash: pending, To: testDeposit, Asset: enums.AssetETH, Amount: decimal.NewFromInt(10), Pending: true})
	_, err = h.svc.VerifyDeposit(ctx, h.owner, w.Settlement.ID, pending)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	assert.Equal(t, enums.SettlementStatusWithdrawalRequested, h.reload(t, w.Settlement.ID).Status)
}

func TestVerifyDepositLedgerUnavailable(t *testing.T) {
	h := newHarness(t)
	w := h.createWithdrawal(t, "10")
	h.ledger.txErr = chain.ErrUnavailable

	_, err := h.svc.VerifyDeposit(context.Background(), h.owner, w.Settlement.ID, depositHash)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeLedgerUnavailable))
}

func TestVerifyDepositDemoAccepted(t *testing.T) {
	h := newHarness(t, withAllowUnverified())
	w := h.createWithdrawal(t, "10")
	h.ledger.txErr = chain.ErrUnavailable

	rec, err := h.svc.VerifyDeposit(context.Background(), h.owner, w.Settlement.ID, depositHash)
	require.NoError(t, err)
	require.NotNil(t, rec.DepositMethod)
	assert.Equal(t, enums.DepositDemoAccepted, *rec.DepositMethod)
}

func TestVerifyDepositHashClaimedOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.createWithdrawal(t, "10")
	second := h.createWithdrawal(t, "10")
	h.confirmDeposit(depositHash, decimal.NewFromInt(10))

	_, err := h.svc.VerifyDeposit(ctx, h.owner, first.Settlement.ID, depositHash)
	require.NoError(t, err)

	_, err = h.svc.VerifyDeposit(ctx, h.owner, second.Settlement.ID, depositHash)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestConfirmPayoutRequiresDeposit(t *testing.T) {
	h := newHarness(t)
	w := h.createWithdrawal(t, "10")

	_, err := h.svc.ConfirmPayout(context.Background(), h.owner, w.Settlement.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestProcessDuePayouts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w := h.createWithdrawal(t, "10")
	h.confirmDeposit(depositHash, decimal.NewFromInt(10))
	_, err := h.svc.VerifyDeposit(ctx, h.owner, w.Settlement.ID, depositHash)
	require.NoError(t, err)

	early, err := h.svc.ProcessDuePayouts(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, early.Scanned)

	h.clock.Advance(31 * time.Second)
	due, err := h.svc.ProcessDuePayouts(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Scanned: 1, Processed: 1}, due)

	stored := h.reload(t, w.Settlement.ID)
	assert.Equal(t, enums.SettlementStatusCompleted, stored.Status)
	require.NotNil(t, stored.PayoutReference)
}

func TestVerifyDepositRejectsForeignSender(t *testing.T) {
	h := newHarness(t)
	w := h.createWithdrawal(t, "10")
	h.ledger.addTx(&chain.TxInfo{
		Hash:    depositHash,
		From:    "0x3333333333333333333333333333333333333333",
		To:      testDeposit,
		Asset:   enums.AssetETH,
		Amount:  decimal.NewFromInt(10),
		Success: true,
	})

	_, err := h.svc.VerifyDeposit(context.Background(), h.owner, w.Settlement.ID, depositHash)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, enums.SettlementStatusWithdrawalRequested, h.reload(t, w.Settlement.ID).Status)
}

func TestVerifyDepositRejectsUndecodedTransfer(t *testing.T) {
	h := newHarness(t)
	w := h.createWithdrawal(t, "10")
	// a contract call the ledger adapter could not decode into a transfer
	h.ledger.addTx(&chain.TxInfo{Hash: depositHash, From: testWallet, Success: true})

	_, err := h.svc.VerifyDeposit(context.Background(), h.owner, w.Settlement.ID, depositHash)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, enums.SettlementStatusWithdrawalRequested, h.reload(t, w.Settlement.ID).Status)
}
