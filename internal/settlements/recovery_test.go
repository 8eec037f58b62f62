package settlements

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/ramp-settlement/internal/chain"
	"github.com/angelmondragon/ramp-settlement/pkg/db/models"
	"github.com/angelmondragon/ramp-settlement/pkg/enums"
)

const staleHash = "0xdddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddd"

// strand leaves an order looking like its transfer process died mid-flight.
func (h *harness) strand(t *testing.T, hash string) *OnRampOrder {
	t.Helper()
	order := h.createOrder(t, "100", enums.AssetETH)
	updates := map[string]any{
		"status":           enums.SettlementStatusPaymentVerified,
		"payment_status":   enums.PaymentStatusVerified,
		"payment_proof_id": "pay_STRANDED",
		"transfer_status":  enums.TransferStatusInFlight,
		"claim_token":      "stranded-claim",
		"claimed_at":       h.clock.Now().Add(-10 * time.Minute),
	}
	if hash != "" {
		updates["transfer_hash"] = hash
	}
	require.NoError(t, h.conn.Model(&models.Settlement{}).Where("id = ?", order.Settlement.ID).Updates(updates).Error)
	return order
}

func TestReconcileStaleWithoutHashFails(t *testing.T) {
	h := newHarness(t)
	order := h.strand(t, "")

	result, err := h.svc.ReconcileStale(context.Background(), 5*time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Scanned: 1, Processed: 1}, result)

	stored := h.reload(t, order.Settlement.ID)
	assert.Equal(t, enums.SettlementStatusFailed, stored.Status)
	assert.Equal(t, enums.TransferStatusFailed, stored.TransferStatus)
	require.NotNil(t, stored.FailureCode)
	assert.Equal(t, enums.FailureLedgerUnavailable, *stored.FailureCode)
	assert.Nil(t, stored.ClaimToken)
}

func TestReconcileStaleCompletesFinalisedTransfer(t *testing.T) {
	h := newHarness(t)
	order := h.strand(t, staleHash)
	h.ledger.addTx(&chain.TxInfo{Hash: staleHash, To: testWallet, Success: true, BlockNumber: 42})

	result, err := h.svc.ReconcileStale(context.Background(), 5*time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	stored := h.reload(t, order.Settlement.ID)
	assert.Equal(t, enums.SettlementStatusCompleted, stored.Status)
	require.NotNil(t, stored.TransferHash)
	assert.Equal(t, staleHash, *stored.TransferHash)
	assert.Zero(t, h.exec.Calls(), "reconciliation never resubmits")
}

func TestReconcileStaleSkipsPendingAndFresh(t *testing.T) {
	h := newHarness(t)
	order := h.strand(t, staleHash)
	h.ledger.addTx(&chain.TxInfo{Hash: staleHash, Pending: true})

	result, err := h.svc.ReconcileStale(context.Background(), 5*time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Scanned: 1, Skipped: 1}, result)
	assert.Equal(t, enums.TransferStatusInFlight, h.reload(t, order.Settlement.ID).TransferStatus)

	fresh, err := h.svc.ReconcileStale(context.Background(), time.Hour, 10)
	require.NoError(t, err)
	assert.Zero(t, fresh.Scanned)
}

func TestReconcileStaleRevertedTransferFails(t *testing.T) {
	h := newHarness(t)
	order := h.strand(t, staleHash)
	h.ledger.addTx(&chain.TxInfo{Hash: staleHash, Success: false})

	_, err := h.svc.ReconcileStale(context.Background(), 5*time.Minute, 10)
	require.NoError(t, err)

	stored := h.reload(t, order.Settlement.ID)
	assert.Equal(t, enums.SettlementStatusFailed, stored.Status)
	require.NotNil(t, stored.FailureCode)
	assert.Equal(t, enums.FailureTransferReverted, *stored.FailureCode)
}

func TestExpireStale(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	stale := h.createOrder(t, "100", enums.AssetETH)
	staleWithdrawal := h.createWithdrawal(t, "10")
	h.clock.Advance(2 * time.Hour)
	fresh := h.createOrder(t, "100", enums.AssetETH)

	result, err := h.svc.ExpireStale(ctx, time.Hour, 10)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Scanned: 2, Processed: 2}, result)

	assert.Equal(t, enums.SettlementStatusCancelled, h.reload(t, stale.Settlement.ID).Status)
	assert.Equal(t, enums.SettlementStatusCancelled, h.reload(t, staleWithdrawal.Settlement.ID).Status)
	assert.Equal(t, enums.SettlementStatusCreated, h.reload(t, fresh.Settlement.ID).Status)
}

func TestReconcileStaleStartsUnstartedTransfer(t *testing.T) {
	h := newHarness(t)
	order := h.createOrder(t, "100", enums.AssetETH)
	h.markVerified(t, order, "pay_ABC")

	fresh, err := h.svc.ReconcileStale(context.Background(), 5*time.Minute, 10)
	require.NoError(t, err)
	assert.Zero(t, fresh.Scanned)

	h.clock.Advance(10 * time.Minute)
	result, err := h.svc.ReconcileStale(context.Background(), 5*time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Scanned: 1, Processed: 1}, result)

	stored := h.reload(t, order.Settlement.ID)
	assert.Equal(t, enums.SettlementStatusCompleted, stored.Status)
	assert.Equal(t, 1, h.exec.Calls())
}

func TestReconcileStaleResolvesTimedOutTransfer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.createOrder(t, "100", enums.AssetETH)
	h.timeOutAfterSubmit(staleHash)
	_, err := h.svc.VerifyPayment(ctx, h.owner, h.proof(order, "pay_ABC"))
	require.NoError(t, err)
	h.ledger.addTx(&chain.TxInfo{Hash: staleHash, To: testWallet, Success: true, BlockNumber: 9})

	h.clock.Advance(10 * time.Minute)
	result, err := h.svc.ReconcileStale(ctx, 5*time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Scanned: 1, Processed: 1}, result)

	stored := h.reload(t, order.Settlement.ID)
	assert.Equal(t, enums.SettlementStatusCompleted, stored.Status)
	require.NotNil(t, stored.TransferHash)
	assert.Equal(t, staleHash, *stored.TransferHash)
	assert.Nil(t, stored.ClaimToken)
	assert.Equal(t, 1, h.exec.Calls())
}

func TestReconcileStaleFailsDroppedTimedOutTransfer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.createOrder(t, "100", enums.AssetETH)
	h.timeOutAfterSubmit(staleHash)
	_, err := h.svc.VerifyPayment(ctx, h.owner, h.proof(order, "pay_ABC"))
	require.NoError(t, err)

	h.clock.Advance(10 * time.Minute)
	result, err := h.svc.ReconcileStale(ctx, 5*time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	stored := h.reload(t, order.Settlement.ID)
	assert.Equal(t, enums.SettlementStatusFailed, stored.Status)
	assert.Equal(t, enums.TransferStatusFailed, stored.TransferStatus)
	assert.Nil(t, stored.ClaimToken)

	again, err := h.svc.ReconcileStale(ctx, 5*time.Minute, 10)
	require.NoError(t, err)
	assert.Zero(t, again.Scanned)
}

func TestReconcileStaleLeavesPendingTimedOutTransfer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.createOrder(t, "100", enums.AssetETH)
	h.timeOutAfterSubmit(staleHash)
	_, err := h.svc.VerifyPayment(ctx, h.owner, h.proof(order, "pay_ABC"))
	require.NoError(t, err)
	h.ledger.addTx(&chain.TxInfo{Hash: staleHash, Pending: true})

	h.clock.Advance(10 * time.Minute)
	result, err := h.svc.ReconcileStale(ctx, 5*time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Scanned: 1, Skipped: 1}, result)

	stored := h.reload(t, order.Settlement.ID)
	assert.Equal(t, enums.TransferStatusTimedOut, stored.TransferStatus)
	assert.Nil(t, stored.ClaimToken)
}
