package controllers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/ramp-settlement/api/middleware"
	"github.com/angelmondragon/ramp-settlement/internal/chain"
	"github.com/angelmondragon/ramp-settlement/internal/history"
	"github.com/angelmondragon/ramp-settlement/internal/settlements"
	"github.com/angelmondragon/ramp-settlement/pkg/enums"
	"github.com/angelmondragon/ramp-settlement/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: io.Discard})
}

// newRequest builds a request for an authenticated user with chi route params.
func newRequest(method, target, body string, userID uuid.UUID, params map[string]string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	routeCtx := chi.NewRouteContext()
	for key, value := range params {
		routeCtx.URLParams.Add(key, value)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	if userID != uuid.Nil {
		ctx = middleware.WithUserID(ctx, userID.String())
	}
	return req.WithContext(ctx)
}

type fakeSettlements struct {
	createOnRamp func(ctx context.Context, userID uuid.UUID, input settlements.CreateOnRampInput) (*settlements.OnRampOrder, error)
	verify       func(ctx context.Context, userID uuid.UUID, input settlements.VerifyPaymentInput) (*settlements.TransferOutcome, error)
	estimate     func(ctx context.Context, input settlements.EstimateInput) (*settlements.CostEstimate, error)
	retry        func(ctx context.Context, userID, settlementID uuid.UUID) (*settlements.TransferOutcome, error)
	withdraw     func(ctx context.Context, userID uuid.UUID, input settlements.CreateWithdrawalInput) (*settlements.Withdrawal, error)
	deposit      func(ctx context.Context, userID, settlementID uuid.UUID, txHash string) (*settlements.Record, error)
	cancel       func(ctx context.Context, userID, settlementID uuid.UUID, reason string) (*settlements.Record, error)
	list         func(ctx context.Context, userID uuid.UUID, input settlements.ListInput) (*settlements.ListResult, error)
	balance      func(ctx context.Context, asset enums.AssetType, address string) (*settlements.BalanceView, error)
}

func (f *fakeSettlements) CreateOnRampOrder(ctx context.Context, userID uuid.UUID, input settlements.CreateOnRampInput) (*settlements.OnRampOrder, error) {
	return f.createOnRamp(ctx, userID, input)
}

func (f *fakeSettlements) VerifyPayment(ctx context.Context, userID uuid.UUID, input settlements.VerifyPaymentInput) (*settlements.TransferOutcome, error) {
	return f.verify(ctx, userID, input)
}

func (f *fakeSettlements) ConfirmGatewayPayment(context.Context, settlements.VerifyPaymentInput) (*settlements.TransferOutcome, error) {
	return &settlements.TransferOutcome{}, nil
}

func (f *fakeSettlements) EstimateCost(ctx context.Context, input settlements.EstimateInput) (*settlements.CostEstimate, error) {
	return f.estimate(ctx, input)
}

func (f *fakeSettlements) GatewayOrderStatus(_ context.Context, _ uuid.UUID, orderReference string) (*settlements.GatewayOrderStatus, error) {
	return &settlements.GatewayOrderStatus{OrderID: orderReference, OrderStatus: "created"}, nil
}

func (f *fakeSettlements) Retry(ctx context.Context, userID, settlementID uuid.UUID) (*settlements.TransferOutcome, error) {
	return f.retry(ctx, userID, settlementID)
}

func (f *fakeSettlements) CreateWithdrawal(ctx context.Context, userID uuid.UUID, input settlements.CreateWithdrawalInput) (*settlements.Withdrawal, error) {
	return f.withdraw(ctx, userID, input)
}

func (f *fakeSettlements) VerifyDeposit(ctx context.Context, userID, settlementID uuid.UUID, txHash string) (*settlements.Record, error) {
	return f.deposit(ctx, userID, settlementID, txHash)
}

func (f *fakeSettlements) ConfirmPayout(_ context.Context, _ uuid.UUID, settlementID uuid.UUID) (*settlements.Record, error) {
	return &settlements.Record{ID: settlementID, Status: enums.SettlementStatusPayoutInitiated}, nil
}

func (f *fakeSettlements) ProcessDuePayouts(context.Context, int) (settlements.BatchResult, error) {
	return settlements.BatchResult{}, nil
}

func (f *fakeSettlements) Cancel(ctx context.Context, userID, settlementID uuid.UUID, reason string) (*settlements.Record, error) {
	return f.cancel(ctx, userID, settlementID, reason)
}

func (f *fakeSettlements) Get(_ context.Context, userID, settlementID uuid.UUID) (*settlements.Record, error) {
	return &settlements.Record{ID: settlementID, OwnerID: userID}, nil
}

func (f *fakeSettlements) List(ctx context.Context, userID uuid.UUID, input settlements.ListInput) (*settlements.ListResult, error) {
	return f.list(ctx, userID, input)
}

func (f *fakeSettlements) Stats(context.Context, uuid.UUID) ([]settlements.StatsRow, error) {
	return []settlements.StatsRow{}, nil
}

func (f *fakeSettlements) History(context.Context, uuid.UUID, uuid.UUID) ([]history.Entry, error) {
	return []history.Entry{{ID: uuid.New(), ToStatus: enums.SettlementStatusCreated, CreatedAt: time.Now()}}, nil
}

func (f *fakeSettlements) TxInfo(_ context.Context, hash string) (*chain.TxInfo, error) {
	return &chain.TxInfo{Hash: hash, Success: true}, nil
}

func (f *fakeSettlements) Balance(ctx context.Context, asset enums.AssetType, address string) (*settlements.BalanceView, error) {
	return f.balance(ctx, asset, address)
}

func (f *fakeSettlements) ReconcileStale(context.Context, time.Duration, int) (settlements.BatchResult, error) {
	return settlements.BatchResult{}, nil
}

func (f *fakeSettlements) ExpireStale(context.Context, time.Duration, int) (settlements.BatchResult, error) {
	return settlements.BatchResult{}, nil
}
