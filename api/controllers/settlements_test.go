package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/ramp-settlement/internal/settlements"
	"github.com/angelmondragon/ramp-settlement/pkg/config"
	"github.com/angelmondragon/ramp-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/ramp-settlement/pkg/errors"
)

const testWallet = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"

func TestOnRampCreateOrder(t *testing.T) {
	userID := uuid.New()
	var got settlements.CreateOnRampInput
	svc := &fakeSettlements{
		createOnRamp: func(_ context.Context, owner uuid.UUID, input settlements.CreateOnRampInput) (*settlements.OnRampOrder, error) {
			assert.Equal(t, userID, owner)
			got = input
			return &settlements.OnRampOrder{Checkout: settlements.Checkout{OrderID: "order_1"}}, nil
		},
	}
	handler := OnRampCreateOrder(svc, testLogger())

	t.Run("unauthenticated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, newRequest(http.MethodPost, "/api/v1/onramp/orders", `{}`, uuid.Nil, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("invalid amount", func(t *testing.T) {
		rec := httptest.NewRecorder()
		body := `{"fiat_amount":"0","asset_type":"ETH","wallet_address":"` + testWallet + `"}`
		handler.ServeHTTP(rec, newRequest(http.MethodPost, "/api/v1/onramp/orders", body, userID, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unsupported asset", func(t *testing.T) {
		rec := httptest.NewRecorder()
		body := `{"fiat_amount":"100","asset_type":"DOGE","wallet_address":"` + testWallet + `"}`
		handler.ServeHTTP(rec, newRequest(http.MethodPost, "/api/v1/onramp/orders", body, userID, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("created", func(t *testing.T) {
		rec := httptest.NewRecorder()
		body := `{"fiat_amount":"1000.50","asset_type":"eth","wallet_address":"` + testWallet + `"}`
		handler.ServeHTTP(rec, newRequest(http.MethodPost, "/api/v1/onramp/orders", body, userID, nil))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.True(t, got.FiatAmount.Equal(decimal.RequireFromString("1000.50")))
		assert.Equal(t, enums.AssetETH, got.Asset)
		assert.Contains(t, rec.Body.String(), "order_1")
	})
}

func TestOnRampVerify(t *testing.T) {
	userID := uuid.New()
	body := `{"order_id":"order_1","payment_id":"pay_1","signature":"abc"}`

	t.Run("completed transfer answers 200", func(t *testing.T) {
		svc := &fakeSettlements{verify: func(_ context.Context, _ uuid.UUID, input settlements.VerifyPaymentInput) (*settlements.TransferOutcome, error) {
			assert.Equal(t, "order_1", input.OrderReference)
			return &settlements.TransferOutcome{Settlement: settlements.Record{Status: enums.SettlementStatusCompleted}}, nil
		}}
		rec := httptest.NewRecorder()
		OnRampVerify(svc, testLogger()).ServeHTTP(rec, newRequest(http.MethodPost, "/api/v1/onramp/verify", body, userID, nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("failed transfer answers 202 with pending display status", func(t *testing.T) {
		svc := &fakeSettlements{verify: func(context.Context, uuid.UUID, settlements.VerifyPaymentInput) (*settlements.TransferOutcome, error) {
			return &settlements.TransferOutcome{
				Settlement: settlements.Record{
					Status:        enums.SettlementStatusFailed,
					DisplayStatus: settlements.DisplayPaymentReceivedTransferPending,
				},
				Failure: &settlements.FailureView{Code: enums.FailureInsufficientBalance, Retryable: true},
			}, nil
		}}
		rec := httptest.NewRecorder()
		OnRampVerify(svc, testLogger()).ServeHTTP(rec, newRequest(http.MethodPost, "/api/v1/onramp/verify", body, userID, nil))
		require.Equal(t, http.StatusAccepted, rec.Code)

		var envelope struct {
			Data settlements.TransferOutcome `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
		assert.Equal(t, settlements.DisplayPaymentReceivedTransferPending, envelope.Data.Settlement.DisplayStatus)
		require.NotNil(t, envelope.Data.Failure)
		assert.True(t, envelope.Data.Failure.Retryable)
	})

	t.Run("signature mismatch hides details", func(t *testing.T) {
		svc := &fakeSettlements{verify: func(context.Context, uuid.UUID, settlements.VerifyPaymentInput) (*settlements.TransferOutcome, error) {
			return nil, pkgerrors.New(pkgerrors.CodeSignatureMismatch, "signature mismatch").WithDetails(map[string]any{"expected": "secret"})
		}}
		rec := httptest.NewRecorder()
		OnRampVerify(svc, testLogger()).ServeHTTP(rec, newRequest(http.MethodPost, "/api/v1/onramp/verify", body, userID, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.NotContains(t, rec.Body.String(), "expected")
	})
}

func TestSettlementsRetryReportsFailureAsAccepted(t *testing.T) {
	settlementID := uuid.New()
	svc := &fakeSettlements{retry: func(_ context.Context, _ uuid.UUID, id uuid.UUID) (*settlements.TransferOutcome, error) {
		assert.Equal(t, settlementID, id)
		return &settlements.TransferOutcome{Failure: &settlements.FailureView{Code: enums.FailureTimeout, TimedOut: true}}, nil
	}}
	rec := httptest.NewRecorder()
	req := newRequest(http.MethodPost, "/api/v1/settlements/"+settlementID.String()+"/retry", "", uuid.New(), map[string]string{"id": settlementID.String()})
	SettlementsRetry(svc, testLogger()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestSettlementsList(t *testing.T) {
	userID := uuid.New()
	var got settlements.ListInput
	svc := &fakeSettlements{list: func(_ context.Context, _ uuid.UUID, input settlements.ListInput) (*settlements.ListResult, error) {
		got = input
		return &settlements.ListResult{Items: []settlements.Record{}}, nil
	}}
	handler := SettlementsList(svc, testLogger())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newRequest(http.MethodGet, "/api/v1/settlements?status=failed&direction=on_ramp&asset_type=usdc&limit=10", "", userID, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, got.Status)
	assert.Equal(t, enums.SettlementStatusFailed, *got.Status)
	require.NotNil(t, got.Direction)
	assert.Equal(t, enums.DirectionOnRamp, *got.Direction)
	require.NotNil(t, got.Asset)
	assert.Equal(t, enums.AssetUSDC, *got.Asset)
	assert.Equal(t, 10, got.Limit)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, newRequest(http.MethodGet, "/api/v1/settlements?status=unknown", "", userID, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSettlementsGetRejectsInvalidID(t *testing.T) {
	rec := httptest.NewRecorder()
	req := newRequest(http.MethodGet, "/api/v1/settlements/nope", "", uuid.New(), map[string]string{"id": "nope"})
	SettlementsGet(&fakeSettlements{}, testLogger()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSettlementsCancelWithoutBody(t *testing.T) {
	settlementID := uuid.New()
	svc := &fakeSettlements{cancel: func(_ context.Context, _ uuid.UUID, id uuid.UUID, reason string) (*settlements.Record, error) {
		assert.Empty(t, reason)
		return &settlements.Record{ID: id, Status: enums.SettlementStatusCancelled}, nil
	}}
	rec := httptest.NewRecorder()
	req := newRequest(http.MethodPost, "/api/v1/settlements/"+settlementID.String()+"/cancel", "", uuid.New(), map[string]string{"id": settlementID.String()})
	SettlementsCancel(svc, testLogger()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOffRampVerifyDeposit(t *testing.T) {
	settlementID := uuid.New()
	hash := "0x" + "ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12"
	svc := &fakeSettlements{deposit: func(_ context.Context, _ uuid.UUID, id uuid.UUID, txHash string) (*settlements.Record, error) {
		assert.Equal(t, hash, txHash)
		return &settlements.Record{ID: id, Status: enums.SettlementStatusDepositVerified}, nil
	}}
	handler := OffRampVerifyDeposit(svc, testLogger())
	params := map[string]string{"id": settlementID.String()}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newRequest(http.MethodPost, "/", `{"tx_hash":"0x1234"}`, uuid.New(), params))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, newRequest(http.MethodPost, "/", `{"tx_hash":"`+hash+`"}`, uuid.New(), params))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestOffRampCreateWithdrawal(t *testing.T) {
	svc := &fakeSettlements{withdraw: func(_ context.Context, _ uuid.UUID, input settlements.CreateWithdrawalInput) (*settlements.Withdrawal, error) {
		assert.Equal(t, "acct_123", input.BankAccountRef)
		return &settlements.Withdrawal{Deposit: settlements.DepositInstructions{Address: testWallet}}, nil
	}}
	rec := httptest.NewRecorder()
	body := `{"token_amount":"0.5","asset_type":"ETH","wallet_address":"` + testWallet + `","bank_account_ref":" acct_123 "}`
	OffRampCreateWithdrawal(svc, testLogger()).ServeHTTP(rec, newRequest(http.MethodPost, "/", body, uuid.New(), nil))
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestLedgerBalanceDefaultsToNativeAsset(t *testing.T) {
	svc := &fakeSettlements{balance: func(_ context.Context, asset enums.AssetType, address string) (*settlements.BalanceView, error) {
		assert.Equal(t, enums.AssetETH, asset)
		return &settlements.BalanceView{Address: address, AssetType: asset, Balance: decimal.NewFromInt(2)}, nil
	}}
	rec := httptest.NewRecorder()
	req := newRequest(http.MethodGet, "/api/v1/ledger/balances/"+testWallet, "", uuid.New(), map[string]string{"address": testWallet})
	LedgerBalance(svc, testLogger()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}

	rec := httptest.NewRecorder()
	HealthReady(cfg, []ReadinessCheck{{Name: "db", Ping: func(context.Context) error { return nil }}}, nil).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", rec.Header().Get(envHeader))

	rec = httptest.NewRecorder()
	HealthReady(cfg, []ReadinessCheck{
		{Name: "db", Ping: func(context.Context) error { return nil }},
		{Name: "redis", Ping: func(context.Context) error { return errors.New("connection refused") }},
	}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis")
}
