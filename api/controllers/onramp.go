package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/ramp-settlement/api/responses"
	"github.com/angelmondragon/ramp-settlement/api/validators"
	"github.com/angelmondragon/ramp-settlement/internal/settlements"
	"github.com/angelmondragon/ramp-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/ramp-settlement/pkg/errors"
	"github.com/angelmondragon/ramp-settlement/pkg/logger"
)

type createOnRampRequest struct {
	FiatAmount    string         `json:"fiat_amount" validate:"required,positive_decimal"`
	AssetType     string         `json:"asset_type" validate:"required"`
	WalletAddress string         `json:"wallet_address" validate:"required,eth_addr"`
	ClientInfo    map[string]any `json:"client_info,omitempty"`
}

// OnRampCreateOrder prices the purchase, opens a gateway order and returns the checkout parameters.
func OnRampCreateOrder(svc settlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "settlement service")
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}

		var payload createOnRampRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		asset, err := enums.ParseAssetType(payload.AssetType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported asset"))
			return
		}
		fiat, err := validators.ParseDecimal("fiat_amount", payload.FiatAmount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.CreateOnRampOrder(r.Context(), userID, settlements.CreateOnRampInput{
			FiatAmount:    fiat,
			Asset:         asset,
			WalletAddress: payload.WalletAddress,
			ClientInfo:    payload.ClientInfo,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

type verifyPaymentRequest struct {
	OrderID   string `json:"order_id" validate:"required,max=128"`
	PaymentID string `json:"payment_id" validate:"required,max=128"`
	Signature string `json:"signature" validate:"required,max=256"`
}

// OnRampVerify checks the gateway proof and runs the token transfer. A
// verified payment whose transfer fails answers 202 with the failure attached.
func OnRampVerify(svc settlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "settlement service")
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}

		var payload verifyPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		outcome, err := svc.VerifyPayment(r.Context(), userID, settlements.VerifyPaymentInput{
			OrderReference: payload.OrderID,
			PaymentID:      payload.PaymentID,
			Signature:      payload.Signature,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeOutcome(w, r, logg, outcome)
	}
}

func writeOutcome(w http.ResponseWriter, r *http.Request, logg *logger.Logger, outcome *settlements.TransferOutcome) {
	if outcome.Failure != nil {
		if logg != nil {
			logg.Warn(logg.WithFields(r.Context(), map[string]any{
				"settlement_id": outcome.Settlement.ID.String(),
				"failure_code":  outcome.Failure.Code,
				"retryable":     outcome.Failure.Retryable,
			}), "settlement.transfer_pending")
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, outcome)
		return
	}
	responses.WriteSuccess(w, outcome)
}

type estimateRequest struct {
	Amount        string `json:"amount" validate:"required,positive_decimal"`
	AssetType     string `json:"asset_type" validate:"required"`
	WalletAddress string `json:"wallet_address,omitempty" validate:"omitempty,eth_addr"`
}

// OnRampEstimate returns the network cost of delivering the amount.
func OnRampEstimate(svc settlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "settlement service")
			return
		}
		if _, ok := requireUser(w, r, logg); !ok {
			return
		}

		var payload estimateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		asset, err := enums.ParseAssetType(payload.AssetType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported asset"))
			return
		}
		amount, err := validators.ParseDecimal("amount", payload.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		estimate, err := svc.EstimateCost(r.Context(), settlements.EstimateInput{
			Amount:        amount,
			Asset:         asset,
			WalletAddress: payload.WalletAddress,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, estimate)
	}
}

// OnRampOrderStatus reports the gateway's view of an order alongside the record.
func OnRampOrderStatus(svc settlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "settlement service")
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}

		reference := strings.TrimSpace(chi.URLParam(r, "reference"))
		if reference == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order reference is required"))
			return
		}

		status, err := svc.GatewayOrderStatus(r.Context(), userID, reference)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}
