package controllers

import (
	"net/http"

	"github.com/angelmondragon/ramp-settlement/api/responses"
	"github.com/angelmondragon/ramp-settlement/api/validators"
	"github.com/angelmondragon/ramp-settlement/internal/settlements"
	"github.com/angelmondragon/ramp-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/ramp-settlement/pkg/errors"
	"github.com/angelmondragon/ramp-settlement/pkg/logger"
)

type createWithdrawalRequest struct {
	TokenAmount    string         `json:"token_amount" validate:"required,positive_decimal"`
	AssetType      string         `json:"asset_type" validate:"required"`
	WalletAddress  string         `json:"wallet_address" validate:"required,eth_addr"`
	BankAccountRef string         `json:"bank_account_ref" validate:"required,max=128"`
	ClientInfo     map[string]any `json:"client_info,omitempty"`
}

// OffRampCreateWithdrawal opens a withdrawal and returns where to deposit the tokens.
func OffRampCreateWithdrawal(svc settlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "settlement service")
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}

		var payload createWithdrawalRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		asset, err := enums.ParseAssetType(payload.AssetType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported asset"))
			return
		}
		amount, err := validators.ParseDecimal("token_amount", payload.TokenAmount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		withdrawal, err := svc.CreateWithdrawal(r.Context(), userID, settlements.CreateWithdrawalInput{
			TokenAmount:    amount,
			Asset:          asset,
			WalletAddress:  payload.WalletAddress,
			BankAccountRef: validators.SanitizeString(payload.BankAccountRef, 128),
			ClientInfo:     payload.ClientInfo,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, withdrawal)
	}
}

type depositRequest struct {
	TxHash string `json:"tx_hash" validate:"required,len=66,startswith=0x"`
}

// OffRampVerifyDeposit checks the claimed deposit transaction on the ledger.
func OffRampVerifyDeposit(svc settlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "settlement service")
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}
		settlementID, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload depositRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.VerifyDeposit(r.Context(), userID, settlementID, payload.TxHash)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, record)
	}
}

// OffRampConfirmPayout initiates or completes the fiat payout once it is due.
func OffRampConfirmPayout(svc settlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "settlement service")
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}
		settlementID, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.ConfirmPayout(r.Context(), userID, settlementID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, record)
	}
}
