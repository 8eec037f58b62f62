package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/ramp-settlement/api/responses"
	"github.com/angelmondragon/ramp-settlement/api/validators"
	"github.com/angelmondragon/ramp-settlement/internal/quote"
	"github.com/angelmondragon/ramp-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/ramp-settlement/pkg/errors"
	"github.com/angelmondragon/ramp-settlement/pkg/logger"
)

type quoter interface {
	OnRamp(asset enums.AssetType, fiat decimal.Decimal) (quote.OnRampQuote, error)
	OffRamp(asset enums.AssetType, token decimal.Decimal) (quote.OffRampQuote, error)
	Rates() quote.RateTable
}

// Rates returns the configured rate table, limits and fee policy.
func Rates(calc quoter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if calc == nil {
			unavailable(w, r, logg, "quote calculator")
			return
		}
		responses.WriteSuccess(w, calc.Rates())
	}
}

type quoteRequest struct {
	Direction string `json:"direction" validate:"required,oneof=on_ramp off_ramp"`
	AssetType string `json:"asset_type" validate:"required"`
	Amount    string `json:"amount" validate:"required,positive_decimal"`
}

// Quote prices an on-ramp purchase (amount in fiat) or off-ramp sale (amount in tokens).
func Quote(calc quoter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if calc == nil {
			unavailable(w, r, logg, "quote calculator")
			return
		}

		var payload quoteRequest
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

		if enums.SettlementDirection(payload.Direction) == enums.DirectionOffRamp {
			q, err := calc.OffRamp(asset, amount)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, q)
			return
		}

		q, err := calc.OnRamp(asset, amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, q)
	}
}
