package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/ramp-settlement/api/responses"
	"github.com/angelmondragon/ramp-settlement/internal/settlements"
	"github.com/angelmondragon/ramp-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/ramp-settlement/pkg/errors"
	"github.com/angelmondragon/ramp-settlement/pkg/logger"
)

// LedgerTransaction looks up a transaction by hash on the ledger network.
func LedgerTransaction(svc settlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "settlement service")
			return
		}
		if _, ok := requireUser(w, r, logg); !ok {
			return
		}

		info, err := svc.TxInfo(r.Context(), chi.URLParam(r, "hash"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, info)
	}
}

// LedgerBalance reads a wallet balance. The asset defaults to the native coin.
func LedgerBalance(svc settlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "settlement service")
			return
		}
		if _, ok := requireUser(w, r, logg); !ok {
			return
		}

		asset := enums.AssetETH
		if raw := strings.TrimSpace(r.URL.Query().Get("asset_type")); raw != "" {
			parsed, err := enums.ParseAssetType(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported asset"))
				return
			}
			asset = parsed
		}

		balance, err := svc.Balance(r.Context(), asset, chi.URLParam(r, "address"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balance)
	}
}
