package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/ramp-settlement/api/responses"
	"github.com/angelmondragon/ramp-settlement/api/validators"
	"github.com/angelmondragon/ramp-settlement/internal/settlements"
	"github.com/angelmondragon/ramp-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/ramp-settlement/pkg/errors"
	"github.com/angelmondragon/ramp-settlement/pkg/logger"
	"github.com/angelmondragon/ramp-settlement/pkg/pagination"
)

// SettlementsList pages the caller's records, newest first.
// Optional filters: status, direction, asset_type.
func SettlementsList(svc settlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "settlement service")
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := listInputFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.Limit = limit

		result, err := svc.List(r.Context(), userID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func listInputFromQuery(r *http.Request) (settlements.ListInput, error) {
	query := r.URL.Query()
	input := settlements.ListInput{Cursor: strings.TrimSpace(query.Get("cursor"))}

	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status, err := enums.ParseSettlementStatus(raw)
		if err != nil {
			return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		input.Status = &status
	}
	if raw := strings.TrimSpace(query.Get("direction")); raw != "" {
		direction, err := enums.ParseSettlementDirection(raw)
		if err != nil {
			return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid direction filter")
		}
		input.Direction = &direction
	}
	if raw := strings.TrimSpace(query.Get("asset_type")); raw != "" {
		asset, err := enums.ParseAssetType(raw)
		if err != nil {
			return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid asset filter")
		}
		input.Asset = &asset
	}
	return input, nil
}

// SettlementsStats aggregates the caller's records by direction, status and asset.
func SettlementsStats(svc settlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "settlement service")
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}

		rows, err := svc.Stats(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

func SettlementsGet(svc settlements.Service, logg *logger.Logger) http.HandlerFunc {
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

		record, err := svc.Get(r.Context(), userID, settlementID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, record)
	}
}

// SettlementsHistory lists the recorded state transitions of one record.
func SettlementsHistory(svc settlements.Service, logg *logger.Logger) http.HandlerFunc {
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

		entries, err := svc.History(r.Context(), userID, settlementID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, entries)
	}
}

// SettlementsRetry re-runs a failed on-ramp transfer.
func SettlementsRetry(svc settlements.Service, logg *logger.Logger) http.HandlerFunc {
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

		outcome, err := svc.Retry(r.Context(), userID, settlementID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeOutcome(w, r, logg, outcome)
	}
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=256"`
}

func SettlementsCancel(svc settlements.Service, logg *logger.Logger) http.HandlerFunc {
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

		var payload cancelRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		record, err := svc.Cancel(r.Context(), userID, settlementID, validators.SanitizeString(payload.Reason, 256))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, record)
	}
}
