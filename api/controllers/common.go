package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/ramp-settlement/api/middleware"
	"github.com/angelmondragon/ramp-settlement/api/responses"
	pkgerrors "github.com/angelmondragon/ramp-settlement/pkg/errors"
	"github.com/angelmondragon/ramp-settlement/pkg/logger"
)

// requireUser writes a 401 and reports false when the request carries no identity.
func requireUser(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (uuid.UUID, bool) {
	userID, ok := middleware.UserUUIDFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
		return uuid.Nil, false
	}
	return userID, true
}

func unavailable(w http.ResponseWriter, r *http.Request, logg *logger.Logger, what string) {
	responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, what+" unavailable"))
}
