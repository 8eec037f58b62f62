package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/ramp-settlement/api/responses"
	"github.com/angelmondragon/ramp-settlement/pkg/config"
	pkgerrors "github.com/angelmondragon/ramp-settlement/pkg/errors"
	"github.com/angelmondragon/ramp-settlement/pkg/logger"
)

const (
	envHeader         = "X-Ramp-Env"
	readinessDeadline = 3 * time.Second
)

// ReadinessCheck pings one dependency the API cannot serve without.
type ReadinessCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady runs every check and answers 503 naming the ones that failed.
func HealthReady(cfg *config.Config, checks []ReadinessCheck, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessDeadline)
		defer cancel()

		failed := map[string]string{}
		for _, check := range checks {
			if check.Ping == nil {
				continue
			}
			if err := check.Ping(ctx); err != nil {
				failed[check.Name] = err.Error()
			}
		}
		if len(failed) > 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").WithDetails(map[string]any{"failed": failed}))
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
