package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/otodealz/otodealz-backend/api/responses"
	"github.com/otodealz/otodealz-backend/pkg/config"
	"github.com/otodealz/otodealz-backend/pkg/logger"
)

const readinessTimeout = 3 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

// ReadyDeps lists the dependencies the readiness probe checks. Nil entries
// are reported as skipped so a worker without BigQuery still reads ready.
type ReadyDeps struct {
	DB       pinger
	Redis    pinger
	Storage  pinger
	BigQuery pinger
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Otodealz-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

func HealthReady(cfg *config.Config, deps ReadyDeps, logg *logger.Logger) http.HandlerFunc {
	checks := []struct {
		name string
		dep  pinger
	}{
		{"db", deps.DB},
		{"redis", deps.Redis},
		{"storage", deps.Storage},
		{"bigquery", deps.BigQuery},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		w.Header().Set("X-Otodealz-Env", cfg.App.Env)

		statuses := make(map[string]string, len(checks))
		healthy := true
		for _, check := range checks {
			if check.dep == nil {
				statuses[check.name] = "skipped"
				continue
			}
			if err := check.dep.Ping(ctx); err != nil {
				statuses[check.name] = "down"
				healthy = false
				if logg != nil {
					logg.Error(ctx, "readiness check failed: "+check.name, err)
				}
				continue
			}
			statuses[check.name] = "ok"
		}

		if !healthy {
			responses.WriteSuccessStatus(w, http.StatusServiceUnavailable, map[string]any{
				"status": "degraded",
				"checks": statuses,
			})
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"status": "ready",
			"checks": statuses,
		})
	}
}
