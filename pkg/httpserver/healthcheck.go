package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/saasbilling/pkg/logger"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

// HealthCheckHandler answers liveness when checks is empty and readiness otherwise.
// The body is {"status": "..."} plus the name of the first failing check.
func HealthCheckHandler(log *slog.Logger, checks map[string]Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]string{"status": "alive"}

		if len(checks) > 0 {
			body["status"] = "ready"
			for name, check := range checks {
				if err := check(r.Context()); err != nil {
					log.ErrorContext(r.Context(), "readiness check failed", slog.String("check", name), logger.Error(err))
					status = http.StatusServiceUnavailable
					body = map[string]string{"status": "not_ready", "failed": name}
					break
				}
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
