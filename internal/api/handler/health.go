package handler

import (
	"net/http"

	"github.com/dealstream/api/internal/api/response"
	"github.com/dealstream/api/internal/repository/postgres"
)

// HealthCheck reports process liveness.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]any{"status": "ok"})
}

// ReadyCheck reports readiness including database connectivity.
func ReadyCheck(db *postgres.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			response.Error(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		response.OK(w, map[string]any{"status": "ready"})
	}
}
