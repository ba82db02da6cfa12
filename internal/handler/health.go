package handler

import (
	"log/slog"
	"net/http"
)

// HandleHealth returns the liveness check. It does not touch the database or
// GitHub: a slow upstream must not get the process restarted.
//
// HTTP: GET /health
func HandleHealth(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, http.StatusOK, map[string]string{"status": "OK"})
	}
}
