package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON or writeError, so all responses
// share one shape.
//
// ERROR ENVELOPE:
//
//	{"error": "user not found: octocat"}
//	{"error": "invalid sort_by \"x\", expected one of: ...", "allowed": ["public_repos", ...]}
//	{"error": "failed to fetch profile for x from GitHub", "details": "github: profile: status 502: ..."}
//
// error is always present. details carries the underlying cause for 5xx
// responses. allowed lists the accepted values when a parameter was outside
// a fixed set.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/github-explorer/internal/apperror"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Details string   `json:"details,omitempty"`
	Allowed []string `json:"allowed,omitempty"`
}

// writeJSON sends data as JSON with the given status code. Headers must be
// set before WriteHeader; anything set afterwards is silently dropped.
func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log it.
			logger.Error("failed to encode JSON response",
				slog.Int("status", status),
				slog.String("error", err.Error()),
			)
		}
	}
}

// statusFor maps an error kind onto an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict
	default:
		// ErrUpstream and anything unclassified.
		return http.StatusInternalServerError
	}
}

// writeError translates err into the error envelope. fallback is the
// message used for errors that are not an *apperror.AppError; the raw error
// text then goes into details.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error, fallback string) {
	status := statusFor(err)

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		writeJSON(w, logger, status, ErrorResponse{
			Error:   appErr.Message,
			Details: appErr.Details,
			Allowed: appErr.Allowed,
		})
		return
	}

	writeJSON(w, logger, status, ErrorResponse{
		Error:   fallback,
		Details: err.Error(),
	})
}
