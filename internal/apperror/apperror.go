// Package apperror defines the application's error taxonomy.
//
// Every failure that should reach an API client as something other than a
// generic 500 is expressed as an *AppError wrapping one of the sentinel kinds
// below. The HTTP layer maps the kind to a status code with errors.Is, so
// services never need to know about HTTP.
package apperror

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	ErrUpstream   = errors.New("upstream failure")
)

type AppError struct {
	Err     error    // kind sentinel
	Message string   // Human-readable error message
	Field   string   // Optional: request field causing the error
	Allowed []string // Optional: accepted values for Field
	Details string   // Optional: underlying cause, safe to show to clients
	cause   error
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// Unwrap exposes both the kind sentinel and the underlying cause, so
// errors.Is(err, ErrUpstream) and errors.As(err, &transportErr) both work.
func (e *AppError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.cause}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// UserNotFound is the NotFound flavour returned whenever a GitHub username is
// absent both locally and remotely.
func UserNotFound(username string) *AppError {
	return NotFound("user", username)
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// InvalidChoice reports a field whose value is outside a fixed allow-list.
// The allow-list is carried along so clients can correct the request.
func InvalidChoice(field, value string, allowed []string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: fmt.Sprintf("invalid %s %q, expected one of: %s", field, value, strings.Join(allowed, ", ")),
		Field:   field,
		Allowed: append([]string(nil), allowed...),
	}
}

// Conflict reports a write that collided with an existing row.
func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s already exists: %s", resource, id),
	}
}

// Upstream wraps a failure of an external dependency (the GitHub API).
// HTTP handlers map this to 500 and expose cause.Error() as details.
func Upstream(message string, cause error) *AppError {
	e := &AppError{
		Err:     ErrUpstream,
		Message: message,
		cause:   cause,
	}
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}
