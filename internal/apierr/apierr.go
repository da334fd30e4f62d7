// Package apierr defines the typed error kinds surfaced by the coordinator's
// HTTP handlers, and a single responder that turns them into status codes.
package apierr

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// Kind classifies an error the way the public API reports it.
type Kind int

const (
	Internal Kind = iota
	Unauthorised
	NotFound
	Conflict
	Validation
	Upstream
)

// Error is a Kind tagged with a message and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(k Kind, msg string, cause error) *Error {
	return &Error{Kind: k, Message: msg, Cause: cause}
}

func Unauthorisedf(msg string) error         { return newErr(Unauthorised, msg, nil) }
func NotFoundf(msg string) error             { return newErr(NotFound, msg, nil) }
func Conflictf(msg string) error             { return newErr(Conflict, msg, nil) }
func Validationf(msg string) error           { return newErr(Validation, msg, nil) }
func Upstreamf(msg string, cause error) error {
	return newErr(Upstream, msg, cause)
}
func Internalf(msg string, cause error) error {
	return newErr(Internal, msg, cause)
}

// statusFor maps a Kind to its HTTP status code.
func statusFor(k Kind) int {
	switch k {
	case Unauthorised:
		return http.StatusUnauthorized
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case Validation:
		return http.StatusUnprocessableEntity
	case Upstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errBody struct {
	Error string `json:"error"`
}

// Respond writes err to w as a JSON error body with the matching status
// code. Internal-kind errors (and anything not an *Error) are logged with
// their cause but never leak the cause to the client.
func Respond(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		apiErr = newErr(Internal, "internal error", err)
	}

	status := statusFor(apiErr.Kind)
	if status >= 500 {
		log.ErrorContext(r.Context(), "request failed", "error", apiErr.Error(), "status", status)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errBody{Error: apiErr.Message})
}
