package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/desertthunder/taskmirror/internal/shared"
)

// Error codes used in [ErrorResponse.Error]
const (
	ErrNotFound         = "not_found"
	ErrBadRequest       = "bad_request"
	ErrConflict         = "conflict"
	ErrInternalError    = "internal_error"
	ErrValidation       = "validation_error"
	ErrUnauthorized     = "unauthorized"
	ErrUnavailable      = "service_unavailable"
	ErrNotConfigured    = "not_configured"
	ErrMethodNotAllowed = "method_not_allowed"
)

// ErrorResponse represents a standardized API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// WriteError writes a JSON error response with the given status code.
func WriteError(w http.ResponseWriter, status int, errCode, message string) {
	writeJSON(w, status, ErrorResponse{Error: errCode, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps an operation error to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, shared.ErrAccountNotFound), errors.Is(err, shared.ErrRecordNotFound):
		return http.StatusNotFound, ErrNotFound
	case errors.Is(err, shared.ErrAlreadyRunning):
		return http.StatusConflict, ErrConflict
	case errors.Is(err, shared.ErrQueueFull), errors.Is(err, shared.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, ErrUnavailable
	case errors.Is(err, shared.ErrInvalidInput), errors.Is(err, shared.ErrInvalidArgument), errors.Is(err, shared.ErrMissingArgument):
		return http.StatusBadRequest, ErrValidation
	case errors.Is(err, shared.ErrNotConfigured):
		return http.StatusPreconditionFailed, ErrNotConfigured
	default:
		return http.StatusInternalServerError, ErrInternalError
	}
}

// writeOperationError writes err using [statusFor]. Internal errors hide their message.
func writeOperationError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "An unexpected error occurred"
	}
	WriteError(w, status, code, message)
}
