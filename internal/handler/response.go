package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON and writeError, so the frontend
// always sees the same shapes:
//
//	success: whatever the endpoint documents
//	failure: {"error": "not_found", "message": "user not found: bob"}
//
// HEADER ORDER MATTERS:
// Headers and the status code must be set before the body. Once Encode
// writes the first byte, later header changes are silently ignored.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/mikahagenbeek692/MovieManager/internal/apperror"
	"github.com/mikahagenbeek692/MovieManager/internal/auth"
)

// maxBodyBytes caps request bodies. The largest legitimate body is a whole
// watchlist, which stays far below this.
const maxBodyBytes = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error      string `json:"error"`                // machine-readable type, e.g. "not_found"
	Message    string `json:"message"`              // human-readable, shown to the user verbatim
	Field      string `json:"field,omitempty"`      // input that failed validation
	RetryAfter int    `json:"retryAfter,omitempty"` // seconds, only on 429
}

// MessageResponse is the body of endpoints that only confirm an action.
type MessageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; logging is all that is left.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to its HTTP status.
//
// ERROR MAPPING:
//
//	ErrValidation   → 400 validation_error
//	ErrUnauthorized → 401 unauthorized
//	ErrForbidden    → 403 forbidden
//	ErrNotFound     → 404 not_found
//	ErrConflict     → 409 conflict
//	ErrRateLimited  → 429 rate_limited (+ Retry-After)
//	anything else   → 500 internal_error
//
// WHY HERE AND NOT IN THE SERVICE?
// The service layer should not know about HTTP. The CLI client maps the same
// sentinels to its own messages.
//
// A 500 never carries the underlying error text: it may contain SQL or file
// paths. The caller logs it instead.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	status := http.StatusInternalServerError
	resp := ErrorResponse{Error: "internal_error", Message: appErr.Message, Field: appErr.Field}

	switch {
	case errors.Is(err, apperror.ErrValidation):
		status, resp.Error = http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrUnauthorized):
		status, resp.Error = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		status, resp.Error = http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		status, resp.Error = http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		status, resp.Error = http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrRateLimited):
		status, resp.Error = http.StatusTooManyRequests, "rate_limited"
		resp.RetryAfter = apperror.RetryAfterSeconds(appErr.RetryAfter)
		w.Header().Set("Retry-After", strconv.Itoa(resp.RetryAfter))
	}

	writeJSON(w, status, resp)
}

// failed logs err when it is not a domain error (those are the caller's
// fault and already explained in the response) and writes the response.
func failed(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		logger.Error(op+" failed", slog.String("error", err.Error()))
	}
	writeError(w, err)
}

// decodeJSON reads a JSON body into dst. Malformed bodies are validation
// errors so the caller can hand them straight to writeError.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperror.ValidationFailed("body", "Request body is required")
		}
		return apperror.ValidationFailed("body", "Invalid JSON body")
	}
	return nil
}

// requiredQuery returns a trimmed query parameter or a validation error.
func requiredQuery(r *http.Request, name string) (string, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return "", apperror.ValidationFailed(name, fmt.Sprintf("%s parameter is required", name))
	}
	return v, nil
}

// sessionUsername returns the logged-in caller's username. Routes that call
// it sit behind auth.RequireAuth, so the second branch only protects against
// a routing mistake.
func sessionUsername(r *http.Request) (string, error) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return "", apperror.Unauthorized("Not logged in")
	}
	return id.Username, nil
}
