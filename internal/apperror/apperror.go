// Package apperror defines the error taxonomy shared by every layer.
//
// Services return *AppError values wrapping one of the sentinels below.
// Only the HTTP layer decides which status code a sentinel maps to:
//
//	ErrValidation   → 400
//	ErrUnauthorized → 401
//	ErrForbidden    → 403
//	ErrNotFound     → 404
//	ErrConflict     → 409
//	ErrRateLimited  → 429
//
// Anything that is not an *AppError is treated as a persistence failure (500).
package apperror

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrRateLimited  = errors.New("rate limited")
)

type AppError struct {
	Err     error  // sentinel
	Message string // human-readable, safe to show to the user
	Field   string // optional: the input field that failed validation

	// RetryAfter is only set for ErrRateLimited.
	RetryAfter time.Duration
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Conflict reports that the caller acted on stale state, e.g. a watchlist
// saved against an out-of-date version.
func Conflict(resource, message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict: %s", resource, message),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized means the caller is not authenticated, or presented the
// wrong credentials.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// RateLimited carries how long the caller must wait before retrying.
// A non-positive duration is rounded up to one second.
func RateLimited(retryAfter time.Duration) *AppError {
	if retryAfter <= 0 {
		retryAfter = time.Second
	}
	return &AppError{
		Err:        ErrRateLimited,
		Message:    fmt.Sprintf("too many attempts, try again in %d seconds", RetryAfterSeconds(retryAfter)),
		RetryAfter: retryAfter,
	}
}

// RetryAfterSeconds rounds d up to whole seconds, the unit used by the
// Retry-After header.
func RetryAfterSeconds(d time.Duration) int {
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return secs
}
