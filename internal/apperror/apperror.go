// Package apperror defines the error taxonomy shared by every layer.
//
// Services return these errors; only the HTTP layer knows how they map to
// status codes (see handler/response.go). Callers test for a kind with
// errors.Is against the sentinel values below.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation error")
	ErrConflict        = errors.New("conflict")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrTransport       = errors.New("transport error")
)

type AppError struct {
	Err     error  // sentinel kind
	Message string // Human-readable error message, safe to show to clients
	Field   string // Optional: input field causing the error
	Cause   error  // Optional: underlying failure, logged but never shown
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel kind and the underlying cause to errors.Is.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, key string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s already exists: %s", resource, key),
	}
}

// Unauthenticated returns an AppError for missing or bad credentials.
// HTTP handlers map this to 401 Unauthorized. The message must never reveal
// whether the account exists.
func Unauthenticated(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: message,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Transport returns an AppError for a failed hand-off to an external
// delivery endpoint. HTTP handlers map this to 502 Bad Gateway.
func Transport(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrTransport,
		Message: message,
		Cause:   cause,
	}
}
