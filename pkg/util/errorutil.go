package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

// NewValidationError marks a payload as unrecognized or malformed. Validation
// errors are client-facing 400s and are never retried by the tracker.
func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

// NewTransientIOError wraps a retryable tracker failure (5xx, 429, network).
// Status is the last HTTP status observed; body is truncated by the caller.
func NewTransientIOError(status int, body string, err error) error {
	return &DomainError{
		Code:       "TRANSIENT_IO",
		Message:    fmt.Sprintf("tracker call failed with status %d", status),
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]any{"tracker_status": status, "tracker_body": body},
		Err:        err,
	}
}

// NewNonRetryableIOError wraps a tracker 4xx other than 429. The call is
// surfaced immediately with zero retries.
func NewNonRetryableIOError(status int, body string) error {
	return &DomainError{
		Code:       "NON_RETRYABLE_IO",
		Message:    fmt.Sprintf("tracker rejected request with status %d", status),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"tracker_status": status, "tracker_body": body},
	}
}

// NewPersistenceError wraps a datastore write failure. Persistence errors are
// surfaced as 5xx so the tracker's webhook delivery retries.
func NewPersistenceError(err error) error {
	return &DomainError{
		Code:       "PERSISTENCE",
		Message:    "datastore write failed",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsTransient reports whether err is a retryable tracker failure.
func IsTransient(err error) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == "TRANSIENT_IO"
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
