package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Status  int                    `json:"status"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors by code so predefined errors compare equal to their
// Clone/WithDetails derivatives under errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e != nil && t != nil && e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound     = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden    = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrValidation   = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal     = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
)

// Lesson lifecycle and wallet ledger errors.
var (
	ErrInvalidState       = New("INVALID_STATE", http.StatusConflict, "operation not valid from current lesson status")
	ErrNotAuthorized      = New("NOT_AUTHORIZED", http.StatusForbidden, "actor is not the required party for this lesson")
	ErrInvalidSchedule    = New("INVALID_SCHEDULE", http.StatusUnprocessableEntity, "scheduled time violates the minimum lead time")
	ErrDeadlineExceeded   = New("DEADLINE_EXCEEDED", http.StatusConflict, "response window has already closed")
	ErrConflictingRequest = New("CONFLICTING_REQUEST", http.StatusConflict, "student already has an open lesson with this instructor")
	ErrAccountNotFound    = New("ACCOUNT_NOT_FOUND", http.StatusNotFound, "wallet account not found")
	ErrSettlementFailure  = New("SETTLEMENT_FAILURE", http.StatusBadGateway, "settlement was rolled back; lesson state unchanged, safe to retry")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// WithDetails copies the error and attaches structured context for the
// calling layer (expected vs actual status, deadline, required lead time).
func WithDetails(err *Error, details map[string]interface{}) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if len(details) > 0 {
		merged := make(map[string]interface{}, len(clone.Details)+len(details))
		for k, v := range clone.Details {
			merged[k] = v
		}
		for k, v := range details {
			merged[k] = v
		}
		clone.Details = merged
	}
	return &clone
}
