package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Status  int               `json:"status"`
	Fields  map[string]string `json:"fields,omitempty"`
	Err     error             `json:"-"`
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

// Is reports whether target carries the same code, so clones and wraps of a
// predefined error still match it through errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
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
	ErrNotFound            = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrUnauthorized        = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrValidation          = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal            = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrNotOwner            = New("NOT_OWNER", http.StatusForbidden, "only the owner can perform this action")
	ErrNotParticipant      = New("NOT_PARTICIPANT", http.StatusForbidden, "only session participants can perform this action")
	ErrInvalidTransition   = New("INVALID_TRANSITION", http.StatusConflict, "transition not allowed from current status")
	ErrDuplicateBid        = New("DUPLICATE_BID", http.StatusConflict, "tutor already has an active bid on this request")
	ErrRequestNotOpen      = New("REQUEST_NOT_OPEN", http.StatusConflict, "request is not open for bidding")
	ErrInsufficientFunds   = New("INSUFFICIENT_FUNDS", http.StatusUnprocessableEntity, "insufficient funds")
	ErrInvalidAmount       = New("INVALID_AMOUNT", http.StatusBadRequest, "amount must be greater than zero")
	ErrInvalidScore        = New("INVALID_SCORE", http.StatusBadRequest, "score must be an integer between 1 and 5")
	ErrConcurrencyConflict = New("CONCURRENCY_CONFLICT", http.StatusConflict, "this action is no longer available, please refresh")
	ErrCacheMiss           = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Validation builds a field-level validation error.
func Validation(fields map[string]string) *Error {
	clone := *ErrValidation
	clone.Fields = make(map[string]string, len(fields))
	for k, v := range fields {
		clone.Fields[k] = v
	}
	return &clone
}

// FieldError is shorthand for a single invalid field.
func FieldError(field, reason string) *Error {
	return Validation(map[string]string{field: reason})
}

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

// Internal wraps a storage or infrastructure failure.
func Internal(err error, message string) *Error {
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, message)
}
