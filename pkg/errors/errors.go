package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
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
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")

	// Not-found variants surfaced by the manual dispatch path.
	ErrSubjectNotFound = New("SUBJECT_NOT_FOUND", http.StatusNotFound, "subject not found")
	ErrFormNotFound    = New("FORM_NOT_FOUND", http.StatusNotFound, "review form not found")

	// Submission validation failures. Each carries the offending field
	// in the message; none are retried.
	ErrFormInactive         = New("FORM_INACTIVE", http.StatusUnprocessableEntity, "form no longer accepts submissions")
	ErrMissingRequiredField = New("MISSING_REQUIRED_FIELD", http.StatusUnprocessableEntity, "required field missing")
	ErrUnknownField         = New("UNKNOWN_FIELD", http.StatusUnprocessableEntity, "field does not exist on form")
	ErrInvalidRating        = New("INVALID_RATING", http.StatusUnprocessableEntity, "rating must be an integer between 1 and 5")
	ErrInvalidOption        = New("INVALID_OPTION", http.StatusUnprocessableEntity, "value is not an allowed option")
	ErrInvalidFreeText      = New("INVALID_FREE_TEXT", http.StatusUnprocessableEntity, "text answer is invalid")

	// Dispatch coordination.
	ErrSweepInProgress = New("SWEEP_IN_PROGRESS", http.StatusConflict, "a dispatch sweep is already running")
	ErrNoRecipients    = New("NO_RECIPIENTS", http.StatusPreconditionFailed, "subject has no enrolled recipients")

	ErrCacheMiss = New("CACHE_MISS", http.StatusNotFound, "cache miss")
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
