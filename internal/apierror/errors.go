package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of domain failure reported to tool callers.
type Code string

// Error codes. The set is closed: every failure surfaced to a caller carries
// exactly one of these.
const (
	CodeValidation     Code = "VALIDATION_ERROR"
	CodeReauthRequired Code = "REAUTH_REQUIRED"
	CodeRateLimited    Code = "RATE_LIMITED"
	CodeForbidden      Code = "FORBIDDEN"
	CodeNotFound       Code = "NOT_FOUND"
	CodeConflict       Code = "CONFLICT"
	CodeUpstream       Code = "UPSTREAM_ERROR"
)

// Error is a classified failure with an HTTP-like status and free-form context.
type Error struct {
	Code    Code
	Status  int
	Message string
	Context map[string]any

	// Err is the underlying cause, if any. It is not part of the reported error.
	Err error
}

// New creates an Error without an underlying cause.
func New(code Code, status int, message string) *Error {
	return &Error{
		Code:    code,
		Status:  status,
		Message: message,
		Context: map[string]any{},
	}
}

// Wrap creates an Error that keeps err as its cause.
func Wrap(code Code, status int, err error, message string) *Error {
	e := New(code, status, message)
	e.Err = err
	return e
}

// Upstream wraps an infrastructure failure (storage, transport) as UPSTREAM_ERROR.
func Upstream(status int, err error, message string) *Error {
	return Wrap(CodeUpstream, status, err, message)
}

// ReauthRequired returns the terminal error raised when no usable credential exists.
func ReauthRequired(message string) *Error {
	return New(CodeReauthRequired, http.StatusUnauthorized, message)
}

// WithContext sets a context value and returns the error for chaining.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = map[string]any{}
	}
	e.Context[key] = value
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%d): %s: %v", e.Code, e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the code of a classified error, or CodeUpstream for anything
// that was never classified.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeUpstream
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	e, ok := As(err)
	return ok && e.Code == code
}

// From converts any error into an *Error, classifying unknown errors as
// UPSTREAM_ERROR with status 500.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		return e
	}
	return Upstream(http.StatusInternalServerError, err, err.Error())
}
