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
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Authentication failure kinds. They stay distinct internally for logging and audit,
// but the HTTP boundary collapses all of them into ErrUnauthorized.
var (
	ErrMissingCredentials = New("MISSING_CREDENTIALS", http.StatusUnauthorized, "no credentials presented")
	ErrTokenInvalid       = New("TOKEN_INVALID", http.StatusUnauthorized, "token malformed or expired")
	ErrSessionNotFound    = New("SESSION_NOT_FOUND", http.StatusUnauthorized, "session not found")
	ErrDeviceMismatch     = New("DEVICE_MISMATCH", http.StatusUnauthorized, "device does not match session")
	ErrRefreshReplayed    = New("REFRESH_REPLAYED", http.StatusUnauthorized, "refresh token already rotated")
	ErrStorageFailure     = New("STORAGE_FAILURE", http.StatusInternalServerError, "storage unavailable")
)

var authFailureCodes = map[string]struct{}{
	ErrUnauthorized.Code:       {},
	ErrInvalidCredentials.Code: {},
	ErrInactiveAccount.Code:    {},
	ErrMissingCredentials.Code: {},
	ErrTokenInvalid.Code:       {},
	ErrSessionNotFound.Code:    {},
	ErrDeviceMismatch.Code:     {},
	ErrRefreshReplayed.Code:    {},
}

// IsAuthFailure reports whether err is one of the authentication rejection kinds.
func IsAuthFailure(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	_, ok := authFailureCodes[e.Code]
	return ok
}

// Is reports whether err carries the same code as target.
func Is(err error, target *Error) bool {
	var e *Error
	if target == nil || !errors.As(err, &e) {
		return false
	}
	return e.Code == target.Code
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

// Public returns the error as clients may see it. Every authentication kind collapses to
// ErrUnauthorized so callers cannot tell an expired token from a device mismatch.
func Public(err error) *Error {
	if err == nil {
		return nil
	}
	if IsAuthFailure(err) {
		return ErrUnauthorized
	}
	return FromError(err)
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
