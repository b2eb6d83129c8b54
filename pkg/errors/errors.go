package errors

import (
	"errors"
	"fmt"
)

// Error represents a typed domain error carried back to the peer as an error envelope.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
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
func New(code string, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Error codes double as envelope result codes.
const (
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeInactiveAccount    = "ACCOUNT_INACTIVE"
	CodeNotFound           = "NOT_FOUND"
	CodeForbidden          = "FORBIDDEN"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeConflict           = "CONFLICT"
	CodeAlreadyProcessed   = "ALREADY_PROCESSED"
	CodeValidation         = "VALIDATION_ERROR"
	CodeDecode             = "DECODE_ERROR"
	CodeUnsupported        = "UNSUPPORTED_OPERATION"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternal           = "INTERNAL_ERROR"
)

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New(CodeInvalidCredentials, "invalid username or password")
	ErrInactiveAccount    = New(CodeInactiveAccount, "account is inactive")
	ErrNotFound           = New(CodeNotFound, "resource not found")
	ErrForbidden          = New(CodeForbidden, "forbidden")
	ErrUnauthorized       = New(CodeUnauthorized, "authentication required")
	ErrConflict           = New(CodeConflict, "conflict")
	ErrAlreadyProcessed   = New(CodeAlreadyProcessed, "change request already processed")
	ErrValidation         = New(CodeValidation, "validation failed")
	ErrDecode             = New(CodeDecode, "malformed payload")
	ErrUnsupported        = New(CodeUnsupported, "operation not supported")
	ErrRateLimited        = New(CodeRateLimited, "too many requests")
	ErrInternal           = New(CodeInternal, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", "cache miss")
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
	return Wrap(err, ErrInternal.Code, ErrInternal.Message)
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

// HasCode reports whether err normalises to an *Error with the given code.
func HasCode(err error, code string) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}
