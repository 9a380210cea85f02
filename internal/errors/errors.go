package errors

import (
	"errors"
	"fmt"
)

// Error is the structured error type for Strand.
// It provides a stable code for API mapping, a human-readable message, and
// the underlying cause for error-chain support.
type Error struct {
	// Code is the unique error code (e.g., "ERR_401_INVALID_QUERY").
	Code string

	// Message is the human-readable error message. It must name the
	// offending field or term and must not leak internal identifiers.
	Message string

	// Category is the error category (Config, Store, Validation, Internal).
	Category Category

	// Cause is the underlying error that caused this error.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a new Error with the given code and message.
// The category is derived from the code.
func New(code string, message string, cause error) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Category: categoryFromCode(code),
		Cause:    cause,
	}
}

// Newf creates a new Error with a formatted message.
func Newf(code string, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Wrap creates an Error from an existing error.
// Returns nil if err is nil.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// InvalidQuery creates a query validation error.
func InvalidQuery(format string, args ...any) *Error {
	return Newf(ErrCodeInvalidQuery, format, args...)
}

// StoreIo wraps a store I/O failure.
func StoreIo(err error) *Error {
	return Wrap(ErrCodeStoreIo, err)
}

// StoreCorruption wraps a store corruption failure.
func StoreCorruption(err error) *Error {
	return Wrap(ErrCodeStoreCorruption, err)
}

// Interrupted reports a cancelled or timed-out query.
func Interrupted(cause error) *Error {
	return New(ErrCodeInterrupted, "the query was interrupted before completion", cause)
}

// Internal reports an invariant violation. These are programming errors.
func Internal(format string, args ...any) *Error {
	return Newf(ErrCodeInternal, format, args...)
}

// IndexNotFound reports an unknown index uid.
func IndexNotFound(uid string) *Error {
	return Newf(ErrCodeIndexNotFound, "index %q not found", uid)
}

// CodeOf returns the code of err if it is (or wraps) an *Error, else
// ErrCodeInternal.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// StatusOf returns the HTTP status for err per HTTPStatus(CodeOf(err)).
func StatusOf(err error) int {
	return HTTPStatus(CodeOf(err))
}
