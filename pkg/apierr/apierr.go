// Package apierr defines the error taxonomy shared by the Public API and the
// Registry Authentication Service: Unauthorized, NotFound, Validation, and
// Internal. Handlers translate these into HTTP status codes without leaking
// underlying database or signing detail to clients.
package apierr

import (
	"errors"
	"fmt"
)

// Kind identifies the category of an API-facing error.
type Kind int

const (
	Internal Kind = iota
	Unauthorized
	NotFound
	Validation
)

// Error wraps an underlying cause with a Kind and a client-safe message.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error of the given kind with a client-safe message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind, preserving cause for logging while
// Message stays safe to return to callers.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// NotFoundf builds a NotFound error.
func NotFoundf(format string, args ...any) *Error {
	return New(NotFound, fmt.Sprintf(format, args...))
}

// Validationf builds a Validation error.
func Validationf(format string, args ...any) *Error {
	return New(Validation, fmt.Sprintf(format, args...))
}

// Unauthorizedf builds an Unauthorized error.
func Unauthorizedf(format string, args ...any) *Error {
	return New(Unauthorized, fmt.Sprintf(format, args...))
}

// KindOf extracts the Kind from err, defaulting to Internal when err is not
// (or does not wrap) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// TokenNotFound is returned by token revoke when no matching active row exists.
var TokenNotFound = New(NotFound, "token not found")
