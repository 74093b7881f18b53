package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks missing or malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a referenced entity that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a duplicate create or a repeated one-time claim.
	ErrConflict = errors.New("conflict")
	// ErrUnauthorized marks a missing or undecodable bearer token or a role outside the allowed set.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden marks a caller who is known but not yet entitled to the resource.
	ErrForbidden = errors.New("forbidden")
	// ErrUpstream marks a failure of the store, object storage, payment, mail or text-generation service.
	ErrUpstream = errors.New("upstream failure")

	// ErrConditionFailed is returned by repositories when a conditional write was rejected.
	ErrConditionFailed = errors.New("conditional check failed")
)

// Error carries a caller-facing message, an optional response payload and the kind
// used to pick a status code.
type Error struct {
	Kind    error
	Message string
	Data    any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the error kind so callers can write errors.Is(err, domain.ErrNotFound).
func (e *Error) Is(target error) bool { return target == e.Kind }

func newError(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error { return newError(ErrValidation, format, args...) }

func NotFound(format string, args ...any) *Error { return newError(ErrNotFound, format, args...) }

func Conflict(format string, args ...any) *Error { return newError(ErrConflict, format, args...) }

func Unauthorized(format string, args ...any) *Error {
	return newError(ErrUnauthorized, format, args...)
}

func Forbidden(format string, args ...any) *Error { return newError(ErrForbidden, format, args...) }

// Upstream wraps a collaborator failure, keeping its message visible to the caller.
func Upstream(err error, format string, args ...any) *Error {
	e := newError(ErrUpstream, format, args...)
	e.Err = err
	if e.Message == "" {
		e.Message = err.Error()
	}
	return e
}

// WithData attaches a response payload to the error.
func (e *Error) WithData(data any) *Error {
	e.Data = data
	return e
}
