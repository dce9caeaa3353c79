// Package apperror is the single error type the core uses to carry an HTTP
// status code and a user-facing reason alongside the original cause.
//
// It mirrors the original backend's SimplyError: one struct, not an exception
// hierarchy. Handlers translate any error into a response by type-asserting
// for *Error and falling back to Internal for anything else.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind enumerates the error taxonomy of the request boundary.
type Kind int

const (
	Internal Kind = iota
	NotFound
	Unauthorized
	InvalidArgument
	InsufficientStorageKind
	Conflict
	StorageIO
	IndexIO
	ProtocolError
	ClientDisconnected
)

// Error is the error type surfaced across every package boundary in filedrop.
type Error struct {
	Kind   Kind
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Cause)
	}
	return e.Reason
}

func (e *Error) Unwrap() error { return e.Cause }

// Status maps a Kind to the HTTP status code surfaced at the request boundary.
func (e *Error) Status() int {
	switch e.Kind {
	case NotFound:
		return http.StatusNotFound
	case Unauthorized:
		return http.StatusUnauthorized
	case InvalidArgument:
		return http.StatusBadRequest
	case InsufficientStorageKind:
		return http.StatusInsufficientStorage
	case Conflict:
		return http.StatusConflict
	case ProtocolError:
		return http.StatusBadRequest
	case ClientDisconnected:
		return 0 // no response is ever written for this kind
	case StorageIO, IndexIO, Internal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

func Wrap(kind Kind, reason string, cause error) *Error {
	return &Error{Kind: kind, Reason: reason, Cause: cause}
}

func Wrapf(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...), Cause: cause}
}

// As reports whether err (or something it wraps) is an *Error, returning it.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func NotFoundf(format string, args ...any) *Error {
	return New(NotFound, fmt.Sprintf(format, args...))
}

func Unauthorizedf(format string, args ...any) *Error {
	return New(Unauthorized, fmt.Sprintf(format, args...))
}

func InvalidArgumentf(format string, args ...any) *Error {
	return New(InvalidArgument, fmt.Sprintf(format, args...))
}

func InsufficientStorage(reason string) *Error {
	return New(InsufficientStorageKind, reason)
}

func Conflictf(format string, args ...any) *Error {
	return New(Conflict, fmt.Sprintf(format, args...))
}
