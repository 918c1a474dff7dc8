// Package errs defines the error taxonomy of the collaboration core.
//
// Every failure returned by a coordination component wraps exactly one kind
// sentinel, so callers branch with errors.Is:
//
//	if errors.Is(err, errs.ErrConflict) { ... }
//
// ErrFatal marks a broken internal invariant and must never be swallowed.
package errs

import (
	"errors"
	"fmt"
)

// Error kinds
var (
	// ErrNotFound session, lock, document or operation is absent
	ErrNotFound = errors.New("not found")
	// ErrForbidden capability or ownership check failed
	ErrForbidden = errors.New("forbidden")
	// ErrConflict lock incompatible with existing locks, or lock violated
	ErrConflict = errors.New("conflict")
	// ErrInvalid malformed input
	ErrInvalid = errors.New("invalid")
	// ErrInactive session is no longer active
	ErrInactive = errors.New("inactive")
	// ErrFatal internal invariant broken
	ErrFatal = errors.New("fatal")
)

var kinds = []error{ErrNotFound, ErrForbidden, ErrConflict, ErrInvalid, ErrInactive, ErrFatal}

// Error carries the kind, the operation that failed and an optional cause.
type Error struct {
	Kind   error
	Err    error
	Op     string
	Detail string
}

// E builds an *Error of the given kind with a formatted detail message.
func E(kind error, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind around cause.
func Wrap(kind error, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the kind sentinel carried by err, or nil when err is not classified.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// IsFatal reports whether err signals a broken invariant.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}
