// Package perr is the error taxonomy shared by every component of parafs:
// the op-management core, the storage engine and the flow engine all
// translate backend-specific errors (pebble.ErrNotFound, bbolt's bucket
// errors, context.DeadlineExceeded) into one of these codes at their
// package boundary, the way the teacher translates pebble.ErrNotFound in
// store.IsNotFound.
package perr

import (
	"errors"
	"fmt"
)

// Code is one of the error classes every component reports through.
type Code int

const (
	_ Code = iota
	InvalidArg
	NotFound
	Exists
	NoMem
	Timeout
	Busy
	Deadlock
	NoLock
	IO
	Range
	Canceled
	Again
	Internal
)

func (c Code) String() string {
	switch c {
	case InvalidArg:
		return "invalid_arg"
	case NotFound:
		return "not_found"
	case Exists:
		return "exists"
	case NoMem:
		return "no_mem"
	case Timeout:
		return "timeout"
	case Busy:
		return "busy"
	case Deadlock:
		return "deadlock"
	case NoLock:
		return "no_lock"
	case IO:
		return "io"
	case Range:
		return "range"
	case Canceled:
		return "canceled"
	case Again:
		return "again"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a coded error carrying the component that raised it and an
// optional wrapped cause.
type Error struct {
	Code      Code
	Component string
	Msg       string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Component, e.Code, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %s", e.Component, e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a coded error with no wrapped cause.
func New(component string, code Code, msg string) *Error {
	return &Error{Code: code, Component: component, Msg: msg}
}

// Wrap builds a coded error around an existing error.
func Wrap(component string, code Code, msg string, cause error) *Error {
	return &Error{Code: code, Component: component, Msg: msg, Cause: cause}
}

// Is reports whether the first *Error found in err's chain carries the
// given Code. A *Error wrapped as the Cause of another *Error is not
// inspected.
func Is(err error, code Code) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}

// CodeOf extracts the Code from err, defaulting to Internal when err is
// not a *Error.
func CodeOf(err error) Code {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	if err == nil {
		return 0
	}
	return Internal
}
