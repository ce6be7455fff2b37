// Package apierr defines the typed error kinds shared by every operation the
// harness exposes, so callers at the Tool-Call Endpoint and the Scheduler can
// switch on a stable Kind/Code rather than matching error strings.
package apierr

import (
	"errors"
	"fmt"
)

// Kind is the closed set of error categories an operation can fail with.
type Kind string

const (
	NotFound           Kind = "not_found"
	Conflict           Kind = "conflict"
	PreconditionFailed Kind = "precondition_failed"
	InvalidArgument    Kind = "invalid_argument"
	Timeout            Kind = "timeout"
	IOFailure          Kind = "io_failure"
	ChildFailure       Kind = "child_failure"
	OrphanDetected     Kind = "orphan_detected"
)

// Error is the typed error returned at every harness operation boundary.
// Code is a short, stable machine-readable tag (e.g. "rejected_slot_full")
// narrower than Kind; Message is human-readable.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Kind, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so callers can
// do errors.Is(err, apierr.New(apierr.NotFound, "", "")) style checks, or
// more commonly switch on apierr.KindOf(err).
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// New builds an *Error with no wrapped cause.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap builds an *Error that wraps an underlying cause.
func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error, and
// reports ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// CodeOf extracts the machine-readable Code from err if it is (or wraps) an
// *Error.
func CodeOf(err error) (string, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

func NotFoundf(code, format string, args ...any) *Error {
	return New(NotFound, code, fmt.Sprintf(format, args...))
}

func Conflictf(code, format string, args ...any) *Error {
	return New(Conflict, code, fmt.Sprintf(format, args...))
}

func PreconditionFailedf(code, format string, args ...any) *Error {
	return New(PreconditionFailed, code, fmt.Sprintf(format, args...))
}

func InvalidArgumentf(code, format string, args ...any) *Error {
	return New(InvalidArgument, code, fmt.Sprintf(format, args...))
}
