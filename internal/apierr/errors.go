// Package apierr defines the structured error kinds propagated from
// handlers up through the dispatcher to an HTTP status, per spec.md §7.
package apierr

import (
	"errors"
	"fmt"
)

// Kind is one of the error kinds named in the spec's error handling
// design.
type Kind string

const (
	BadInput     Kind = "bad_input"
	AuthRequired Kind = "auth_required"
	AuthDenied   Kind = "auth_denied"
	NotFound     Kind = "not_found"
	Conflict     Kind = "conflict"
	Upstream     Kind = "upstream"
	IO           Kind = "io"
	Cancelled    Kind = "cancelled"
	Timeout      Kind = "timeout"
)

// Error is a structured error carrying a Kind alongside the human
// message, so the dispatcher can map it to an HTTP status without
// string-sniffing.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a bare Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds an Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// HTTPStatus maps a Kind to the status code the HTTP server returns,
// per spec.md §4.6/§7.
func (k Kind) HTTPStatus() int {
	switch k {
	case AuthRequired:
		return 401
	case Timeout:
		return 408
	default:
		return 400
	}
}

// As extracts an *Error from err, if it is (or wraps) one.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
