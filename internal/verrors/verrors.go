// Package verrors defines the error kinds of the verification engine's error
// handling design, independent of any particular transport.
package verrors

import (
	"errors"
	"fmt"
)

// Kind enumerates the distinct error kinds the engine surfaces.
type Kind string

const (
	KindInputInvalid         Kind = "InputInvalid"
	KindUnauthorized         Kind = "Unauthorized"
	KindUpstreamUnavailable  Kind = "UpstreamUnavailable"
	KindAllBackendsDown      Kind = "AllBackendsDown"
	KindEvidenceInsufficient Kind = "EvidenceInsufficient"
	KindParseFailure         Kind = "ParseFailure"
	KindStorageFault         Kind = "StorageFault"
	KindRaceRejected         Kind = "RaceRejected"
)

// Error is a typed error carrying one of the Kind values above plus a message
// and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind, wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err (or a wrapped cause) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, and ok=true.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
