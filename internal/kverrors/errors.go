// Package kverrors defines the error taxonomy shared by every layer of the
// storage engine: callers switch on Kind rather than on concrete error
// values, the way vi88i-kvstash's store package exposes sentinel errors for
// errors.Is.
package kverrors

import (
	"errors"
	"fmt"
)

// Kind classifies why an engine operation failed.
type Kind int

const (
	// Io means a filesystem operation failed; the cause is the underlying error.
	Io Kind = iota
	// Serde means a record failed to encode or decode.
	Serde
	// KeyNotFound means Get or Remove was issued against an absent key.
	KeyNotFound
	// UnexpectedCommand means a Position decoded to the wrong record variant.
	UnexpectedCommand
	// WrongEngine means the directory is owned by a different backend.
	WrongEngine
	// Corrupt is a generic recovery failure that doesn't fit the other kinds.
	Corrupt
)

func (k Kind) String() string {
	switch k {
	case Io:
		return "io"
	case Serde:
		return "serde"
	case KeyNotFound:
		return "key not found"
	case UnexpectedCommand:
		return "unexpected command"
	case WrongEngine:
		return "wrong engine"
	case Corrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}

// Error wraps a Kind with a message and an optional underlying cause.
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

// Is lets errors.Is(err, kverrors.Sentinel(kverrors.KeyNotFound)) work by comparing Kind, not identity.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New builds an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error that wraps cause, unless cause is or wraps a
// *kverrors.Error, in which case that *kverrors.Error is returned unchanged
// and kind and message are discarded.
func Wrap(kind Kind, message string, cause error) *Error {
	var existing *Error
	if errors.As(cause, &existing) {
		return existing
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Sentinel returns an *Error of kind that acts like a sentinel for errors.Is
// comparisons, e.g. errors.Is(err, kverrors.Sentinel(kverrors.KeyNotFound)).
func Sentinel(kind Kind) error {
	return &Error{Kind: kind, Message: kind.String()}
}

// KindOf extracts the Kind from err, returning (Corrupt, false) when err does
// not wrap a *kverrors.Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return Corrupt, false
}
