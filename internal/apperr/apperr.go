// Package apperr defines the error taxonomy shared by the collaboration core.
//
// Every failure that reaches a client is classified into one Kind. The relay
// maps the kind to a reply: authentication failures refuse the connection,
// authorization failures reject a join but keep the socket open, validation
// failures are answered to the sender only, conflicts become lock denials and
// dependency failures ask the client to try again.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for reply mapping.
type Kind int

const (
	// KindUnknown is the zero value; treated like a dependency failure.
	KindUnknown Kind = iota
	// KindAuthentication means a missing, malformed, expired or forged credential.
	KindAuthentication
	// KindAuthorization means the user may not access the requested room.
	KindAuthorization
	// KindValidation means the client sent a malformed or unknown payload.
	KindValidation
	// KindConflict means the resource is locked by someone else.
	KindConflict
	// KindDependency means a store or collaborator call failed or timed out.
	KindDependency
)

// String returns the reply code used on the wire for the kind.
func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "unauthenticated"
	case KindAuthorization:
		return "forbidden"
	case KindValidation:
		return "invalid"
	case KindConflict:
		return "conflict"
	case KindDependency:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Error is a classified error. Op names the operation that failed, Msg is the
// client-safe message and Err the underlying cause, if any.
type Error struct {
	Err  error
	Op   string
	Msg  string
	Kind Kind
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Msg != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a classified error without a cause.
func New(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Validation is shorthand for a validation error with a client-facing message.
func Validation(op, msg string) error {
	return New(KindValidation, op, msg)
}

// Dependency wraps a failed store or collaborator call.
func Dependency(op string, err error) error {
	return Wrap(KindDependency, op, err)
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the client-safe message for err. Dependency and unknown
// failures never leak their cause.
func Message(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "try again"
	}
	switch e.Kind {
	case KindDependency, KindUnknown:
		return "try again"
	}
	if e.Msg != "" {
		return e.Msg
	}
	return e.Kind.String()
}
