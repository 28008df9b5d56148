// Package errs defines the typed failures returned by the execution engine.
//
// Every engine operation returns an error value instead of panicking. The
// error carries a Kind so callers can decide whether a failure is locally
// recoverable (for example a Cancelled pop during shutdown) or must be
// propagated to whoever launched the tree.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// Internal is used for failures that do not fit any other kind.
	Internal Kind = iota
	// NotFound reports a missing element, e.g. removing a node that is not a child.
	NotFound
	// AlreadyExists reports a duplicate, e.g. adding a child twice.
	AlreadyExists
	// UnsupportedOperation reports a well-formed request the engine refuses,
	// e.g. removing a node with several children.
	UnsupportedOperation
	// InvalidState reports an operation on a node or tree in the wrong phase.
	InvalidState
	// InvalidArgument reports a malformed request (nil nodes, cycles, bad maps).
	InvalidArgument
	// Cancelled reports a queue operation interrupted by shutdown.
	Cancelled
	// ProtocolViolation reports control messages arriving out of order.
	ProtocolViolation
)

var kindNames = map[Kind]string{
	Internal:             "internal",
	NotFound:             "not found",
	AlreadyExists:        "already exists",
	UnsupportedOperation: "unsupported operation",
	InvalidState:         "invalid state",
	InvalidArgument:      "invalid argument",
	Cancelled:            "cancelled",
	ProtocolViolation:    "protocol violation",
}

// String returns the human-readable kind name.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error lets a Kind be used as a target for errors.Is.
func (k Kind) Error() string {
	return k.String()
}

// Error is a failure with a kind, the operation that produced it and an
// optional underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches a bare Kind target, so errors.Is(err, errs.NotFound) works.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// New creates an error of the given kind with a formatted message.
func New(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and an operation to an existing error. A nil error
// stays nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && errors.Is(err, kind)
}
