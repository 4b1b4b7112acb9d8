// Package errs defines the error kinds reported by registry, schedule and apply
// operations. Callers match kinds with errors.Is against the exported sentinels
// or extract them with KindOf.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind int

const (
	// Internal marks invariant violations and I/O failures.
	Internal Kind = iota + 1
	// InvalArg marks malformed input or a precondition the caller violated.
	InvalArg
	// NotFound marks a missing module, feature or schedule entry.
	NotFound
	// Exists marks a conflicting or already satisfied request.
	Exists
	// Unsupported marks requests against internal modules.
	Unsupported
	// OperationFailed marks a failure of the schema engine or datastore.
	OperationFailed
)

func (k Kind) String() string {
	switch k {
	case Internal:
		return "internal"
	case InvalArg:
		return "invalid argument"
	case NotFound:
		return "not found"
	case Exists:
		return "exists"
	case Unsupported:
		return "unsupported"
	case OperationFailed:
		return "operation failed"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is.
var (
	ErrInternal        = &Error{Kind: Internal}
	ErrInvalArg        = &Error{Kind: InvalArg}
	ErrNotFound        = &Error{Kind: NotFound}
	ErrExists          = &Error{Kind: Exists}
	ErrUnsupported     = &Error{Kind: Unsupported}
	ErrOperationFailed = &Error{Kind: OperationFailed}
)

// Error is a classified error with an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg == "" && e.Err == nil:
		return e.Kind.String()
	case e.Err == nil:
		return e.Msg
	case e.Msg == "":
		return e.Err.Error()
	default:
		return e.Msg + ": " + e.Err.Error()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality, so any *Error matches the sentinel of its kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Msg == "" && t.Err == nil
}

// New returns an error of kind k with a formatted message.
func New(k Kind, format string, args ...any) error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err as kind k, prefixing it with a formatted message.
// A nil err yields nil.
func Wrap(k Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the outermost classified error in err's chain,
// or Internal when err carries no kind. KindOf(nil) is 0.
func KindOf(err error) Kind {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
