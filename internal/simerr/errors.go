// Package simerr defines the failure taxonomy shared by the simulation
// sub-systems. Every failure is locally recoverable: callers branch on the kind
// with errors.Is and surface it, nothing panics across a turn.
package simerr

import "fmt"

// Kind classifies a simulation failure.
type Kind string

const (
	// KindNotFound: unknown building, dialogue, node, event or creature id.
	KindNotFound Kind = "not_found"
	// KindRejected: insufficient resources, invalid placement, index out of range.
	// State is unchanged and the caller may retry.
	KindRejected Kind = "rejected"
	// KindCorruptSave: a snapshot that cannot be decoded or re-attached.
	KindCorruptSave Kind = "corrupt_save"
)

// Error is a simulation failure with its kind and the operation that produced it.
type Error struct {
	Kind  Kind
	Op    string // e.g. "place building"
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Cause != nil {
		if msg == "" {
			msg = e.Cause.Error()
		} else {
			msg = msg + ": " + e.Cause.Error()
		}
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Op == "" && t.Msg == ""
}

// Sentinels for errors.Is.
var (
	ErrNotFound    = &Error{Kind: KindNotFound}
	ErrRejected    = &Error{Kind: KindRejected}
	ErrCorruptSave = &Error{Kind: KindCorruptSave}
)

// NotFound reports an unknown id.
func NotFound(op, what, id string) error {
	return &Error{Kind: KindNotFound, Op: op, Msg: fmt.Sprintf("%s %q", what, id)}
}

// Rejected reports a refused command.
func Rejected(op, format string, args ...any) error {
	return &Error{Kind: KindRejected, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Corrupt wraps a decode or re-attach failure.
func Corrupt(op string, cause error) error {
	return &Error{Kind: KindCorruptSave, Op: op, Cause: cause}
}

// KindOf returns the kind of err, or "" when err is not a simulation error.
func KindOf(err error) Kind {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}
