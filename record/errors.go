package record

import "errors"

// Kind classifies a record-fabric failure (spec.md §4.1). None of
// these are fatal to the process; callers surface them as structured
// exception records rather than panicking.
type Kind int

const (
	KindNone Kind = iota
	KindUnknownType
	KindOutOfRange
	KindUndersizedBuffer
	KindBadNullPointer
	KindDuplicate
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindUnknownType:
		return "unknown_type"
	case KindOutOfRange:
		return "out_of_range"
	case KindUndersizedBuffer:
		return "undersized_buffer"
	case KindBadNullPointer:
		return "bad_null_pointer"
	case KindDuplicate:
		return "duplicate"
	case KindNotFound:
		return "not_found"
	default:
		return "none"
	}
}

// Error wraps a Kind with the operation and field that triggered it.
type Error struct {
	Kind  Kind
	Op    string
	Field string
	Err   error
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.String()
	if e.Field != "" {
		msg += " (field " + e.Field + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind Kind, op, field string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Field: field, Err: cause}
}

// IsKind reports whether err is a *Error of the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
