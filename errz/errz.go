// Package errz defines the failure kinds reported by the matching and
// patching engine.
package errz

import (
	"errors"
	"fmt"
)

// Kind represents the category of an engine error.
type Kind int

const (
	// Invalid indicates malformed input, e.g. unparsable instruction text.
	Invalid Kind = iota
	// NotFound indicates a fingerprint matched zero units.
	NotFound
	// Ambiguous indicates a fingerprint matched more than one unit.
	Ambiguous
	// InvalidEdit indicates an edit referencing an index out of range.
	InvalidEdit
	// ConflictingEdit indicates two pending edits targeting the same index.
	ConflictingEdit
	// StructuralPrecondition indicates a patch-level structural check failed.
	StructuralPrecondition
)

func (k Kind) String() string {
	switch k {
	case Invalid:
		return "invalid"
	case NotFound:
		return "not found"
	case Ambiguous:
		return "ambiguous"
	case InvalidEdit:
		return "invalid edit"
	case ConflictingEdit:
		return "conflicting edit"
	case StructuralPrecondition:
		return "structural precondition"
	default:
		return "error"
	}
}

// Sentinels usable with errors.Is.
var (
	ErrInvalid                = &Error{Kind: Invalid}
	ErrNotFound               = &Error{Kind: NotFound}
	ErrAmbiguous              = &Error{Kind: Ambiguous}
	ErrInvalidEdit            = &Error{Kind: InvalidEdit}
	ErrConflictingEdit        = &Error{Kind: ConflictingEdit}
	ErrStructuralPrecondition = &Error{Kind: StructuralPrecondition}
)

// Error is an engine failure of a known Kind. Subject names the unit or
// fingerprint involved.
type Error struct {
	Kind    Kind
	Subject string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Subject != "" {
		msg += ": " + e.Subject
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same Kind. Sentinels carry
// no subject, so errors.Is(err, ErrNotFound) matches every NotFound error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New returns an error of the given kind.
func New(kind Kind, subject, format string, args ...any) *Error {
	return &Error{Kind: kind, Subject: subject, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an error of the given kind caused by err.
func Wrap(kind Kind, subject string, err error) *Error {
	return &Error{Kind: kind, Subject: subject, Cause: err}
}

// Is reports whether err or any error it wraps has the given kind.
func Is(err error, kind Kind) bool {
	return errors.Is(err, &Error{Kind: kind})
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return Invalid, false
}
