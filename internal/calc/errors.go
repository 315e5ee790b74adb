package calc

import (
	"errors"
	"fmt"
)

// Kind is a stable error discriminator. The service boundary maps kinds to
// HTTP statuses without inspecting messages, and the cache records kinds for
// deterministic failures.
type Kind string

const (
	KindParse          Kind = "parse"
	KindArity          Kind = "arity"
	KindDivisionByZero Kind = "division_by_zero"
	KindInvalidOperand Kind = "invalid_operand"
	// KindNonFinite marks calculations whose result leaves the representable
	// range (overflow to ±Inf, or NaN from an indeterminate form inside an
	// expression). Operands are validated finite, so this is a property of
	// the calculation itself and caches like any other deterministic failure.
	KindNonFinite Kind = "non_finite"
)

// Error is a typed evaluation failure.
type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.msg
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the error kind, if err is (or wraps) an evaluation error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// ErrorFromKind rebuilds a typed error from a cached error kind. The message
// is generic: the kind is the contract, not the text.
func ErrorFromKind(kind Kind) *Error {
	return &Error{Kind: kind, msg: "cached evaluation failure"}
}
