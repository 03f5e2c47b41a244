package expr

import (
	"fmt"

	"github.com/liamcoop/prcycle/schema"
)

// ParseError reports malformed condition syntax, an unknown function, a bad call
// signature, or division by a literal zero. Position is a 0-based byte offset.
type ParseError struct {
	Position int
	Message  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at position %d: %s", e.Position, e.Message)
}

// UnknownFieldError reports an identifier that is not declared in the schema.
type UnknownFieldError struct {
	Name     string
	Position int
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown field: %s", e.Name)
}

// TypeError reports a static kind mismatch, including a condition whose root is not Boolean.
type TypeError struct {
	Position int
	Message  string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("type error at position %d: %s", e.Position, e.Message)
}

// EvalErrorKind classifies runtime evaluation failures.
type EvalErrorKind int

const (
	MissingField EvalErrorKind = iota + 1
	KindMismatch
	DivisionByZero
	EmptyAggregate
)

func (k EvalErrorKind) String() string {
	switch k {
	case MissingField:
		return "MissingField"
	case KindMismatch:
		return "KindMismatch"
	case DivisionByZero:
		return "DivisionByZero"
	case EmptyAggregate:
		return "EmptyAggregate"
	default:
		return "Unknown"
	}
}

// EvalError is returned by evaluation. Field is set for MissingField and KindMismatch,
// Function for EmptyAggregate.
type EvalError struct {
	Kind     EvalErrorKind
	Field    string
	Function string
	Expected schema.Kind
	Got      schema.Kind
}

func (e *EvalError) Error() string {
	switch e.Kind {
	case MissingField:
		return "missing field: " + e.Field
	case KindMismatch:
		return fmt.Sprintf("field %s: expected %s, got %s", e.Field, e.Expected, e.Got)
	case DivisionByZero:
		return "division by zero"
	case EmptyAggregate:
		return fmt.Sprintf("%s of empty list", e.Function)
	default:
		return "evaluation error"
	}
}

// Is matches the sentinel errors below by kind, so callers can write
// errors.Is(err, expr.ErrMissingField).
func (e *EvalError) Is(target error) bool {
	t, ok := target.(*EvalError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Field == "" && t.Function == ""
}

var (
	ErrMissingField   = &EvalError{Kind: MissingField}
	ErrKindMismatch   = &EvalError{Kind: KindMismatch}
	ErrDivisionByZero = &EvalError{Kind: DivisionByZero}
	ErrEmptyAggregate = &EvalError{Kind: EmptyAggregate}
)
