package rules

import (
	"errors"
	"fmt"
)

var (
	// ErrRuleNotFound is returned when a rule ID is unknown.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrRuleExists is returned when adding a rule whose ID is taken.
	ErrRuleExists = errors.New("rule already exists")
)

// Rule fields named by ValidationError.
const (
	FieldName          = "name"
	FieldCondition     = "condition"
	FieldQueryTemplate = "queryTemplate"
	FieldAppliesTo     = "appliesTo"
)

// ValidationError is returned when a rule cannot be saved or fired. Err is the
// underlying cause, e.g. an *expr.ParseError for the condition field.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }
