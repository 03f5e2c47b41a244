package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/prcycle/expr"
	"github.com/liamcoop/prcycle/querytemplate"
)

func TestValidate(t *testing.T) {
	engine, _ := newTestEngine(t)

	cond, err := engine.Validate(revenueRule())
	require.NoError(t, err)
	assert.Equal(t, []string{"segment_revenues", "total_revenue"}, cond.Dependencies())
}

func TestValidate_Errors(t *testing.T) {
	engine, _ := newTestEngine(t)

	tests := []struct {
		name   string
		modify func(r *Rule)
		field  string
		cause  any
	}{
		{"blank name", func(r *Rule) { r.Name = "  " }, FieldName, nil},
		{"blank condition", func(r *Rule) { r.Condition = "" }, FieldCondition, nil},
		{"blank template", func(r *Rule) { r.QueryTemplate = "\n" }, FieldQueryTemplate, nil},
		{"empty scope", func(r *Rule) { r.AppliesTo = Companies() }, FieldAppliesTo, nil},
		{"zero scope", func(r *Rule) { r.AppliesTo = Scope{} }, FieldAppliesTo, nil},
		{"syntax error", func(r *Rule) { r.Condition = "total_revenue >" }, FieldCondition, new(*expr.ParseError)},
		{"unknown field", func(r *Rule) { r.Condition = "revenue > 1" }, FieldCondition, new(*expr.UnknownFieldError)},
		{"type error", func(r *Rule) { r.Condition = "total_revenue > expense_category" }, FieldCondition, new(*expr.TypeError)},
		{"non boolean", func(r *Rule) { r.Condition = "total_revenue + 1" }, FieldCondition, new(*expr.TypeError)},
		{"literal zero", func(r *Rule) { r.Condition = "total_revenue / 0 > 1" }, FieldCondition, new(*expr.ParseError)},
		{"bad function", func(r *Rule) { r.Condition = "median(segment_revenues) > 1" }, FieldCondition, new(*expr.ParseError)},
		{"unknown placeholder", func(r *Rule) { r.QueryTemplate = "See {{missing_field}}" }, FieldQueryTemplate, new(*querytemplate.UnknownPlaceholderError)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := revenueRule()
			tt.modify(rule)

			cond, err := engine.Validate(rule)
			assert.Nil(t, cond)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			if tt.cause != nil {
				assert.ErrorAs(t, err, tt.cause)
			}
		})
	}
}

func TestValidate_TemplateMayUseAnySchemaField(t *testing.T) {
	engine, _ := newTestEngine(t)
	rule := revenueRule()
	rule.QueryTemplate = "{{total_revenue}} in {{expense_category}}, growth {{increase_percentage}}%"

	_, err := engine.Validate(rule)
	assert.NoError(t, err)
}

func TestValidate_FreeTextBracesAllowed(t *testing.T) {
	engine, _ := newTestEngine(t)
	rule := revenueRule()
	rule.QueryTemplate = "Please explain {{ this }} and {Total} for {{total_revenue}}"

	_, err := engine.Validate(rule)
	assert.NoError(t, err)
}

func TestValidate_SameErrorsForSaveAndTest(t *testing.T) {
	engine, _ := newTestEngine(t)
	rule := revenueRule()
	rule.Condition = "total_revenue > 'abc'"

	_, validateErr := engine.Validate(rule)
	saveErr := engine.AddRule(rule.Clone())
	report := engine.TestRule(t.Context(), rule, nil, 10)

	require.Error(t, validateErr)
	assert.Equal(t, validateErr.Error(), saveErr.Error())
	assert.Equal(t, validateErr.Error(), report.Error)
}

func TestValidate_SharesCompiledConditions(t *testing.T) {
	engine, _ := newTestEngine(t)

	a := revenueRule()
	b := revenueRule()
	b.ID = "rule-b"

	condA, err := engine.Validate(a)
	require.NoError(t, err)
	condB, err := engine.Validate(b)
	require.NoError(t, err)
	assert.Same(t, condA, condB)
}
