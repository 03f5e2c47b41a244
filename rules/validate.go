package rules

import (
	"errors"
	"sort"
	"strings"

	"github.com/liamcoop/prcycle/expr"
	"github.com/liamcoop/prcycle/querytemplate"
)

// Validate checks a rule against the engine's schema and returns its compiled condition.
// It is the single validation path for saving (AddRule, UpdateRule) and previewing
// (TestRule, Fire). Failures are *ValidationError; errors.As reaches the parser's
// *expr.ParseError, *expr.UnknownFieldError or *expr.TypeError, or the template's
// *querytemplate.UnknownPlaceholderError.
func (en *Engine) Validate(rule *Rule) (*expr.CompiledCondition, error) {
	compiled, err := en.compile(rule)
	if err != nil {
		return nil, err
	}
	return compiled.condition, nil
}

func (en *Engine) compile(rule *Rule) (*compiledRule, error) {
	compiled, err := en.compileRule(rule)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			ValidationFailures.WithLabelValues(verr.Field).Inc()
		}
		return nil, err
	}
	return compiled, nil
}

func (en *Engine) compileRule(rule *Rule) (*compiledRule, error) {
	if rule == nil {
		return nil, &ValidationError{Field: FieldName, Err: errors.New("rule is required")}
	}
	if err := checkRequired(rule); err != nil {
		return nil, err
	}

	cond, err := en.compileCondition(rule.Condition)
	if err != nil {
		return nil, &ValidationError{Field: FieldCondition, Err: err}
	}

	tpl := querytemplate.Parse(rule.QueryTemplate)
	if err := querytemplate.CheckFields(tpl, en.schema.Has); err != nil {
		return nil, &ValidationError{Field: FieldQueryTemplate, Err: err}
	}

	return &compiledRule{
		condition:       cond,
		template:        tpl,
		templateText:    rule.QueryTemplate,
		conditionFields: cond.Dependencies(),
		templateFields:  tpl.Placeholders(),
		matchFields:     union(cond.Dependencies(), tpl.Placeholders()),
	}, nil
}

func checkRequired(rule *Rule) error {
	switch {
	case strings.TrimSpace(rule.Name) == "":
		return &ValidationError{Field: FieldName, Err: errors.New("name is required")}
	case strings.TrimSpace(rule.Condition) == "":
		return &ValidationError{Field: FieldCondition, Err: errors.New("condition is required")}
	case strings.TrimSpace(rule.QueryTemplate) == "":
		return &ValidationError{Field: FieldQueryTemplate, Err: errors.New("query template is required")}
	case rule.AppliesTo.IsEmpty():
		return &ValidationError{Field: FieldAppliesTo, Err: errors.New(`must be "all" or at least one company ID`)}
	}
	return nil
}

// compileCondition parses condition text, sharing results through the condition cache.
func (en *Engine) compileCondition(text string) (*expr.CompiledCondition, error) {
	if cond, ok := en.conditions.Get(text); ok {
		return cond, nil
	}

	cond, err := expr.Parse(text, en.schema)
	if err != nil {
		return nil, err
	}
	en.conditions.Set(cond)
	return cond, nil
}

func union(a, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		set[s] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
