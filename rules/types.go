package rules

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/liamcoop/prcycle/schema"
)

// Rule is a named condition plus the query template rendered for every matching record.
type Rule struct {
	ID            string    `json:"id" yaml:"id"`
	Name          string    `json:"name" yaml:"name"`
	Description   string    `json:"description,omitempty" yaml:"description,omitempty"`
	Condition     string    `json:"condition" yaml:"condition"`
	QueryTemplate string    `json:"queryTemplate" yaml:"queryTemplate"`
	Active        bool      `json:"active" yaml:"active"`
	AppliesTo     Scope     `json:"appliesTo" yaml:"appliesTo"`
	CreatedAt     time.Time `json:"createdAt" yaml:"createdAt,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt" yaml:"updatedAt,omitempty"`
}

// Clone returns a copy that shares no mutable state with r.
func (r *Rule) Clone() *Rule {
	c := *r
	return &c
}

// Scope selects the companies a rule applies to: every company, or an explicit set.
// The zero Scope selects nothing and fails validation.
type Scope struct {
	all bool
	ids []string // sorted, unique
}

const scopeAll = "all"

// AllCompanies returns a scope matching every record.
func AllCompanies() Scope {
	return Scope{all: true}
}

// Companies returns a scope matching the given company IDs.
func Companies(ids ...string) Scope {
	set := slices.Clone(ids)
	slices.Sort(set)
	return Scope{ids: slices.Compact(set)}
}

// IsAll reports whether the scope matches every record.
func (s Scope) IsAll() bool { return s.all }

// IsEmpty reports whether the scope matches no record.
func (s Scope) IsEmpty() bool { return !s.all && len(s.ids) == 0 }

// IDs returns the explicit company IDs, sorted. It is nil for AllCompanies.
func (s Scope) IDs() []string { return slices.Clone(s.ids) }

// Contains reports whether records of company id are in scope.
func (s Scope) Contains(id string) bool {
	if s.all {
		return true
	}
	_, found := slices.BinarySearch(s.ids, id)
	return found
}

func (s Scope) String() string {
	if s.all {
		return scopeAll
	}
	return fmt.Sprintf("%v", s.ids)
}

// MarshalJSON encodes AllCompanies as "all" and explicit sets as an array.
func (s Scope) MarshalJSON() ([]byte, error) {
	if s.all {
		return json.Marshal(scopeAll)
	}
	if s.ids == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.ids)
}

// UnmarshalJSON accepts "all", ["all"] or an array of company IDs.
func (s *Scope) UnmarshalJSON(data []byte) error {
	var all string
	if err := json.Unmarshal(data, &all); err == nil {
		return s.set(all, nil)
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return fmt.Errorf(`appliesTo must be "all" or an array of company IDs`)
	}
	return s.set("", ids)
}

// MarshalYAML mirrors MarshalJSON.
func (s Scope) MarshalYAML() (any, error) {
	if s.all {
		return scopeAll, nil
	}
	if s.ids == nil {
		return []string{}, nil
	}
	return s.ids, nil
}

// UnmarshalYAML mirrors UnmarshalJSON.
func (s *Scope) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return s.set(node.Value, nil)
	}
	var ids []string
	if err := node.Decode(&ids); err != nil {
		return fmt.Errorf(`line %d: appliesTo must be "all" or a list of company IDs`, node.Line)
	}
	return s.set("", ids)
}

func (s *Scope) set(word string, ids []string) error {
	if word != "" {
		if word != scopeAll {
			return fmt.Errorf(`appliesTo must be "all" or an array of company IDs, got %q`, word)
		}
		*s = AllCompanies()
		return nil
	}
	if slices.Contains(ids, scopeAll) {
		*s = AllCompanies()
		return nil
	}
	*s = Companies(ids...)
	return nil
}

// GeneratedQuery is the query text produced for one matching record.
type GeneratedQuery struct {
	ID            string                  `json:"id"`
	RuleID        string                  `json:"ruleId"`
	RecordID      string                  `json:"recordId"`
	RenderedText  string                  `json:"renderedText"`
	MatchedFields map[string]schema.Value `json:"matchedFields"`
	GeneratedAt   time.Time               `json:"generatedAt"`
}

// Outcome is the result of evaluating one rule against one record.
type Outcome string

const (
	OutcomeMatched    Outcome = "matched"
	OutcomeNotMatched Outcome = "not_matched"
	OutcomeError      Outcome = "error"
)

// Reasons attached to non-error diagnostics.
const (
	ReasonInactive = "rule inactive"
	ReasonNoMatch  = "condition is false"
)

// EvaluationDiagnostic records what happened for one (rule, record) pair.
// Err holds the evaluation or render error behind an Error outcome.
type EvaluationDiagnostic struct {
	RuleID   string  `json:"ruleId"`
	RecordID string  `json:"recordId"`
	Outcome  Outcome `json:"outcome"`
	Reason   string  `json:"reason,omitempty"`
	Err      error   `json:"-"`
}

// FireResult holds the queries and diagnostics of one Fire call, both in input record order.
type FireResult struct {
	RuleID      string                 `json:"ruleId"`
	Queries     []GeneratedQuery       `json:"queries"`
	Diagnostics []EvaluationDiagnostic `json:"diagnostics"`
}

// Count returns the number of diagnostics with outcome o.
func (r *FireResult) Count(o Outcome) int {
	n := 0
	for _, d := range r.Diagnostics {
		if d.Outcome == o {
			n++
		}
	}
	return n
}

// TestReport is the "test rule" preview: validation status plus a bounded fire.
type TestReport struct {
	Valid       bool                   `json:"valid"`
	Error       string                 `json:"error,omitempty"`
	ErrorField  string                 `json:"errorField,omitempty"`
	Evaluated   int                    `json:"evaluated"`
	Matched     int                    `json:"matched"`
	NotMatched  int                    `json:"notMatched"`
	Errored     int                    `json:"errored"`
	Queries     []GeneratedQuery       `json:"queries"`
	Diagnostics []EvaluationDiagnostic `json:"diagnostics"`
}
