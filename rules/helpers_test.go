package rules

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/liamcoop/prcycle/schema"
)

func testDefinition() schema.Definition {
	return schema.Definition{
		Fields: schema.FieldSchema{
			"total_revenue":            schema.KindNumber,
			"segment_revenues":         schema.KindNumberList,
			"current_expenses":         schema.KindNumber,
			"previous_expenses":        schema.KindNumber,
			"expense_category":         schema.KindString,
			"executive_comp_disclosed": schema.KindBoolean,
		},
		Derived: []schema.DerivedField{
			{Name: "segment_revenues_sum", Expression: "sum(segment_revenues)"},
			{Name: "increase_percentage", Expression: "(current_expenses - previous_expenses) * 100 / previous_expenses"},
		},
	}
}

func revenueRule() *Rule {
	return &Rule{
		ID:            "rule-1",
		Name:          "Revenue Reconciliation",
		Condition:     "total_revenue != sum(segment_revenues)",
		QueryTemplate: "Mismatch: reported {{total_revenue}} vs sum {{segment_revenues}}",
		Active:        true,
		AppliesTo:     AllCompanies(),
	}
}

func record(id string, fields map[string]schema.Value) schema.Record {
	return schema.Record{ID: id, Fields: fields}
}

func revenueRecord(id string, total float64, segments ...float64) schema.Record {
	return record(id, map[string]schema.Value{
		"total_revenue":    schema.Number(total),
		"segment_revenues": schema.NumberList(segments...),
	})
}

var fixedTime = time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)

// sequentialIDs returns a deterministic ID generator: q-1, q-2, ...
func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("q-%d", n.Add(1))
	}
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *InMemoryRuleStore) {
	t.Helper()
	store := NewInMemoryRuleStore()
	opts = append([]Option{WithClock(func() time.Time { return fixedTime }), WithIDGenerator(sequentialIDs())}, opts...)
	engine, err := NewEngine(testDefinition(), store, opts...)
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, store
}

// stripVolatile clears the per-call query ID and timestamp.
func stripVolatile(res *FireResult) *FireResult {
	out := *res
	out.Queries = make([]GeneratedQuery, len(res.Queries))
	for i, q := range res.Queries {
		q.ID = ""
		q.GeneratedAt = time.Time{}
		out.Queries[i] = q
	}
	return &out
}

// failingStore wraps a store and fails writes on demand.
type failingStore struct {
	RuleStore
	failAdd    bool
	failUpdate bool
}

func (s *failingStore) Add(rule *Rule) error {
	if s.failAdd {
		return fmt.Errorf("store unavailable")
	}
	return s.RuleStore.Add(rule)
}

func (s *failingStore) Update(rule *Rule) error {
	if s.failUpdate {
		return fmt.Errorf("store unavailable")
	}
	return s.RuleStore.Update(rule)
}
