package fixtures

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/prcycle/digest"
	"github.com/liamcoop/prcycle/expr"
	"github.com/liamcoop/prcycle/rules"
	"github.com/liamcoop/prcycle/schema"
)

func TestEmbeddedData(t *testing.T) {
	def, err := LoadDefinition("")
	require.NoError(t, err)
	assert.Len(t, def.Fields, 8)
	assert.Equal(t, schema.KindNumberList, def.Fields["segment_revenues"])
	require.Len(t, def.Derived, 2)

	loaded, err := LoadRules("")
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	assert.True(t, loaded[0].AppliesTo.IsAll())
	assert.False(t, loaded[2].Active)
	assert.Equal(t, []string{"1", "2"}, loaded[2].AppliesTo.IDs())

	companies, err := LoadCompanies("")
	require.NoError(t, err)
	require.Len(t, companies, 3)
	assert.Equal(t, "Acme Corporation", companies[0].Name)
	assert.Equal(t, "2025-06-02", companies[2].Vars["previous_email_date"])
	_, ok := companies[2].Fields["previous_expenses"]
	assert.False(t, ok)

	templates, err := LoadTemplates("")
	require.NoError(t, err)
	require.Len(t, templates, 2)
	tpl, ok := Template(templates, "2")
	require.True(t, ok)
	assert.Equal(t, "Follow-up Template", tpl.Name)
	_, ok = Template(templates, "404")
	assert.False(t, ok)
}

// TestSampleCycle runs the sample data end to end: load, validate, fire, compose.
func TestSampleCycle(t *testing.T) {
	ctx := context.Background()

	def, err := LoadDefinition("")
	require.NoError(t, err)
	loaded, err := LoadRules("")
	require.NoError(t, err)
	companies, err := LoadCompanies("")
	require.NoError(t, err)

	engine, err := rules.NewEngine(def, rules.NewInMemoryRuleStore(),
		rules.WithRecordSource(rules.NewStaticRecordSource(Records(companies))))
	require.NoError(t, err)
	defer engine.Close()

	for _, r := range loaded {
		require.NoError(t, engine.AddRule(r), "rule %s", r.ID)
	}

	results, err := engine.FireAllFromSource(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2, "only active rules fire")

	revenue := results[0]
	assert.Equal(t, "1", revenue.RuleID)
	require.Len(t, revenue.Queries, 2)
	assert.Equal(t, "1", revenue.Queries[0].RecordID)
	assert.Equal(t, "We noticed that your reported total revenue of 1250000 does not match "+
		"the sum of your segment revenues (1200000). "+
		"Please provide a reconciliation of these figures.", revenue.Queries[0].RenderedText)
	assert.Equal(t, "3", revenue.Queries[1].RecordID)
	assert.Equal(t, rules.OutcomeNotMatched, revenue.Diagnostics[1].Outcome)

	expense := results[1]
	assert.Equal(t, "2", expense.RuleID)
	require.Len(t, expense.Queries, 1)
	assert.Contains(t, expense.Queries[0].RenderedText, "Your marketing expenses have increased by 15%")
	require.Len(t, expense.Diagnostics, 3)
	assert.Equal(t, rules.OutcomeError, expense.Diagnostics[2].Outcome)
	assert.ErrorIs(t, expense.Diagnostics[2].Err, expr.ErrMissingField)

	var queries []rules.GeneratedQuery
	for _, res := range results {
		queries = append(queries, res.Queries...)
	}

	templates, err := LoadTemplates("")
	require.NoError(t, err)
	initial, _ := Template(templates, "1")
	due := time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC)

	drafts, err := digest.ComposeAll(initial, Recipients(companies), queries, due)
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	assert.Equal(t, "contact@acmecorp.com", drafts[0].To)
	assert.Contains(t, drafts[0].Body, "Dear Acme Corporation Team,")
	assert.Contains(t, drafts[0].Body, "1. We noticed")
	assert.Contains(t, drafts[0].Body, "2. Your marketing expenses")
	assert.Contains(t, drafts[0].Body, "by 2025-07-15.")
	assert.Equal(t, "3", drafts[1].CompanyID)

	followUp, _ := Template(templates, "2")
	drafts, err = digest.ComposeAll(followUp, Recipients(companies), queries, due)
	require.Error(t, err, "company 1 has no previous_email_date")
	require.Len(t, drafts, 1)
	assert.Contains(t, drafts[0].Body, "previous email dated 2025-06-02")
}

func TestInactiveSampleRulePreview(t *testing.T) {
	def, err := LoadDefinition("")
	require.NoError(t, err)
	loaded, err := LoadRules("")
	require.NoError(t, err)
	companies, err := LoadCompanies("")
	require.NoError(t, err)

	engine, err := rules.NewEngine(def, rules.NewInMemoryRuleStore())
	require.NoError(t, err)
	defer engine.Close()

	report := engine.TestRule(context.Background(), loaded[2], Records(companies), 10)
	require.True(t, report.Valid, report.Error)
	assert.Equal(t, 2, report.Evaluated, "company 3 is out of scope")
	require.Equal(t, 1, report.Matched)
	assert.Equal(t, "Your executive compensation disclosures appear to be incomplete. "+
		"Please provide the grant date fair value and vesting schedule of stock options.",
		report.Queries[0].RenderedText)
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rules:
  - id: custom
    name: Custom
    condition: total_revenue > 0
    queryTemplate: ok
    active: true
    appliesTo: ["7"]
`), 0o600))

	loaded, err := LoadRules(path)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.True(t, loaded[0].AppliesTo.Contains("7"))

	_, err = LoadRules(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadCompaniesRejectsDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "companies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
companies:
  - id: "1"
    name: A
    fields: {total_revenue: 1}
  - id: "1"
    name: B
    fields: {total_revenue: 2}
`), 0o600))

	_, err := LoadCompanies(path)
	assert.ErrorContains(t, err, "declared twice")
}
