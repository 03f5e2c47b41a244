package rules

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/liamcoop/prcycle/schema"
)

// ErrNoRecordSource is returned by the *FromSource methods when the engine has no source.
var ErrNoRecordSource = errors.New("no record source configured")

type recordOutcome struct {
	query *GeneratedQuery
	diag  EvaluationDiagnostic
}

// Fire evaluates rule against every in-scope record and renders a query for each match.
//
// Records outside rule.AppliesTo produce nothing. An inactive rule yields a NotMatched
// diagnostic per in-scope record and no queries. Evaluation and render failures become
// Error diagnostics and never stop the batch. Queries and diagnostics follow input order.
// A rule that fails validation returns its *ValidationError; a cancelled ctx stops
// dispatching records and returns ctx.Err().
func (en *Engine) Fire(ctx context.Context, rule *Rule, records []schema.Record) (*FireResult, error) {
	start := time.Now()
	defer func() { FireDuration.Observe(time.Since(start).Seconds()) }()

	compiled, err := en.prepare(rule)
	if err != nil {
		return nil, err
	}

	result := &FireResult{
		RuleID:      rule.ID,
		Queries:     []GeneratedQuery{},
		Diagnostics: []EvaluationDiagnostic{},
	}

	if !rule.Active {
		for _, rec := range records {
			if rule.AppliesTo.Contains(rec.ID) {
				result.Diagnostics = append(result.Diagnostics, EvaluationDiagnostic{
					RuleID:   rule.ID,
					RecordID: rec.ID,
					Outcome:  OutcomeNotMatched,
					Reason:   ReasonInactive,
				})
			}
		}
		return result, nil
	}

	outcomes := make([]*recordOutcome, len(records))

	var g errgroup.Group
	g.SetLimit(en.workers)
	for i := range records {
		if !rule.AppliesTo.Contains(records[i].ID) {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outcomes[i] = en.evaluateRecord(rule, compiled, records[i])
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, o := range outcomes {
		if o == nil {
			continue
		}
		if o.query != nil {
			result.Queries = append(result.Queries, *o.query)
		}
		result.Diagnostics = append(result.Diagnostics, o.diag)
		RecordEvaluations.WithLabelValues(string(o.diag.Outcome)).Inc()
	}
	QueriesGenerated.Add(float64(len(result.Queries)))

	en.logger.Debug("rule fired",
		"rule_id", rule.ID,
		"records", len(records),
		"evaluated", len(result.Diagnostics),
		"queries", len(result.Queries),
		"duration", time.Since(start),
	)
	return result, nil
}

// prepare returns the compiled entry for rule, reusing the registered entry while the
// condition and template text are unchanged and recompiling otherwise.
func (en *Engine) prepare(rule *Rule) (*compiledRule, error) {
	if rule == nil {
		return en.compile(rule)
	}

	cached, ptr := en.loadCompiled(rule.ID)
	if cached != nil && cached.matches(rule) {
		if err := checkRequired(rule); err != nil {
			return nil, err
		}
		return cached, nil
	}

	compiled, err := en.compile(rule)
	if err != nil {
		return nil, err
	}
	if ptr != nil {
		ptr.CompareAndSwap(cached, compiled)
	}
	return compiled, nil
}

func (en *Engine) evaluateRecord(rule *Rule, c *compiledRule, rec schema.Record) *recordOutcome {
	out := &recordOutcome{diag: EvaluationDiagnostic{RuleID: rule.ID, RecordID: rec.ID}}
	fail := func(err error) *recordOutcome {
		out.diag.Outcome = OutcomeError
		out.diag.Reason = err.Error()
		out.diag.Err = err
		return out
	}

	fields, err := en.derived.Apply(rec.Fields, c.conditionFields)
	if err != nil {
		return fail(err)
	}

	matched, err := c.condition.Match(fields)
	if err != nil {
		return fail(err)
	}
	if !matched {
		out.diag.Outcome = OutcomeNotMatched
		out.diag.Reason = ReasonNoMatch
		return out
	}

	fields, err = en.derived.Apply(fields, c.templateFields)
	if err != nil {
		return fail(err)
	}

	used := make(map[string]schema.Value, len(c.matchFields))
	for _, name := range c.matchFields {
		if v, ok := fields[name]; ok {
			used[name] = v
		}
	}

	text, err := c.template.Render(used)
	if err != nil {
		return fail(err)
	}

	out.query = &GeneratedQuery{
		ID:            en.newID(),
		RuleID:        rule.ID,
		RecordID:      rec.ID,
		RenderedText:  text,
		MatchedFields: used,
		GeneratedAt:   en.now(),
	}
	out.diag.Outcome = OutcomeMatched
	return out
}

// FireAll fires every active rule over records and returns one result per rule.
// A rule that cannot be fired is logged and skipped; the rest still run.
func (en *Engine) FireAll(ctx context.Context, records []schema.Record) ([]*FireResult, error) {
	active, err := en.activeRules()
	if err != nil {
		return nil, err
	}

	results := make([]*FireResult, 0, len(active))
	for _, rule := range active {
		res, err := en.Fire(ctx, rule, records)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			en.logger.Warn("rule skipped", "rule_id", rule.ID, "error", err)
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

// FireFromSource fires a stored rule over the records of the injected RecordSource.
func (en *Engine) FireFromSource(ctx context.Context, ruleID string) (*FireResult, error) {
	rule, err := en.store.Get(ruleID)
	if err != nil {
		return nil, err
	}
	records, err := en.sourceRecords(ctx)
	if err != nil {
		return nil, err
	}
	return en.Fire(ctx, rule, records)
}

// FireAllFromSource fires every active rule over the records of the injected RecordSource.
func (en *Engine) FireAllFromSource(ctx context.Context) ([]*FireResult, error) {
	records, err := en.sourceRecords(ctx)
	if err != nil {
		return nil, err
	}
	return en.FireAll(ctx, records)
}

// SourceRecords returns the records of the injected RecordSource.
func (en *Engine) SourceRecords(ctx context.Context) ([]schema.Record, error) {
	return en.sourceRecords(ctx)
}

func (en *Engine) sourceRecords(ctx context.Context) ([]schema.Record, error) {
	if en.source == nil {
		return nil, ErrNoRecordSource
	}
	records, err := en.source.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	return records, nil
}

// TestRule is the "test rule" preview. It validates rule through Validate and, when
// valid, fires it as if active over at most limit in-scope records (limit <= 0 means
// all). It never returns an error: problems are reported in the TestReport.
func (en *Engine) TestRule(ctx context.Context, rule *Rule, records []schema.Record, limit int) TestReport {
	report := TestReport{
		Queries:     []GeneratedQuery{},
		Diagnostics: []EvaluationDiagnostic{},
	}

	if _, err := en.Validate(rule); err != nil {
		report.Error = err.Error()
		var verr *ValidationError
		if errors.As(err, &verr) {
			report.ErrorField = verr.Field
		}
		return report
	}
	report.Valid = true

	inScope := make([]schema.Record, 0, len(records))
	for _, rec := range records {
		if limit > 0 && len(inScope) == limit {
			break
		}
		if rule.AppliesTo.Contains(rec.ID) {
			inScope = append(inScope, rec)
		}
	}

	preview := rule.Clone()
	preview.Active = true

	res, err := en.Fire(ctx, preview, inScope)
	if err != nil {
		report.Error = err.Error()
		return report
	}

	report.Queries = res.Queries
	report.Diagnostics = res.Diagnostics
	report.Evaluated = len(res.Diagnostics)
	report.Matched = res.Count(OutcomeMatched)
	report.NotMatched = res.Count(OutcomeNotMatched)
	report.Errored = res.Count(OutcomeError)
	return report
}
