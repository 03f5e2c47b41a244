package rules

import (
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/liamcoop/prcycle/expr"
	"github.com/liamcoop/prcycle/querytemplate"
	"github.com/liamcoop/prcycle/schema"
)

// compiledRule is the immutable compiled form of a rule's condition and template.
// It is replaced wholesale, never mutated.
type compiledRule struct {
	condition    *expr.CompiledCondition
	template     *querytemplate.Template
	templateText string

	conditionFields []string
	templateFields  []string
	// fields a matched record exposes to the template: condition dependencies plus placeholders
	matchFields []string
}

func (c *compiledRule) matches(rule *Rule) bool {
	return c.condition.Source() == rule.Condition && c.templateText == rule.QueryTemplate
}

// Engine validates rules, keeps their compiled conditions and fires them against records.
// All methods are safe for concurrent use.
type Engine struct {
	derived    *expr.Derivations
	schema     schema.FieldSchema
	store      RuleStore
	cache      RulesCache
	conditions *ConditionCache
	source     RecordSource
	logger     *slog.Logger
	workers    int
	now        func() time.Time
	newID      func() string

	// ruleID -> current compiled entry; the pointer is swapped atomically on recompilation
	programs map[string]*atomic.Pointer[compiledRule]
	mu       sync.RWMutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(en *Engine) { en.logger = l }
}

// WithRecordSource injects the source used by FireFromSource and FireAllFromSource.
func WithRecordSource(src RecordSource) Option {
	return func(en *Engine) { en.source = src }
}

// WithWorkers bounds the number of records evaluated concurrently. Values below 1
// mean GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(en *Engine) { en.workers = n }
}

// WithConditionCache replaces the default compiled-condition memo.
func WithConditionCache(c *ConditionCache) Option {
	return func(en *Engine) { en.conditions = c }
}

// WithRulesCache replaces the default active-rules cache.
func WithRulesCache(c RulesCache) Option {
	return func(en *Engine) { en.cache = c }
}

// WithClock sets the time source for GeneratedAt.
func WithClock(now func() time.Time) Option {
	return func(en *Engine) { en.now = now }
}

// WithIDGenerator sets the generator of GeneratedQuery and rule IDs.
func WithIDGenerator(gen func() string) Option {
	return func(en *Engine) { en.newID = gen }
}

// NewEngine creates an engine for the given schema definition and compiles every
// rule already in the store.
func NewEngine(def schema.Definition, store RuleStore, opts ...Option) (*Engine, error) {
	derived, err := expr.CompileDerived(def)
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}

	en := &Engine{
		derived:  derived,
		schema:   derived.Schema(),
		store:    store,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
		newID:    newUUID,
		programs: make(map[string]*atomic.Pointer[compiledRule]),
	}
	for _, opt := range opts {
		opt(en)
	}
	if en.workers < 1 {
		en.workers = runtime.GOMAXPROCS(0)
	}
	if en.cache == nil {
		en.cache = NewInMemoryRulesCache(DefaultCacheConfig())
	}
	if en.conditions == nil {
		en.conditions, err = NewConditionCache(DefaultConditionCacheCapacity, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to create condition cache: %w", err)
		}
	}

	if err := en.CompileAllRules(); err != nil {
		return nil, fmt.Errorf("failed to compile rules: %w", err)
	}

	return en, nil
}

func newUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Schema returns the effective field schema: declared plus derived fields.
func (en *Engine) Schema() schema.FieldSchema {
	return en.schema
}

// Close releases the condition cache.
func (en *Engine) Close() {
	en.conditions.Close()
}

// CompileAllRules compiles every stored rule and populates the active rules cache.
func (en *Engine) CompileAllRules() error {
	all, err := en.store.List()
	if err != nil {
		return err
	}

	for _, rule := range all {
		compiled, err := en.compile(rule)
		if err != nil {
			return fmt.Errorf("rule %s: %w", rule.ID, err)
		}
		en.install(rule.ID, compiled)
	}

	active := make([]*Rule, 0, len(all))
	for _, rule := range all {
		if rule.Active {
			active = append(active, rule)
		}
	}
	en.cache.Set(active)

	en.logger.Debug("compiled rules", "count", len(all), "active", len(active))
	return nil
}

// AddRule validates and stores a new rule. An empty ID is replaced by a generated one.
// Nothing is stored, and r is left untouched, if validation or storing fails.
func (en *Engine) AddRule(r *Rule) error {
	compiled, err := en.compile(r)
	if err != nil {
		return err
	}

	generated := r.ID == ""
	if generated {
		r.ID = en.newID()
	}
	fail := func(err error) error {
		if generated {
			r.ID = ""
		}
		return err
	}

	// Check first so an existing rule's compiled entry is never overwritten
	if _, err := en.store.Get(r.ID); err == nil {
		return fail(fmt.Errorf("rule with ID %s: %w", r.ID, ErrRuleExists))
	}
	en.install(r.ID, compiled)

	if err := en.store.Add(r); err != nil {
		en.uninstall(r.ID)
		return fail(err)
	}

	en.cache.Invalidate()
	en.logger.Info("rule added", "rule_id", r.ID, "name", r.Name, "active", r.Active)
	return nil
}

// UpdateRule validates the new version of a rule, then swaps its compiled entry and
// stores it. On a store failure the previous compiled entry is restored.
func (en *Engine) UpdateRule(r *Rule) error {
	compiled, err := en.compile(r)
	if err != nil {
		return err
	}

	previous := en.swap(r.ID, compiled)

	if err := en.store.Update(r); err != nil {
		if previous != nil {
			en.swap(r.ID, previous)
		} else {
			en.uninstall(r.ID)
		}
		return err
	}

	en.cache.Invalidate()
	en.logger.Info("rule updated", "rule_id", r.ID, "active", r.Active)
	return nil
}

// DeleteRule removes a rule from the store and drops its compiled entry.
func (en *Engine) DeleteRule(ruleID string) error {
	if err := en.store.Delete(ruleID); err != nil {
		return err
	}

	en.uninstall(ruleID)
	en.cache.Invalidate()
	en.logger.Info("rule deleted", "rule_id", ruleID)
	return nil
}

// GetRule returns a copy of a stored rule.
func (en *Engine) GetRule(ruleID string) (*Rule, error) {
	return en.store.Get(ruleID)
}

// ListRules returns every stored rule, oldest first.
func (en *Engine) ListRules() ([]*Rule, error) {
	return en.store.List()
}

// activeRules returns the active rules, from the cache when valid.
func (en *Engine) activeRules() ([]*Rule, error) {
	if cached := en.cache.Get(); cached != nil {
		return cached, nil
	}

	active, err := en.store.ListActive()
	if err != nil {
		return nil, err
	}
	en.cache.Set(active)
	return active, nil
}

// install registers a new compiled entry for ruleID.
func (en *Engine) install(ruleID string, c *compiledRule) {
	en.swap(ruleID, c)
}

// swap atomically replaces the compiled entry for ruleID and returns the old one.
func (en *Engine) swap(ruleID string, c *compiledRule) *compiledRule {
	en.mu.RLock()
	ptr, ok := en.programs[ruleID]
	en.mu.RUnlock()

	if !ok {
		en.mu.Lock()
		ptr, ok = en.programs[ruleID]
		if !ok {
			ptr = new(atomic.Pointer[compiledRule])
			en.programs[ruleID] = ptr
			RulesLoaded.Inc()
		}
		en.mu.Unlock()
	}
	return ptr.Swap(c)
}

func (en *Engine) uninstall(ruleID string) {
	en.mu.Lock()
	defer en.mu.Unlock()

	if _, ok := en.programs[ruleID]; ok {
		delete(en.programs, ruleID)
		RulesLoaded.Dec()
	}
}

// loadCompiled returns the current compiled entry for a registered rule.
func (en *Engine) loadCompiled(ruleID string) (*compiledRule, *atomic.Pointer[compiledRule]) {
	en.mu.RLock()
	ptr, ok := en.programs[ruleID]
	en.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	return ptr.Load(), ptr
}
