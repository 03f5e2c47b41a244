package rules

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// RuleStore manages rule storage and retrieval.
// Implementations store and return copies, so callers never share a *Rule with the store.
type RuleStore interface {
	// Add a new rule; fails with ErrRuleExists if the ID is taken
	Add(rule *Rule) error

	// Get a rule by ID; fails with ErrRuleNotFound
	Get(id string) (*Rule, error)

	// List all rules, oldest first
	List() ([]*Rule, error)

	// List all active rules, oldest first
	ListActive() ([]*Rule, error)

	// Update an existing rule, preserving CreatedAt
	Update(rule *Rule) error

	// Delete a rule
	Delete(id string) error
}

// InMemoryRuleStore implements RuleStore using an in-memory map.
// Thread-safe with RWMutex.
type InMemoryRuleStore struct {
	rules map[string]*Rule
	now   func() time.Time
	mu    sync.RWMutex
}

// NewInMemoryRuleStore creates a new in-memory rule store
func NewInMemoryRuleStore() *InMemoryRuleStore {
	return &InMemoryRuleStore{
		rules: make(map[string]*Rule),
		now:   time.Now,
	}
}

// Add adds a new rule to the store and sets CreatedAt and UpdatedAt on it.
func (s *InMemoryRuleStore) Add(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[rule.ID]; exists {
		return fmt.Errorf("rule with ID %s: %w", rule.ID, ErrRuleExists)
	}

	now := s.now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	s.rules[rule.ID] = rule.Clone()
	return nil
}

// Get retrieves a rule by ID
func (s *InMemoryRuleStore) Get(id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, exists := s.rules[id]
	if !exists {
		return nil, fmt.Errorf("rule with ID %s: %w", id, ErrRuleNotFound)
	}
	return rule.Clone(), nil
}

// List returns every rule ordered by CreatedAt, then ID
func (s *InMemoryRuleStore) List() ([]*Rule, error) {
	return s.list(func(*Rule) bool { return true }), nil
}

// ListActive returns all active rules ordered by CreatedAt, then ID
func (s *InMemoryRuleStore) ListActive() ([]*Rule, error) {
	return s.list(func(r *Rule) bool { return r.Active }), nil
}

func (s *InMemoryRuleStore) list(keep func(*Rule) bool) []*Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Rule, 0, len(s.rules))
	for _, rule := range s.rules {
		if keep(rule) {
			out = append(out, rule.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Update updates an existing rule; UpdatedAt is refreshed and the original CreatedAt kept.
func (s *InMemoryRuleStore) Update(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.rules[rule.ID]
	if !exists {
		return fmt.Errorf("rule with ID %s: %w", rule.ID, ErrRuleNotFound)
	}

	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = s.now()
	s.rules[rule.ID] = rule.Clone()
	return nil
}

// Delete removes a rule from the store
func (s *InMemoryRuleStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[id]; !exists {
		return fmt.Errorf("rule with ID %s: %w", id, ErrRuleNotFound)
	}

	delete(s.rules, id)
	return nil
}
