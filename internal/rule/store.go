package rule

import (
	"context"
	"errors"
	"sync"
)

// ErrRuleNotFound is returned when a rule lookup misses. Callers creating a
// test suite for a missing rule must handle this explicitly.
var ErrRuleNotFound = errors.New("rule not found")

// Store defines the rule-definition lookup boundary. The live catalog lives
// in the rule-management service; this module only reads from it.
type Store interface {
	// GetRuleByID retrieves a rule definition by ID.
	// Returns ErrRuleNotFound when no rule exists with the given ID.
	GetRuleByID(ctx context.Context, ruleID string) (*Rule, error)
}

// InMemoryStore provides a thread-safe in-memory rule catalog.
// Used by tests and by deployments that sync rule definitions in-process.
type InMemoryStore struct {
	rules map[string]*Rule
	mutex sync.RWMutex
}

// NewInMemoryStore creates an empty in-memory rule store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		rules: make(map[string]*Rule),
	}
}

// Put stores a rule after validating it. Existing definitions with the same
// ID are replaced.
func (s *InMemoryStore) Put(r *Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	// Store a copy to prevent external modification
	s.rules[r.ID] = r.Clone()

	return nil
}

// GetRuleByID retrieves a rule definition by ID.
func (s *InMemoryStore) GetRuleByID(_ context.Context, ruleID string) (*Rule, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	r, exists := s.rules[ruleID]
	if !exists {
		return nil, ErrRuleNotFound
	}

	return r.Clone(), nil
}

// Delete removes a rule definition. Missing IDs are a no-op.
func (s *InMemoryStore) Delete(ruleID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.rules, ruleID)
}
