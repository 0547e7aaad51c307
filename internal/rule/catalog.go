package rule

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrCatalogEmpty is returned when a catalog file parses but defines no rules.
var ErrCatalogEmpty = errors.New("rule catalog defines no rules")

type (
	// catalogFile is the on-disk layout: rule definitions live under "rules".
	catalogFile struct {
		Rules []catalogRule `yaml:"rules"`
	}

	catalogRule struct {
		ID            string             `yaml:"id"`
		Name          string             `yaml:"name"`
		UserID        string             `yaml:"userId"`
		ConditionType string             `yaml:"conditionType"`
		Conditions    []catalogCondition `yaml:"conditions"`
		Action        catalogAction      `yaml:"action"`
		Priority      int                `yaml:"priority"`
		Dependencies  []string           `yaml:"dependencies"`
		Active        *bool              `yaml:"active"`
	}

	catalogCondition struct {
		Field    string `yaml:"field"`
		Operator string `yaml:"operator"`
		Value    string `yaml:"value"`
	}

	catalogAction struct {
		Kind   string `yaml:"kind"`
		Target string `yaml:"target"`
	}
)

// LoadCatalogFile reads a YAML rule catalog and returns validated rule
// definitions. Deployments that do not sync rules from the rule-management
// service use this to seed the in-memory store at startup.
//
// Every rule in the file must validate; a single bad definition fails the
// whole load so a broken catalog is caught at startup rather than at first
// lookup. Rules without an explicit "active" field default to active.
func LoadCatalogFile(path string) ([]*Rule, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from trusted deployment config
	if err != nil {
		return nil, fmt.Errorf("failed to read rule catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rule catalog: %w", err)
	}

	if len(file.Rules) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrCatalogEmpty, path)
	}

	now := time.Now()
	rules := make([]*Rule, 0, len(file.Rules))

	for i, entry := range file.Rules {
		r := entry.toRule(now)

		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("rule catalog entry %d (%q): %w", i, entry.ID, err)
		}

		rules = append(rules, r)
	}

	return rules, nil
}

// LoadAll validates and stores every rule in the slice.
func (s *InMemoryStore) LoadAll(rules []*Rule) error {
	for _, r := range rules {
		if err := s.Put(r); err != nil {
			return fmt.Errorf("failed to load rule %q: %w", r.ID, err)
		}
	}

	return nil
}

func (e catalogRule) toRule(now time.Time) *Rule {
	conditions := make([]Condition, 0, len(e.Conditions))
	for _, c := range e.Conditions {
		conditions = append(conditions, Condition{
			Field:    c.Field,
			Operator: Operator(c.Operator),
			Value:    c.Value,
		})
	}

	active := true
	if e.Active != nil {
		active = *e.Active
	}

	return &Rule{
		ID:            e.ID,
		Name:          e.Name,
		UserID:        e.UserID,
		ConditionType: ConditionType(e.ConditionType),
		Conditions:    conditions,
		Action: Action{
			Kind:   ActionKind(e.Action.Kind),
			Target: e.Action.Target,
		},
		Priority:     e.Priority,
		Dependencies: e.Dependencies,
		Active:       active,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
