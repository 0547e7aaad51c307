// Package rule provides the typed rule domain model and the condition
// simulator used by analytics, impact analysis, and automated testing.
//
// Rules are defined and evaluated against live email traffic outside this
// module; here they are a closed, validated model so that unknown condition
// or action kinds are rejected at construction rather than silently
// defaulting somewhere downstream.
package rule

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for rule validation.
var (
	// ErrRuleNil is returned when a nil rule is provided.
	ErrRuleNil = errors.New("rule cannot be nil")
	// ErrRuleIDEmpty is returned when a rule has no ID.
	ErrRuleIDEmpty = errors.New("rule ID cannot be empty")
	// ErrRuleNameEmpty is returned when a rule has no name.
	ErrRuleNameEmpty = errors.New("rule name cannot be empty")
	// ErrNoConditions is returned when a rule has no conditions.
	ErrNoConditions = errors.New("rule must have at least one condition")
	// ErrUnknownConditionType is returned for condition types outside the closed set.
	ErrUnknownConditionType = errors.New("unknown condition type")
	// ErrUnknownOperator is returned for operators outside the closed set.
	ErrUnknownOperator = errors.New("unknown condition operator")
	// ErrUnknownActionKind is returned for action kinds outside the closed set.
	ErrUnknownActionKind = errors.New("unknown action kind")
	// ErrPriorityOutOfRange is returned when priority is not in [1,10].
	ErrPriorityOutOfRange = errors.New("rule priority must be between 1 and 10")
	// ErrConditionFieldEmpty is returned when a condition has no field.
	ErrConditionFieldEmpty = errors.New("condition field cannot be empty")
)

type (
	// ConditionType classifies the overall shape of a rule's condition set.
	ConditionType string

	// Operator is a comparison applied by a single condition.
	Operator string

	// ActionKind is the action a rule takes when its conditions match.
	ActionKind string

	// Condition is a single field comparison evaluated against an email.
	//
	// Field names address the email fact map (e.g. "from", "subject", "body",
	// "size"). Value is the literal compared against; for "gt"/"lt" it must
	// parse as a number.
	Condition struct {
		Field    string   `json:"field"`
		Operator Operator `json:"operator"`
		Value    string   `json:"value"`
	}

	// Action is what a rule does when triggered.
	Action struct {
		Kind   ActionKind `json:"kind"`
		Target string     `json:"target,omitempty"`
	}

	// Rule is a business condition/action pair evaluated against incoming
	// email events. The live catalog is owned by the rule-management surface;
	// this module only reads rule definitions through a Store.
	Rule struct {
		ID            string        `json:"id"`
		Name          string        `json:"name"`
		UserID        string        `json:"userId"`
		ConditionType ConditionType `json:"conditionType"`
		Conditions    []Condition   `json:"conditions"`
		Action        Action        `json:"action"`
		Priority      int           `json:"priority"`
		// Dependencies lists external sinks the rule interacts with
		// (e.g. "email", "notification"); integration tests verify each.
		Dependencies []string  `json:"dependencies,omitempty"`
		Active       bool      `json:"active"`
		CreatedAt    time.Time `json:"createdAt"`
		UpdatedAt    time.Time `json:"updatedAt"`
	}
)

// Closed condition type set.
const (
	ConditionSimple  ConditionType = "simple"
	ConditionComplex ConditionType = "complex"
)

// Closed operator set.
const (
	OpEquals      Operator = "equals"
	OpContains    Operator = "contains"
	OpMatches     Operator = "matches"
	OpGreaterThan Operator = "gt"
	OpLessThan    Operator = "lt"
)

// Closed action kind set.
const (
	ActionMove      ActionKind = "move"
	ActionLabel     ActionKind = "label"
	ActionForward   ActionKind = "forward"
	ActionArchive   ActionKind = "archive"
	ActionEscalate  ActionKind = "escalate"
	ActionAutoReply ActionKind = "auto_reply"
)

const (
	minPriority = 1
	maxPriority = 10
)

// Valid reports whether the condition type is in the closed set.
func (t ConditionType) Valid() bool {
	switch t {
	case ConditionSimple, ConditionComplex:
		return true
	default:
		return false
	}
}

// Valid reports whether the operator is in the closed set.
func (o Operator) Valid() bool {
	switch o {
	case OpEquals, OpContains, OpMatches, OpGreaterThan, OpLessThan:
		return true
	default:
		return false
	}
}

// Valid reports whether the action kind is in the closed set.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionMove, ActionLabel, ActionForward, ActionArchive, ActionEscalate, ActionAutoReply:
		return true
	default:
		return false
	}
}

// Validate checks the rule against the closed domain model.
// Unknown condition/action kinds are rejected here so downstream scoring and
// test generation only ever see well-formed rules.
func (r *Rule) Validate() error {
	if r == nil {
		return ErrRuleNil
	}

	if r.ID == "" {
		return ErrRuleIDEmpty
	}

	if r.Name == "" {
		return ErrRuleNameEmpty
	}

	if !r.ConditionType.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownConditionType, r.ConditionType)
	}

	if len(r.Conditions) == 0 {
		return ErrNoConditions
	}

	for i, cond := range r.Conditions {
		if cond.Field == "" {
			return fmt.Errorf("%w: condition %d", ErrConditionFieldEmpty, i)
		}

		if !cond.Operator.Valid() {
			return fmt.Errorf("%w: %q (condition %d)", ErrUnknownOperator, cond.Operator, i)
		}
	}

	if !r.Action.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownActionKind, r.Action.Kind)
	}

	if r.Priority < minPriority || r.Priority > maxPriority {
		return fmt.Errorf("%w: got %d", ErrPriorityOutOfRange, r.Priority)
	}

	return nil
}

// Clone returns a deep copy of the rule. Stores hand out clones so callers
// cannot mutate shared definitions.
func (r *Rule) Clone() *Rule {
	if r == nil {
		return nil
	}

	clone := *r
	clone.Conditions = make([]Condition, len(r.Conditions))
	copy(clone.Conditions, r.Conditions)

	if r.Dependencies != nil {
		clone.Dependencies = make([]string, len(r.Dependencies))
		copy(clone.Dependencies, r.Dependencies)
	}

	return &clone
}
