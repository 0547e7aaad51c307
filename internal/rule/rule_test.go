package rule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRule() *Rule {
	return &Rule{
		ID:            "rule-1",
		Name:          "Escalate billing complaints",
		UserID:        "user-1",
		ConditionType: ConditionComplex,
		Conditions: []Condition{
			{Field: "subject", Operator: OpContains, Value: "billing"},
			{Field: "body", Operator: OpContains, Value: "refund"},
		},
		Action:    Action{Kind: ActionEscalate, Target: "billing-oncall"},
		Priority:  8,
		Active:    true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func TestRuleValidate(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	require.NoError(t, validRule().Validate())

	var nilRule *Rule

	require.ErrorIs(t, nilRule.Validate(), ErrRuleNil)

	tests := []struct {
		name    string
		mutate  func(*Rule)
		wantErr error
	}{
		{"empty ID", func(r *Rule) { r.ID = "" }, ErrRuleIDEmpty},
		{"empty name", func(r *Rule) { r.Name = "" }, ErrRuleNameEmpty},
		{"unknown condition type", func(r *Rule) { r.ConditionType = "fuzzy" }, ErrUnknownConditionType},
		{"no conditions", func(r *Rule) { r.Conditions = nil }, ErrNoConditions},
		{"empty condition field", func(r *Rule) { r.Conditions[0].Field = "" }, ErrConditionFieldEmpty},
		{"unknown operator", func(r *Rule) { r.Conditions[1].Operator = "like" }, ErrUnknownOperator},
		{"unknown action kind", func(r *Rule) { r.Action.Kind = "explode" }, ErrUnknownActionKind},
		{"priority too low", func(r *Rule) { r.Priority = 0 }, ErrPriorityOutOfRange},
		{"priority too high", func(r *Rule) { r.Priority = 11 }, ErrPriorityOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRule()
			tt.mutate(r)

			assert.ErrorIs(t, r.Validate(), tt.wantErr)
		})
	}
}

func TestRuleClone(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	original := validRule()
	original.Dependencies = []string{"notification"}

	clone := original.Clone()
	clone.Conditions[0].Value = "mutated"
	clone.Dependencies[0] = "mutated"

	assert.Equal(t, "billing", original.Conditions[0].Value)
	assert.Equal(t, "notification", original.Dependencies[0])

	var nilRule *Rule

	assert.Nil(t, nilRule.Clone())
}

func TestInMemoryStore(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := NewInMemoryStore()
	ctx := context.Background()

	_, err := store.GetRuleByID(ctx, "missing")
	require.ErrorIs(t, err, ErrRuleNotFound)

	r := validRule()
	require.NoError(t, store.Put(r))

	// The store rejects invalid definitions outright.
	bad := validRule()
	bad.Priority = 99
	require.ErrorIs(t, store.Put(bad), ErrPriorityOutOfRange)

	got, err := store.GetRuleByID(ctx, "rule-1")
	require.NoError(t, err)
	assert.Equal(t, r.Name, got.Name)

	// Lookups hand out clones.
	got.Conditions[0].Value = "mutated"

	again, err := store.GetRuleByID(ctx, "rule-1")
	require.NoError(t, err)
	assert.Equal(t, "billing", again.Conditions[0].Value)

	store.Delete("rule-1")

	_, err = store.GetRuleByID(ctx, "rule-1")
	assert.ErrorIs(t, err, ErrRuleNotFound)
}
