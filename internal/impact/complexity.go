package impact

import (
	"github.com/ruleiq-io/ruleiq/internal/rule"
)

// Complexity scoring constants. The score is a small integer proxy for how
// expensive a rule is to evaluate; deltas between old and new scores drive
// the performance prediction.
const (
	complexityBase             = 1
	complexityComplexCondition = 2
	complexitySimpleCondition  = 1
	complexityEscalate         = 1
	complexityAutoReply        = 2
	complexityHighPriority     = 1
	highPriorityThreshold      = 7
)

// Performance prediction constants.
const (
	// Each point of added complexity is predicted to cost 20% of the
	// baseline execution time; removed complexity recovers only 10%,
	// reflecting that simplifications rarely pay back linearly.
	complexityGrowthFactor = 0.20
	complexityShrinkFactor = 0.10

	addedConditionFactor = 0.15
	addedActionFactor    = 0.10
)

// ComplexityScore computes the integer complexity of a rule:
// base 1, +2 for a complex condition type (else +1), +1 per condition beyond
// the first, +1 for an escalate action or +2 for auto-reply, and +1 when
// priority exceeds 7. A nil rule scores 0.
func ComplexityScore(r *rule.Rule) int {
	if r == nil {
		return 0
	}

	score := complexityBase

	if r.ConditionType == rule.ConditionComplex {
		score += complexityComplexCondition
	} else {
		score += complexitySimpleCondition
	}

	if len(r.Conditions) > 1 {
		score += len(r.Conditions) - 1
	}

	switch r.Action.Kind {
	case rule.ActionEscalate:
		score += complexityEscalate
	case rule.ActionAutoReply:
		score += complexityAutoReply
	}

	if r.Priority > highPriorityThreshold {
		score += complexityHighPriority
	}

	return score
}

// PredictExecutionTime estimates the new rule's execution time from the
// baseline average and the complexity delta, then adjusts for structurally
// added conditions (+15% each) and added actions (+10% each).
func PredictExecutionTime(baselineAvgMs float64, oldRule, newRule *rule.Rule) float64 {
	delta := ComplexityScore(newRule) - ComplexityScore(oldRule)

	predicted := baselineAvgMs

	switch {
	case delta > 0:
		predicted *= 1 + complexityGrowthFactor*float64(delta)
	case delta < 0:
		predicted *= 1 + complexityShrinkFactor*float64(delta)
	}

	if added := addedConditions(oldRule, newRule); added > 0 {
		predicted *= 1 + addedConditionFactor*float64(added)
	}

	if added := addedActions(oldRule, newRule); added > 0 {
		predicted *= 1 + addedActionFactor*float64(added)
	}

	if predicted < 0 {
		predicted = 0
	}

	return predicted
}

func addedConditions(oldRule, newRule *rule.Rule) int {
	oldCount := 0
	if oldRule != nil {
		oldCount = len(oldRule.Conditions)
	}

	newCount := 0
	if newRule != nil {
		newCount = len(newRule.Conditions)
	}

	if newCount > oldCount {
		return newCount - oldCount
	}

	return 0
}

// addedActions counts actions present in the new rule with no counterpart in
// the old one. Rules carry a single action, so this is 1 exactly when a rule
// is being created from scratch.
func addedActions(oldRule, newRule *rule.Rule) int {
	if newRule == nil {
		return 0
	}

	if oldRule == nil {
		return 1
	}

	return 0
}
