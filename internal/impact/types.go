package impact

import (
	"time"

	"github.com/ruleiq-io/ruleiq/internal/rule"
)

type (
	// Level is the categorical severity of an overall impact score.
	Level string

	// ChangeType classifies a rule mutation by its field-set diff.
	ChangeType string

	// DimensionName identifies one impact axis.
	DimensionName string

	// Dimension is one axis of an impact assessment. Score estimates how
	// disruptive the change is along this axis; Confidence reflects the
	// historical sample size backing the estimate. Both are in [0,1].
	Dimension struct {
		Name       DimensionName      `json:"name"`
		Score      float64            `json:"score"`
		Confidence float64            `json:"confidence"`
		Factors    map[string]float64 `json:"factors"`
		// Degraded marks a dimension whose analyzer failed and fell back to
		// the documented default estimate.
		Degraded bool `json:"degraded,omitempty"`
	}

	// Overall is the weighted composite of the four dimensions.
	Overall struct {
		Score float64 `json:"score"`
		Level Level   `json:"level"`
	}

	// Recommendation is one actionable suggestion derived from the scores.
	Recommendation struct {
		Category    string   `json:"category"`
		Priority    string   `json:"priority"`
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Actions     []string `json:"actions"`
	}

	// Result is one complete impact assessment of a proposed rule change.
	// Persisted append-only; never mutated after creation.
	Result struct {
		AnalysisID      string           `json:"analysisId"`
		RuleID          string           `json:"ruleId"`
		OldRule         *rule.Rule       `json:"oldRule,omitempty"`
		NewRule         *rule.Rule       `json:"newRule"`
		ChangeType      ChangeType       `json:"changeType"`
		ChangedFields   []string         `json:"changedFields,omitempty"`
		Performance     Dimension        `json:"performance"`
		Business        Dimension        `json:"business"`
		Operational     Dimension        `json:"operational"`
		Risk            Dimension        `json:"risk"`
		Overall         Overall          `json:"overall"`
		Recommendations []Recommendation `json:"recommendations"`
		CreatedAt       time.Time        `json:"createdAt"`
	}
)

// Categorical levels, most severe first.
const (
	LevelHigh    Level = "high"
	LevelMedium  Level = "medium"
	LevelLow     Level = "low"
	LevelMinimal Level = "minimal"
)

// Change classifications.
const (
	ChangeAddition     ChangeType = "addition"
	ChangeRemoval      ChangeType = "removal"
	ChangeModification ChangeType = "modification"
	ChangeNone         ChangeType = "no_change"
)

// Dimension names.
const (
	DimPerformance DimensionName = "performance"
	DimBusiness    DimensionName = "business"
	DimOperational DimensionName = "operational"
	DimRisk        DimensionName = "risk"
)

// Default estimate used when a dimension analyzer fails: low score, low
// confidence. Partial insight is preferred over an aborted assessment.
const (
	defaultDimensionScore      = 0.3
	defaultDimensionConfidence = 0.3
)

// defaultDimension is the documented fallback for a failed analyzer.
func defaultDimension(name DimensionName) Dimension {
	return Dimension{
		Name:       name,
		Score:      defaultDimensionScore,
		Confidence: defaultDimensionConfidence,
		Degraded:   true,
	}
}
