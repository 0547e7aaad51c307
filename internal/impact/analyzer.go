package impact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ruleiq-io/ruleiq/internal/analytics"
	"github.com/ruleiq-io/ruleiq/internal/rule"
	"github.com/ruleiq-io/ruleiq/internal/storage"
)

// Sentinel errors for impact analysis.
var (
	// ErrNoRuleProvided is returned when both rule versions are nil.
	ErrNoRuleProvided = errors.New("impact analysis requires at least one rule version")
	// ErrResultNil is returned when a nil result is validated.
	ErrResultNil = errors.New("impact result cannot be nil")
	// ErrScoreMismatch is returned when a persisted overall score does not
	// match the weighted composite of its dimensions.
	ErrScoreMismatch = errors.New("overall score does not match weighted dimensions")
	// ErrLevelMismatch is returned when a level does not match the configured thresholds.
	ErrLevelMismatch = errors.New("impact level does not match configured thresholds")
)

// Fixed sub-dimension baselines. Several heuristics have no historical
// signal to draw on yet (e.g. a brand-new rule has no baseline); these
// constants name the assumed values instead of burying magic numbers in
// the analyzers.
const (
	// defaultBaselineMs is assumed when a rule has no recorded executions.
	defaultBaselineMs = 100.0

	// perfFullScaleIncrease maps a predicted 100% slowdown to score 1.0.
	perfFullScaleIncrease = 1.0
	// perfRemovalScore reflects that removing a rule only frees capacity.
	perfRemovalScore = 0.1

	maxPriority       = 10.0
	maxComplexity     = 10.0
	maxDependencies   = 5.0
	fullCoverageCount = 100.0

	scoreValidationTolerance = 1e-9
)

// Stand-in sub-scores. These axes have no historical signal in the platform
// yet; the constants keep them visible in every assessment instead of
// burying assumed values inside the analyzers.
const (
	standInResourceImpact       = 0.3
	standInScalabilityImpact    = 0.3
	standInRevenue              = 0.3
	standInCompliance           = 0.2
	standInCompetitiveAdvantage = 0.2
	standInSupport              = 0.3
	standInTraining             = 0.2
	standInSecurity             = 0.2
	standInPrivacy              = 0.2
)

// Performance sub-score weights: the predicted slowdown dominates.
const (
	perfTimeWeight        = 0.6
	perfResourceWeight    = 0.2
	perfScalabilityWeight = 0.2
)

// Business sub-score weights.
const (
	bizCustomerWeight    = 0.5
	bizRevenueWeight     = 0.2
	bizComplianceWeight  = 0.15
	bizCompetitiveWeight = 0.15
)

// Operational sub-score weights.
const (
	opsMaintenanceWeight = 0.35
	opsIntegrationWeight = 0.25
	opsSupportWeight     = 0.2
	opsTrainingWeight    = 0.2
)

// Risk sub-score weights: stability is the only computed axis and dominates.
const (
	riskStabilityWeight  = 0.55
	riskSecurityWeight   = 0.15
	riskPrivacyWeight    = 0.15
	riskComplianceWeight = 0.15
)

// Stability sub-score mix.
const (
	stabilityFailureWeight  = 0.5
	stabilityChangeWeight   = 0.3
	stabilityCoverageWeight = 0.2
)

// Recommendation trigger thresholds.
const (
	perfRecommendThreshold = 0.7
	bizRecommendThreshold  = 0.6
	riskRecommendThreshold = 0.5
)

// Analyzer scores proposed rule changes along four dimensions against the
// analytics baseline. Safe for concurrent use; analyses are stateless apart
// from the append-only persistence of results.
type Analyzer struct {
	analytics *analytics.Service
	store     storage.Store
	cfg       *Config
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// NewAnalyzer creates an impact analyzer. A nil cfg gets the documented
// defaults.
func NewAnalyzer(analyticsSvc *analytics.Service, store storage.Store, cfg *Config, logger *slog.Logger) *Analyzer {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	return &Analyzer{
		analytics: analyticsSvc,
		store:     store,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// AnalyzeRuleChangeImpact assesses a proposed rule change. oldRule nil means
// creation, newRule nil means deletion. The four dimensions are analyzed
// concurrently; a panicking analyzer degrades to the default estimate rather
// than aborting the assessment. The result is persisted append-only; a
// persistence failure is logged and does not fail the analysis.
func (a *Analyzer) AnalyzeRuleChangeImpact(ctx context.Context, oldRule, newRule *rule.Rule) (*Result, error) {
	if oldRule == nil && newRule == nil {
		return nil, ErrNoRuleProvided
	}

	if newRule != nil {
		if err := newRule.Validate(); err != nil {
			return nil, fmt.Errorf("new rule invalid: %w", err)
		}
	}

	ruleID := ruleIDOf(oldRule, newRule)
	baseline := a.analytics.GetMetrics(ctx, ruleID, analytics.Range30d)
	changeType, fields := ClassifyChange(oldRule, newRule)

	dims := a.analyzeDimensions(baseline, oldRule, newRule, changeType)

	overall := a.overallScore(dims)

	result := &Result{
		AnalysisID:      a.newID(),
		RuleID:          ruleID,
		OldRule:         oldRule.Clone(),
		NewRule:         newRule.Clone(),
		ChangeType:      changeType,
		ChangedFields:   fields,
		Performance:     dims[0],
		Business:        dims[1],
		Operational:     dims[2],
		Risk:            dims[3],
		Overall:         overall,
		Recommendations: a.recommend(dims),
		CreatedAt:       a.now(),
	}

	a.persist(ctx, result)

	return result, nil
}

// analyzeDimensions runs the four analyzers concurrently. Results land in a
// fixed slot per dimension so ordering is deterministic regardless of
// completion order.
func (a *Analyzer) analyzeDimensions(baseline analytics.RuleMetrics, oldRule, newRule *rule.Rule, changeType ChangeType) [4]Dimension {
	analyzers := [4]struct {
		name DimensionName
		run  func() Dimension
	}{
		{DimPerformance, func() Dimension { return a.analyzePerformance(baseline, oldRule, newRule) }},
		{DimBusiness, func() Dimension { return a.analyzeBusiness(baseline, oldRule, newRule) }},
		{DimOperational, func() Dimension { return a.analyzeOperational(baseline, oldRule, newRule) }},
		{DimRisk, func() Dimension { return a.analyzeRisk(baseline, changeType) }},
	}

	var (
		dims [4]Dimension
		wg   sync.WaitGroup
	)

	for i, analyzer := range analyzers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			defer func() {
				if r := recover(); r != nil {
					a.logger.Error("Dimension analyzer panicked, using default estimate",
						slog.String("dimension", string(analyzer.name)),
						slog.Any("panic", r),
					)

					dims[i] = defaultDimension(analyzer.name)
				}
			}()

			dims[i] = analyzer.run()
		}()
	}

	wg.Wait()

	return dims
}

// analyzePerformance predicts the execution-time movement of the change and
// combines it with the resource and scalability stand-ins. The time sub-score
// scales linearly with the predicted relative slowdown: no change scores 0, a
// predicted doubling scores 1.
func (a *Analyzer) analyzePerformance(baseline analytics.RuleMetrics, oldRule, newRule *rule.Rule) Dimension {
	baselineMs := baseline.AverageExecutionTimeMs
	if baselineMs <= 0 {
		baselineMs = defaultBaselineMs
	}

	if newRule == nil {
		return Dimension{
			Name:       DimPerformance,
			Score:      perfRemovalScore,
			Confidence: sampleConfidence(baseline.TotalExecutions),
			Factors: map[string]float64{
				"baselineAvgMs":       baselineMs,
				"executionTimeImpact": perfRemovalScore,
				"resourceImpact":      standInResourceImpact,
				"scalabilityImpact":   standInScalabilityImpact,
			},
		}
	}

	predicted := PredictExecutionTime(baselineMs, oldRule, newRule)
	timeImpact := clamp01(((predicted - baselineMs) / baselineMs) / perfFullScaleIncrease)
	delta := ComplexityScore(newRule) - ComplexityScore(oldRule)

	score := timeImpact*perfTimeWeight +
		standInResourceImpact*perfResourceWeight +
		standInScalabilityImpact*perfScalabilityWeight

	return Dimension{
		Name:       DimPerformance,
		Score:      clamp01(score),
		Confidence: sampleConfidence(baseline.TotalExecutions),
		Factors: map[string]float64{
			"baselineAvgMs":       baselineMs,
			"predictedAvgMs":      predicted,
			"complexityDelta":     float64(delta),
			"executionTimeImpact": timeImpact,
			"resourceImpact":      standInResourceImpact,
			"scalabilityImpact":   standInScalabilityImpact,
		},
	}
}

// analyzeBusiness estimates user-facing reach. Customer experience is the
// computed axis (priority, action invasiveness, observed trigger rate); the
// revenue, compliance, and competitive axes are stand-ins.
func (a *Analyzer) analyzeBusiness(baseline analytics.RuleMetrics, oldRule, newRule *rule.Rule) Dimension {
	subject := newRule
	if subject == nil {
		subject = oldRule
	}

	customerExperience := clamp01(
		(float64(subject.Priority)/maxPriority + actionSeverity(subject.Action.Kind) + clamp01(baseline.TriggerRate/100)) / 3,
	)

	score := customerExperience*bizCustomerWeight +
		standInRevenue*bizRevenueWeight +
		standInCompliance*bizComplianceWeight +
		standInCompetitiveAdvantage*bizCompetitiveWeight

	return Dimension{
		Name:       DimBusiness,
		Score:      clamp01(score),
		Confidence: sampleConfidence(baseline.TotalExecutions),
		Factors: map[string]float64{
			"customerExperience":   customerExperience,
			"revenue":              standInRevenue,
			"compliance":           standInCompliance,
			"competitiveAdvantage": standInCompetitiveAdvantage,
		},
	}
}

// analyzeOperational estimates the maintenance burden of the new shape.
// Maintenance tracks structural complexity and integration tracks external
// dependencies; support and training are stand-ins.
func (a *Analyzer) analyzeOperational(baseline analytics.RuleMetrics, oldRule, newRule *rule.Rule) Dimension {
	subject := newRule
	if subject == nil {
		subject = oldRule
	}

	maintenance := clamp01(float64(ComplexityScore(subject)) / maxComplexity)
	integration := clamp01(float64(len(subject.Dependencies)) / maxDependencies)

	score := maintenance*opsMaintenanceWeight +
		integration*opsIntegrationWeight +
		standInSupport*opsSupportWeight +
		standInTraining*opsTrainingWeight

	return Dimension{
		Name:       DimOperational,
		Score:      clamp01(score),
		Confidence: sampleConfidence(baseline.TotalExecutions),
		Factors: map[string]float64{
			"maintenance": maintenance,
			"integration": integration,
			"support":     standInSupport,
			"training":    standInTraining,
		},
	}
}

// analyzeRisk estimates regression exposure. Stability is the computed axis
// (historical failure rate, change-type severity, observation coverage);
// security, privacy, and compliance are stand-ins.
func (a *Analyzer) analyzeRisk(baseline analytics.RuleMetrics, changeType ChangeType) Dimension {
	failureTerm := 0.0
	if baseline.TotalExecutions > 0 {
		failureTerm = clamp01((100 - baseline.SuccessRate) / 100)
	}

	coverageGap := 1 - clamp01(float64(baseline.TotalExecutions)/fullCoverageCount)

	stability := clamp01(failureTerm*stabilityFailureWeight +
		changeSeverity(changeType)*stabilityChangeWeight +
		coverageGap*stabilityCoverageWeight)

	score := stability*riskStabilityWeight +
		standInSecurity*riskSecurityWeight +
		standInPrivacy*riskPrivacyWeight +
		standInCompliance*riskComplianceWeight

	return Dimension{
		Name:       DimRisk,
		Score:      clamp01(score),
		Confidence: sampleConfidence(baseline.TotalExecutions),
		Factors: map[string]float64{
			"stability":   stability,
			"security":    standInSecurity,
			"privacy":     standInPrivacy,
			"compliance":  standInCompliance,
			"failureRate": failureTerm,
			"coverageGap": coverageGap,
		},
	}
}

// overallScore combines the dimensions with the configured weights and maps
// the composite onto a categorical level.
func (a *Analyzer) overallScore(dims [4]Dimension) Overall {
	score := dims[0].Score*a.cfg.Weights.Performance +
		dims[1].Score*a.cfg.Weights.Business +
		dims[2].Score*a.cfg.Weights.Operational +
		dims[3].Score*a.cfg.Weights.Risk

	return Overall{
		Score: score,
		Level: a.levelFor(score),
	}
}

func (a *Analyzer) levelFor(score float64) Level {
	switch {
	case score >= a.cfg.Levels.High:
		return LevelHigh
	case score >= a.cfg.Levels.Medium:
		return LevelMedium
	case score >= a.cfg.Levels.Low:
		return LevelLow
	default:
		return LevelMinimal
	}
}

// recommend derives actionable suggestions from the dimension scores.
func (a *Analyzer) recommend(dims [4]Dimension) []Recommendation {
	recommendations := make([]Recommendation, 0)

	if dims[0].Score > perfRecommendThreshold {
		recommendations = append(recommendations, Recommendation{
			Category:    "performance",
			Priority:    "high",
			Title:       "Optimize rule before deployment",
			Description: "The change is predicted to slow rule execution significantly.",
			Actions: []string{
				"Reduce condition count or replace complex conditions with simple ones",
				"Benchmark the new rule against the current baseline before rollout",
			},
		})
	}

	if dims[1].Score > bizRecommendThreshold {
		recommendations = append(recommendations, Recommendation{
			Category:    "business",
			Priority:    "medium",
			Title:       "Review change with stakeholders",
			Description: "The rule has high priority or user-visible actions; the change affects live email handling.",
			Actions: []string{
				"Confirm the change with the rule owner",
				"Schedule the rollout outside peak email hours",
			},
		})
	}

	if dims[3].Score > riskRecommendThreshold {
		recommendations = append(recommendations, Recommendation{
			Category:    "risk",
			Priority:    "high",
			Title:       "Mitigate regression risk",
			Description: "Historical failures or thin execution coverage make regressions likely to go unnoticed.",
			Actions: []string{
				"Generate and run an automated test suite for the new rule version",
				"Monitor failure rate closely after rollout and prepare a rollback",
			},
		})
	}

	return recommendations
}

// ValidateCalculations re-derives the overall score and level from a result's
// dimensions and checks them against the stored values. Used by tests and by
// CI to catch scoring regressions.
func (a *Analyzer) ValidateCalculations(result *Result) error {
	if result == nil {
		return ErrResultNil
	}

	expected := a.overallScore([4]Dimension{result.Performance, result.Business, result.Operational, result.Risk})

	if math.Abs(expected.Score-result.Overall.Score) > scoreValidationTolerance {
		return fmt.Errorf("%w: stored=%v recomputed=%v", ErrScoreMismatch, result.Overall.Score, expected.Score)
	}

	if expected.Level != result.Overall.Level {
		return fmt.Errorf("%w: stored=%q expected=%q", ErrLevelMismatch, result.Overall.Level, expected.Level)
	}

	return a.cfg.ValidateThresholds()
}

func (a *Analyzer) persist(ctx context.Context, result *Result) {
	data, err := json.Marshal(result)
	if err != nil {
		a.logger.Error("Failed to marshal impact analysis",
			slog.String("analysis_id", result.AnalysisID),
			slog.String("error", err.Error()),
		)

		return
	}

	row := &storage.ImpactAnalysisRow{
		AnalysisID:   result.AnalysisID,
		RuleID:       result.RuleID,
		AnalysisData: data,
		CreatedAt:    result.CreatedAt,
	}

	if err := a.store.AppendImpactAnalysis(ctx, row); err != nil {
		a.logger.Warn("Impact analysis not persisted, continuing",
			slog.String("analysis_id", result.AnalysisID),
			slog.String("rule_id", result.RuleID),
			slog.String("error", err.Error()),
		)
	}
}

// sampleConfidence maps the baseline sample size onto a confidence ladder.
// More history means tighter estimates, topping out at 0.9.
func sampleConfidence(samples int) float64 {
	switch {
	case samples > 100:
		return 0.9
	case samples > 50:
		return 0.8
	case samples > 20:
		return 0.7
	case samples > 10:
		return 0.6
	default:
		return 0.5
	}
}

// actionSeverity ranks how invasive an action is from the email owner's
// perspective. Outbound actions rank highest.
func actionSeverity(kind rule.ActionKind) float64 {
	switch kind {
	case rule.ActionAutoReply:
		return 1.0
	case rule.ActionEscalate:
		return 0.9
	case rule.ActionForward:
		return 0.7
	case rule.ActionMove:
		return 0.4
	case rule.ActionArchive:
		return 0.4
	case rule.ActionLabel:
		return 0.2
	default:
		return 0.5
	}
}

func changeSeverity(changeType ChangeType) float64 {
	switch changeType {
	case ChangeRemoval:
		return 1.0
	case ChangeModification:
		return 0.6
	case ChangeAddition:
		return 0.4
	case ChangeNone:
		return 0.0
	default:
		return 0.5
	}
}

func ruleIDOf(oldRule, newRule *rule.Rule) string {
	if newRule != nil {
		return newRule.ID
	}

	return oldRule.ID
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}

	if v > 1 {
		return 1
	}

	return v
}
