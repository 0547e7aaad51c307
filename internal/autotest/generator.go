package autotest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ruleiq-io/ruleiq/internal/rule"
	"github.com/ruleiq-io/ruleiq/internal/storage"
)

// Performance case defaults.
const (
	DefaultPerformanceIterations = 100
	DefaultMaxExecutionTimeMs    = 500
	DefaultMinSuccessRate        = 95
)

// CreateOptions tunes suite generation. The zero value generates unit,
// integration (when the rule declares dependencies), and performance cases
// with the documented defaults.
type CreateOptions struct {
	// IncludeEdgeCases adds empty-input and null-input cases.
	IncludeEdgeCases bool
	// BaselineSuiteID names a previously executed suite whose recorded
	// outcomes become regression baselines. Empty means no regression cases.
	BaselineSuiteID string

	PerformanceIterations int
	MaxExecutionTimeMs    float64
	MinSuccessRate        float64

	// CustomCases are appended verbatim after the generated cases.
	CustomCases []TestCase
}

// CreateTestSuite loads the rule, generates test cases per category, appends
// any custom cases, and persists the suite in state created.
//
// A missing rule returns rule.ErrRuleNotFound: this is the one error callers
// must handle explicitly.
func (s *Service) CreateTestSuite(ctx context.Context, ruleID string, opts CreateOptions) (*TestSuite, error) {
	r, err := s.rules.GetRuleByID(ctx, ruleID)
	if err != nil {
		return nil, err
	}

	suite := &TestSuite{
		ID:        s.newID(),
		RuleID:    r.ID,
		UserID:    r.UserID,
		Rule:      r,
		Status:    StatusCreated,
		CreatedAt: s.now(),
	}

	suite.Cases = append(suite.Cases, s.unitCases(suite)...)
	suite.Cases = append(suite.Cases, s.integrationCases(suite)...)
	suite.Cases = append(suite.Cases, s.performanceCase(suite, opts))

	if opts.IncludeEdgeCases {
		suite.Cases = append(suite.Cases, s.edgeCases(suite)...)
	}

	if opts.BaselineSuiteID != "" {
		regressions, err := s.regressionCases(ctx, opts.BaselineSuiteID)
		if err != nil {
			return nil, err
		}

		suite.Cases = append(suite.Cases, regressions...)
	}

	for _, custom := range opts.CustomCases {
		if !custom.Type.Valid() {
			return nil, fmt.Errorf("%w: %q (custom case %q)", ErrUnknownTestType, custom.Type, custom.Name)
		}

		if custom.ID == "" {
			custom.ID = s.newID()
		}

		suite.Cases = append(suite.Cases, custom)
	}

	if err := s.saveSuite(ctx, suite); err != nil {
		return nil, err
	}

	s.logger.Info("Test suite created",
		slog.String("suite_id", suite.ID),
		slog.String("rule_id", suite.RuleID),
		slog.Int("cases", len(suite.Cases)),
	)

	return suite, nil
}

// GetTestSuite retrieves a persisted suite by ID.
func (s *Service) GetTestSuite(ctx context.Context, suiteID string) (*TestSuite, error) {
	row, err := s.store.GetTestSuite(ctx, suiteID)
	if err != nil {
		return nil, err
	}

	var suite TestSuite
	if err := json.Unmarshal(row.SuiteData, &suite); err != nil {
		return nil, fmt.Errorf("failed to decode suite %s: %w", suiteID, err)
	}

	// The row's lifecycle columns are authoritative.
	suite.Status = SuiteStatus(row.Status)
	suite.LastExecuted = row.LastExecuted

	return &suite, nil
}

// unitCases synthesizes one fixture satisfying the rule's conditions and one
// breaking them, each with a deterministic expected outcome.
func (s *Service) unitCases(suite *TestSuite) []TestCase {
	r := suite.Rule

	return []TestCase{
		{
			ID:    s.newID(),
			Name:  fmt.Sprintf("%s matches intended email", r.Name),
			Type:  TypeUnit,
			Input: rule.MatchingFixture(r),
			Expected: &Expectation{
				Triggered: true,
				Action:    r.Action.Kind,
				Target:    r.Action.Target,
			},
		},
		{
			ID:       s.newID(),
			Name:     fmt.Sprintf("%s ignores unrelated email", r.Name),
			Type:     TypeUnit,
			Input:    rule.NonMatchingFixture(r),
			Expected: &Expectation{Triggered: false},
		},
	}
}

// integrationCases exercises the rule's declared external dependencies.
// Rules without dependencies get no integration case.
func (s *Service) integrationCases(suite *TestSuite) []TestCase {
	r := suite.Rule

	if len(r.Dependencies) == 0 {
		return nil
	}

	return []TestCase{
		{
			ID:    s.newID(),
			Name:  fmt.Sprintf("%s reaches declared dependencies", r.Name),
			Type:  TypeIntegration,
			Input: rule.MatchingFixture(r),
			Expected: &Expectation{
				Triggered: true,
				Action:    r.Action.Kind,
				Target:    r.Action.Target,
			},
			Dependencies: append([]string(nil), r.Dependencies...),
		},
	}
}

func (s *Service) performanceCase(suite *TestSuite, opts CreateOptions) TestCase {
	spec := &PerformanceSpec{
		Iterations:         opts.PerformanceIterations,
		MaxExecutionTimeMs: opts.MaxExecutionTimeMs,
		MinSuccessRate:     opts.MinSuccessRate,
	}

	if spec.Iterations <= 0 {
		spec.Iterations = DefaultPerformanceIterations
	}

	if spec.MaxExecutionTimeMs <= 0 {
		spec.MaxExecutionTimeMs = DefaultMaxExecutionTimeMs
	}

	if spec.MinSuccessRate <= 0 {
		spec.MinSuccessRate = DefaultMinSuccessRate
	}

	return TestCase{
		ID:          s.newID(),
		Name:        fmt.Sprintf("%s stays within time budget", suite.Rule.Name),
		Type:        TypePerformance,
		Input:       rule.MatchingFixture(suite.Rule),
		Performance: spec,
	}
}

// edgeCases assert graceful handling of degenerate input: the simulation must
// settle without crashing, whatever the outcome.
func (s *Service) edgeCases(suite *TestSuite) []TestCase {
	return []TestCase{
		{
			ID:    s.newID(),
			Name:  fmt.Sprintf("%s handles empty email", suite.Rule.Name),
			Type:  TypeEdgeCase,
			Input: map[string]any{},
		},
		{
			ID:    s.newID(),
			Name:  fmt.Sprintf("%s handles null email", suite.Rule.Name),
			Type:  TypeEdgeCase,
			Input: nil,
		},
	}
}

// regressionCases builds one case per stored baseline outcome: the inputs
// come from the baseline suite's cases, the expected outcomes from its
// recorded results.
func (s *Service) regressionCases(ctx context.Context, baselineSuiteID string) ([]TestCase, error) {
	baseline, err := s.GetTestSuite(ctx, baselineSuiteID)
	if err != nil {
		return nil, fmt.Errorf("failed to load baseline suite: %w", err)
	}

	rows, err := s.store.ListTestResults(ctx, baselineSuiteID)
	if err != nil {
		return nil, fmt.Errorf("failed to load baseline results: %w", err)
	}

	// Later results win: re-executions append, and the newest run is the
	// baseline of record for each case.
	latestOutcome := make(map[string]*Expectation)

	for _, row := range rows {
		var result TestResult
		if err := json.Unmarshal(row.ResultData, &result); err != nil {
			continue
		}

		if result.Outcome != nil {
			latestOutcome[result.TestCaseID] = result.Outcome
		}
	}

	cases := make([]TestCase, 0, len(latestOutcome))

	for _, c := range baseline.Cases {
		outcome, ok := latestOutcome[c.ID]
		if !ok {
			continue
		}

		if c.Type != TypeUnit && c.Type != TypeIntegration {
			continue
		}

		cases = append(cases, TestCase{
			ID:       s.newID(),
			Name:     fmt.Sprintf("regression: %s", c.Name),
			Type:     TypeRegression,
			Input:    c.Input,
			Baseline: outcome,
		})
	}

	return cases, nil
}

func (s *Service) saveSuite(ctx context.Context, suite *TestSuite) error {
	data, err := json.Marshal(suite)
	if err != nil {
		return fmt.Errorf("failed to encode suite: %w", err)
	}

	return s.store.SaveTestSuite(ctx, &storage.TestSuiteRow{
		ID:           suite.ID,
		RuleID:       suite.RuleID,
		UserID:       suite.UserID,
		SuiteData:    data,
		Status:       string(suite.Status),
		CreatedAt:    suite.CreatedAt,
		LastExecuted: suite.LastExecuted,
	})
}

// updateSuite persists a lifecycle transition.
func (s *Service) updateSuite(ctx context.Context, suite *TestSuite) error {
	data, err := json.Marshal(suite)
	if err != nil {
		return fmt.Errorf("failed to encode suite: %w", err)
	}

	return s.store.UpdateTestSuite(ctx, &storage.TestSuiteRow{
		ID:           suite.ID,
		RuleID:       suite.RuleID,
		UserID:       suite.UserID,
		SuiteData:    data,
		Status:       string(suite.Status),
		CreatedAt:    suite.CreatedAt,
		LastExecuted: suite.LastExecuted,
	})
}
