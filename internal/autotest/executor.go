package autotest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ruleiq-io/ruleiq/internal/rule"
	"github.com/ruleiq-io/ruleiq/internal/storage"
)

// Execution defaults.
const (
	// DefaultMaxConcurrentTests bounds peak concurrency within one batch.
	DefaultMaxConcurrentTests = 5
	// DefaultCaseTimeout bounds one case execution.
	DefaultCaseTimeout = 30 * time.Second
)

// ExecuteOptions tunes one suite execution. The zero value runs every case
// in parallel batches of DefaultMaxConcurrentTests with the default per-case
// timeout.
type ExecuteOptions struct {
	// Types filters the cases to execute. Empty means all.
	Types []TestType
	// Sequential disables batched parallelism.
	Sequential bool
	// MaxConcurrentTests is the batch size for parallel execution.
	MaxConcurrentTests int
	// CaseTimeout bounds each case; exceeding it yields a failed result,
	// not a hang.
	CaseTimeout time.Duration
	// DetailedReport additionally generates and persists an execution report.
	DetailedReport bool
}

// ExecuteTestSuite runs a persisted suite: transitions it to running, executes
// the (optionally filtered) cases sequentially or in contiguous parallel
// batches, persists all results, aggregates the summary, and transitions the
// suite to completed. The suite transitions to failed only when the execution
// machinery itself breaks (suite missing mid-run, persistence of the final
// state failing); individual case failures leave the suite completed.
func (s *Service) ExecuteTestSuite(ctx context.Context, suiteID string, opts ExecuteOptions) (*Execution, error) {
	suite, err := s.GetTestSuite(ctx, suiteID)
	if err != nil {
		return nil, err
	}

	cases := filterCases(suite.Cases, opts.Types)
	if len(cases) == 0 {
		return nil, fmt.Errorf("%w: suite %s", ErrNoCasesSelected, suiteID)
	}

	startedAt := s.now()

	suite.Status = StatusRunning
	suite.LastExecuted = &startedAt

	if err := s.updateSuite(ctx, suite); err != nil {
		return nil, fmt.Errorf("failed to transition suite to running: %w", err)
	}

	timeout := opts.CaseTimeout
	if timeout <= 0 {
		timeout = DefaultCaseTimeout
	}

	var results []TestResult
	if opts.Sequential {
		results = s.runSequential(ctx, suite, cases, timeout)
	} else {
		batchSize := opts.MaxConcurrentTests
		if batchSize <= 0 {
			batchSize = DefaultMaxConcurrentTests
		}

		results = s.runBatched(ctx, suite, cases, batchSize, timeout)
	}

	execution := &Execution{
		SuiteID:   suite.ID,
		RuleID:    suite.RuleID,
		Summary:   summarize(results),
		Results:   results,
		StartedAt: startedAt,
	}

	if err := s.persistResults(ctx, suite, results); err != nil {
		s.logger.Warn("Test results not persisted, continuing",
			slog.String("suite_id", suite.ID),
			slog.String("error", err.Error()),
		)
	}

	suite.Status = StatusCompleted
	execution.Status = StatusCompleted
	execution.FinishedAt = s.now()

	if opts.DetailedReport {
		execution.Report = s.buildReport(ctx, suite, execution)
		s.persistReport(ctx, suite, execution.Report)
	}

	if err := s.updateSuite(ctx, suite); err != nil {
		suite.Status = StatusFailed
		execution.Status = StatusFailed

		if updateErr := s.updateSuite(ctx, suite); updateErr != nil {
			s.logger.Error("Failed to persist suite final state",
				slog.String("suite_id", suite.ID),
				slog.String("error", updateErr.Error()),
			)
		}

		return execution, fmt.Errorf("failed to persist completed suite: %w", err)
	}

	s.logger.Info("Test suite executed",
		slog.String("suite_id", suite.ID),
		slog.String("rule_id", suite.RuleID),
		slog.Int("total", execution.Summary.Total),
		slog.Int("passed", execution.Summary.Passed),
		slog.Int("failed", execution.Summary.Failed),
		slog.Duration("elapsed", execution.FinishedAt.Sub(startedAt)),
	)

	return execution, nil
}

func (s *Service) runSequential(ctx context.Context, suite *TestSuite, cases []TestCase, timeout time.Duration) []TestResult {
	results := make([]TestResult, 0, len(cases))

	for _, c := range cases {
		results = append(results, s.executeTestCase(ctx, suite, c, timeout))
	}

	return results
}

// runBatched partitions the cases into ⌈n/batchSize⌉ contiguous batches.
// Within a batch all cases run concurrently; batch k+1 does not start until
// every case of batch k has settled. Result order matches case order.
func (s *Service) runBatched(ctx context.Context, suite *TestSuite, cases []TestCase, batchSize int, timeout time.Duration) []TestResult {
	results := make([]TestResult, len(cases))

	for start := 0; start < len(cases); start += batchSize {
		end := start + batchSize
		if end > len(cases) {
			end = len(cases)
		}

		var wg sync.WaitGroup

		for i := start; i < end; i++ {
			wg.Add(1)

			go func() {
				defer wg.Done()

				results[i] = s.executeTestCase(ctx, suite, cases[i], timeout)
			}()
		}

		wg.Wait()
	}

	return results
}

// executeTestCase runs one case under the per-case timeout, registered for
// external cancellation. Any execution error is captured in a failed result;
// a single case's failure never aborts the batch.
func (s *Service) executeTestCase(ctx context.Context, suite *TestSuite, c TestCase, timeout time.Duration) (result TestResult) {
	caseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	testID := s.registry.register(suite.ID, c.ID, cancel)
	defer s.registry.done(testID)

	result = TestResult{
		TestID:     testID,
		TestCaseID: c.ID,
		SuiteID:    suite.ID,
		CaseName:   c.Name,
		Type:       c.Type,
		CreatedAt:  s.now(),
	}

	defer func() {
		if r := recover(); r != nil {
			result.Status = ResultFailed
			result.Error = fmt.Sprintf("test case panicked: %v", r)
		}
	}()

	started := s.now()

	var err error

	switch c.Type {
	case TypeUnit:
		err = s.executeUnit(caseCtx, suite, c, &result)
	case TypeIntegration:
		err = s.executeIntegration(caseCtx, suite, c, &result)
	case TypePerformance:
		err = s.executePerformance(caseCtx, suite, c, &result)
	case TypeRegression:
		err = s.executeRegression(caseCtx, suite, c, &result)
	case TypeEdgeCase:
		err = s.executeEdgeCase(caseCtx, suite, c, &result)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownTestType, c.Type)
	}

	result.ExecutionTimeMs = float64(s.now().Sub(started)) / float64(time.Millisecond)

	if err != nil {
		result.Status = ResultFailed

		if caseCtx.Err() != nil {
			result.Error = fmt.Sprintf("%v: %v", ErrCaseTimeout, err)
		} else {
			result.Error = err.Error()
		}
	}

	return result
}

// executeUnit simulates the rule and compares {triggered, action, target}
// against the deterministic expectation.
func (s *Service) executeUnit(ctx context.Context, suite *TestSuite, c TestCase, result *TestResult) error {
	outcome, err := s.simulate(ctx, suite.Rule, c.Input)
	if err != nil {
		return err
	}

	observed := expectationOf(outcome)
	result.Outcome = &observed

	if c.Expected == nil {
		result.Status = ResultPassed

		return nil
	}

	changed := diffExpectations(*c.Expected, observed)
	if len(changed) > 0 {
		result.Status = ResultFailed
		result.ChangedFields = changed
		result.Error = fmt.Sprintf("outcome mismatch on %v", changed)

		return nil
	}

	result.Status = ResultPassed

	return nil
}

// executeIntegration asserts both the rule outcome and that every declared
// dependency check succeeds.
func (s *Service) executeIntegration(ctx context.Context, suite *TestSuite, c TestCase, result *TestResult) error {
	if err := s.executeUnit(ctx, suite, c, result); err != nil {
		return err
	}

	checks := make(map[string]any, len(c.Dependencies))

	for _, dependency := range c.Dependencies {
		if err := s.deps.CheckDependency(ctx, suite.RuleID, dependency); err != nil {
			checks[dependency] = err.Error()
			result.Status = ResultFailed
			result.Error = fmt.Sprintf("dependency %q check failed: %v", dependency, err)
		} else {
			checks[dependency] = "ok"
		}
	}

	result.Details = map[string]any{"dependencyChecks": checks}

	return nil
}

// executePerformance runs the simulation the configured number of iterations
// and passes iff the average time stays within budget and the success rate
// meets the floor.
func (s *Service) executePerformance(ctx context.Context, suite *TestSuite, c TestCase, result *TestResult) error {
	spec := c.Performance
	if spec == nil {
		spec = &PerformanceSpec{
			Iterations:         DefaultPerformanceIterations,
			MaxExecutionTimeMs: DefaultMaxExecutionTimeMs,
			MinSuccessRate:     DefaultMinSuccessRate,
		}
	}

	times := make([]float64, 0, spec.Iterations)
	successes := 0

	for i := 0; i < spec.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("performance run interrupted after %d iterations: %w", i, err)
		}

		outcome, err := s.simulate(ctx, suite.Rule, c.Input)
		if err != nil {
			return err
		}

		times = append(times, outcome.DurationMs)

		if outcome.Error == "" {
			successes++
		}
	}

	minMs, avgMs, maxMs := timeStats(times)
	successRate := float64(successes) / float64(spec.Iterations) * 100

	result.Details = map[string]any{
		"iterations":    spec.Iterations,
		"minTimeMs":     minMs,
		"avgTimeMs":     avgMs,
		"maxTimeMs":     maxMs,
		"successRate":   successRate,
		"maxAllowedMs":  spec.MaxExecutionTimeMs,
		"minSuccessPct": spec.MinSuccessRate,
	}

	if avgMs <= spec.MaxExecutionTimeMs && successRate >= spec.MinSuccessRate {
		result.Status = ResultPassed
	} else {
		result.Status = ResultFailed
		result.Error = fmt.Sprintf("avg %.1fms (budget %.1fms), success %.1f%% (floor %.1f%%)",
			avgMs, spec.MaxExecutionTimeMs, successRate, spec.MinSuccessRate)
	}

	return nil
}

// executeRegression compares the current simulated outcome against the stored
// baseline by field equality; any mismatch fails the case with the changed
// field list.
func (s *Service) executeRegression(ctx context.Context, suite *TestSuite, c TestCase, result *TestResult) error {
	outcome, err := s.simulate(ctx, suite.Rule, c.Input)
	if err != nil {
		return err
	}

	observed := expectationOf(outcome)
	result.Outcome = &observed

	if c.Baseline == nil {
		result.Status = ResultFailed
		result.Error = "regression case has no baseline"

		return nil
	}

	changed := diffExpectations(*c.Baseline, observed)
	if len(changed) > 0 {
		result.Status = ResultFailed
		result.ChangedFields = changed
		result.Error = fmt.Sprintf("regression on %v", changed)

		return nil
	}

	result.Status = ResultPassed

	return nil
}

// executeEdgeCase asserts graceful handling: the simulation must settle
// without aborting, whatever the outcome. Evaluation errors inside the
// simulator count as graceful degradation, not failure.
func (s *Service) executeEdgeCase(ctx context.Context, suite *TestSuite, c TestCase, result *TestResult) error {
	outcome, err := s.simulate(ctx, suite.Rule, c.Input)
	if err != nil {
		return err
	}

	observed := expectationOf(outcome)
	result.Outcome = &observed
	result.Status = ResultPassed

	if outcome.Error != "" {
		result.Details = map[string]any{"degraded": outcome.Error}
	}

	return nil
}

func (s *Service) persistResults(ctx context.Context, suite *TestSuite, results []TestResult) error {
	rows := make([]*storage.TestResultRow, 0, len(results))

	for _, result := range results {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to encode result %s: %w", result.TestID, err)
		}

		rows = append(rows, &storage.TestResultRow{
			TestID:          result.TestID,
			TestCaseID:      result.TestCaseID,
			SuiteID:         suite.ID,
			Status:          string(result.Status),
			ExecutionTimeMs: result.ExecutionTimeMs,
			ResultData:      data,
			ErrorMessage:    result.Error,
			CreatedAt:       result.CreatedAt,
		})
	}

	return s.store.AppendTestResults(ctx, rows)
}

// filterCases keeps the cases whose type is in the requested set, preserving
// order. An empty set keeps everything.
func filterCases(cases []TestCase, types []TestType) []TestCase {
	if len(types) == 0 {
		return cases
	}

	wanted := make(map[TestType]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}

	filtered := make([]TestCase, 0, len(cases))

	for _, c := range cases {
		if wanted[c.Type] {
			filtered = append(filtered, c)
		}
	}

	return filtered
}

func summarize(results []TestResult) Summary {
	summary := Summary{Total: len(results)}

	if len(results) == 0 {
		return summary
	}

	var totalMs float64

	for _, result := range results {
		totalMs += result.ExecutionTimeMs

		if result.Status == ResultPassed {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}

	summary.PassRate = float64(summary.Passed) / float64(summary.Total) * 100
	summary.AverageExecutionTimeMs = totalMs / float64(summary.Total)

	return summary
}

func expectationOf(outcome rule.Outcome) Expectation {
	observed := Expectation{Triggered: outcome.Triggered}

	if outcome.Triggered {
		observed.Action = outcome.Action
		observed.Target = outcome.Target
	}

	return observed
}

// diffExpectations returns the sorted list of fields where observed deviates
// from expected.
func diffExpectations(expected, observed Expectation) []string {
	var changed []string

	if expected.Triggered != observed.Triggered {
		changed = append(changed, "triggered")
	}

	if expected.Action != observed.Action {
		changed = append(changed, "action")
	}

	if expected.Target != observed.Target {
		changed = append(changed, "target")
	}

	sort.Strings(changed)

	return changed
}

func timeStats(times []float64) (minMs, avgMs, maxMs float64) {
	if len(times) == 0 {
		return 0, 0, 0
	}

	minMs = times[0]
	maxMs = times[0]

	var sum float64

	for _, t := range times {
		sum += t

		if t < minMs {
			minMs = t
		}

		if t > maxMs {
			maxMs = t
		}
	}

	return minMs, sum / float64(len(times)), maxMs
}
