package autotest

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ruleiq-io/ruleiq/internal/analytics"
	"github.com/ruleiq-io/ruleiq/internal/storage"
)

type (
	// TypeCoverage counts outcomes for one test type within a run.
	TypeCoverage struct {
		Total  int `json:"total"`
		Passed int `json:"passed"`
		Failed int `json:"failed"`
	}

	// Report is the optional detailed execution report for a suite run:
	// per-type coverage, recommendations derived from the failures, and a
	// snapshot of the rule's analytics at report time.
	Report struct {
		SuiteID         string                    `json:"suiteId"`
		RuleID          string                    `json:"ruleId"`
		Summary         Summary                   `json:"summary"`
		Coverage        map[TestType]TypeCoverage `json:"coverage"`
		Recommendations []string                  `json:"recommendations"`
		Trend           analytics.Trend           `json:"trend"`
		EfficiencyScore float64                   `json:"efficiencyScore"`
		GeneratedAt     time.Time                 `json:"generatedAt"`
	}
)

func (s *Service) buildReport(ctx context.Context, suite *TestSuite, execution *Execution) *Report {
	report := &Report{
		SuiteID:         suite.ID,
		RuleID:          suite.RuleID,
		Summary:         execution.Summary,
		Coverage:        make(map[TestType]TypeCoverage),
		Trend:           s.analytics.ExecutionTrend(suite.RuleID),
		EfficiencyScore: s.analytics.GetRuleEfficiencyScore(ctx, suite.RuleID),
		GeneratedAt:     s.now(),
	}

	for _, result := range execution.Results {
		coverage := report.Coverage[result.Type]
		coverage.Total++

		if result.Status == ResultPassed {
			coverage.Passed++
		} else {
			coverage.Failed++
		}

		report.Coverage[result.Type] = coverage
	}

	report.Recommendations = recommendFromCoverage(report.Coverage, execution.Summary)

	return report
}

// recommendFromCoverage derives human-readable follow-ups from the run.
func recommendFromCoverage(coverage map[TestType]TypeCoverage, summary Summary) []string {
	recommendations := make([]string, 0)

	if c, ok := coverage[TypeUnit]; ok && c.Failed > 0 {
		recommendations = append(recommendations,
			"Unit cases failed: the rule's conditions no longer produce the expected outcome; review the condition set before deploying.")
	}

	if c, ok := coverage[TypeIntegration]; ok && c.Failed > 0 {
		recommendations = append(recommendations,
			"Integration cases failed: one or more declared dependencies are unreachable; verify the notification and email sinks.")
	}

	if c, ok := coverage[TypePerformance]; ok && c.Failed > 0 {
		recommendations = append(recommendations,
			"Performance budget exceeded: simplify conditions or raise the budget deliberately.")
	}

	if c, ok := coverage[TypeRegression]; ok && c.Failed > 0 {
		recommendations = append(recommendations,
			"Regressions detected against the stored baseline: confirm the behavior change is intentional and refresh the baseline.")
	}

	if len(recommendations) == 0 && summary.Total > 0 {
		recommendations = append(recommendations, "All cases passed; no action needed.")
	}

	return recommendations
}

func (s *Service) persistReport(ctx context.Context, suite *TestSuite, report *Report) {
	data, err := json.Marshal(report)
	if err != nil {
		s.logger.Error("Failed to encode test report",
			slog.String("suite_id", suite.ID),
			slog.String("error", err.Error()),
		)

		return
	}

	row := &storage.TestReportRow{
		TestSuiteID: suite.ID,
		RuleID:      suite.RuleID,
		ReportData:  data,
		GeneratedAt: report.GeneratedAt,
	}

	if err := s.store.AppendTestReport(ctx, row); err != nil {
		s.logger.Warn("Test report not persisted, continuing",
			slog.String("suite_id", suite.ID),
			slog.String("error", err.Error()),
		)
	}
}
