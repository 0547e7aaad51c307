// Package analytics provides performance analytics for business rules:
// execution telemetry ingestion, windowed aggregate statistics, efficiency
// scoring, and trend detection.
//
// Read APIs never propagate store failures to callers. Dashboards and the
// rule engine always receive a well-formed result; a degraded read is marked
// on the result instead of surfacing as an error, so analytics instability
// can never destabilize rule evaluation.
package analytics

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownTimeRange is returned when parsing a window outside the canonical set.
var ErrUnknownTimeRange = errors.New("unknown time range")

type (
	// TimeRange is one of the canonical aggregation windows.
	TimeRange string

	// RuleMetrics is the aggregate view over one time window for one rule.
	// Derived on demand from stored execution records and cached briefly.
	//
	// Invariants: SuccessCount + FailureCount == TotalExecutions;
	// SuccessRate and TriggerRate are percentages in [0,100].
	RuleMetrics struct {
		RuleID                 string     `json:"ruleId"`
		TimeRange              TimeRange  `json:"timeRange"`
		TotalExecutions        int        `json:"totalExecutions"`
		SuccessCount           int        `json:"successCount"`
		FailureCount           int        `json:"failureCount"`
		TriggeredCount         int        `json:"triggeredCount"`
		AverageExecutionTimeMs float64    `json:"averageExecutionTimeMs"`
		MedianExecutionTimeMs  float64    `json:"medianExecutionTimeMs"`
		P95ExecutionTimeMs     float64    `json:"p95ExecutionTimeMs"`
		P99ExecutionTimeMs     float64    `json:"p99ExecutionTimeMs"`
		SuccessRate            float64    `json:"successRate"`
		TriggerRate            float64    `json:"triggerRate"`
		FirstExecution         *time.Time `json:"firstExecution,omitempty"`
		LastExecution          *time.Time `json:"lastExecution,omitempty"`
		// Degraded marks a read that fell back to zero values because the
		// store was unavailable, distinguishing it from a healthy zero.
		Degraded   bool      `json:"degraded,omitempty"`
		ComputedAt time.Time `json:"computedAt"`
	}

	// UserMetrics aggregates per-rule metrics for one user plus a summary.
	UserMetrics struct {
		UserID    string                 `json:"userId"`
		TimeRange TimeRange              `json:"timeRange"`
		Rules     map[string]RuleMetrics `json:"rules"`
		Summary   MetricsSummary         `json:"summary"`
		Degraded  bool                   `json:"degraded,omitempty"`
	}

	// MetricsSummary highlights notable rules across a user's rule set.
	// Ties are broken deterministically by rule ID ordering.
	MetricsSummary struct {
		TotalRules         int     `json:"totalRules"`
		TotalExecutions    int     `json:"totalExecutions"`
		OverallSuccessRate float64 `json:"overallSuccessRate"`
		FastestRuleID      string  `json:"fastestRuleId,omitempty"`
		SlowestRuleID      string  `json:"slowestRuleId,omitempty"`
		MostReliableRuleID string  `json:"mostReliableRuleId,omitempty"`
	}

	// SlowRule is one entry in the slow-rule report.
	SlowRule struct {
		RuleID                 string  `json:"ruleId"`
		AverageExecutionTimeMs float64 `json:"averageExecutionTimeMs"`
		TotalExecutions        int     `json:"totalExecutions"`
	}

	// Trend classifies the recent execution-time direction for a rule.
	Trend string
)

// Canonical aggregation windows.
const (
	Range1h  TimeRange = "1h"
	Range24h TimeRange = "24h"
	Range7d  TimeRange = "7d"
	Range30d TimeRange = "30d"
	Range90d TimeRange = "90d"
)

// Trend values.
const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDegrading Trend = "degrading"
)

const (
	hoursPerDay = 24
)

// ParseTimeRange validates a window string against the canonical set.
func ParseTimeRange(s string) (TimeRange, error) {
	switch TimeRange(s) {
	case Range1h, Range24h, Range7d, Range30d, Range90d:
		return TimeRange(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTimeRange, s)
	}
}

// Duration returns the length of the window.
func (r TimeRange) Duration() time.Duration {
	switch r {
	case Range1h:
		return time.Hour
	case Range24h:
		return hoursPerDay * time.Hour
	case Range7d:
		return 7 * hoursPerDay * time.Hour
	case Range30d:
		return 30 * hoursPerDay * time.Hour
	case Range90d:
		return 90 * hoursPerDay * time.Hour
	default:
		return hoursPerDay * time.Hour
	}
}

// zeroMetrics returns the well-defined empty aggregate for a rule and window.
func zeroMetrics(ruleID string, timeRange TimeRange, now time.Time) RuleMetrics {
	return RuleMetrics{
		RuleID:     ruleID,
		TimeRange:  timeRange,
		ComputedAt: now,
	}
}
