package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/ruleiq-io/ruleiq/internal/storage"
)

const (
	percentageScale = 100
	p50             = 50
	p95             = 95
	p99             = 99
)

// Percentile computes the p-th percentile of a sorted ascending slice using
// the nearest-rank method: index = ceil(p/100 × n) − 1, clamped to [0, n−1].
// Returns 0 for an empty slice.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}

	index := int(math.Ceil(p/percentageScale*float64(n))) - 1

	if index < 0 {
		index = 0
	}

	if index > n-1 {
		index = n - 1
	}

	return sorted[index]
}

// computeMetrics aggregates execution records into RuleMetrics.
// Records may arrive in any order; timestamps determine first/last execution.
func computeMetrics(ruleID string, timeRange TimeRange, records []storage.ExecutionRecord, now time.Time) RuleMetrics {
	metrics := zeroMetrics(ruleID, timeRange, now)

	if len(records) == 0 {
		return metrics
	}

	durations := make([]float64, 0, len(records))

	var (
		sum   float64
		first time.Time
		last  time.Time
	)

	for _, record := range records {
		durations = append(durations, record.ExecutionTimeMs)
		sum += record.ExecutionTimeMs

		if record.Success {
			metrics.SuccessCount++
		} else {
			metrics.FailureCount++
		}

		if record.Triggered {
			metrics.TriggeredCount++
		}

		if first.IsZero() || record.Timestamp.Before(first) {
			first = record.Timestamp
		}

		if record.Timestamp.After(last) {
			last = record.Timestamp
		}
	}

	sort.Float64s(durations)

	total := len(records)
	metrics.TotalExecutions = total
	metrics.AverageExecutionTimeMs = sum / float64(total)
	metrics.MedianExecutionTimeMs = Percentile(durations, p50)
	metrics.P95ExecutionTimeMs = Percentile(durations, p95)
	metrics.P99ExecutionTimeMs = Percentile(durations, p99)
	metrics.SuccessRate = float64(metrics.SuccessCount) / float64(total) * percentageScale
	metrics.TriggerRate = float64(metrics.TriggeredCount) / float64(total) * percentageScale
	metrics.FirstExecution = &first
	metrics.LastExecution = &last

	return metrics
}

// Efficiency score weights: reliability dominates, with appropriateness of
// triggering and speed sharing the remainder.
const (
	successWeight = 0.40
	triggerWeight = 0.30
	speedWeight   = 0.30

	triggerRateCap = 50
	speedDivisor   = 10
)

// efficiencyScore blends success rate (40%), trigger rate capped at 50%
// (30%), and an inverse-execution-time term max(0, 100 − avgMs/10) (30%)
// into a single 0–100 scalar. Zero executions score 0.
func efficiencyScore(metrics RuleMetrics) float64 {
	if metrics.TotalExecutions == 0 {
		return 0
	}

	triggerTerm := metrics.TriggerRate
	if triggerTerm > triggerRateCap {
		triggerTerm = triggerRateCap
	}

	speedTerm := percentageScale - metrics.AverageExecutionTimeMs/speedDivisor
	if speedTerm < 0 {
		speedTerm = 0
	}

	return metrics.SuccessRate*successWeight + triggerTerm*triggerWeight + speedTerm*speedWeight
}
