package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruleiq-io/ruleiq/internal/storage"
)

func TestPercentile_NearestRank(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	assert.Zero(t, Percentile(nil, 50))
	assert.Zero(t, Percentile([]float64{}, 95))

	sorted := []float64{10, 20, 30, 40, 50}
	assert.InDelta(t, 30, Percentile(sorted, 50), 1e-9)
	assert.InDelta(t, 50, Percentile(sorted, 95), 1e-9)
	assert.InDelta(t, 50, Percentile(sorted, 99), 1e-9)
	assert.InDelta(t, 10, Percentile(sorted, 0), 1e-9)
	assert.InDelta(t, 50, Percentile(sorted, 100), 1e-9)

	// With 100 points the nearest-rank indices are exact.
	hundred := make([]float64, 100)
	for i := range hundred {
		hundred[i] = float64(i + 1)
	}

	assert.InDelta(t, 50, Percentile(hundred, 50), 1e-9)
	assert.InDelta(t, 95, Percentile(hundred, 95), 1e-9)
	assert.InDelta(t, 99, Percentile(hundred, 99), 1e-9)

	single := []float64{42}
	assert.InDelta(t, 42, Percentile(single, 50), 1e-9)
	assert.InDelta(t, 42, Percentile(single, 99), 1e-9)
}

func TestComputeMetrics_Aggregates(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	// Unordered timestamps: first/last must come from the data, not arrival order.
	records := []storage.ExecutionRecord{
		{RuleID: "rule-1", Timestamp: now.Add(-2 * time.Hour), ExecutionTimeMs: 30, Success: true, Triggered: true},
		{RuleID: "rule-1", Timestamp: now.Add(-4 * time.Hour), ExecutionTimeMs: 10, Success: true, Triggered: false},
		{RuleID: "rule-1", Timestamp: now.Add(-1 * time.Hour), ExecutionTimeMs: 50, Success: false, Triggered: true},
		{RuleID: "rule-1", Timestamp: now.Add(-3 * time.Hour), ExecutionTimeMs: 20, Success: true, Triggered: false},
	}

	metrics := computeMetrics("rule-1", Range24h, records, now)

	assert.Equal(t, "rule-1", metrics.RuleID)
	assert.Equal(t, Range24h, metrics.TimeRange)
	assert.Equal(t, 4, metrics.TotalExecutions)
	assert.Equal(t, 3, metrics.SuccessCount)
	assert.Equal(t, 1, metrics.FailureCount)
	assert.Equal(t, metrics.TotalExecutions, metrics.SuccessCount+metrics.FailureCount)
	assert.Equal(t, 2, metrics.TriggeredCount)
	assert.InDelta(t, 27.5, metrics.AverageExecutionTimeMs, 1e-9)
	assert.InDelta(t, 20, metrics.MedianExecutionTimeMs, 1e-9)
	assert.InDelta(t, 50, metrics.P95ExecutionTimeMs, 1e-9)
	assert.InDelta(t, 75, metrics.SuccessRate, 1e-9)
	assert.InDelta(t, 50, metrics.TriggerRate, 1e-9)

	require.NotNil(t, metrics.FirstExecution)
	require.NotNil(t, metrics.LastExecution)
	assert.Equal(t, now.Add(-4*time.Hour), *metrics.FirstExecution)
	assert.Equal(t, now.Add(-1*time.Hour), *metrics.LastExecution)
	assert.False(t, metrics.Degraded)
}

func TestComputeMetrics_NoRecords(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	now := time.Now()
	metrics := computeMetrics("rule-1", Range7d, nil, now)

	assert.Zero(t, metrics.TotalExecutions)
	assert.Zero(t, metrics.SuccessRate)
	assert.Zero(t, metrics.AverageExecutionTimeMs)
	assert.Nil(t, metrics.FirstExecution)
	assert.Nil(t, metrics.LastExecution)
	assert.Equal(t, now, metrics.ComputedAt)
}

func TestEfficiencyScore(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	assert.Zero(t, efficiencyScore(RuleMetrics{}))

	// Fully reliable, always triggering, fast: 100×0.4 + 50×0.3 + 90×0.3.
	fast := RuleMetrics{
		TotalExecutions:        10,
		SuccessRate:            100,
		TriggerRate:            100,
		AverageExecutionTimeMs: 100,
	}
	assert.InDelta(t, 82, efficiencyScore(fast), 1e-9)

	// Trigger rate below the cap contributes directly.
	moderate := RuleMetrics{
		TotalExecutions:        10,
		SuccessRate:            50,
		TriggerRate:            20,
		AverageExecutionTimeMs: 500,
	}
	assert.InDelta(t, 50*0.40+20*0.30+50*0.30, efficiencyScore(moderate), 1e-9)

	// Very slow rules lose the whole speed term, never go negative.
	slow := RuleMetrics{
		TotalExecutions:        10,
		SuccessRate:            100,
		TriggerRate:            0,
		AverageExecutionTimeMs: 5000,
	}
	assert.InDelta(t, 40, efficiencyScore(slow), 1e-9)
}

func TestParseTimeRange(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	for _, valid := range []string{"1h", "24h", "7d", "30d", "90d"} {
		parsed, err := ParseTimeRange(valid)
		require.NoError(t, err)
		assert.Equal(t, TimeRange(valid), parsed)
	}

	_, err := ParseTimeRange("14d")
	require.ErrorIs(t, err, ErrUnknownTimeRange)

	_, err = ParseTimeRange("")
	require.ErrorIs(t, err, ErrUnknownTimeRange)
}

func TestTimeRangeDuration(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	assert.Equal(t, time.Hour, Range1h.Duration())
	assert.Equal(t, 24*time.Hour, Range24h.Duration())
	assert.Equal(t, 7*24*time.Hour, Range7d.Duration())
	assert.Equal(t, 30*24*time.Hour, Range30d.Duration())
	assert.Equal(t, 90*24*time.Hour, Range90d.Duration())
}
