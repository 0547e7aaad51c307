package analytics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruleiq-io/ruleiq/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T) (*Service, *storage.InMemoryStore, *InMemoryMetricsCache) {
	t.Helper()

	store := storage.NewInMemoryStore()
	cache := NewInMemoryMetricsCache(time.Minute, 64)
	service := NewService(store, cache, discardLogger())

	return service, store, cache
}

// errStore fails every operation; used to verify degraded reads.
type errStore struct{}

var errBackendDown = errors.New("backend down")

func (errStore) AppendExecutionRecord(context.Context, *storage.ExecutionRecord) error {
	return errBackendDown
}

func (errStore) QueryExecutionRecords(context.Context, storage.ExecutionQuery) ([]storage.ExecutionRecord, error) {
	return nil, errBackendDown
}

func (errStore) AppendImpactAnalysis(context.Context, *storage.ImpactAnalysisRow) error {
	return errBackendDown
}

func (errStore) SaveTestSuite(context.Context, *storage.TestSuiteRow) error { return errBackendDown }

func (errStore) GetTestSuite(context.Context, string) (*storage.TestSuiteRow, error) {
	return nil, errBackendDown
}

func (errStore) UpdateTestSuite(context.Context, *storage.TestSuiteRow) error { return errBackendDown }

func (errStore) AppendTestResults(context.Context, []*storage.TestResultRow) error {
	return errBackendDown
}

func (errStore) ListTestResults(context.Context, string) ([]storage.TestResultRow, error) {
	return nil, errBackendDown
}

func (errStore) AppendTestReport(context.Context, *storage.TestReportRow) error {
	return errBackendDown
}

func record(ruleID, userID string, at time.Time, durationMs float64, success, triggered bool) *storage.ExecutionRecord {
	return &storage.ExecutionRecord{
		RuleID:          ruleID,
		UserID:          userID,
		Timestamp:       at,
		ExecutionTimeMs: durationMs,
		Success:         success,
		Triggered:       triggered,
	}
}

func TestRecordExecution_PersistsAndWindows(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	service, store, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		err := service.RecordExecution(ctx, record("rule-1", "user-1", now, float64(10*(i+1)), true, true))
		require.NoError(t, err)
	}

	assert.Equal(t, 3, store.RecordCount())
	assert.Equal(t, 3, service.WindowSize("rule-1"))
	assert.Zero(t, service.WindowSize("rule-2"))
}

func TestRecordExecution_DefaultsTimestamp(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	service, store, _ := newTestService(t)

	fixed := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return fixed }

	rec := &storage.ExecutionRecord{RuleID: "rule-1", ExecutionTimeMs: 10, Success: true}
	require.NoError(t, service.RecordExecution(context.Background(), rec))

	assert.Equal(t, fixed, rec.Timestamp)
	assert.Equal(t, 1, store.RecordCount())
}

func TestRecordExecution_RejectsInvalidRecords(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	service, store, _ := newTestService(t)
	ctx := context.Background()

	err := service.RecordExecution(ctx, nil)
	require.ErrorIs(t, err, storage.ErrRecordNil)

	err = service.RecordExecution(ctx, record("", "user-1", time.Now(), 10, true, false))
	require.ErrorIs(t, err, storage.ErrRecordInvalid)

	err = service.RecordExecution(ctx, record("rule-1", "user-1", time.Now(), -1, true, false))
	require.ErrorIs(t, err, storage.ErrRecordInvalid)

	assert.Zero(t, store.RecordCount())
}

func TestRecordExecution_ToleratesStoreFailure(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	service := NewService(errStore{}, nil, discardLogger())

	err := service.RecordExecution(context.Background(), record("rule-1", "user-1", time.Now(), 10, true, true))
	require.NoError(t, err, "persistence failure must not surface to the execution path")

	assert.Equal(t, 1, service.WindowSize("rule-1"))
}

func TestGetMetrics_ZeroRecords(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	service, _, _ := newTestService(t)

	metrics := service.GetMetrics(context.Background(), "rule-1", Range24h)

	assert.Equal(t, "rule-1", metrics.RuleID)
	assert.Zero(t, metrics.TotalExecutions)
	assert.Zero(t, metrics.SuccessRate)
	assert.False(t, metrics.Degraded)
}

func TestGetMetrics_CachesPerRuleAndWindow(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	service, store, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, service.RecordExecution(ctx, record("rule-1", "user-1", now, 10, true, true)))

	first := service.GetMetrics(ctx, "rule-1", Range24h)
	assert.Equal(t, 1, first.TotalExecutions)

	// A record appended behind the cache is invisible until expiry.
	require.NoError(t, store.AppendExecutionRecord(ctx, record("rule-1", "user-1", now, 20, true, true)))

	cached := service.GetMetrics(ctx, "rule-1", Range24h)
	assert.Equal(t, 1, cached.TotalExecutions)

	// A different window is a different cache key.
	fresh := service.GetMetrics(ctx, "rule-1", Range7d)
	assert.Equal(t, 2, fresh.TotalExecutions)
}

func TestGetMetrics_ExcludesRecordsOutsideWindow(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	service, _, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, service.RecordExecution(ctx, record("rule-1", "user-1", now.Add(-2*time.Hour), 10, true, true)))
	require.NoError(t, service.RecordExecution(ctx, record("rule-1", "user-1", now.Add(-time.Minute), 20, true, true)))

	metrics := service.GetMetrics(ctx, "rule-1", Range1h)

	assert.Equal(t, 1, metrics.TotalExecutions)
	assert.InDelta(t, 20, metrics.AverageExecutionTimeMs, 1e-9)
}

func TestGetMetrics_DegradedReadsAreNotCached(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cache := NewInMemoryMetricsCache(time.Minute, 64)
	service := NewService(errStore{}, cache, discardLogger())

	metrics := service.GetMetrics(context.Background(), "rule-1", Range24h)

	assert.True(t, metrics.Degraded)
	assert.Zero(t, metrics.TotalExecutions)
	assert.Zero(t, cache.Len())
}

func TestGetAllRulesMetrics_SummaryAndGrouping(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	service, _, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	// rule-a: fast and fully reliable. rule-b: slow, half the runs fail.
	require.NoError(t, service.RecordExecution(ctx, record("rule-a", "user-1", now, 10, true, true)))
	require.NoError(t, service.RecordExecution(ctx, record("rule-a", "user-1", now, 20, true, true)))
	require.NoError(t, service.RecordExecution(ctx, record("rule-b", "user-1", now, 200, true, false)))
	require.NoError(t, service.RecordExecution(ctx, record("rule-b", "user-1", now, 400, false, false)))

	// Another user's records stay out of the aggregation.
	require.NoError(t, service.RecordExecution(ctx, record("rule-c", "user-2", now, 5, true, true)))

	userMetrics := service.GetAllRulesMetrics(ctx, "user-1", Range24h)

	require.Len(t, userMetrics.Rules, 2)
	assert.Equal(t, 2, userMetrics.Summary.TotalRules)
	assert.Equal(t, 4, userMetrics.Summary.TotalExecutions)
	assert.Equal(t, "rule-a", userMetrics.Summary.FastestRuleID)
	assert.Equal(t, "rule-b", userMetrics.Summary.SlowestRuleID)
	assert.Equal(t, "rule-a", userMetrics.Summary.MostReliableRuleID)
	assert.InDelta(t, 75, userMetrics.Summary.OverallSuccessRate, 1e-9)
	assert.False(t, userMetrics.Degraded)
}

func TestGetAllRulesMetrics_TieBreaksByRuleID(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	service, _, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	// Identical profiles: the lexically first rule ID wins every superlative.
	require.NoError(t, service.RecordExecution(ctx, record("rule-b", "user-1", now, 100, true, true)))
	require.NoError(t, service.RecordExecution(ctx, record("rule-a", "user-1", now, 100, true, true)))

	summary := service.GetAllRulesMetrics(ctx, "user-1", Range24h).Summary

	assert.Equal(t, "rule-a", summary.FastestRuleID)
	assert.Equal(t, "rule-a", summary.SlowestRuleID)
	assert.Equal(t, "rule-a", summary.MostReliableRuleID)
}

func TestGetAllRulesMetrics_DegradedOnStoreFailure(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	service := NewService(errStore{}, nil, discardLogger())

	userMetrics := service.GetAllRulesMetrics(context.Background(), "user-1", Range24h)

	assert.True(t, userMetrics.Degraded)
	assert.Empty(t, userMetrics.Rules)
}

func TestGetRuleEfficiencyScore(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	service, _, _ := newTestService(t)
	ctx := context.Background()

	assert.Zero(t, service.GetRuleEfficiencyScore(ctx, "no-such-rule"))

	now := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, service.RecordExecution(ctx, record("rule-1", "user-1", now, 100, true, true)))
	}

	// 100% success, trigger capped at 50, speed term 100−100/10.
	score := service.GetRuleEfficiencyScore(ctx, "rule-1")
	assert.InDelta(t, 82, score, 1e-9)
}

func TestGetSlowPerformingRules(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	service, _, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, service.RecordExecution(ctx, record("rule-fast", "user-1", now, 50, true, true)))
	require.NoError(t, service.RecordExecution(ctx, record("rule-slow", "user-1", now, 800, true, true)))
	require.NoError(t, service.RecordExecution(ctx, record("rule-slower", "user-1", now, 1500, true, true)))

	slow := service.GetSlowPerformingRules(ctx, "user-1", 500)

	require.Len(t, slow, 2)
	assert.Equal(t, "rule-slower", slow[0].RuleID)
	assert.Equal(t, "rule-slow", slow[1].RuleID)

	// Threshold is exclusive.
	atThreshold := service.GetSlowPerformingRules(ctx, "user-1", 1500)
	assert.Empty(t, atThreshold)

	none := service.GetSlowPerformingRules(ctx, "user-1", 10000)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestExecutionTrend(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	service, _, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	assert.Equal(t, TrendStable, service.ExecutionTrend("rule-1"))

	// Ten flat then ten much slower: clearly degrading.
	for i := 0; i < 10; i++ {
		require.NoError(t, service.RecordExecution(ctx, record("rule-1", "user-1", now, 100, true, true)))
	}

	for i := 0; i < 10; i++ {
		require.NoError(t, service.RecordExecution(ctx, record("rule-1", "user-1", now, 200, true, true)))
	}

	assert.Equal(t, TrendDegrading, service.ExecutionTrend("rule-1"))
}
