package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(ruleID, userID string, at time.Time, durationMs float64) *ExecutionRecord {
	return &ExecutionRecord{
		RuleID:          ruleID,
		UserID:          userID,
		Timestamp:       at,
		ExecutionTimeMs: durationMs,
		Success:         true,
		Triggered:       true,
	}
}

func TestInMemoryStore_AppendAndQueryExecutionRecords(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := NewInMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	// Inserted out of timestamp order.
	require.NoError(t, store.AppendExecutionRecord(ctx, testRecord("rule-1", "user-1", now.Add(-time.Hour), 20)))
	require.NoError(t, store.AppendExecutionRecord(ctx, testRecord("rule-1", "user-1", now.Add(-3*time.Hour), 10)))
	require.NoError(t, store.AppendExecutionRecord(ctx, testRecord("rule-2", "user-1", now.Add(-2*time.Hour), 30)))
	require.NoError(t, store.AppendExecutionRecord(ctx, testRecord("rule-1", "user-2", now.Add(-30*time.Minute), 40)))

	all, err := store.QueryExecutionRecords(ctx, ExecutionQuery{})
	require.NoError(t, err)
	require.Len(t, all, 4)

	// Ascending timestamp order.
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].Timestamp.Before(all[i-1].Timestamp))
	}

	byRule, err := store.QueryExecutionRecords(ctx, ExecutionQuery{RuleID: "rule-1"})
	require.NoError(t, err)
	assert.Len(t, byRule, 3)

	byUser, err := store.QueryExecutionRecords(ctx, ExecutionQuery{UserID: "user-1"})
	require.NoError(t, err)
	assert.Len(t, byUser, 3)

	combined, err := store.QueryExecutionRecords(ctx, ExecutionQuery{RuleID: "rule-1", UserID: "user-1"})
	require.NoError(t, err)
	assert.Len(t, combined, 2)

	since, err := store.QueryExecutionRecords(ctx, ExecutionQuery{Since: now.Add(-90 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, since, 2)

	until, err := store.QueryExecutionRecords(ctx, ExecutionQuery{Until: now.Add(-90 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, until, 2)
}

func TestInMemoryStore_RejectsInvalidRecords(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := NewInMemoryStore()
	ctx := context.Background()

	err := store.AppendExecutionRecord(ctx, &ExecutionRecord{RuleID: "", Timestamp: time.Now()})
	require.ErrorIs(t, err, ErrRecordInvalid)

	err = store.AppendExecutionRecord(ctx, nil)
	require.Error(t, err)

	assert.Zero(t, store.RecordCount())
}

func TestInMemoryStore_QueryIsolation(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.AppendExecutionRecord(ctx, testRecord("rule-1", "user-1", time.Now(), 10)))

	results, err := store.QueryExecutionRecords(ctx, ExecutionQuery{})
	require.NoError(t, err)
	require.Len(t, results, 1)

	results[0].ExecutionTimeMs = 999

	again, err := store.QueryExecutionRecords(ctx, ExecutionQuery{})
	require.NoError(t, err)
	assert.InDelta(t, 10, again[0].ExecutionTimeMs, 1e-9)
}

func TestInMemoryStore_ImpactAnalysisAppendOnly(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := NewInMemoryStore()
	ctx := context.Background()

	row := &ImpactAnalysisRow{
		AnalysisID:   "analysis-1",
		RuleID:       "rule-1",
		AnalysisData: json.RawMessage(`{"overallScore":0.4}`),
		CreatedAt:    time.Now(),
	}
	require.NoError(t, store.AppendImpactAnalysis(ctx, row))

	err := store.AppendImpactAnalysis(ctx, row)
	require.ErrorIs(t, err, ErrStoreFailed)

	stored, ok := store.GetImpactAnalysis("analysis-1")
	require.True(t, ok)
	assert.Equal(t, "rule-1", stored.RuleID)
}

func TestInMemoryStore_TestSuiteLifecycle(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := NewInMemoryStore()
	ctx := context.Background()

	_, err := store.GetTestSuite(ctx, "missing")
	require.ErrorIs(t, err, ErrSuiteNotFound)

	require.ErrorIs(t, store.SaveTestSuite(ctx, &TestSuiteRow{ID: ""}), ErrSuiteIDEmpty)

	row := &TestSuiteRow{
		ID:        "suite-1",
		RuleID:    "rule-1",
		UserID:    "user-1",
		SuiteData: json.RawMessage(`{"cases":[]}`),
		Status:    "created",
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.SaveTestSuite(ctx, row))

	got, err := store.GetTestSuite(ctx, "suite-1")
	require.NoError(t, err)
	assert.Equal(t, "created", got.Status)

	executed := time.Now()
	got.Status = "completed"
	got.LastExecuted = &executed
	require.NoError(t, store.UpdateTestSuite(ctx, got))

	updated, err := store.GetTestSuite(ctx, "suite-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", updated.Status)
	require.NotNil(t, updated.LastExecuted)

	require.ErrorIs(t, store.UpdateTestSuite(ctx, &TestSuiteRow{ID: "ghost"}), ErrSuiteNotFound)
}

func TestInMemoryStore_TestResultsAndReports(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := NewInMemoryStore()
	ctx := context.Background()

	empty, err := store.ListTestResults(ctx, "suite-1")
	require.NoError(t, err)
	assert.Empty(t, empty)

	batch := []*TestResultRow{
		{TestID: "t1", TestCaseID: "case-1", SuiteID: "suite-1", Status: "passed", CreatedAt: time.Now()},
		{TestID: "t2", TestCaseID: "case-2", SuiteID: "suite-1", Status: "failed", CreatedAt: time.Now()},
	}
	require.NoError(t, store.AppendTestResults(ctx, batch))

	// Re-execution appends under the same suite ID.
	require.NoError(t, store.AppendTestResults(ctx, []*TestResultRow{
		{TestID: "t3", TestCaseID: "case-1", SuiteID: "suite-1", Status: "passed", CreatedAt: time.Now()},
	}))

	results, err := store.ListTestResults(ctx, "suite-1")
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "t1", results[0].TestID)
	assert.Equal(t, "t3", results[2].TestID)

	require.NoError(t, store.AppendTestReport(ctx, &TestReportRow{
		TestSuiteID: "suite-1",
		RuleID:      "rule-1",
		ReportData:  json.RawMessage(`{"summary":{}}`),
		GeneratedAt: time.Now(),
	}))

	reports := store.Reports()
	require.Len(t, reports, 1)
	assert.Equal(t, "suite-1", reports[0].TestSuiteID)
}

func TestExecutionQueryMatches(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	now := time.Now()
	rec := testRecord("rule-1", "user-1", now, 10)

	assert.True(t, ExecutionQuery{}.Matches(rec))
	assert.True(t, ExecutionQuery{RuleID: "rule-1", UserID: "user-1"}.Matches(rec))
	assert.False(t, ExecutionQuery{RuleID: "rule-2"}.Matches(rec))
	assert.False(t, ExecutionQuery{UserID: "user-2"}.Matches(rec))
	assert.True(t, ExecutionQuery{Since: now}.Matches(rec), "since is inclusive")
	assert.True(t, ExecutionQuery{Until: now}.Matches(rec), "until is inclusive")
	assert.False(t, ExecutionQuery{Since: now.Add(time.Second)}.Matches(rec))
	assert.False(t, ExecutionQuery{Until: now.Add(-time.Second)}.Matches(rec))
}
