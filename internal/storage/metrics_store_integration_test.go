package storage_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"

	"github.com/ruleiq-io/ruleiq/internal/config"
	"github.com/ruleiq-io/ruleiq/internal/storage"
)

func setupMetricsStore(t *testing.T) (*storage.MetricsStore, *storage.Connection) {
	t.Helper()

	ctx := context.Background()
	testDB := config.SetupTestDatabase(ctx, t)

	t.Cleanup(func() {
		_ = testDB.Connection.Close()
		_ = testcontainers.TerminateContainer(testDB.Container)
	})

	conn := storage.NewConnectionFromDB(testDB.Connection)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return storage.NewMetricsStore(conn, logger), conn
}

func TestMetricsStore_ExecutionRecordRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	store, _ := setupMetricsStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	record := &storage.ExecutionRecord{
		RuleID:          "rule-1",
		UserID:          "user-1",
		Timestamp:       now,
		ExecutionTimeMs: 42.5,
		Success:         true,
		Triggered:       true,
		ErrorMessage:    "",
		Context:         map[string]any{"emailId": "msg-123"},
	}
	require.NoError(t, store.AppendExecutionRecord(ctx, record))

	require.NoError(t, store.AppendExecutionRecord(ctx, &storage.ExecutionRecord{
		RuleID:          "rule-1",
		UserID:          "user-1",
		Timestamp:       now.Add(-time.Hour),
		ExecutionTimeMs: 10,
		Success:         false,
		ErrorMessage:    "condition evaluation failed",
	}))

	records, err := store.QueryExecutionRecords(ctx, storage.ExecutionQuery{RuleID: "rule-1"})
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Ordered by timestamp ascending.
	assert.False(t, records[0].Success)
	assert.Equal(t, "condition evaluation failed", records[0].ErrorMessage)

	assert.True(t, records[1].Success)
	assert.InDelta(t, 42.5, records[1].ExecutionTimeMs, 1e-9)
	assert.Equal(t, "msg-123", records[1].Context["emailId"])
	assert.True(t, records[1].Timestamp.Equal(now))

	recent, err := store.QueryExecutionRecords(ctx, storage.ExecutionQuery{
		RuleID: "rule-1",
		Since:  now.Add(-time.Minute),
	})
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	invalid := &storage.ExecutionRecord{RuleID: "", Timestamp: now}
	require.ErrorIs(t, store.AppendExecutionRecord(ctx, invalid), storage.ErrRecordInvalid)
}

func TestMetricsStore_TestSuiteLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	store, _ := setupMetricsStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	_, err := store.GetTestSuite(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrSuiteNotFound)

	suite := &storage.TestSuiteRow{
		ID:        "suite-1",
		RuleID:    "rule-1",
		UserID:    "user-1",
		SuiteData: json.RawMessage(`{"cases":[{"id":"case-1"}]}`),
		Status:    "created",
		CreatedAt: now,
	}
	require.NoError(t, store.SaveTestSuite(ctx, suite))

	got, err := store.GetTestSuite(ctx, "suite-1")
	require.NoError(t, err)
	assert.Equal(t, "created", got.Status)
	assert.Nil(t, got.LastExecuted)
	assert.JSONEq(t, `{"cases":[{"id":"case-1"}]}`, string(got.SuiteData))

	executed := now.Add(time.Minute)
	got.Status = "completed"
	got.LastExecuted = &executed
	require.NoError(t, store.UpdateTestSuite(ctx, got))

	updated, err := store.GetTestSuite(ctx, "suite-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", updated.Status)
	require.NotNil(t, updated.LastExecuted)
	assert.True(t, updated.LastExecuted.Equal(executed))

	require.ErrorIs(t, store.UpdateTestSuite(ctx, &storage.TestSuiteRow{ID: "ghost"}), storage.ErrSuiteNotFound)

	// Results reference the suite via foreign key.
	results := []*storage.TestResultRow{
		{TestID: "t1", TestCaseID: "case-1", SuiteID: "suite-1", Status: "passed", ExecutionTimeMs: 5, CreatedAt: now},
		{TestID: "t2", TestCaseID: "case-2", SuiteID: "suite-1", Status: "failed", ErrorMessage: "mismatch", CreatedAt: now.Add(time.Second)},
	}
	require.NoError(t, store.AppendTestResults(ctx, results))

	listed, err := store.ListTestResults(ctx, "suite-1")
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "t1", listed[0].TestID)
	assert.Equal(t, "mismatch", listed[1].ErrorMessage)

	// A result for an unknown suite violates the foreign key.
	err = store.AppendTestResults(ctx, []*storage.TestResultRow{
		{TestID: "t3", TestCaseID: "case-1", SuiteID: "ghost", Status: "passed", CreatedAt: now},
	})
	require.ErrorIs(t, err, storage.ErrStoreFailed)
	assert.ErrorContains(t, err, "foreign key violation")

	require.NoError(t, store.AppendTestReport(ctx, &storage.TestReportRow{
		TestSuiteID: "suite-1",
		RuleID:      "rule-1",
		ReportData:  json.RawMessage(`{"summary":{"total":2}}`),
		GeneratedAt: now,
	}))
}

func TestMetricsStore_ImpactAnalysisAppendOnly(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	store, _ := setupMetricsStore(t)
	ctx := context.Background()

	row := &storage.ImpactAnalysisRow{
		AnalysisID:   "analysis-1",
		RuleID:       "rule-1",
		AnalysisData: json.RawMessage(`{"overallScore":0.42}`),
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, store.AppendImpactAnalysis(ctx, row))

	err := store.AppendImpactAnalysis(ctx, row)
	require.ErrorIs(t, err, storage.ErrStoreFailed)
	assert.ErrorContains(t, err, "unique violation")
}

func TestPersistentKeyStore_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	_, conn := setupMetricsStore(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	keyStore, err := storage.NewPersistentKeyStore(conn, logger)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = keyStore.Close()
	})

	plaintext, err := storage.GenerateAPIKey("dashboard")
	require.NoError(t, err)

	hash, err := storage.HashAPIKey(plaintext)
	require.NoError(t, err)

	require.NoError(t, keyStore.Add(ctx, &storage.APIKey{
		ID:        "key-1",
		Hash:      hash,
		CallerID:  "dashboard",
		Name:      "dashboard key",
		CreatedAt: time.Now().UTC(),
		Active:    true,
	}))

	found, ok := keyStore.FindByKey(plaintext)
	require.True(t, ok)
	assert.Equal(t, "dashboard", found.CallerID)
	assert.Equal(t, "key-1", found.ID)

	_, ok = keyStore.FindByKey("ruleiq_ak_unknown")
	assert.False(t, ok)

	require.NoError(t, keyStore.Deactivate(ctx, "key-1"))
	require.ErrorIs(t, keyStore.Deactivate(ctx, "ghost"), storage.ErrKeyNotFound)

	_, ok = keyStore.FindByKey(plaintext)
	assert.False(t, ok, "deactivated keys are not returned")
}
