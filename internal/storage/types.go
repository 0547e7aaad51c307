// Package storage provides the durable metrics store for rule execution
// telemetry, impact analyses, and automated test artifacts.
//
// The store is the source of truth: the in-process rolling windows and caches
// kept by the analytics service recover from it after a restart. Payload-heavy
// rows (analysis data, suite definitions, results, reports) are stored as
// JSONB blobs owned by the producing service; this package never interprets
// them.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for metrics store operations.
var (
	// ErrRecordNil is returned when a nil record is provided.
	ErrRecordNil = errors.New("record cannot be nil")
	// ErrRecordInvalid is returned when a record fails validation before storage.
	ErrRecordInvalid = errors.New("invalid execution record")
	// ErrSuiteNotFound is returned when a test suite lookup misses.
	ErrSuiteNotFound = errors.New("test suite not found")
	// ErrSuiteIDEmpty is returned when a suite row has no ID.
	ErrSuiteIDEmpty = errors.New("test suite ID cannot be empty")
	// ErrStoreFailed wraps backend failures on write operations.
	ErrStoreFailed = errors.New("metrics storage failed")
)

type (
	// ExecutionRecord is one observed run of a rule. Records are immutable
	// once written; this module appends them on behalf of the rule engine and
	// reads them back for aggregation.
	ExecutionRecord struct {
		RuleID          string
		Timestamp       time.Time
		ExecutionTimeMs float64
		Success         bool
		Triggered       bool
		ErrorMessage    string
		UserID          string
		Context         map[string]any
	}

	// ExecutionQuery filters execution record reads. Zero-value fields are
	// not applied; filters combine with AND.
	ExecutionQuery struct {
		RuleID string
		UserID string
		Since  time.Time
		Until  time.Time
	}

	// ImpactAnalysisRow is one persisted impact assessment. Rows are
	// append-only: an assessment is never mutated after creation.
	ImpactAnalysisRow struct {
		AnalysisID   string
		RuleID       string
		AnalysisData json.RawMessage
		CreatedAt    time.Time
	}

	// TestSuiteRow is one persisted test suite. SuiteData holds the full
	// generated suite (cases, options) as produced by the autotest service;
	// Status tracks the created → running → completed|failed lifecycle.
	TestSuiteRow struct {
		ID           string
		RuleID       string
		UserID       string
		SuiteData    json.RawMessage
		Status       string
		CreatedAt    time.Time
		LastExecuted *time.Time
	}

	// TestResultRow is one executed test case outcome. Rows are immutable;
	// re-executing a suite appends a new result set under the same suite ID.
	TestResultRow struct {
		TestID          string
		TestCaseID      string
		SuiteID         string
		Status          string
		ExecutionTimeMs float64
		ResultData      json.RawMessage
		ErrorMessage    string
		CreatedAt       time.Time
	}

	// TestReportRow is one persisted execution report for a suite run.
	TestReportRow struct {
		TestSuiteID string
		RuleID      string
		ReportData  json.RawMessage
		GeneratedAt time.Time
	}

	// Store is the metrics store adapter: the single data-access boundary
	// for execution telemetry and all analytics/testing artifacts.
	Store interface {
		// AppendExecutionRecord persists one execution record.
		AppendExecutionRecord(ctx context.Context, record *ExecutionRecord) error
		// QueryExecutionRecords returns records matching the query,
		// ordered by timestamp ascending.
		QueryExecutionRecords(ctx context.Context, query ExecutionQuery) ([]ExecutionRecord, error)

		// AppendImpactAnalysis persists one impact assessment (append-only).
		AppendImpactAnalysis(ctx context.Context, row *ImpactAnalysisRow) error

		// SaveTestSuite persists a newly created suite.
		SaveTestSuite(ctx context.Context, row *TestSuiteRow) error
		// GetTestSuite retrieves a suite by ID.
		// Returns ErrSuiteNotFound when no suite exists with the given ID.
		GetTestSuite(ctx context.Context, suiteID string) (*TestSuiteRow, error)
		// UpdateTestSuite updates a suite's status, payload, and last-executed
		// timestamp. The suite row itself is the only mutable artifact.
		UpdateTestSuite(ctx context.Context, row *TestSuiteRow) error

		// AppendTestResults persists a batch of test results.
		AppendTestResults(ctx context.Context, rows []*TestResultRow) error
		// ListTestResults returns all results recorded for a suite,
		// ordered by creation time ascending.
		ListTestResults(ctx context.Context, suiteID string) ([]TestResultRow, error)

		// AppendTestReport persists one execution report.
		AppendTestReport(ctx context.Context, row *TestReportRow) error
	}
)

// Validate checks an execution record before storage.
func (r *ExecutionRecord) Validate() error {
	if r == nil {
		return ErrRecordNil
	}

	if r.RuleID == "" {
		return fmt.Errorf("%w: rule ID cannot be empty", ErrRecordInvalid)
	}

	if r.ExecutionTimeMs < 0 {
		return fmt.Errorf("%w: execution time cannot be negative", ErrRecordInvalid)
	}

	if r.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp cannot be zero", ErrRecordInvalid)
	}

	return nil
}

// Matches reports whether the record satisfies every filter in the query.
// Shared by the in-memory store and used to keep both implementations aligned.
func (q ExecutionQuery) Matches(record *ExecutionRecord) bool {
	if q.RuleID != "" && record.RuleID != q.RuleID {
		return false
	}

	if q.UserID != "" && record.UserID != q.UserID {
		return false
	}

	if !q.Since.IsZero() && record.Timestamp.Before(q.Since) {
		return false
	}

	if !q.Until.IsZero() && record.Timestamp.After(q.Until) {
		return false
	}

	return true
}
