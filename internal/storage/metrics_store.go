package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// MetricsStore implements Store with a PostgreSQL backend.
//
// Write-path guarantees:
//   - Execution records, analyses, results, and reports are append-only.
//   - Test suite rows are the single mutable artifact (status/lastExecuted).
//   - Result batches use per-row statements so one bad row does not prevent
//     the rest of the batch from being stored.
type MetricsStore struct {
	conn   *Connection
	logger *slog.Logger
}

// Compile-time interface assertion.
var _ Store = (*MetricsStore)(nil)

// NewMetricsStore creates a PostgreSQL-backed metrics store.
func NewMetricsStore(conn *Connection, logger *slog.Logger) *MetricsStore {
	return &MetricsStore{
		conn:   conn,
		logger: logger,
	}
}

// AppendExecutionRecord persists one execution record.
func (s *MetricsStore) AppendExecutionRecord(ctx context.Context, record *ExecutionRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrRecordInvalid, err)
	}

	contextJSON, err := marshalJSONB(record.Context)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal context: %w", ErrStoreFailed, err)
	}

	query := `
		INSERT INTO rule_performance_metrics (
			rule_id,
			execution_time_ms,
			timestamp,
			success,
			triggered,
			error_message,
			user_id,
			context
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = s.conn.ExecContext(ctx, query,
		record.RuleID,
		record.ExecutionTimeMs,
		record.Timestamp,
		record.Success,
		record.Triggered,
		nullableStr(record.ErrorMessage),
		record.UserID,
		contextJSON,
	)
	if err != nil {
		s.logger.Error("Execution record storage failed",
			slog.String("rule_id", record.RuleID),
			slog.String("error", err.Error()),
		)

		return fmt.Errorf("%w: %w", ErrStoreFailed, classifyPqError(err))
	}

	return nil
}

// QueryExecutionRecords returns records matching the query, ordered by
// timestamp ascending.
func (s *MetricsStore) QueryExecutionRecords(ctx context.Context, query ExecutionQuery) ([]ExecutionRecord, error) {
	sqlQuery := `
		SELECT rule_id, execution_time_ms, timestamp, success, triggered, error_message, user_id, context
		FROM rule_performance_metrics
		WHERE ($1 = '' OR rule_id = $1)
		  AND ($2 = '' OR user_id = $2)
		  AND ($3::timestamptz IS NULL OR timestamp >= $3)
		  AND ($4::timestamptz IS NULL OR timestamp <= $4)
		ORDER BY timestamp ASC
	`

	rows, err := s.conn.QueryContext(ctx, sqlQuery,
		query.RuleID,
		query.UserID,
		nullableTimeValue(query.Since),
		nullableTimeValue(query.Until),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreFailed, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var records []ExecutionRecord

	for rows.Next() {
		var (
			record       ExecutionRecord
			errorMessage sql.NullString
			contextJSON  []byte
		)

		if err := rows.Scan(
			&record.RuleID,
			&record.ExecutionTimeMs,
			&record.Timestamp,
			&record.Success,
			&record.Triggered,
			&errorMessage,
			&record.UserID,
			&contextJSON,
		); err != nil {
			return nil, fmt.Errorf("%w: scan failed: %w", ErrStoreFailed, err)
		}

		record.ErrorMessage = errorMessage.String

		if len(contextJSON) > 0 {
			if err := json.Unmarshal(contextJSON, &record.Context); err != nil {
				s.logger.Warn("Skipping malformed context payload",
					slog.String("rule_id", record.RuleID),
					slog.String("error", err.Error()),
				)
			}
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreFailed, err)
	}

	return records, nil
}

// AppendImpactAnalysis persists one impact assessment (append-only).
func (s *MetricsStore) AppendImpactAnalysis(ctx context.Context, row *ImpactAnalysisRow) error {
	query := `
		INSERT INTO rule_impact_analysis (analysis_id, rule_id, analysis_data, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := s.conn.ExecContext(ctx, query,
		row.AnalysisID,
		row.RuleID,
		[]byte(row.AnalysisData),
		row.CreatedAt,
	)
	if err != nil {
		s.logger.Error("Impact analysis storage failed",
			slog.String("analysis_id", row.AnalysisID),
			slog.String("rule_id", row.RuleID),
			slog.String("error", err.Error()),
		)

		return fmt.Errorf("%w: %w", ErrStoreFailed, classifyPqError(err))
	}

	return nil
}

// SaveTestSuite persists a newly created suite.
func (s *MetricsStore) SaveTestSuite(ctx context.Context, row *TestSuiteRow) error {
	if row.ID == "" {
		return ErrSuiteIDEmpty
	}

	query := `
		INSERT INTO test_suites (id, rule_id, user_id, test_suite_data, status, created_at, last_executed)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.conn.ExecContext(ctx, query,
		row.ID,
		row.RuleID,
		row.UserID,
		[]byte(row.SuiteData),
		row.Status,
		row.CreatedAt,
		nullableTime(row.LastExecuted),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreFailed, classifyPqError(err))
	}

	return nil
}

// GetTestSuite retrieves a suite by ID.
func (s *MetricsStore) GetTestSuite(ctx context.Context, suiteID string) (*TestSuiteRow, error) {
	query := `
		SELECT id, rule_id, user_id, test_suite_data, status, created_at, last_executed
		FROM test_suites
		WHERE id = $1
	`

	var (
		row          TestSuiteRow
		suiteData    []byte
		lastExecuted sql.NullTime
	)

	err := s.conn.QueryRowContext(ctx, query, suiteID).Scan(
		&row.ID,
		&row.RuleID,
		&row.UserID,
		&suiteData,
		&row.Status,
		&row.CreatedAt,
		&lastExecuted,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSuiteNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreFailed, err)
	}

	row.SuiteData = suiteData

	if lastExecuted.Valid {
		t := lastExecuted.Time
		row.LastExecuted = &t
	}

	return &row, nil
}

// UpdateTestSuite updates a suite's status, payload, and last-executed timestamp.
func (s *MetricsStore) UpdateTestSuite(ctx context.Context, row *TestSuiteRow) error {
	query := `
		UPDATE test_suites
		SET test_suite_data = $2, status = $3, last_executed = $4
		WHERE id = $1
	`

	result, err := s.conn.ExecContext(ctx, query,
		row.ID,
		[]byte(row.SuiteData),
		row.Status,
		nullableTime(row.LastExecuted),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreFailed, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreFailed, err)
	}

	if affected == 0 {
		return ErrSuiteNotFound
	}

	return nil
}

// AppendTestResults persists a batch of test results with per-row statements
// so one bad row does not prevent others from being stored.
func (s *MetricsStore) AppendTestResults(ctx context.Context, rows []*TestResultRow) error {
	query := `
		INSERT INTO test_results (
			test_id, test_case_id, suite_id, status, execution_time, result_data, error_message, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	var firstErr error

	stored := 0

	for _, row := range rows {
		_, err := s.conn.ExecContext(ctx, query,
			row.TestID,
			row.TestCaseID,
			row.SuiteID,
			row.Status,
			row.ExecutionTimeMs,
			[]byte(row.ResultData),
			nullableStr(row.ErrorMessage),
			row.CreatedAt,
		)
		if err != nil {
			s.logger.Error("Test result storage failed",
				slog.String("test_id", row.TestID),
				slog.String("suite_id", row.SuiteID),
				slog.String("error", err.Error()),
			)

			if firstErr == nil {
				firstErr = err
			}

			continue
		}

		stored++
	}

	s.logger.Info("Batch test results storage complete",
		slog.Int("total", len(rows)),
		slog.Int("stored", stored),
		slog.Int("errors", len(rows)-stored),
	)

	if firstErr != nil {
		return fmt.Errorf("%w: %w", ErrStoreFailed, firstErr)
	}

	return nil
}

// ListTestResults returns all results recorded for a suite, ordered by
// creation time ascending.
func (s *MetricsStore) ListTestResults(ctx context.Context, suiteID string) ([]TestResultRow, error) {
	query := `
		SELECT test_id, test_case_id, suite_id, status, execution_time, result_data, error_message, created_at
		FROM test_results
		WHERE suite_id = $1
		ORDER BY created_at ASC
	`

	rows, err := s.conn.QueryContext(ctx, query, suiteID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreFailed, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var results []TestResultRow

	for rows.Next() {
		var (
			row          TestResultRow
			resultData   []byte
			errorMessage sql.NullString
		)

		if err := rows.Scan(
			&row.TestID,
			&row.TestCaseID,
			&row.SuiteID,
			&row.Status,
			&row.ExecutionTimeMs,
			&resultData,
			&errorMessage,
			&row.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("%w: scan failed: %w", ErrStoreFailed, err)
		}

		row.ResultData = resultData
		row.ErrorMessage = errorMessage.String
		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreFailed, err)
	}

	return results, nil
}

// AppendTestReport persists one execution report.
func (s *MetricsStore) AppendTestReport(ctx context.Context, row *TestReportRow) error {
	query := `
		INSERT INTO test_reports (test_suite_id, rule_id, report_data, generated_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := s.conn.ExecContext(ctx, query,
		row.TestSuiteID,
		row.RuleID,
		[]byte(row.ReportData),
		row.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreFailed, classifyPqError(err))
	}

	return nil
}

// classifyPqError annotates PostgreSQL constraint violations with their
// constraint name; other errors pass through unchanged.
func classifyPqError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23503": // foreign_key_violation
			return fmt.Errorf("foreign key violation (%s): %w", pqErr.Constraint, err)
		case "23505": // unique_violation
			return fmt.Errorf("unique violation (%s): %w", pqErr.Constraint, err)
		}
	}

	return err
}

// marshalJSONB marshals a map to JSONB, returning NULL-safe value for database.
// Returns nil (SQL NULL) for nil/empty maps to avoid "invalid input syntax for
// type json" errors.
func marshalJSONB(data map[string]any) (sql.NullString, error) {
	if len(data) == 0 {
		return sql.NullString{Valid: false}, nil // SQL NULL
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return sql.NullString{Valid: false}, err
	}

	return sql.NullString{String: string(jsonBytes), Valid: true}, nil
}

// nullableStr returns sql.NullString for optional text fields
// (empty string = DB NULL).
func nullableStr(value string) sql.NullString {
	if value == "" {
		return sql.NullString{Valid: false}
	}

	return sql.NullString{String: value, Valid: true}
}

// nullableTimeValue converts a zero time to SQL NULL for query parameters.
func nullableTimeValue(t time.Time) any {
	if t.IsZero() {
		return nil
	}

	return t
}
