package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// InMemoryStore provides a thread-safe in-memory Store implementation.
// Used by unit tests and by the ingester's dry-run mode; the PostgreSQL
// MetricsStore is the production backend.
type InMemoryStore struct {
	records  []ExecutionRecord
	analyses map[string]ImpactAnalysisRow
	suites   map[string]TestSuiteRow
	results  map[string][]TestResultRow // suiteID -> results in append order
	reports  []TestReportRow
	mutex    sync.RWMutex
}

// Compile-time interface assertion.
var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory metrics store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		analyses: make(map[string]ImpactAnalysisRow),
		suites:   make(map[string]TestSuiteRow),
		results:  make(map[string][]TestResultRow),
	}
}

// AppendExecutionRecord persists one execution record.
func (s *InMemoryStore) AppendExecutionRecord(_ context.Context, record *ExecutionRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrRecordInvalid, err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.records = append(s.records, *record)

	return nil
}

// QueryExecutionRecords returns records matching the query, ordered by
// timestamp ascending.
func (s *InMemoryStore) QueryExecutionRecords(_ context.Context, query ExecutionQuery) ([]ExecutionRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var matched []ExecutionRecord

	for i := range s.records {
		if query.Matches(&s.records[i]) {
			matched = append(matched, s.records[i])
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.Before(matched[j].Timestamp)
	})

	return matched, nil
}

// AppendImpactAnalysis persists one impact assessment (append-only).
func (s *InMemoryStore) AppendImpactAnalysis(_ context.Context, row *ImpactAnalysisRow) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.analyses[row.AnalysisID]; exists {
		return fmt.Errorf("%w: duplicate analysis ID %s", ErrStoreFailed, row.AnalysisID)
	}

	s.analyses[row.AnalysisID] = *row

	return nil
}

// GetImpactAnalysis retrieves a persisted assessment by ID. Not part of the
// Store interface; used by tests to verify append-only persistence.
func (s *InMemoryStore) GetImpactAnalysis(analysisID string) (ImpactAnalysisRow, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	row, exists := s.analyses[analysisID]

	return row, exists
}

// SaveTestSuite persists a newly created suite.
func (s *InMemoryStore) SaveTestSuite(_ context.Context, row *TestSuiteRow) error {
	if row.ID == "" {
		return ErrSuiteIDEmpty
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.suites[row.ID] = *row

	return nil
}

// GetTestSuite retrieves a suite by ID.
func (s *InMemoryStore) GetTestSuite(_ context.Context, suiteID string) (*TestSuiteRow, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	row, exists := s.suites[suiteID]
	if !exists {
		return nil, ErrSuiteNotFound
	}

	rowCopy := row

	return &rowCopy, nil
}

// UpdateTestSuite updates a suite's status, payload, and last-executed timestamp.
func (s *InMemoryStore) UpdateTestSuite(_ context.Context, row *TestSuiteRow) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.suites[row.ID]; !exists {
		return ErrSuiteNotFound
	}

	s.suites[row.ID] = *row

	return nil
}

// AppendTestResults persists a batch of test results.
func (s *InMemoryStore) AppendTestResults(_ context.Context, rows []*TestResultRow) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, row := range rows {
		s.results[row.SuiteID] = append(s.results[row.SuiteID], *row)
	}

	return nil
}

// ListTestResults returns all results recorded for a suite in append order.
func (s *InMemoryStore) ListTestResults(_ context.Context, suiteID string) ([]TestResultRow, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rows := s.results[suiteID]
	out := make([]TestResultRow, len(rows))
	copy(out, rows)

	return out, nil
}

// AppendTestReport persists one execution report.
func (s *InMemoryStore) AppendTestReport(_ context.Context, row *TestReportRow) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.reports = append(s.reports, *row)

	return nil
}

// Reports returns all persisted reports. Used by tests.
func (s *InMemoryStore) Reports() []TestReportRow {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]TestReportRow, len(s.reports))
	copy(out, s.reports)

	return out
}

// RecordCount returns the number of stored execution records. Used by tests.
func (s *InMemoryStore) RecordCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.records)
}
