package autotest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

type (
	// RunningTest is one in-flight case visible to external callers.
	RunningTest struct {
		TestID     string    `json:"testId"`
		TestCaseID string    `json:"testCaseId"`
		SuiteID    string    `json:"suiteId"`
		StartedAt  time.Time `json:"startedAt"`
	}

	// Registry tracks in-flight test executions and supports best-effort
	// cancellation by test ID. Test IDs are monotonically increasing within
	// a process, so a later test always sorts after an earlier one.
	//
	// Cancellation is advisory: it cancels the case's context and removes
	// the bookkeeping entry, but work already dispatched past its last
	// suspension point runs to completion.
	Registry struct {
		mu      sync.Mutex
		seq     uint64
		running map[string]runningEntry
		now     func() time.Time
	}

	runningEntry struct {
		info   RunningTest
		cancel context.CancelFunc
	}
)

// NewRegistry creates an empty running-tests registry.
func NewRegistry() *Registry {
	return &Registry{
		running: make(map[string]runningEntry),
		now:     time.Now,
	}
}

// register assigns the next test ID and tracks the case until done is called.
func (r *Registry) register(suiteID, caseID string, cancel context.CancelFunc) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	testID := fmt.Sprintf("test-%012d", r.seq)

	r.running[testID] = runningEntry{
		info: RunningTest{
			TestID:     testID,
			TestCaseID: caseID,
			SuiteID:    suiteID,
			StartedAt:  r.now(),
		},
		cancel: cancel,
	}

	return testID
}

// done removes a finished test from the registry.
func (r *Registry) done(testID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.running, testID)
}

// GetRunningTests returns a snapshot of in-flight tests ordered by test ID,
// which equals start order.
func (r *Registry) GetRunningTests() []RunningTest {
	r.mu.Lock()
	defer r.mu.Unlock()

	tests := make([]RunningTest, 0, len(r.running))
	for _, entry := range r.running {
		tests = append(tests, entry.info)
	}

	sort.Slice(tests, func(i, j int) bool { return tests[i].TestID < tests[j].TestID })

	return tests
}

// CancelTest cancels an in-flight test by ID. Returns ErrTestNotRunning when
// the ID is unknown or the test already settled.
func (r *Registry) CancelTest(testID string) error {
	r.mu.Lock()
	entry, ok := r.running[testID]
	if ok {
		delete(r.running, testID)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrTestNotRunning, testID)
	}

	entry.cancel()

	return nil
}
