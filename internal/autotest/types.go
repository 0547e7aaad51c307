// Package autotest generates and executes automated test suites for email
// automation rules: unit cases from synthesized fixtures, integration cases
// against declared dependencies, performance cases over repeated simulation,
// regression cases against stored baselines, and edge cases for degenerate
// input.
//
// Suites follow a created → running → completed|failed lifecycle with no
// back-transitions; re-executing a suite appends a new result set under the
// same suite ID.
package autotest

import (
	"errors"
	"time"

	"github.com/ruleiq-io/ruleiq/internal/rule"
)

// Sentinel errors for suite generation and execution.
var (
	// ErrSuiteNil is returned when a nil suite is provided.
	ErrSuiteNil = errors.New("test suite cannot be nil")
	// ErrNoCasesSelected is returned when a type filter removes every case.
	ErrNoCasesSelected = errors.New("no test cases match the requested types")
	// ErrTestNotRunning is returned when cancelling a test that is not in flight.
	ErrTestNotRunning = errors.New("test is not running")
	// ErrCaseTimeout marks a case that exceeded its execution deadline.
	ErrCaseTimeout = errors.New("test case timed out")
	// ErrUnknownTestType is returned for case types outside the closed set.
	ErrUnknownTestType = errors.New("unknown test type")
)

type (
	// TestType classifies a generated or custom test case.
	TestType string

	// SuiteStatus is the lifecycle state of a suite.
	SuiteStatus string

	// ResultStatus is the outcome of one executed case.
	ResultStatus string

	// Expectation is the deterministic expected outcome of a simulation:
	// the field set compared by unit and regression cases.
	Expectation struct {
		Triggered bool            `json:"triggered"`
		Action    rule.ActionKind `json:"action,omitempty"`
		Target    string          `json:"target,omitempty"`
	}

	// PerformanceSpec configures a performance case.
	PerformanceSpec struct {
		Iterations         int     `json:"iterations"`
		MaxExecutionTimeMs float64 `json:"maxExecutionTimeMs"`
		MinSuccessRate     float64 `json:"minSuccessRate"`
	}

	// TestCase is one executable case within a suite. Input is the email
	// fact map fed to the simulator; nil means the null-input edge case.
	TestCase struct {
		ID           string           `json:"id"`
		Name         string           `json:"name"`
		Type         TestType         `json:"type"`
		Input        map[string]any   `json:"input,omitempty"`
		Expected     *Expectation     `json:"expected,omitempty"`
		Baseline     *Expectation     `json:"baseline,omitempty"`
		Dependencies []string         `json:"dependencies,omitempty"`
		Performance  *PerformanceSpec `json:"performance,omitempty"`
	}

	// TestSuite is a generated suite bound to one rule version.
	TestSuite struct {
		ID           string      `json:"id"`
		RuleID       string      `json:"ruleId"`
		UserID       string      `json:"userId"`
		Rule         *rule.Rule  `json:"rule"`
		Status       SuiteStatus `json:"status"`
		Cases        []TestCase  `json:"cases"`
		CaseTimeout  string      `json:"caseTimeout,omitempty"`
		CreatedAt    time.Time   `json:"createdAt"`
		LastExecuted *time.Time  `json:"lastExecuted,omitempty"`
	}

	// TestResult is one executed case outcome. Immutable once recorded.
	TestResult struct {
		TestID          string         `json:"testId"`
		TestCaseID      string         `json:"testCaseId"`
		SuiteID         string         `json:"suiteId"`
		CaseName        string         `json:"caseName"`
		Type            TestType       `json:"type"`
		Status          ResultStatus   `json:"status"`
		ExecutionTimeMs float64        `json:"executionTimeMs"`
		// Outcome is the simulated {triggered, action, target} observed by
		// unit, integration, and regression cases. Stored so later suites can
		// use it as a regression baseline.
		Outcome       *Expectation   `json:"outcome,omitempty"`
		Details       map[string]any `json:"details,omitempty"`
		ChangedFields []string       `json:"changedFields,omitempty"`
		Error         string         `json:"error,omitempty"`
		CreatedAt     time.Time      `json:"createdAt"`
	}

	// Summary aggregates one suite execution.
	Summary struct {
		Total                  int     `json:"total"`
		Passed                 int     `json:"passed"`
		Failed                 int     `json:"failed"`
		PassRate               float64 `json:"passRate"`
		AverageExecutionTimeMs float64 `json:"averageExecutionTimeMs"`
	}

	// Execution is the full outcome of one ExecuteTestSuite call.
	Execution struct {
		SuiteID    string       `json:"suiteId"`
		RuleID     string       `json:"ruleId"`
		Status     SuiteStatus  `json:"status"`
		Summary    Summary      `json:"summary"`
		Results    []TestResult `json:"results"`
		Report     *Report      `json:"report,omitempty"`
		StartedAt  time.Time    `json:"startedAt"`
		FinishedAt time.Time    `json:"finishedAt"`
	}
)

// Closed test type set.
const (
	TypeUnit        TestType = "unit"
	TypeIntegration TestType = "integration"
	TypePerformance TestType = "performance"
	TypeRegression  TestType = "regression"
	TypeEdgeCase    TestType = "edge_case"
)

// Suite lifecycle states.
const (
	StatusCreated   SuiteStatus = "created"
	StatusRunning   SuiteStatus = "running"
	StatusCompleted SuiteStatus = "completed"
	StatusFailed    SuiteStatus = "failed"
)

// Case result states.
const (
	ResultPassed ResultStatus = "passed"
	ResultFailed ResultStatus = "failed"
)

// Valid reports whether the test type is in the closed set.
func (t TestType) Valid() bool {
	switch t {
	case TypeUnit, TypeIntegration, TypePerformance, TypeRegression, TypeEdgeCase:
		return true
	default:
		return false
	}
}
