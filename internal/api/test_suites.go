package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ruleiq-io/ruleiq/internal/api/middleware"
	"github.com/ruleiq-io/ruleiq/internal/autotest"
	"github.com/ruleiq-io/ruleiq/internal/rule"
	"github.com/ruleiq-io/ruleiq/internal/storage"
)

type (
	// createSuiteRequest is the wire form of a suite generation request.
	createSuiteRequest struct {
		RuleID           string              `json:"ruleId"`
		IncludeEdgeCases bool                `json:"includeEdgeCases,omitempty"`
		BaselineSuiteID  string              `json:"baselineSuiteId,omitempty"`
		Performance      *performanceOptions `json:"performance,omitempty"`
		CustomCases      []autotest.TestCase `json:"customCases,omitempty"`
	}

	// performanceOptions overrides the generated performance case budget.
	performanceOptions struct {
		Iterations         int     `json:"iterations,omitempty"`
		MaxExecutionTimeMs float64 `json:"maxExecutionTimeMs,omitempty"`
		MinSuccessRate     float64 `json:"minSuccessRate,omitempty"`
	}

	// executeSuiteRequest tunes one suite execution. An empty body runs all
	// cases in parallel batches with the default per-case timeout.
	executeSuiteRequest struct {
		Types              []autotest.TestType `json:"types,omitempty"`
		Sequential         bool                `json:"sequential,omitempty"`
		MaxConcurrentTests int                 `json:"maxConcurrentTests,omitempty"`
		CaseTimeoutMs      int                 `json:"caseTimeoutMs,omitempty"`
		DetailedReport     bool                `json:"detailedReport,omitempty"`
	}
)

// handleCreateTestSuite handles POST /api/v1/test-suites.
// Generates a test suite for the named rule (unit, integration, performance,
// optional edge and regression cases) and persists it in state created.
func (s *Server) handleCreateTestSuite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	var req createSuiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("Invalid JSON body: "+err.Error()))

		return
	}

	if req.RuleID == "" {
		WriteErrorResponse(w, r, s.logger, BadRequest("Missing required field 'ruleId'"))

		return
	}

	opts := autotest.CreateOptions{
		IncludeEdgeCases: req.IncludeEdgeCases,
		BaselineSuiteID:  req.BaselineSuiteID,
		CustomCases:      req.CustomCases,
	}
	if req.Performance != nil {
		opts.PerformanceIterations = req.Performance.Iterations
		opts.MaxExecutionTimeMs = req.Performance.MaxExecutionTimeMs
		opts.MinSuccessRate = req.Performance.MinSuccessRate
	}

	suite, err := s.autotest.CreateTestSuite(ctx, req.RuleID, opts)
	if err != nil {
		switch {
		case errors.Is(err, rule.ErrRuleNotFound):
			WriteErrorResponse(w, r, s.logger, NotFound("Rule not found: "+req.RuleID))
		case errors.Is(err, autotest.ErrUnknownTestType):
			WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))
		case errors.Is(err, storage.ErrSuiteNotFound):
			WriteErrorResponse(w, r, s.logger, NotFound("Baseline suite not found: "+req.BaselineSuiteID))
		default:
			s.logger.ErrorContext(ctx, "Failed to create test suite",
				"correlation_id", correlationID,
				"rule_id", req.RuleID,
				"error", err.Error(),
			)
			WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to create test suite"))
		}

		return
	}

	s.writeJSON(w, r, http.StatusCreated, suite)
}

// handleGetTestSuite handles GET /api/v1/test-suites/{suiteId}.
func (s *Server) handleGetTestSuite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	suiteID := r.PathValue("suiteId")

	suite, err := s.autotest.GetTestSuite(ctx, suiteID)
	if err != nil {
		if errors.Is(err, storage.ErrSuiteNotFound) {
			WriteErrorResponse(w, r, s.logger, NotFound("Test suite not found: "+suiteID))

			return
		}

		s.logger.ErrorContext(ctx, "Failed to load test suite",
			"correlation_id", middleware.GetCorrelationID(ctx),
			"suite_id", suiteID,
			"error", err.Error(),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to load test suite"))

		return
	}

	s.writeJSON(w, r, http.StatusOK, suite)
}

// handleExecuteTestSuite handles POST /api/v1/test-suites/{suiteId}/execute.
// Runs the persisted suite and returns the per-case results, summary, and
// (when requested) the execution report. Individual case failures leave the
// suite completed; only execution machinery failures yield an error.
func (s *Server) handleExecuteTestSuite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)
	suiteID := r.PathValue("suiteId")

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	// Empty body means default options.
	var req executeSuiteRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		WriteErrorResponse(w, r, s.logger, BadRequest("Invalid JSON body: "+err.Error()))

		return
	}

	opts := autotest.ExecuteOptions{
		Types:              req.Types,
		Sequential:         req.Sequential,
		MaxConcurrentTests: req.MaxConcurrentTests,
		CaseTimeout:        time.Duration(req.CaseTimeoutMs) * time.Millisecond,
		DetailedReport:     req.DetailedReport,
	}

	execution, err := s.autotest.ExecuteTestSuite(ctx, suiteID, opts)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrSuiteNotFound):
			WriteErrorResponse(w, r, s.logger, NotFound("Test suite not found: "+suiteID))
		case errors.Is(err, autotest.ErrNoCasesSelected), errors.Is(err, autotest.ErrUnknownTestType):
			WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))
		default:
			s.logger.ErrorContext(ctx, "Test suite execution failed",
				"correlation_id", correlationID,
				"suite_id", suiteID,
				"error", err.Error(),
			)
			WriteErrorResponse(w, r, s.logger, InternalServerError("Test suite execution failed"))
		}

		return
	}

	s.writeJSON(w, r, http.StatusOK, execution)
}
