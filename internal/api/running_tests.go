package api

import (
	"errors"
	"net/http"

	"github.com/ruleiq-io/ruleiq/internal/api/middleware"
	"github.com/ruleiq-io/ruleiq/internal/autotest"
)

// runningTestsResponse is a snapshot of in-flight test executions.
type runningTestsResponse struct {
	Running []autotest.RunningTest `json:"running"`
	Count   int                    `json:"count"`
}

// handleGetRunningTests handles GET /api/v1/tests/running.
// Returns the in-flight test executions sorted by test ID.
func (s *Server) handleGetRunningTests(w http.ResponseWriter, r *http.Request) {
	running := s.autotest.GetRunningTests()

	s.writeJSON(w, r, http.StatusOK, runningTestsResponse{
		Running: running,
		Count:   len(running),
	})
}

// handleCancelTest handles DELETE /api/v1/tests/{testId}.
// Cancellation is advisory: the test's context is cancelled and its
// bookkeeping entry removed, but already-dispatched work settles normally.
func (s *Server) handleCancelTest(w http.ResponseWriter, r *http.Request) {
	testID := r.PathValue("testId")

	if err := s.autotest.CancelTest(testID); err != nil {
		if errors.Is(err, autotest.ErrTestNotRunning) {
			WriteErrorResponse(w, r, s.logger, NotFound("No running test with ID: "+testID))

			return
		}

		s.logger.Error("Failed to cancel test",
			"correlation_id", middleware.GetCorrelationID(r.Context()),
			"test_id", testID,
			"error", err.Error(),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to cancel test"))

		return
	}

	w.WriteHeader(http.StatusNoContent)
}
