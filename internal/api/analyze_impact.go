package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ruleiq-io/ruleiq/internal/api/middleware"
	"github.com/ruleiq-io/ruleiq/internal/impact"
	"github.com/ruleiq-io/ruleiq/internal/rule"
)

// impactAnalysisRequest is the wire form of a proposed rule change.
// oldRule nil means creation; newRule nil means deletion.
type impactAnalysisRequest struct {
	OldRule *rule.Rule `json:"oldRule,omitempty"`
	NewRule *rule.Rule `json:"newRule,omitempty"`
}

// handleAnalyzeImpact handles POST /api/v1/impact/analyze.
// Scores a proposed rule change along the four impact dimensions against the
// rule's 30-day analytics baseline and returns the full assessment with
// recommendations.
func (s *Server) handleAnalyzeImpact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	var req impactAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("Invalid JSON body: "+err.Error()))

		return
	}

	result, err := s.impact.AnalyzeRuleChangeImpact(ctx, req.OldRule, req.NewRule)
	if err != nil {
		if errors.Is(err, impact.ErrNoRuleProvided) || isRuleValidationError(err) {
			WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

			return
		}

		s.logger.ErrorContext(ctx, "Impact analysis failed",
			"correlation_id", correlationID,
			"error", err.Error(),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Impact analysis failed"))

		return
	}

	s.writeJSON(w, r, http.StatusOK, result)
}

// isRuleValidationError reports whether the error stems from rule model
// validation, which maps to a 400 rather than a 500.
func isRuleValidationError(err error) bool {
	for _, sentinel := range []error{
		rule.ErrRuleNil,
		rule.ErrRuleIDEmpty,
		rule.ErrRuleNameEmpty,
		rule.ErrNoConditions,
		rule.ErrUnknownConditionType,
		rule.ErrUnknownOperator,
		rule.ErrUnknownActionKind,
		rule.ErrPriorityOutOfRange,
		rule.ErrConditionFieldEmpty,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}

	return false
}
