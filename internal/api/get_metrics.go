package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ruleiq-io/ruleiq/internal/analytics"
)

const defaultSlowThresholdMs = 1000.0

type (
	// ruleEfficiencyResponse carries the composite efficiency score plus the
	// short-horizon trend snapshot.
	ruleEfficiencyResponse struct {
		RuleID          string          `json:"ruleId"`
		EfficiencyScore float64         `json:"efficiencyScore"`
		Trend           analytics.Trend `json:"trend"`
	}

	// slowRulesResponse lists a user's rules exceeding the latency threshold,
	// slowest first.
	slowRulesResponse struct {
		UserID      string               `json:"userId"`
		ThresholdMs float64              `json:"thresholdMs"`
		Rules       []analytics.SlowRule `json:"rules"`
	}
)

// parseRange reads the optional "range" query parameter, defaulting to the
// 24-hour window.
func parseRange(r *http.Request) (analytics.TimeRange, error) {
	raw := r.URL.Query().Get("range")
	if raw == "" {
		return analytics.Range24h, nil
	}

	return analytics.ParseTimeRange(raw)
}

// handleGetRuleMetrics handles GET /api/v1/rules/{ruleId}/metrics.
//
// Query Parameters:
//   - range: 1h | 24h | 7d | 30d | 90d (default: 24h)
//
// Returns the aggregate metrics for the rule over the window. Zero matching
// records yield the well-defined zero aggregate, not an error.
func (s *Server) handleGetRuleMetrics(w http.ResponseWriter, r *http.Request) {
	ruleID := r.PathValue("ruleId")

	timeRange, err := parseRange(r)
	if err != nil {
		if errors.Is(err, analytics.ErrUnknownTimeRange) {
			WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

			return
		}

		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to parse time range"))

		return
	}

	metrics := s.analytics.GetMetrics(r.Context(), ruleID, timeRange)

	s.writeJSON(w, r, http.StatusOK, metrics)
}

// handleGetUserMetrics handles GET /api/v1/users/{userId}/metrics.
//
// Query Parameters:
//   - range: 1h | 24h | 7d | 30d | 90d (default: 24h)
//
// Returns per-rule metrics for every rule the user has execution records
// for, plus a cross-rule summary.
func (s *Server) handleGetUserMetrics(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")

	timeRange, err := parseRange(r)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	metrics := s.analytics.GetAllRulesMetrics(r.Context(), userID, timeRange)

	s.writeJSON(w, r, http.StatusOK, metrics)
}

// handleGetRuleEfficiency handles GET /api/v1/rules/{ruleId}/efficiency.
// Returns the 0-100 composite efficiency score over the 30-day window and
// the rolling-window trend classification.
func (s *Server) handleGetRuleEfficiency(w http.ResponseWriter, r *http.Request) {
	ruleID := r.PathValue("ruleId")

	s.writeJSON(w, r, http.StatusOK, ruleEfficiencyResponse{
		RuleID:          ruleID,
		EfficiencyScore: s.analytics.GetRuleEfficiencyScore(r.Context(), ruleID),
		Trend:           s.analytics.ExecutionTrend(ruleID),
	})
}

// handleGetSlowRules handles GET /api/v1/users/{userId}/slow-rules.
//
// Query Parameters:
//   - thresholdMs: positive float (default: 1000)
//
// Returns the user's rules whose 7-day average execution time exceeds the
// threshold, slowest first.
func (s *Server) handleGetSlowRules(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")

	thresholdMs := defaultSlowThresholdMs

	if raw := r.URL.Query().Get("thresholdMs"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed < 0 {
			WriteErrorResponse(w, r, s.logger,
				BadRequest("Invalid parameter 'thresholdMs': must be a non-negative number"))

			return
		}

		thresholdMs = parsed
	}

	s.writeJSON(w, r, http.StatusOK, slowRulesResponse{
		UserID:      userID,
		ThresholdMs: thresholdMs,
		Rules:       s.analytics.GetSlowPerformingRules(r.Context(), userID, thresholdMs),
	})
}
