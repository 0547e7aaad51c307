package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ruleiq-io/ruleiq/internal/api/middleware"
	"github.com/ruleiq-io/ruleiq/internal/storage"
)

type (
	// executionRecordRequest is the wire form of one rule execution event.
	executionRecordRequest struct {
		RuleID          string         `json:"ruleId"`
		UserID          string         `json:"userId"`
		ExecutionTimeMs float64        `json:"executionTimeMs"`
		Success         bool           `json:"success"`
		Triggered       bool           `json:"triggered"`
		ErrorMessage    string         `json:"errorMessage,omitempty"`
		Timestamp       *time.Time     `json:"timestamp,omitempty"`
		Context         map[string]any `json:"context,omitempty"`
	}

	// executionRecordResponse acknowledges an accepted record.
	executionRecordResponse struct {
		Status        string `json:"status"`
		RuleID        string `json:"ruleId"`
		CorrelationID string `json:"correlationId"`
	}
)

// handleRecordExecution handles POST /api/v1/executions.
// Accepts one rule execution telemetry event for aggregation. The record is
// accepted as soon as the rolling window is updated; persistence is
// best-effort and never blocks the caller.
func (s *Server) handleRecordExecution(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	var req executionRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("Invalid JSON body: "+err.Error()))

		return
	}

	record := &storage.ExecutionRecord{
		RuleID:          req.RuleID,
		UserID:          req.UserID,
		ExecutionTimeMs: req.ExecutionTimeMs,
		Success:         req.Success,
		Triggered:       req.Triggered,
		ErrorMessage:    req.ErrorMessage,
		Context:         req.Context,
	}
	if req.Timestamp != nil {
		record.Timestamp = *req.Timestamp
	}

	if err := s.analytics.RecordExecution(ctx, record); err != nil {
		if errors.Is(err, storage.ErrRecordInvalid) || errors.Is(err, storage.ErrRecordNil) {
			WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

			return
		}

		s.logger.ErrorContext(ctx, "Failed to record execution",
			"correlation_id", correlationID,
			"rule_id", req.RuleID,
			"error", err.Error(),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to record execution"))

		return
	}

	s.writeJSON(w, r, http.StatusAccepted, executionRecordResponse{
		Status:        "accepted",
		RuleID:        req.RuleID,
		CorrelationID: correlationID,
	})
}
