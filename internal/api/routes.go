// Package api provides the HTTP API server for the RuleIQ service.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ruleiq-io/ruleiq/internal/api/middleware"
)

const (
	expectedURLParts       = 2
	contentTypeJSON        = "application/json"
	contentTypeProblemJSON = "application/problem+json"

	serviceName    = "ruleiq"
	serviceVersion = "v1.0.0"
)

type (
	// HealthStatus represents the health check response structure.
	HealthStatus struct {
		Status      string `json:"status"`
		ServiceName string `json:"serviceName"`
		Version     string `json:"version"`
		Uptime      string `json:"uptime,omitempty"`
	}

	// Route represents an HTTP route configuration with a path and handler.
	// Used for declarative route registration with middleware bypass support.
	Route struct {
		Path    string
		Handler http.HandlerFunc
	}
)

// setupRoutes sets up all HTTP routes for the API server.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	// Public health endpoints
	s.registerPublicRoutes(
		mux,
		Route{"GET /ping", s.handlePing},     // K8s liveness probe
		Route{"GET /ready", s.handleReady},   // K8s readiness probe
		Route{"GET /health", s.handleHealth}, // Basic health check - status, uptime, version
		Route{"/", s.handleNotFound},         // Catch-all handler for 404 responses
	)

	// Performance analytics
	mux.HandleFunc("POST /api/v1/executions", s.handleRecordExecution)
	mux.HandleFunc("GET /api/v1/rules/{ruleId}/metrics", s.handleGetRuleMetrics)
	mux.HandleFunc("GET /api/v1/rules/{ruleId}/efficiency", s.handleGetRuleEfficiency)
	mux.HandleFunc("GET /api/v1/users/{userId}/metrics", s.handleGetUserMetrics)
	mux.HandleFunc("GET /api/v1/users/{userId}/slow-rules", s.handleGetSlowRules)

	// Impact analysis
	mux.HandleFunc("POST /api/v1/impact/analyze", s.handleAnalyzeImpact)

	// Testing automation
	mux.HandleFunc("POST /api/v1/test-suites", s.handleCreateTestSuite)
	mux.HandleFunc("GET /api/v1/test-suites/{suiteId}", s.handleGetTestSuite)
	mux.HandleFunc("POST /api/v1/test-suites/{suiteId}/execute", s.handleExecuteTestSuite)
	mux.HandleFunc("GET /api/v1/tests/running", s.handleGetRunningTests)
	mux.HandleFunc("DELETE /api/v1/tests/{testId}", s.handleCancelTest)
}

// registerPublicRoutes registers HTTP routes that bypass authentication and
// rate limiting. Only health probe endpoints belong here; never register
// business logic endpoints as public routes.
func (s *Server) registerPublicRoutes(mux *http.ServeMux, routes ...Route) {
	validHTTPMethods := map[string]bool{
		"GET":    true,
		"POST":   true,
		"PUT":    true,
		"PATCH":  true,
		"DELETE": true,
	}

	for _, route := range routes {
		mux.Handle(route.Path, route.Handler)

		// Go 1.22+ method-based routing uses "GET /path" format, but
		// r.URL.Path carries just "/path"; strip the method prefix before
		// registering the bypass.
		path := route.Path

		parts := strings.Fields(path)
		if len(parts) == expectedURLParts && validHTTPMethods[parts[0]] {
			path = strings.TrimSpace(parts[1])
		}

		if path == "" {
			s.logger.Warn("Malformed route path detected, ignoring route", slog.String("path", path))

			continue
		}

		middleware.RegisterPublicEndpoint(path)
	}
}

// writeJSON writes a JSON response body, falling back to a logged error when
// encoding fails after the header is committed.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, statusCode int, body any) {
	correlationID := middleware.GetCorrelationID(r.Context())

	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode response body",
			slog.String("correlation_id", correlationID),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}

// handlePing responds to ping requests for basic server validation.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte("pong")); err != nil {
		s.logger.Error("Failed to write ping response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
}

// handleReady responds to Kubernetes readiness probes. The server is ready
// once it is serving; storage degradation surfaces per-request as Degraded
// results rather than taking the pod out of rotation.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte("ready")); err != nil {
		s.logger.Error("Failed to write ready response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
}

// handleHealth returns basic service health: status, version, uptime.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:      "healthy",
		ServiceName: serviceName,
		Version:     serviceVersion,
	}

	if !s.startTime.IsZero() {
		status.Uptime = time.Since(s.startTime).Round(time.Second).String()
	}

	s.writeJSON(w, r, http.StatusOK, status)
}

// handleNotFound is the catch-all for unmatched paths.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, r, s.logger, NotFound("The requested resource was not found"))
}
