// Package middleware provides HTTP middleware components for the RuleIQ API.
package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ruleiq-io/ruleiq/internal/storage"
)

// Authentication error types for granular error handling.
var (
	// ErrMissingAPIKey is returned when no API key is provided in headers.
	ErrMissingAPIKey = errors.New("missing API key")
	// ErrInvalidAPIKey is returned for invalid format or unknown keys.
	// Generic on purpose: prevents key enumeration.
	ErrInvalidAPIKey = errors.New("invalid API key")
)

// AuthError represents an authentication failure with a specific type.
type AuthError struct {
	Type    error
	Message string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("authentication failed: %s: %s", e.Type.Error(), e.Message)
	}

	return "authentication failed: " + e.Type.Error()
}

// Unwrap enables errors.Is matching on the error type.
func (e *AuthError) Unwrap() error {
	return e.Type
}

// publicEndpoints lists paths that bypass authentication (health probes).
// Registered once during route setup, before the server serves traffic.
var (
	publicEndpoints   = map[string]bool{} //nolint:gochecknoglobals
	publicEndpointsMu sync.RWMutex        //nolint:gochecknoglobals
)

// RegisterPublicEndpoint marks a path as bypassing authentication.
// Only health probe endpoints should ever be registered here.
func RegisterPublicEndpoint(endpoint string) {
	publicEndpointsMu.Lock()
	defer publicEndpointsMu.Unlock()

	publicEndpoints[endpoint] = true
}

func isPublicEndpoint(path string) bool {
	publicEndpointsMu.RLock()
	defer publicEndpointsMu.RUnlock()

	return publicEndpoints[path]
}

// Authenticate creates middleware that validates API keys against the key
// store and enriches the request context with the caller identity.
//
// Keys are accepted from X-Api-Key (primary) or Authorization: Bearer
// (fallback). Failures return RFC 7807 responses; lookups that miss still pay
// a bcrypt comparison so timing does not reveal key existence.
func Authenticate(store storage.KeyStore, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicEndpoint(r.URL.Path) {
				next.ServeHTTP(w, r)

				return
			}

			authStart := time.Now()

			apiKey, found := extractAPIKey(r)
			if !found {
				writeAuthError(w, r, logger, &AuthError{Type: ErrMissingAPIKey, Message: "Missing API key"})

				return
			}

			parsed, err := storage.ParseAPIKey(apiKey)
			if err != nil {
				dummyBcryptComparison()
				writeAuthError(w, r, logger, &AuthError{Type: ErrInvalidAPIKey, Message: "Invalid or missing API key"})

				return
			}

			record, ok := store.FindByKey(parsed)
			if !ok {
				dummyBcryptComparison()
				writeAuthError(w, r, logger, &AuthError{Type: ErrInvalidAPIKey, Message: "Invalid or missing API key"})

				return
			}

			caller := CallerContext{
				CallerID: record.CallerID,
				KeyID:    record.ID,
				Name:     record.Name,
				AuthTime: time.Now(),
			}
			ctx := SetCallerContext(r.Context(), caller)

			logger.Info("API key authenticated",
				slog.String("caller_id", caller.CallerID),
				slog.String("key_id", caller.KeyID),
				slog.Duration("auth_latency", time.Since(authStart)),
				slog.String("correlation_id", GetCorrelationID(r.Context())),
				slog.String("endpoint", r.URL.Path),
			)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractAPIKey pulls the API key from request headers: X-Api-Key first,
// Authorization: Bearer second. Keys containing newlines are rejected
// outright (header injection prevention).
func extractAPIKey(r *http.Request) (string, bool) {
	if apiKey := r.Header.Get("X-Api-Key"); apiKey != "" {
		return cleanAPIKey(apiKey)
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return cleanAPIKey(strings.TrimPrefix(authHeader, "Bearer "))
	}

	return "", false
}

func cleanAPIKey(key string) (string, bool) {
	if strings.ContainsAny(key, "\r\n") {
		return "", false
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return "", false
	}

	return key, true
}

// dummyBcryptComparison keeps rejection timing constant whether or not a key
// exists in the store.
func dummyBcryptComparison() {
	_ = bcrypt.CompareHashAndPassword([]byte("dummy"), []byte("dummy"))
}

// writeAuthError logs the failure and writes an RFC 7807 response.
func writeAuthError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	correlationID := GetCorrelationID(r.Context())

	logger.Warn("Authentication failed",
		slog.String("reason", err.Error()),
		slog.String("correlation_id", correlationID),
		slog.String("endpoint", r.URL.Path),
		slog.String("remote_addr", r.RemoteAddr),
	)

	if writeErr := writeProblem(w, r, http.StatusUnauthorized, err.Error(), correlationID); writeErr != nil {
		logger.Error("Failed to encode authentication error response",
			slog.String("correlation_id", correlationID),
			slog.String("path", r.URL.Path),
			slog.String("error", writeErr.Error()),
		)
	}
}

// writeProblem writes an RFC 7807 response without importing the api package.
func writeProblem(w http.ResponseWriter, r *http.Request, statusCode int, detail, correlationID string) error {
	var title string

	switch statusCode {
	case http.StatusUnauthorized:
		title = "Unauthorized"
	case http.StatusTooManyRequests:
		title = "Too Many Requests"
	case http.StatusInternalServerError:
		title = "Internal Server Error"
	default:
		title = http.StatusText(statusCode)
	}

	problem := map[string]any{
		"type":          fmt.Sprintf("https://ruleiq.io/problems/%d", statusCode),
		"title":         title,
		"status":        statusCode,
		"detail":        detail,
		"instance":      r.URL.Path,
		"correlationId": correlationID,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(statusCode)

	return json.NewEncoder(w).Encode(problem)
}
