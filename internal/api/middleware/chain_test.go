package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApply_OrderFirstOptionOutermost(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	var order []string

	tag := func(name string) Option {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := Apply(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		order = append(order, "handler")
		w.WriteHeader(http.StatusOK)
	}), tag("outer"), tag("middle"), tag("inner"))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "middle", "inner", "handler"}, order)
}

func TestWithAuth_NilStoreDisablesAuthentication(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	handler := Apply(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), WithAuth(nil, testLogger()))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tests/running", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWithRateLimit_NilLimiterDisablesLimiting(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	handler := Apply(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), WithRateLimit(nil, testLogger()))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCorrelationID_GeneratedAndEchoed(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	var inContext string

	handler := Apply(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inContext = GetCorrelationID(r.Context())
		w.WriteHeader(http.StatusOK)
	}), WithCorrelationID())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, inContext)
	assert.NotEqual(t, "unknown", inContext)
	assert.Equal(t, inContext, rec.Header().Get("X-Correlation-ID"))
}

func TestCorrelationID_InboundHeaderHonored(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	var inContext string

	handler := Apply(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inContext = GetCorrelationID(r.Context())
		w.WriteHeader(http.StatusOK)
	}), WithCorrelationID())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", inContext)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Correlation-ID"))
}

func TestRecovery_PanicReturns500Problem(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	handler := Apply(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("boom")
	}), WithRecovery(testLogger()))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/impact/analyze", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "https://ruleiq.io/problems/500")
}

type staticCORSConfig struct{}

func (staticCORSConfig) GetAllowedOrigins() []string { return []string{"https://app.ruleiq.io"} }
func (staticCORSConfig) GetAllowedMethods() []string { return []string{"GET", "POST", "DELETE"} }
func (staticCORSConfig) GetAllowedHeaders() []string {
	return []string{"Content-Type", "X-Api-Key", "X-Correlation-ID"}
}
func (staticCORSConfig) GetMaxAge() int { return 600 }

func TestCORS_AllowedOriginGetsHeaders(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	handler := Apply(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), WithCORS(staticCORSConfig{}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tests/running", nil)
	req.Header.Set("Origin", "https://app.ruleiq.io")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://app.ruleiq.io", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, DELETE", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
}

func TestCORS_DisallowedOriginGetsNoHeaders(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	handler := Apply(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), WithCORS(staticCORSConfig{}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tests/running", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_PreflightReturns204(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	reached := false

	handler := Apply(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}), WithCORS(staticCORSConfig{}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/test-suites", nil)
	req.Header.Set("Origin", "https://app.ruleiq.io")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, reached, "preflight must not reach the handler")
}
