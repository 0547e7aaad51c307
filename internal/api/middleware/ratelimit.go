// Package middleware provides HTTP middleware components for the RuleIQ API.
package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	burstCapacityMultiplier = 2
	defaultGlobalRPS        = 100
	defaultCallerRPS        = 50
	defaultUnAuthRPS        = 10

	rateLimiterCleanupInterval = 5 * time.Minute
	rateLimiterIdleTimeout     = 1 * time.Hour
)

type (
	// RateLimiter gates incoming requests. callerID is empty for
	// unauthenticated requests.
	RateLimiter interface {
		Allow(callerID string) bool
	}

	// InMemoryRateLimiter implements three-tier token bucket limiting with
	// golang.org/x/time/rate: a global bucket, per-caller buckets for
	// authenticated requests, and a shared bucket for unauthenticated ones.
	//
	// Idle caller buckets are cleaned up periodically to bound memory.
	// Suitable for single-node deployments.
	InMemoryRateLimiter struct {
		global          *rate.Limiter
		perCaller       map[string]*callerLimiter
		unauthenticated *rate.Limiter
		mu              sync.RWMutex
		cleanupTicker   *time.Ticker
		done            chan struct{}

		callerRPS       int
		callerBurst     int
		cleanupInterval time.Duration
		idleTimeout     time.Duration
	}

	callerLimiter struct {
		limiter    *rate.Limiter
		lastAccess time.Time
		mu         sync.Mutex
	}
)

// NewInMemoryRateLimiter creates a rate limiter from config. Burst capacity
// defaults to 2 × rate unless overridden.
func NewInMemoryRateLimiter(config *RateLimitConfig) *InMemoryRateLimiter {
	limiter := &InMemoryRateLimiter{
		global:          rate.NewLimiter(rate.Limit(config.GlobalRPS), burstCapacity(config.GlobalRPS, config.GlobalBurst)),
		perCaller:       make(map[string]*callerLimiter),
		unauthenticated: rate.NewLimiter(rate.Limit(config.UnAuthRPS), burstCapacity(config.UnAuthRPS, config.UnAuthBurst)),
		done:            make(chan struct{}),
		callerRPS:       config.CallerRPS,
		callerBurst:     burstCapacity(config.CallerRPS, config.CallerBurst),
		cleanupInterval: config.CleanupInterval,
		idleTimeout:     config.IdleTimeout,
	}

	limiter.startCleanup()

	return limiter
}

func burstCapacity(rps, override int) int {
	if override > 0 {
		return override
	}

	return rps * burstCapacityMultiplier
}

// Allow reports whether a request should proceed. The global bucket is
// checked first, then the caller-specific or unauthenticated bucket.
func (rl *InMemoryRateLimiter) Allow(callerID string) bool {
	if !rl.global.Allow() {
		return false
	}

	if callerID == "" {
		return rl.unauthenticated.Allow()
	}

	rl.mu.RLock()
	cl, ok := rl.perCaller[callerID]
	rl.mu.RUnlock()

	if !ok {
		rl.mu.Lock()
		if cl, ok = rl.perCaller[callerID]; !ok {
			cl = &callerLimiter{
				limiter:    rate.NewLimiter(rate.Limit(rl.callerRPS), rl.callerBurst),
				lastAccess: time.Now(),
			}
			rl.perCaller[callerID] = cl
		}
		rl.mu.Unlock()
	}

	cl.mu.Lock()
	cl.lastAccess = time.Now()
	cl.mu.Unlock()

	return cl.limiter.Allow()
}

// Close stops the cleanup goroutine. Not part of the RateLimiter interface;
// callers that need cleanup use a type assertion.
func (rl *InMemoryRateLimiter) Close() {
	if rl.cleanupTicker != nil {
		rl.cleanupTicker.Stop()
	}

	close(rl.done)
}

func (rl *InMemoryRateLimiter) startCleanup() {
	interval := rl.cleanupInterval
	if interval == 0 {
		interval = rateLimiterCleanupInterval
	}

	rl.cleanupTicker = time.NewTicker(interval)

	go func() {
		for {
			select {
			case <-rl.cleanupTicker.C:
				rl.cleanup()
			case <-rl.done:
				return
			}
		}
	}()
}

// cleanup removes caller buckets idle past the timeout.
func (rl *InMemoryRateLimiter) cleanup() {
	idleTimeout := rl.idleTimeout
	if idleTimeout == 0 {
		idleTimeout = rateLimiterIdleTimeout
	}

	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for callerID, cl := range rl.perCaller {
		cl.mu.Lock()
		lastAccess := cl.lastAccess
		cl.mu.Unlock()

		if now.Sub(lastAccess) > idleTimeout {
			delete(rl.perCaller, callerID)
		}
	}
}

// RateLimit returns middleware that enforces the limiter, returning 429 with
// an RFC 7807 body on rejection. Must sit after the auth middleware so the
// caller identity is available for per-caller limiting.
func RateLimit(limiter RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			callerID := ""
			if caller, ok := GetCallerContext(r.Context()); ok {
				callerID = caller.CallerID
			}

			if !limiter.Allow(callerID) {
				correlationID := GetCorrelationID(r.Context())
				detail := "Rate limit exceeded. Please retry after some time."

				if err := writeProblem(w, r, http.StatusTooManyRequests, detail, correlationID); err != nil {
					logger.Error("Failed to write rate limit response",
						slog.String("correlation_id", correlationID),
						slog.String("path", r.URL.Path),
						slog.String("error", err.Error()),
					)

					http.Error(w, detail, http.StatusTooManyRequests)
				}

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
