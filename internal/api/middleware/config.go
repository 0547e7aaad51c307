// Package middleware provides HTTP middleware components for the RuleIQ API.
package middleware

import (
	"time"

	"github.com/ruleiq-io/ruleiq/internal/config"
)

// RateLimitConfig holds token bucket settings for the three limiting tiers.
// Zero burst values fall back to 2 × rate.
type RateLimitConfig struct {
	GlobalRPS   int
	GlobalBurst int
	CallerRPS   int
	CallerBurst int
	UnAuthRPS   int
	UnAuthBurst int

	CleanupInterval time.Duration
	IdleTimeout     time.Duration
}

// LoadRateLimitConfig reads rate limiting settings from RULEIQ_* environment
// variables with sensible defaults.
func LoadRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		GlobalRPS:       config.GetEnvInt("RULEIQ_GLOBAL_RPS", defaultGlobalRPS),
		GlobalBurst:     config.GetEnvInt("RULEIQ_GLOBAL_BURST", 0),
		CallerRPS:       config.GetEnvInt("RULEIQ_CALLER_RPS", defaultCallerRPS),
		CallerBurst:     config.GetEnvInt("RULEIQ_CALLER_BURST", 0),
		UnAuthRPS:       config.GetEnvInt("RULEIQ_UNAUTH_RPS", defaultUnAuthRPS),
		UnAuthBurst:     config.GetEnvInt("RULEIQ_UNAUTH_BURST", 0),
		CleanupInterval: config.GetEnvDuration("RULEIQ_RATELIMIT_CLEANUP_INTERVAL", rateLimiterCleanupInterval),
		IdleTimeout:     config.GetEnvDuration("RULEIQ_RATELIMIT_IDLE_TIMEOUT", rateLimiterIdleTimeout),
	}
}
