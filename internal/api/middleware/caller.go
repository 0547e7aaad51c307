// Package middleware provides HTTP middleware components for the RuleIQ API.
package middleware

import (
	"context"
	"time"
)

// CallerContext carries the authenticated caller's identity through the
// request context. Set by the auth middleware; consumed by the rate limiter
// and request handlers.
type CallerContext struct {
	CallerID string
	KeyID    string
	Name     string
	AuthTime time.Time
}

// callerContextKey is the context key for CallerContext.
type callerContextKey struct{}

// SetCallerContext stores the caller context on the request context.
func SetCallerContext(ctx context.Context, caller CallerContext) context.Context {
	return context.WithValue(ctx, callerContextKey{}, caller)
}

// GetCallerContext extracts the caller context from the request context.
// The second return is false for unauthenticated requests.
func GetCallerContext(ctx context.Context) (CallerContext, bool) {
	caller, ok := ctx.Value(callerContextKey{}).(CallerContext)

	return caller, ok
}
