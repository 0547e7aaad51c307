// Package middleware provides HTTP middleware components for the RuleIQ API.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig supplies cross-origin settings to the CORS middleware. The
// server config implements this so the middleware stays decoupled from the
// api package.
type CORSConfig interface {
	GetAllowedOrigins() []string
	GetAllowedMethods() []string
	GetAllowedHeaders() []string
	GetMaxAge() int
}

// CORS creates a middleware that applies cross-origin headers and answers
// OPTIONS preflight requests with 204.
func CORS(config CORSConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin != "" && originAllowed(origin, config.GetAllowedOrigins()) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", strings.Join(config.GetAllowedMethods(), ", "))
				w.Header().Set("Access-Control-Allow-Headers", strings.Join(config.GetAllowedHeaders(), ", "))
				w.Header().Set("Access-Control-Max-Age", strconv.Itoa(config.GetMaxAge()))
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(origin string, allowed []string) bool {
	for _, candidate := range allowed {
		if candidate == "*" || candidate == origin {
			return true
		}
	}

	return false
}
