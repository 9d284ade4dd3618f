package middleware

import (
	"net/http"
)

// SecurityHeaders adds defensive HTTP headers to every response. The policy
// is restrictive: this service serves JSON to machines, not pages to
// browsers.
type SecurityHeaders struct {
	isDevelopment bool
}

// NewSecurityHeaders creates a new security headers middleware
func NewSecurityHeaders(isDevelopment bool) *SecurityHeaders {
	return &SecurityHeaders{
		isDevelopment: isDevelopment,
	}
}

// Middleware wraps an HTTP handler with security headers
func (sh *SecurityHeaders) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-XSS-Protection", "1; mode=block")

		// HSTS only outside development so plain-HTTP local setups keep working
		if !sh.isDevelopment {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		}

		// An API has no scripts, frames, or forms to allow
		csp := "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'"
		if sh.isDevelopment {
			csp = "default-src 'self'; script-src 'self' 'unsafe-inline'; " +
				"style-src 'self' 'unsafe-inline'; frame-ancestors 'none'; " +
				"base-uri 'self'; form-action 'self'"
		}
		w.Header().Set("Content-Security-Policy", csp)

		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Permissions-Policy",
			"geolocation=(), microphone=(), camera=(), payment=(), usb=()")
		w.Header().Set("X-Permitted-Cross-Domain-Policies", "none")

		next.ServeHTTP(w, r)
	})
}
