package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// APIKeyAuth authenticates service-to-service callers by the X-API-Key
// header against a static key list from configuration. Comparison is
// constant time per candidate key so timing does not leak prefix matches.
type APIKeyAuth struct {
	keys   [][]byte
	logger *zap.Logger
}

// NewAPIKeyAuth creates the middleware from the configured key list.
// An empty list locks the protected surface down entirely rather than
// failing open.
func NewAPIKeyAuth(keys []string, logger *zap.Logger) *APIKeyAuth {
	byteKeys := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		byteKeys = append(byteKeys, []byte(k))
	}
	return &APIKeyAuth{keys: byteKeys, logger: logger}
}

// Middleware rejects requests without a valid X-API-Key header
func (a *APIKeyAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := r.Header.Get("X-API-Key")
		if presented == "" {
			a.deny(w, r, "missing API key")
			return
		}

		if !a.valid(presented) {
			a.deny(w, r, "invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *APIKeyAuth) valid(presented string) bool {
	candidate := []byte(presented)
	for _, key := range a.keys {
		if subtle.ConstantTimeCompare(candidate, key) == 1 {
			return true
		}
	}
	return false
}

func (a *APIKeyAuth) deny(w http.ResponseWriter, r *http.Request, reason string) {
	a.logger.Warn("request rejected",
		zap.String("reason", reason),
		zap.String("path", r.URL.Path),
		zap.String("remote_addr", r.RemoteAddr),
	)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "ApiKey")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"detail": "Invalid or missing API key"})
}
