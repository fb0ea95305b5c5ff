package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/propcheck/inspections/internal/domain/authz"
)

type contextKey string

const (
	SecurityContextKey contextKey = "security_context"
	APIKeyKey          contextKey = "api_key"
)

// KeyBinding ties an API key to the caller it authenticates.
type KeyBinding struct {
	Key      string
	UserID   string
	TenantID string
	Role     authz.Role
	Email    string
}

// APIKeyAuth validates API key from Authorization header and attaches the
// caller's security context. Requests without a valid key never reach a
// handler; the handlers themselves re-check authorization per operation.
func APIKeyAuth(bindings []KeyBinding) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip auth for health check
			if r.URL.Path == "/health" || r.URL.Path == "/ready" || r.URL.Path == "/live" {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				http.Error(w, "missing Authorization header", http.StatusUnauthorized)
				return
			}

			// Support both "Bearer <key>" and "<key>" formats
			apiKey := strings.TrimPrefix(auth, "Bearer ")
			apiKey = strings.TrimSpace(apiKey)

			if apiKey == "" {
				http.Error(w, "invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			// Constant-time comparison to prevent timing attacks
			var matched *KeyBinding
			for i := range bindings {
				if subtle.ConstantTimeCompare([]byte(apiKey), []byte(bindings[i].Key)) == 1 {
					matched = &bindings[i]
					break
				}
			}

			if matched == nil {
				http.Error(w, "invalid API key", http.StatusUnauthorized)
				return
			}

			sc := &authz.SecurityContext{
				UserID:   matched.UserID,
				TenantID: matched.TenantID,
				Role:     matched.Role,
				Email:    matched.Email,
			}
			ctx := context.WithValue(r.Context(), SecurityContextKey, sc)
			ctx = context.WithValue(ctx, APIKeyKey, apiKey)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSecurityContext extracts the authenticated caller from context, or
// nil when the request carried no valid key.
func GetSecurityContext(ctx context.Context) *authz.SecurityContext {
	if sc, ok := ctx.Value(SecurityContextKey).(*authz.SecurityContext); ok {
		return sc
	}
	return nil
}
