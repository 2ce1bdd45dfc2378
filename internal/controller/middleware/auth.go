// Package middleware contains HTTP middleware for the controller.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"imageforge/internal/auth"
)

// identityKey is the context key for the caller identity.
type identityKey struct{}

// Identity describes the authenticated caller. Owner is a stable tag derived
// from the API key; it scopes job visibility.
type Identity struct {
	Owner string
	Admin bool
}

// AuthMiddleware validates the bearer API key against the keyring and
// attaches the caller identity to the request context.
func AuthMiddleware(keyring *auth.Keyring) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Missing authorization header", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "Invalid authorization header", http.StatusUnauthorized)
				return
			}

			key := parts[1]
			ok, admin := keyring.Verify(key)
			if !ok {
				http.Error(w, "Invalid API key", http.StatusUnauthorized)
				return
			}

			identity := Identity{Owner: auth.OwnerTag(key), Admin: admin}
			ctx := WithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithIdentity attaches a caller identity to the context. Used by tests and
// internal callers that bypass the HTTP middleware.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext extracts the caller identity from the context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	v, ok := ctx.Value(identityKey{}).(Identity)
	return v, ok
}

// RequireAdmin rejects callers whose key does not carry admin rights.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if !identity.Admin {
			http.Error(w, "Admin key required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
