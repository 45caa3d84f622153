// ABOUTME: Authentication context for tracking how a request was admitted
// ABOUTME: Provides WithAuth/FromContext for propagating auth info via context

package auth

import (
	"context"
)

// Admission methods
const (
	// MethodAPIKey means the request presented the configured key.
	MethodAPIKey = "api_key"
	// MethodOpen means no key is configured and the request was let through.
	MethodOpen = "open"
)

// AuthContext holds how a request passed the auth middleware.
type AuthContext struct {
	Method string
}

// Verified reports whether the request proved knowledge of the key.
func (a *AuthContext) Verified() bool {
	return a != nil && a.Method == MethodAPIKey
}

// authContextKey is the key type for storing AuthContext in context.Context.
type authContextKey struct{}

// WithAuth returns a new context with the AuthContext attached.
func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext retrieves the AuthContext from the context, returning nil if not present.
func FromContext(ctx context.Context) *AuthContext {
	val := ctx.Value(authContextKey{})
	if val == nil {
		return nil
	}
	auth, ok := val.(*AuthContext)
	if !ok {
		return nil
	}
	return auth
}

// MethodFromContext returns the admission method, or "" for requests that
// did not pass through the middleware.
func MethodFromContext(ctx context.Context) string {
	if a := FromContext(ctx); a != nil {
		return a.Method
	}
	return ""
}
