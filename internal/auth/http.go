// ABOUTME: HTTP middleware enforcing the shared API key on write endpoints
// ABOUTME: Checks the X-API-Key header and records how the request was admitted in its context

package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
)

// HeaderAPIKey is the request header carrying the shared key.
const HeaderAPIKey = "X-API-Key"

// extractAPIKey returns the key presented by the request and an error message
// (empty if a key was presented).
func extractAPIKey(r *http.Request) (string, string) {
	key := r.Header.Get(HeaderAPIKey)
	if key == "" {
		return "", "missing API key"
	}
	return key, ""
}

// keysEqual compares keys in constant time.
func keysEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// APIKeyMiddleware creates an HTTP middleware that requires the X-API-Key header
// to match key. With an empty key every request is admitted as MethodOpen.
func APIKeyMiddleware(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), &AuthContext{Method: MethodOpen})))
				return
			}

			got, errMsg := extractAPIKey(r)
			if errMsg != "" {
				writeUnauthorized(w, errMsg)
				return
			}
			if !keysEqual(got, key) {
				writeUnauthorized(w, "invalid API key")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), &AuthContext{Method: MethodAPIKey})))
		})
	}
}
