// Package auth guards the board's write endpoints.
//
// # API Key
//
// Writes (agent registration, heartbeats, manual refresh, the heartbeat
// toggle and terminal capture) require the X-API-Key header to match the
// configured key:
//
//	mux.Handle("POST /api/issues/refresh", auth.APIKeyMiddleware(cfg.Auth.APIKey)(h))
//
// A missing or wrong key is answered with 401 and {"error": "..."}. When no key
// is configured the middleware admits every request; reads are always public.
//
// # Context
//
// Admitted requests carry an AuthContext recording how they passed:
//
//	auth.MethodFromContext(r.Context()) // "api_key" or "open"
package auth
