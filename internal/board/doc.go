// Package board orchestrates the coven-board server components.
//
// # Overview
//
// Board is the process-scoped state container. It owns the agent registry,
// the issue cache, the activity feed, the heartbeat switch, the scheduler and
// the HTTP server. There is no package-level mutable state.
//
// # HTTP API
//
// Write endpoints (behind X-API-Key when auth.api_key is set):
//
//   - POST /api/agents/register - Register or re-register an agent (201 new, 200 existing)
//   - POST /api/agents/{id}/heartbeat - Record a heartbeat
//   - POST /api/issues/refresh - Refresh every repository now
//   - POST /api/heartbeat/toggle - Flip the global heartbeat switch
//   - GET /api/agents/{name}/terminal - Capture the agent's tmux pane, redacted
//
// Read endpoints (public):
//
//   - GET /api/agents, GET /api/agents/{id}
//   - GET /api/agents/{id}/working - Rendered WORKING.md
//   - GET /api/issues, GET /api/issues/board, GET /api/issues/status
//   - GET /api/activity?limit=N
//   - GET /api/heartbeat/status
//   - GET /health, GET /health/ready
//
// # Errors
//
// Errors are returned as {"error": "..."}. Unknown agents are 404, malformed
// bodies and ids are 400, missing or wrong keys are 401. Upstream failures
// never fail a read: the last good issue set keeps being served and the
// failure is reported by /api/issues/status and the manual refresh response.
//
// # Listeners
//
// The server listens on server.http_addr, or joins a tailnet with tsnet when
// tailscale.enabled is set.
package board
