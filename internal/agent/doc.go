// Package agent tracks the fleet of worker agents reporting to the board.
//
// # Overview
//
// Agents register by name and then send periodic heartbeats. The Registry
// is the authoritative in-memory state; effective status is never stored and
// is recomputed with liveness.EffectiveStatus on every read.
//
// # Registry
//
//	reg, err := agent.NewRegistry(ctx, agent.Options{Timeout: time.Minute, Store: s})
//
// Key operations:
//
//   - Register(ctx, name, role, status): Idempotent upsert keyed by name
//   - Heartbeat(ctx, id, params): Record activity; stale heartbeats are ignored
//   - List(): All agents in registration order
//   - Get(id): A single agent
//
// # Persistence
//
// When a store is configured, agents are loaded at startup and every accepted
// change is handed to a write-behind persister. Writes for the same agent are
// coalesced, so only the latest state is written. Close flushes what is pending.
//
// # Thread Safety
//
// A single sync.RWMutex guards the registry. Readers receive copies (View),
// so no caller ever observes a partially applied heartbeat.
package agent
