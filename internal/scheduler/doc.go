// Package scheduler runs coven-board's periodic background work.
//
// Three independent tasks each own a goroutine and a ticker:
//
//   - issue refresh: refreshes every configured repository with bounded
//     concurrency; a failed repository keeps its previous snapshot
//   - liveness: observes effective agent statuses, logs changes and
//     publishes gauges without touching registry state
//   - activity maintenance: evicts expired feed events and polls the
//     optional commit and Slack sources
//
// Every task runs once when the scheduler starts. A non-positive interval
// disables a task. RefreshAll is also used by the manual refresh endpoint.
package scheduler
