// ABOUTME: Package activity holds the recent-activity window shown on the board
// ABOUTME: and the producers that feed it.

// Package activity keeps a bounded, deduplicated window of recent events.
//
// Heartbeat events are appended directly by the agent registry. Commit and
// Slack events come from polled Sources, which may report the same upstream
// item on every poll; the Key on each Event lets the Feed drop repeats.
package activity
