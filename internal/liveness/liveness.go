// ABOUTME: Pure liveness evaluation mapping heartbeat recency and declared status to a display status
// ABOUTME: Shared by every read path so the list, card and JSON views never disagree

package liveness

import (
	"strings"
	"time"
)

// DefaultTimeout is the heartbeat timeout used when none is configured.
const DefaultTimeout = 60 * time.Second

// Status is the effective status shown for an agent.
type Status string

// Status values
const (
	StatusOnline  Status = "online"
	StatusIdle    Status = "idle"
	StatusBusy    Status = "busy"
	StatusError   Status = "error"
	StatusOffline Status = "offline"
)

// All lists every status in display order.
var All = []Status{StatusOnline, StatusBusy, StatusIdle, StatusError, StatusOffline}

// ParseStatus maps a self-reported status string to a Status.
// The second return value is false when the string is not a recognized status.
func ParseStatus(s string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusOnline:
		return StatusOnline, true
	case StatusIdle:
		return StatusIdle, true
	case StatusBusy:
		return StatusBusy, true
	case StatusError:
		return StatusError, true
	case StatusOffline:
		return StatusOffline, true
	default:
		return StatusOffline, false
	}
}

// EffectiveStatus returns the status to display for an agent.
//
// An agent whose last activity is older than timeout is offline whatever it
// last declared. Otherwise the declared status is used, falling back to offline
// when it was never set or is not recognized. A zero lastActive means the agent
// was never seen.
func EffectiveStatus(lastActive time.Time, declared string, now time.Time, timeout time.Duration) Status {
	if lastActive.IsZero() {
		return StatusOffline
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if now.Sub(lastActive) > timeout {
		return StatusOffline
	}
	status, _ := ParseStatus(declared)
	return status
}
