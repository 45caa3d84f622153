// ABOUTME: Bounded in-memory activity window fed by heartbeats, commits, and chat messages.
// ABOUTME: Events with the oldest timestamp are evicted first; keyed events from polled producers are deduplicated.

package activity

import (
	"container/list"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type classifies an activity event by the path that produced it.
type Type string

// Event types
const (
	TypeCommit    Type = "commit"
	TypeHeartbeat Type = "heartbeat"
	TypeSlack     Type = "slack"
)

// Defaults used when the feed is created with non-positive limits.
const (
	DefaultMaxEvents = 100
	DefaultWindow    = 24 * time.Hour
)

// Event is a single entry in the activity window.
type Event struct {
	ID        string
	Type      Type
	Agent     string
	Message   string
	Timestamp time.Time

	// Key identifies events that producers may report more than once
	// (commit hashes, chat message timestamps). Empty keys are never deduplicated.
	Key string
}

// Feed is a thread-safe, size-limited window of recent activity.
// Events are kept sorted by timestamp, oldest at the front, so eviction is
// O(1) from the front. Producers report out of order (git log returns old
// commits), so insertion walks back from the newest end.
type Feed struct {
	mu        sync.RWMutex
	order     *list.List           // *Event by timestamp (oldest at front); ties keep insertion order
	seen      map[string]time.Time // dedupe key -> first seen
	maxEvents int
	window    time.Duration
	now       func() time.Time
}

// NewFeed creates a feed holding at most maxEvents events no older than window.
func NewFeed(maxEvents int, window time.Duration) *Feed {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Feed{
		order:     list.New(),
		seen:      make(map[string]time.Time),
		maxEvents: maxEvents,
		window:    window,
		now:       time.Now,
	}
}

// Window returns the retention window of the feed.
func (f *Feed) Window() time.Duration {
	return f.window
}

// Append adds an event to the feed. It returns false when the event carries a
// key that has already been recorded within the retention window.
func (f *Feed) Append(e Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	if e.Key != "" {
		if _, dup := f.seen[e.Key]; dup {
			return false
		}
		f.seen[e.Key] = now
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}

	f.insertLocked(&e)
	for f.order.Len() > f.maxEvents {
		f.order.Remove(f.order.Front())
	}
	return true
}

// insertLocked places e after every event with a timestamp not after its own.
// Must be called with mu held.
func (f *Feed) insertLocked(e *Event) {
	for el := f.order.Back(); el != nil; el = el.Prev() {
		if !el.Value.(*Event).Timestamp.After(e.Timestamp) {
			f.order.InsertAfter(e, el)
			return
		}
	}
	f.order.PushFront(e)
}

// Recent returns up to limit events, newest first by timestamp.
// A non-positive limit returns the whole window.
func (f *Feed) Recent(limit int) []Event {
	f.mu.RLock()
	defer f.mu.RUnlock()

	n := f.order.Len()
	if limit > 0 && limit < n {
		n = limit
	}
	events := make([]Event, 0, n)
	for el := f.order.Back(); el != nil && len(events) < n; el = el.Prev() {
		events = append(events, *el.Value.(*Event))
	}
	return events
}

// Len returns the number of events currently held.
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.order.Len()
}

// Evict drops events whose timestamp falls outside the retention window, and
// forgets dedupe keys first seen outside it. It returns the number of events removed.
func (f *Feed) Evict() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	cutoff := f.now().Add(-f.window)
	removed := 0
	for el := f.order.Front(); el != nil && el.Value.(*Event).Timestamp.Before(cutoff); el = f.order.Front() {
		f.order.Remove(el)
		removed++
	}
	for key, at := range f.seen {
		if at.Before(cutoff) {
			delete(f.seen, key)
		}
	}
	return removed
}
