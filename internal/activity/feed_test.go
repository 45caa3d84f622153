// ABOUTME: Tests for the bounded activity feed
// ABOUTME: Covers ordering, capacity eviction, window eviction and key dedupe

package activity

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFeed(max int, window time.Duration, now *time.Time) *Feed {
	f := NewFeed(max, window)
	f.now = func() time.Time { return *now }
	return f
}

func TestFeed_RecentNewestFirst(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newTestFeed(10, time.Hour, &now)

	f.Append(Event{Type: TypeCommit, Agent: "kat", Message: "old", Timestamp: now.Add(-10 * time.Minute)})
	f.Append(Event{Type: TypeHeartbeat, Agent: "sam", Message: "newest", Timestamp: now})
	f.Append(Event{Type: TypeSlack, Agent: "mat", Message: "middle", Timestamp: now.Add(-5 * time.Minute)})

	events := f.Recent(0)
	require.Len(t, events, 3)
	assert.Equal(t, "newest", events[0].Message)
	assert.Equal(t, "middle", events[1].Message)
	assert.Equal(t, "old", events[2].Message)
}

func TestFeed_RecentLimit(t *testing.T) {
	now := time.Now()
	f := newTestFeed(10, time.Hour, &now)
	for i := 0; i < 5; i++ {
		f.Append(Event{Type: TypeHeartbeat, Message: fmt.Sprint(i), Timestamp: now.Add(time.Duration(i) * time.Second)})
	}

	events := f.Recent(2)
	require.Len(t, events, 2)
	assert.Equal(t, "4", events[0].Message)
	assert.Equal(t, "3", events[1].Message)
}

func TestFeed_AssignsIDAndTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newTestFeed(10, time.Hour, &now)

	f.Append(Event{Type: TypeHeartbeat, Agent: "kat"})
	f.Append(Event{Type: TypeHeartbeat, Agent: "kat"})

	events := f.Recent(0)
	require.Len(t, events, 2)
	assert.NotEmpty(t, events[0].ID)
	assert.NotEqual(t, events[0].ID, events[1].ID)
	assert.Equal(t, now, events[0].Timestamp)
}

func TestFeed_EvictsOldestWhenFull(t *testing.T) {
	now := time.Now()
	f := newTestFeed(3, time.Hour, &now)

	for i := 0; i < 5; i++ {
		f.Append(Event{Type: TypeHeartbeat, Message: fmt.Sprint(i), Timestamp: now})
	}

	assert.Equal(t, 3, f.Len())
	var msgs []string
	for _, e := range f.Recent(0) {
		msgs = append(msgs, e.Message)
	}
	assert.ElementsMatch(t, []string{"2", "3", "4"}, msgs)
}

func TestFeed_EvictsOldestTimestampNotOldestInsert(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newTestFeed(2, 24*time.Hour, &now)

	f.Append(Event{Type: TypeHeartbeat, Message: "hb1", Timestamp: now})
	f.Append(Event{Type: TypeCommit, Message: "old commit", Timestamp: now.Add(-10 * time.Hour)})
	f.Append(Event{Type: TypeHeartbeat, Message: "hb2", Timestamp: now.Add(time.Second)})

	events := f.Recent(0)
	require.Len(t, events, 2)
	assert.Equal(t, "hb2", events[0].Message)
	assert.Equal(t, "hb1", events[1].Message)

	// An event older than everything held is the one dropped.
	f.Append(Event{Type: TypeCommit, Message: "ancient", Timestamp: now.Add(-20 * time.Hour)})
	events = f.Recent(0)
	require.Len(t, events, 2)
	assert.Equal(t, "hb2", events[0].Message)
	assert.Equal(t, "hb1", events[1].Message)
}

func TestFeed_DedupesByKey(t *testing.T) {
	now := time.Now()
	f := newTestFeed(10, time.Hour, &now)

	assert.True(t, f.Append(Event{Type: TypeCommit, Key: "commit:abc", Timestamp: now}))
	assert.False(t, f.Append(Event{Type: TypeCommit, Key: "commit:abc", Timestamp: now}))
	assert.True(t, f.Append(Event{Type: TypeCommit, Key: "commit:def", Timestamp: now}))

	// Unkeyed events are never deduplicated.
	assert.True(t, f.Append(Event{Type: TypeHeartbeat}))
	assert.True(t, f.Append(Event{Type: TypeHeartbeat}))

	assert.Equal(t, 4, f.Len())
}

func TestFeed_DedupeSurvivesCapacityEviction(t *testing.T) {
	now := time.Now()
	f := newTestFeed(2, time.Hour, &now)

	f.Append(Event{Type: TypeCommit, Key: "commit:abc", Timestamp: now})
	f.Append(Event{Type: TypeHeartbeat})
	f.Append(Event{Type: TypeHeartbeat})

	// The commit has been pushed out by heartbeats; a re-poll must not bring it back.
	assert.False(t, f.Append(Event{Type: TypeCommit, Key: "commit:abc", Timestamp: now}))
}

func TestFeed_EvictByWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newTestFeed(10, time.Hour, &now)

	f.Append(Event{Type: TypeCommit, Key: "commit:old", Message: "old", Timestamp: now.Add(-2 * time.Hour)})
	f.Append(Event{Type: TypeHeartbeat, Message: "fresh", Timestamp: now.Add(-time.Minute)})

	removed := f.Evict()
	assert.Equal(t, 1, removed)
	events := f.Recent(0)
	require.Len(t, events, 1)
	assert.Equal(t, "fresh", events[0].Message)

	// Keys are forgotten once they were first seen outside the window.
	now = now.Add(2 * time.Hour)
	f.Evict()
	assert.True(t, f.Append(Event{Type: TypeCommit, Key: "commit:old", Timestamp: now}))
}

func TestFeed_Defaults(t *testing.T) {
	f := NewFeed(0, 0)
	assert.Equal(t, DefaultWindow, f.Window())
	assert.Equal(t, DefaultMaxEvents, f.maxEvents)
}
