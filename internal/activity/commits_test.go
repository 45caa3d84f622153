// ABOUTME: Tests for the git commit producer
// ABOUTME: Uses a fake command runner instead of a real checkout

package activity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleGitLog = `a1b2c3d||Kat||Fix heartbeat ordering||2026-03-01T10:00:00+00:00
e4f5a6b||Sam||Add review column||2026-03-01T09:30:00-05:00

malformed line without separators
c7d8e9f||Mat||bad date||yesterday
`

func TestParseGitLog(t *testing.T) {
	events := ParseGitLog([]byte(sampleGitLog))
	require.Len(t, events, 2)

	assert.Equal(t, TypeCommit, events[0].Type)
	assert.Equal(t, "Kat", events[0].Agent)
	assert.Equal(t, "a1b2c3d Fix heartbeat ordering", events[0].Message)
	assert.Equal(t, "commit:a1b2c3d", events[0].Key)
	assert.True(t, events[0].Timestamp.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)))

	assert.Equal(t, "Sam", events[1].Agent)
	assert.True(t, events[1].Timestamp.Equal(time.Date(2026, 3, 1, 14, 30, 0, 0, time.UTC)))
}

func TestParseGitLog_SubjectWithSeparator(t *testing.T) {
	events := ParseGitLog([]byte("abc1234||Kat||a||b||2026-03-01T10:00:00Z"))
	// SplitN keeps extra separators in the last field, so the date fails to parse.
	assert.Empty(t, events)
}

func TestCommitSource_Poll(t *testing.T) {
	var gotDir string
	var gotArgs []string
	runner := func(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
		gotDir = dir
		gotArgs = append([]string{name}, args...)
		return []byte(sampleGitLog), nil
	}

	src := NewCommitSource("/srv/project", runner)
	events, err := src.Poll(context.Background())
	require.NoError(t, err)

	assert.Len(t, events, 2)
	assert.Equal(t, "/srv/project", gotDir)
	assert.Equal(t, []string{"git", "log", "--format=%h||%an||%s||%aI", "-20"}, gotArgs)
}

func TestCommitSource_PollError(t *testing.T) {
	runner := func(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
		return nil, errors.New("not a git repository")
	}

	_, err := NewCommitSource("/tmp", runner).Poll(context.Background())
	assert.ErrorContains(t, err, "not a git repository")
}

type stubSource struct {
	name   string
	events []Event
	err    error
}

func (s stubSource) Name() string                          { return s.name }
func (s stubSource) Poll(context.Context) ([]Event, error) { return s.events, s.err }

func TestPollInto(t *testing.T) {
	feed := NewFeed(10, time.Hour)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := time.Now()

	sources := []Source{
		stubSource{name: "broken", err: errors.New("boom")},
		stubSource{name: "git", events: []Event{
			{Type: TypeCommit, Key: "commit:1", Timestamp: now},
			{Type: TypeCommit, Key: "commit:2", Timestamp: now},
		}},
	}

	assert.Equal(t, 2, PollInto(context.Background(), feed, sources, logger))
	// Second poll reports the same commits; nothing new.
	assert.Equal(t, 0, PollInto(context.Background(), feed, sources, logger))
	assert.Equal(t, 2, feed.Len())
}
