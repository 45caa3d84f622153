// ABOUTME: Tests for the Slack activity producer against a fake Web API
// ABOUTME: Covers user resolution caching, relay attribution and sanitization

package activity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSlack struct {
	userCalls atomic.Int32
	failChan  string
}

func (f *fakeSlack) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/conversations.history", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer xoxb-test", r.Header.Get("Authorization"))
		channel := r.URL.Query().Get("channel")
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		if channel == f.failChan {
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "channel_not_found"})
			return
		}
		msgs := []map[string]any{
			{"ts": "1772359200.000100", "user": "U1", "text": "shipped it, token xoxb-leaky-123"},
			{"ts": "1772359300.000200", "user": "UBOT", "text": "relay: done with PR", "bot_profile": map[string]any{"name": "CC-Bridge"}},
			{"ts": "1772359400.000300", "user": "UBOT", "text": "Dan (via Claude.ai) says hi", "bot_profile": map[string]any{"name": "CC-Bridge"}},
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "messages": msgs})
	})
	mux.HandleFunc("/users.info", func(w http.ResponseWriter, r *http.Request) {
		f.userCalls.Add(1)
		switch r.URL.Query().Get("user") {
		case "U1":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ok":   true,
				"user": map[string]any{"real_name": "Kat Real", "profile": map[string]any{"display_name": "Kat"}},
			})
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "user_not_found"})
		}
	})
	return mux
}

func newTestSlack(t *testing.T, fake *fakeSlack, channels ...string) *SlackSource {
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	return NewSlackSource(SlackConfig{
		Token:             "xoxb-test",
		Channels:          channels,
		ChannelAgents:     map[string]string{"C-KAT": "Kat", "C-SAM": "Sam", "C-DAN": "Dan"},
		BaseURL:           srv.URL,
		RequestsPerSecond: 1000,
	}, srv.Client())
}

func TestSlackSource_Poll(t *testing.T) {
	fake := &fakeSlack{}
	src := newTestSlack(t, fake, "C-SAM")

	events, err := src.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, TypeSlack, events[0].Type)
	assert.Equal(t, "Kat", events[0].Agent)
	assert.NotContains(t, events[0].Message, "xoxb-leaky")
	assert.Contains(t, events[0].Message, "[REDACTED]")
	assert.Equal(t, "slack:C-SAM:1772359200.000100", events[0].Key)
	assert.Equal(t, int64(1772359200), events[0].Timestamp.Unix())

	// Relay bot in a mapped channel is attributed to that channel's agent.
	assert.Equal(t, "Sam", events[1].Agent)
	// A relay signature wins over the channel mapping.
	assert.Equal(t, "Dan", events[2].Agent)
}

func TestSlackSource_UserLookupCached(t *testing.T) {
	fake := &fakeSlack{}
	src := newTestSlack(t, fake, "C-KAT")

	_, err := src.Poll(context.Background())
	require.NoError(t, err)
	_, err = src.Poll(context.Background())
	require.NoError(t, err)

	// U1 and UBOT are each looked up once, including the failed lookup.
	assert.Equal(t, int32(2), fake.userCalls.Load())
}

func TestSlackSource_FailingChannelSkipped(t *testing.T) {
	fake := &fakeSlack{failChan: "C-GONE"}
	src := newTestSlack(t, fake, "C-GONE", "C-KAT")

	events, err := src.Poll(context.Background())
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestSlackSource_AllChannelsFail(t *testing.T) {
	fake := &fakeSlack{failChan: "C-GONE"}
	src := newTestSlack(t, fake, "C-GONE")

	_, err := src.Poll(context.Background())
	assert.ErrorContains(t, err, "channel_not_found")
}

func TestSlackSource_InferAgent(t *testing.T) {
	src := NewSlackSource(SlackConfig{
		ChannelAgents: map[string]string{"C1": "Mat", "C2": "Kat"},
	}, nil)

	assert.Equal(t, "Sam", src.inferAgent("Sam", "C1", "anything"))
	assert.Equal(t, "Mat", src.inferAgent("CC-Bridge", "C1", "status update"))
	assert.Equal(t, "Kat", src.inferAgent("CC-Bridge", "C9", "Kat finished the review"))
	assert.Equal(t, "CC-Bridge", src.inferAgent("CC-Bridge", "C9", "nobody in particular"))
}

func TestParseSlackTS(t *testing.T) {
	ts := parseSlackTS("1772359200.500000")
	assert.Equal(t, int64(1772359200), ts.Unix())
	assert.Equal(t, 500*time.Millisecond, time.Duration(ts.Nanosecond()).Round(time.Millisecond))

	assert.True(t, parseSlackTS("garbage").IsZero())
	assert.True(t, parseSlackTS("").IsZero())
}

func TestTruncateRunes(t *testing.T) {
	long := strings.Repeat("é", 250)
	assert.Len(t, []rune(truncateRunes(long, 200)), 200)
	assert.Equal(t, "short", truncateRunes("short", 200))
}
