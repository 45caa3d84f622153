// ABOUTME: Tests for board-agent against an in-process coven-board
// ABOUTME: Verifies registration, switch-gated heartbeats and API key handling

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-board/internal/board"
	"github.com/2389/coven-board/internal/config"
)

const testKey = "agent-key"

func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Auth.APIKey = testKey
	cfg.Heartbeat.ToggleFile = filepath.Join(dir, "shared", ".heartbeat-active")
	cfg.Workspace.AgentsBasePath = filepath.Join(dir, "agents")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b, err := board.New(context.Background(), cfg, logger, board.WithSources())
	require.NoError(t, err)

	srv := httptest.NewServer(b.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = b.Shutdown(context.Background())
	})
	return srv
}

func quietLoop(c *client) *agentLoop {
	return &agentLoop{
		client:   c,
		name:     "alpha",
		role:     "builder",
		status:   "busy",
		task:     "writing tests",
		interval: time.Hour,
		logf:     func(string, ...any) {},
	}
}

func TestBeat_RespectsSwitch(t *testing.T) {
	srv := newServer(t)
	c := newClient(srv.URL, testKey)
	ctx := context.Background()

	loop := quietLoop(c)
	require.NoError(t, loop.register(ctx))
	require.NotZero(t, loop.id)

	assert.False(t, loop.beat(ctx), "switch starts off")

	require.NoError(t, c.do(ctx, "POST", "/api/heartbeat/toggle", nil, nil))
	active, err := c.switchActive(ctx)
	require.NoError(t, err)
	require.True(t, active)

	assert.True(t, loop.beat(ctx))

	var got struct {
		Status      string `json:"status"`
		CurrentTask string `json:"current_task"`
	}
	require.NoError(t, c.do(ctx, "GET", "/api/agents/"+itoa(loop.id), nil, &got))
	assert.Equal(t, "busy", got.Status)
	assert.Equal(t, "writing tests", got.CurrentTask)
}

func TestBeat_IgnoreSwitch(t *testing.T) {
	srv := newServer(t)
	c := newClient(srv.URL, testKey)
	ctx := context.Background()

	loop := quietLoop(c)
	loop.ignoreSwitch = true
	require.NoError(t, loop.register(ctx))
	assert.True(t, loop.beat(ctx))
}

// forgetfulBoard forgets every agent until it has been registered twice,
// like a memory-only board that restarted after the first registration.
type forgetfulBoard struct {
	mu        sync.Mutex
	registers int
	notFound  int
	beats     []string
}

func (f *forgetfulBoard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/api/agents/register":
		f.registers++
		_ = json.NewEncoder(w).Encode(map[string]any{"id": f.registers, "name": "alpha", "status": "online"})
	case strings.HasSuffix(r.URL.Path, "/heartbeat"):
		if r.URL.Path != "/api/agents/2/heartbeat" {
			f.notFound++
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "agent not found"})
			return
		}
		f.beats = append(f.beats, r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 2, "name": "alpha", "status": "busy"})
	default:
		http.NotFound(w, r)
	}
}

func TestBeat_ReRegistersWhenBoardForgetsAgent(t *testing.T) {
	fb := &forgetfulBoard{}
	srv := httptest.NewServer(fb)
	t.Cleanup(srv.Close)

	ctx := context.Background()
	loop := quietLoop(newClient(srv.URL, testKey))
	loop.ignoreSwitch = true

	require.NoError(t, loop.register(ctx))
	require.Equal(t, int64(1), loop.id)

	assert.True(t, loop.beat(ctx), "beat succeeds after registering again")
	assert.Equal(t, int64(2), loop.id)
	assert.True(t, loop.beat(ctx))

	fb.mu.Lock()
	defer fb.mu.Unlock()
	assert.Equal(t, 2, fb.registers)
	assert.Equal(t, 1, fb.notFound)
	assert.Len(t, fb.beats, 2)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&statusError{Code: http.StatusNotFound}))
	assert.True(t, isNotFound(fmt.Errorf("wrapped: %w", &statusError{Code: http.StatusNotFound})))
	assert.False(t, isNotFound(&statusError{Code: http.StatusUnauthorized}))
	assert.False(t, isNotFound(errors.New("connection refused")))
	assert.False(t, isNotFound(nil))
}

func TestRegister_WrongKey(t *testing.T) {
	srv := newServer(t)
	c := newClient(srv.URL+"/", "wrong")

	_, err := c.register(context.Background(), "alpha", "builder")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.Contains(t, err.Error(), "invalid API key")
}

func TestRun_StopsOnCancel(t *testing.T) {
	srv := newServer(t)
	c := newClient(srv.URL, testKey)

	ctx, cancel := context.WithCancel(context.Background())
	loop := quietLoop(c)
	loop.ignoreSwitch = true

	var beats int
	loop.logf = func(format string, _ ...any) {
		if format == "heartbeat ok (%s)" {
			beats++
			cancel()
		}
	}

	done := make(chan error, 1)
	go func() { done <- loop.run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
	assert.Equal(t, 1, beats)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
