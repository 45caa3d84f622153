// ABOUTME: Tests for the coven-board CLI helpers
// ABOUTME: Covers generated config round-trips, the color log handler and the agents table

package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-board/internal/board"
	"github.com/2389/coven-board/internal/config"
)

func TestRenderConfig_LoadsBack(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_test")

	a := initAnswers{
		HTTPAddr:       "127.0.0.1:9090",
		DBPath:         filepath.Join(t.TempDir(), "board.db"),
		APIKey:         "secret",
		Repos:          []string{"acme/api", "acme/web"},
		GitHubToken:    "${GITHUB_TOKEN}",
		AgentsBase:     "/srv/agents",
		ToggleFile:     "/srv/agents/shared/.heartbeat-active",
		LogLevel:       "debug",
		LogFormat:      "json",
		MetricsEnabled: true,

		TailscaleEnabled:  true,
		TailscaleHostname: "board",
		TailscaleHTTPS:    true,
	}

	path := filepath.Join(t.TempDir(), "board.yaml")
	require.NoError(t, os.WriteFile(path, []byte(renderConfig(a)), 0600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Server.HTTPAddr)
	assert.Equal(t, a.DBPath, cfg.Database.Path)
	assert.Equal(t, "secret", cfg.Auth.APIKey)
	assert.Equal(t, []string{"acme/api", "acme/web"}, cfg.Issues.Repos)
	assert.Equal(t, "ghp_test", cfg.Issues.GitHubToken)
	assert.Equal(t, "/srv/agents", cfg.Workspace.AgentsBasePath)
	assert.Equal(t, "/srv/agents/shared/.heartbeat-active", cfg.Heartbeat.ToggleFile)
	assert.True(t, cfg.Tailscale.Enabled)
	assert.True(t, cfg.Tailscale.HTTPS)
	assert.Equal(t, "board", cfg.Tailscale.Hostname)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, config.DefaultHeartbeatTimeout, cfg.Agents.HeartbeatTimeout)
}

func TestRenderConfig_NoRepos(t *testing.T) {
	a := initAnswers{HTTPAddr: ":8080", LogLevel: "info", LogFormat: "text"}

	path := filepath.Join(t.TempDir(), "board.yaml")
	require.NoError(t, os.WriteFile(path, []byte(renderConfig(a)), 0600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Issues.Repos)
	assert.Empty(t, cfg.Database.Path)
	assert.False(t, cfg.Tailscale.Enabled)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a/b", "c/d"}, splitList(" a/b, ,c/d ,"))
	assert.Nil(t, splitList(""))
}

func TestGenerateAPIKey(t *testing.T) {
	k1, err := generateAPIKey()
	require.NoError(t, err)
	k2, err := generateAPIKey()
	require.NoError(t, err)

	assert.Len(t, k1, 43)
	assert.NotEqual(t, k1, k2)
}

func TestColorHandler(t *testing.T) {
	color.NoColor = true

	var out bytes.Buffer
	logger := newLogger(config.LoggingConfig{Level: "info", Format: "text"}, &out)

	logger.Debug("hidden")
	logger.With("component", "scheduler").WithGroup("run").Info("refreshed", "repos", 2)
	logger.Warn("slow", "took", "3s")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "INF refreshed component=scheduler run.repos=2")
	assert.Contains(t, lines[1], "WRN slow took=3s")
}

func TestNewLogger_JSON(t *testing.T) {
	var out bytes.Buffer
	logger := newLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &out)

	logger.Info("hidden")
	logger.Error("boom", "repo", "acme/api")

	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), `"msg":"boom"`)
	assert.Contains(t, out.String(), `"repo":"acme/api"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}

func TestBaseURL(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, "http://localhost:8080", baseURL(cfg))

	cfg.Server.HTTPAddr = "10.0.0.5:9000"
	assert.Equal(t, "http://10.0.0.5:9000", baseURL(cfg))

	cfg.Server.HTTPAddr = ""
	cfg.Tailscale.Enabled = true
	cfg.Tailscale.Hostname = "board"
	assert.Equal(t, "http://board", baseURL(cfg))
}

func TestPrintAgents(t *testing.T) {
	color.NoColor = true

	var out bytes.Buffer
	require.NoError(t, printAgents(&out, nil))
	assert.Equal(t, "no agents registered\n", out.String())

	out.Reset()
	ts := "2026-01-02T03:04:05Z"
	require.NoError(t, printAgents(&out, []board.AgentResponse{
		{ID: 1, Name: "alpha", Role: "builder", Status: "online", CurrentTask: "tests", LastActive: &ts},
		{ID: 2, Name: "beta", Role: "reviewer", Status: "offline"},
	}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "alpha")
	assert.Contains(t, lines[1], ts)
	assert.Contains(t, lines[2], "offline")
	assert.Contains(t, lines[2], "-")
}
