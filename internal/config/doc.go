// Package config handles configuration loading for coven-board.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files with environment variable
// expansion. Missing fields take defaults; the result is validated before use.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from COVEN_BOARD_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/coven/board.yaml
//  3. ~/.config/coven/board.yaml
//
// A path ending in .toml is decoded as TOML; anything else as YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	issues:
//	  github_token: "${GITHUB_TOKEN}"
//	auth:
//	  api_key: "${DASHBOARD_API_KEY}"
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	agents:
//	  heartbeat_timeout: "60s"
//	  liveness_tick: "15s"   # "0s" disables the liveness tick
//	issues:
//	  refresh_interval: "5m"
//	  fetch_timeout: "30s"
//	  work_window: "24h"
//
// # Configuration Sections
//
// Server and listener:
//
//	server:
//	  http_addr: ":8080"
//	tailscale:
//	  enabled: false
//	  hostname: "coven-board"
//
// Persistence (empty path keeps everything in memory):
//
//	database:
//	  path: "~/.local/share/coven/board.db"
//
// Issue cache:
//
//	issues:
//	  repos: ["2389/coven", "2389/coven-board"]
//	  review_labels: ["review"]
//	  in_progress_labels: ["in-progress", "in progress"]
//	  closed_window: "72h"
//
// Activity feed and its optional producers:
//
//	activity:
//	  max_events: 100
//	  window: "24h"
//	  feed_limit: 20
//	  project_dir: "/srv/coven"
//	slack:
//	  bot_token: "${SLACK_BOT_TOKEN}"
//	  channels: ["C0123456"]
//	  channel_agents: { C0123456: "Kat" }
//
// Logging:
//
//	logging:
//	  level: "info"    # debug, info, warn, error
//	  format: "text"   # text, json
package config
