// ABOUTME: Configuration loading and parsing for coven-board
// ABOUTME: Supports YAML or TOML files with environment variable expansion, duration parsing and defaults

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable that overrides the config file location.
const EnvConfigPath = "COVEN_BOARD_CONFIG"

// Defaults applied when a field is left empty.
const (
	DefaultHTTPAddr         = ":8080"
	DefaultHeartbeatTimeout = 60 * time.Second
	DefaultLivenessTick     = 15 * time.Second
	DefaultRefreshInterval  = 5 * time.Minute
	DefaultFetchTimeout     = 30 * time.Second
	DefaultWorkWindow       = 24 * time.Hour
	DefaultMaxEvents        = 100
	DefaultActivityWindow   = 24 * time.Hour
	DefaultFeedLimit        = 20
	DefaultPollInterval     = time.Minute
	DefaultTerminalTimeout  = 5 * time.Second
	DefaultTerminalLines    = 30
	DefaultGitHubAPI        = "https://api.github.com"
	DefaultSlackRelayName   = "CC-Bridge"
	DefaultMetricsPath      = "/metrics"
	DefaultAgentsBasePath   = "~/agents"
	DefaultToggleFile       = "~/agents/shared/.heartbeat-active"
)

// Config represents the complete coven-board configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Agents    AgentsConfig    `yaml:"agents" toml:"agents"`
	Issues    IssuesConfig    `yaml:"issues" toml:"issues"`
	Activity  ActivityConfig  `yaml:"activity" toml:"activity"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat" toml:"heartbeat"`
	Slack     SlackConfig     `yaml:"slack" toml:"slack"`
	Workspace WorkspaceConfig `yaml:"workspace" toml:"workspace"`
	Terminal  TerminalConfig  `yaml:"terminal" toml:"terminal"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"` // serve on :443 with tailnet-issued certs
}

// DatabaseConfig holds database configuration.
// An empty path keeps all state in memory.
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AuthConfig holds the shared API key guarding write endpoints.
// An empty key leaves the write endpoints open.
type AuthConfig struct {
	APIKey string `yaml:"api_key" toml:"api_key"`
}

// AgentsConfig holds agent liveness timing
type AgentsConfig struct {
	HeartbeatTimeout time.Duration `yaml:"-" toml:"-"`
	LivenessTick     time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	HeartbeatTimeoutRaw string `yaml:"heartbeat_timeout" toml:"heartbeat_timeout"`
	LivenessTickRaw     string `yaml:"liveness_tick" toml:"liveness_tick"`
}

// IssuesConfig holds the GitHub issue cache configuration
type IssuesConfig struct {
	Repos             []string `yaml:"repos" toml:"repos"`
	GitHubToken       string   `yaml:"github_token" toml:"github_token"`
	APIURL            string   `yaml:"api_url" toml:"api_url"`
	ReviewLabels      []string `yaml:"review_labels" toml:"review_labels"`
	InProgressLabels  []string `yaml:"in_progress_labels" toml:"in_progress_labels"`
	RequestsPerSecond float64  `yaml:"requests_per_second" toml:"requests_per_second"`

	RefreshInterval time.Duration `yaml:"-" toml:"-"`
	FetchTimeout    time.Duration `yaml:"-" toml:"-"`
	WorkWindow      time.Duration `yaml:"-" toml:"-"`
	ClosedWindow    time.Duration `yaml:"-" toml:"-"`

	RefreshIntervalRaw string `yaml:"refresh_interval" toml:"refresh_interval"`
	FetchTimeoutRaw    string `yaml:"fetch_timeout" toml:"fetch_timeout"`
	WorkWindowRaw      string `yaml:"work_window" toml:"work_window"`
	ClosedWindowRaw    string `yaml:"closed_window" toml:"closed_window"`
}

// ActivityConfig holds the activity feed configuration
type ActivityConfig struct {
	MaxEvents  int    `yaml:"max_events" toml:"max_events"`
	FeedLimit  int    `yaml:"feed_limit" toml:"feed_limit"`
	ProjectDir string `yaml:"project_dir" toml:"project_dir"`

	Window       time.Duration `yaml:"-" toml:"-"`
	PollInterval time.Duration `yaml:"-" toml:"-"`

	WindowRaw       string `yaml:"window" toml:"window"`
	PollIntervalRaw string `yaml:"poll_interval" toml:"poll_interval"`
}

// HeartbeatConfig holds the global heartbeat switch location
type HeartbeatConfig struct {
	ToggleFile string `yaml:"toggle_file" toml:"toggle_file"`
}

// SlackConfig holds the optional Slack activity source
type SlackConfig struct {
	BotToken          string            `yaml:"bot_token" toml:"bot_token"`
	Channels          []string          `yaml:"channels" toml:"channels"`
	ChannelAgents     map[string]string `yaml:"channel_agents" toml:"channel_agents"`
	RelayName         string            `yaml:"relay_name" toml:"relay_name"`
	RequestsPerSecond float64           `yaml:"requests_per_second" toml:"requests_per_second"`
}

// Enabled reports whether the Slack source has enough configuration to poll.
func (s SlackConfig) Enabled() bool {
	return s.BotToken != "" && len(s.Channels) > 0
}

// WorkspaceConfig locates per-agent WORKING.md files
type WorkspaceConfig struct {
	AgentsBasePath string `yaml:"agents_base_path" toml:"agents_base_path"`
}

// TerminalConfig holds tmux capture settings
type TerminalConfig struct {
	Lines int `yaml:"lines" toml:"lines"`

	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded. Files ending in
// .toml are decoded as TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expandedData, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied and no file behind it.
func Default() *Config {
	var cfg Config
	// Empty raw strings cannot fail to parse.
	_ = parseDurations(&cfg)
	cfg.applyDefaults()
	return &cfg
}

// DefaultPath returns the config file location: $COVEN_BOARD_CONFIG, then
// $XDG_CONFIG_HOME/coven/board.yaml, then ~/.config/coven/board.yaml.
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "coven", "board.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "coven", "board.yaml")
	}
	return filepath.Join(home, ".config", "coven", "board.yaml")
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" && !c.Tailscale.Enabled {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Issues.APIURL == "" {
		c.Issues.APIURL = DefaultGitHubAPI
	}
	c.Issues.APIURL = strings.TrimRight(c.Issues.APIURL, "/")
	if len(c.Issues.ReviewLabels) == 0 {
		c.Issues.ReviewLabels = []string{"review"}
	}
	if len(c.Issues.InProgressLabels) == 0 {
		c.Issues.InProgressLabels = []string{"in-progress", "in progress"}
	}
	if c.Activity.MaxEvents == 0 {
		c.Activity.MaxEvents = DefaultMaxEvents
	}
	if c.Activity.FeedLimit == 0 {
		c.Activity.FeedLimit = DefaultFeedLimit
	}
	if c.Heartbeat.ToggleFile == "" {
		c.Heartbeat.ToggleFile = DefaultToggleFile
	}
	c.Heartbeat.ToggleFile = expandHome(c.Heartbeat.ToggleFile)
	if c.Workspace.AgentsBasePath == "" {
		c.Workspace.AgentsBasePath = DefaultAgentsBasePath
	}
	c.Workspace.AgentsBasePath = expandHome(c.Workspace.AgentsBasePath)
	c.Activity.ProjectDir = expandHome(c.Activity.ProjectDir)
	c.Database.Path = expandHome(c.Database.Path)
	if c.Slack.RelayName == "" {
		c.Slack.RelayName = DefaultSlackRelayName
	}
	if c.Terminal.Lines == 0 {
		c.Terminal.Lines = DefaultTerminalLines
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	for _, repo := range c.Issues.Repos {
		if !validRepo(repo) {
			return fmt.Errorf("issues.repos: %q is not in owner/name form", repo)
		}
	}

	positive := []struct {
		name string
		d    time.Duration
	}{
		{"agents.heartbeat_timeout", c.Agents.HeartbeatTimeout},
		{"issues.refresh_interval", c.Issues.RefreshInterval},
		{"issues.fetch_timeout", c.Issues.FetchTimeout},
		{"issues.work_window", c.Issues.WorkWindow},
		{"activity.window", c.Activity.Window},
		{"activity.poll_interval", c.Activity.PollInterval},
		{"terminal.timeout", c.Terminal.Timeout},
	}
	for _, p := range positive {
		if p.d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", p.name, p.d)
		}
	}
	if c.Agents.LivenessTick < 0 {
		return fmt.Errorf("agents.liveness_tick must not be negative, got %s", c.Agents.LivenessTick)
	}
	if c.Issues.ClosedWindow < 0 {
		return fmt.Errorf("issues.closed_window must not be negative, got %s", c.Issues.ClosedWindow)
	}

	if c.Activity.MaxEvents < 0 {
		return fmt.Errorf("activity.max_events must not be negative")
	}
	if c.Activity.FeedLimit < 0 {
		return fmt.Errorf("activity.feed_limit must not be negative")
	}
	if c.Terminal.Lines < 0 {
		return fmt.Errorf("terminal.lines must not be negative")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	return nil
}

// expandHome replaces a leading ~/ with the user's home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func validRepo(repo string) bool {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" {
		return false
	}
	return !strings.ContainsAny(name, "/ ") && !strings.ContainsAny(owner, " ")
}

// parseDurations converts the raw duration strings into time.Duration values,
// substituting the default for any field left empty.
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		def  time.Duration
		dst  *time.Duration
	}{
		{"heartbeat_timeout", cfg.Agents.HeartbeatTimeoutRaw, DefaultHeartbeatTimeout, &cfg.Agents.HeartbeatTimeout},
		{"liveness_tick", cfg.Agents.LivenessTickRaw, DefaultLivenessTick, &cfg.Agents.LivenessTick},
		{"refresh_interval", cfg.Issues.RefreshIntervalRaw, DefaultRefreshInterval, &cfg.Issues.RefreshInterval},
		{"fetch_timeout", cfg.Issues.FetchTimeoutRaw, DefaultFetchTimeout, &cfg.Issues.FetchTimeout},
		{"work_window", cfg.Issues.WorkWindowRaw, DefaultWorkWindow, &cfg.Issues.WorkWindow},
		{"closed_window", cfg.Issues.ClosedWindowRaw, 0, &cfg.Issues.ClosedWindow},
		{"window", cfg.Activity.WindowRaw, DefaultActivityWindow, &cfg.Activity.Window},
		{"poll_interval", cfg.Activity.PollIntervalRaw, DefaultPollInterval, &cfg.Activity.PollInterval},
		{"timeout", cfg.Terminal.TimeoutRaw, DefaultTerminalTimeout, &cfg.Terminal.Timeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			*f.dst = f.def
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
