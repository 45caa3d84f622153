// ABOUTME: Interactive config file setup for coven-board
// ABOUTME: Prompts for each section and writes a commented YAML file

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/2389/coven-board/internal/config"
)

// initAnswers collects the values gathered by runInit.
type initAnswers struct {
	HTTPAddr    string
	DBPath      string
	APIKey      string
	Repos       []string
	GitHubToken string
	ProjectDir  string
	AgentsBase  string
	ToggleFile  string

	TailscaleEnabled   bool
	TailscaleHostname  string
	TailscaleAuthKey   string
	TailscaleEphemeral bool
	TailscaleHTTPS     bool

	LogLevel       string
	LogFormat      string
	MetricsEnabled bool
}

// getDataPath returns the path to the coven data directory.
// Priority: XDG_DATA_HOME/coven > ~/.local/share/coven
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "coven")
}

// generateAPIKey returns a random URL-safe key for auth.api_key.
func generateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func yes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "yes" || s == "y"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("coven-board configuration setup")
	fmt.Println("===============================")
	fmt.Println()

	outputFile := prompt(reader, "Config file path", config.DefaultPath())

	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	var a initAnswers

	fmt.Println("\n--- Server Configuration ---")
	a.HTTPAddr = prompt(reader, "HTTP address", config.DefaultHTTPAddr)

	fmt.Println("\n--- Database Configuration ---")
	a.DBPath = prompt(reader, "SQLite database path (empty for memory only)", filepath.Join(getDataPath(), "board.db"))

	fmt.Println("\n--- Auth Configuration ---")
	if yes(prompt(reader, "Generate an API key for write endpoints?", "yes")) {
		key, err := generateAPIKey()
		if err != nil {
			return err
		}
		a.APIKey = key
	} else {
		a.APIKey = prompt(reader, "API key (empty leaves writes open)", "${DASHBOARD_API_KEY}")
	}

	fmt.Println("\n--- GitHub Issues ---")
	a.Repos = splitList(prompt(reader, "Repositories (owner/name, comma separated)", ""))
	a.GitHubToken = prompt(reader, "GitHub token", "${GITHUB_TOKEN}")

	fmt.Println("\n--- Agents ---")
	a.AgentsBase = prompt(reader, "Agents base path", config.DefaultAgentsBasePath)
	a.ToggleFile = prompt(reader, "Heartbeat toggle file", config.DefaultToggleFile)
	a.ProjectDir = prompt(reader, "Project directory for commit activity (empty to skip)", "")

	fmt.Println("\n--- Tailscale Configuration ---")
	a.TailscaleEnabled = yes(prompt(reader, "Enable Tailscale?", "no"))
	if a.TailscaleEnabled {
		a.TailscaleHostname = prompt(reader, "Tailscale hostname", "coven-board")
		a.TailscaleAuthKey = prompt(reader, "Tailscale auth key (leave empty for interactive)", "")
		a.TailscaleEphemeral = yes(prompt(reader, "Ephemeral node?", "no"))
		a.TailscaleHTTPS = yes(prompt(reader, "Serve HTTPS with tailnet certificates?", "no"))
	}

	fmt.Println("\n--- Logging Configuration ---")
	a.LogLevel = prompt(reader, "Log level (debug/info/warn/error)", "info")
	a.LogFormat = prompt(reader, "Log format (text/json)", "text")
	a.MetricsEnabled = yes(prompt(reader, "Expose Prometheus metrics?", "no"))

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(renderConfig(a)), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	if a.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(a.DBPath), 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	if a.APIKey != "" && !strings.HasPrefix(a.APIKey, "${") {
		fmt.Printf("API key: %s\n", a.APIKey)
	}
	fmt.Println("\nTo start the server:")
	fmt.Printf("  coven-board serve\n")

	return nil
}

// renderConfig produces the YAML document for the collected answers.
func renderConfig(a initAnswers) string {
	var cfg strings.Builder
	cfg.WriteString("# coven-board configuration\n")
	cfg.WriteString("# Generated by coven-board init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: %q\n", a.HTTPAddr))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: %q\n", a.DBPath))
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	cfg.WriteString(fmt.Sprintf("  api_key: %q\n", a.APIKey))
	cfg.WriteString("\n")

	cfg.WriteString("tailscale:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", a.TailscaleEnabled))
	if a.TailscaleEnabled {
		cfg.WriteString(fmt.Sprintf("  hostname: %q\n", a.TailscaleHostname))
		if a.TailscaleAuthKey != "" {
			cfg.WriteString(fmt.Sprintf("  auth_key: %q\n", a.TailscaleAuthKey))
		}
		cfg.WriteString(fmt.Sprintf("  ephemeral: %t\n", a.TailscaleEphemeral))
		cfg.WriteString(fmt.Sprintf("  https: %t\n", a.TailscaleHTTPS))
	}
	cfg.WriteString("\n")

	cfg.WriteString("agents:\n")
	cfg.WriteString("  heartbeat_timeout: \"60s\"\n")
	cfg.WriteString("  liveness_tick: \"15s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("issues:\n")
	if len(a.Repos) == 0 {
		cfg.WriteString("  repos: []\n")
	} else {
		cfg.WriteString("  repos:\n")
		for _, r := range a.Repos {
			cfg.WriteString(fmt.Sprintf("    - %q\n", r))
		}
	}
	cfg.WriteString(fmt.Sprintf("  github_token: %q\n", a.GitHubToken))
	cfg.WriteString("  refresh_interval: \"5m\"\n")
	cfg.WriteString("  fetch_timeout: \"30s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("activity:\n")
	cfg.WriteString("  max_events: 100\n")
	cfg.WriteString("  feed_limit: 20\n")
	if a.ProjectDir != "" {
		cfg.WriteString(fmt.Sprintf("  project_dir: %q\n", a.ProjectDir))
	}
	cfg.WriteString("\n")

	cfg.WriteString("heartbeat:\n")
	cfg.WriteString(fmt.Sprintf("  toggle_file: %q\n", a.ToggleFile))
	cfg.WriteString("\n")

	cfg.WriteString("workspace:\n")
	cfg.WriteString(fmt.Sprintf("  agents_base_path: %q\n", a.AgentsBase))
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", a.LogLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n", a.LogFormat))
	cfg.WriteString("\n")

	cfg.WriteString("metrics:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", a.MetricsEnabled))
	cfg.WriteString(fmt.Sprintf("  path: %q\n", config.DefaultMetricsPath))

	return cfg.String()
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
