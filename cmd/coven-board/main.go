// ABOUTME: Entry point for the coven-board server
// ABOUTME: Tracks agent liveness, caches GitHub issues and serves the activity feed

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/coven-board/internal/board"
	"github.com/2389/coven-board/internal/config"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  ┌─┐┌─┐┬  ┬┌─┐┌┐┌   ┌┐ ┌─┐┌─┐┬─┐┌┬┐
  │  │ │└┐┌┘├┤ │││───├┴┐│ │├─┤├┬┘ ││
  └─┘└─┘ └┘ └─┘┘└┘   └─┘└─┘┴ ┴┴└──┴┘
`

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: coven-board <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the board server")
		fmt.Println("  init     Create a new config file interactively")
		fmt.Println("  health   Check board health")
		fmt.Println("  agents   List registered agents")
		fmt.Println("  version  Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "agents":
		err = runAgents(ctx)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := config.DefaultPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.HTTPS {
			yellow.Print(" [https]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}

	green.Print("    ▶ ")
	if cfg.Database.Path == "" {
		fmt.Printf("Database:  ")
		yellow.Println("memory only")
	} else {
		fmt.Printf("Database:  %s\n", cfg.Database.Path)
	}

	green.Print("    ▶ ")
	fmt.Printf("Repos:     %s\n", strings.Join(cfg.Issues.Repos, ", "))

	if cfg.Auth.APIKey == "" {
		green.Print("    ▶ ")
		fmt.Printf("Auth:      ")
		yellow.Println("open (no api_key set)")
	}

	fmt.Println()

	logger.Info("starting coven-board",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"repos", len(cfg.Issues.Repos),
	)

	b, err := board.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating board: %w", err)
	}

	return b.Run(ctx)
}

// baseURL turns the configured listener into a URL a local client can dial.
func baseURL(cfg *config.Config) string {
	addr := cfg.Server.HTTPAddr
	if addr == "" && cfg.Tailscale.Enabled {
		if cfg.Tailscale.HTTPS {
			return "https://" + cfg.Tailscale.Hostname
		}
		return "http://" + cfg.Tailscale.Hostname
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

func get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	return client.Do(req)
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resp, err := get(ctx, baseURL(cfg)+"/health/ready")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("not ready: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	fmt.Println(strings.TrimSpace(string(body)))
	return nil
}

func runAgents(ctx context.Context) error {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resp, err := get(ctx, baseURL(cfg)+"/api/agents")
	if err != nil {
		return fmt.Errorf("listing agents failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("listing agents: status %d", resp.StatusCode)
	}

	var agents []board.AgentResponse
	if err := json.NewDecoder(resp.Body).Decode(&agents); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return printAgents(os.Stdout, agents)
}

func printAgents(out io.Writer, agents []board.AgentResponse) error {
	if len(agents) == 0 {
		_, err := fmt.Fprintln(out, "no agents registered")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tROLE\tSTATUS\tLAST ACTIVE\tTASK")
	for _, a := range agents {
		lastActive := "-"
		if a.LastActive != nil {
			lastActive = *a.LastActive
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			a.ID, a.Name, a.Role, statusColor(a.Status), lastActive, a.CurrentTask)
	}
	return tw.Flush()
}

func statusColor(status string) string {
	switch status {
	case "online":
		return color.GreenString(status)
	case "busy":
		return color.YellowString(status)
	default:
		return color.HiBlackString(status)
	}
}
