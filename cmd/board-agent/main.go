// ABOUTME: Minimal agent for exercising a coven-board server: registers, then heartbeats on an interval.
// ABOUTME: Usage: board-agent [-server http://localhost:8080] [-name alpha] [-role builder] [-interval 30s]
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "coven-board base URL")
	name := flag.String("name", "echo-agent", "Agent name")
	role := flag.String("role", "tester", "Agent role")
	apiKey := flag.String("api-key", os.Getenv("DASHBOARD_API_KEY"), "API key for write endpoints")
	interval := flag.Duration("interval", 30*time.Second, "Heartbeat interval")
	status := flag.String("status", "online", "Status reported with each heartbeat")
	task := flag.String("task", "", "Current task reported with each heartbeat")
	ignoreSwitch := flag.Bool("ignore-switch", false, "Heartbeat even when the global switch is off")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c := newClient(*server, *apiKey)
	a := agentLoop{
		client:       c,
		name:         *name,
		role:         *role,
		status:       *status,
		task:         *task,
		interval:     *interval,
		ignoreSwitch: *ignoreSwitch,
		logf:         log.Printf,
	}
	if err := a.run(ctx); err != nil {
		log.Fatal(err)
	}
}

// client talks to the board's JSON API.
type client struct {
	base   string
	apiKey string
	http   *http.Client
}

func newClient(base, apiKey string) *client {
	return &client{
		base:   strings.TrimRight(base, "/"),
		apiKey: apiKey,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

// statusError is a non-2xx answer from the board.
type statusError struct {
	Method  string
	Path    string
	Code    int
	Message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Message)
}

func isNotFound(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

type agentInfo struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &statusError{Method: method, Path: path, Code: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) register(ctx context.Context, name, role string) (agentInfo, error) {
	var info agentInfo
	err := c.do(ctx, http.MethodPost, "/api/agents/register", map[string]string{"name": name, "role": role}, &info)
	return info, err
}

func (c *client) heartbeat(ctx context.Context, id int64, status, task string) (agentInfo, error) {
	// No timestamp: the server stamps the beat.
	body := map[string]string{"status": status}
	if task != "" {
		body["task"] = task
	}
	var info agentInfo
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/agents/%d/heartbeat", id), body, &info)
	return info, err
}

func (c *client) switchActive(ctx context.Context) (bool, error) {
	var resp struct {
		Active bool `json:"active"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/heartbeat/status", nil, &resp); err != nil {
		return false, err
	}
	return resp.Active, nil
}

type agentLoop struct {
	client       *client
	name         string
	role         string
	status       string
	task         string
	interval     time.Duration
	ignoreSwitch bool
	logf         func(format string, args ...any)

	id int64 // assigned by the board; changes if the board forgets the agent
}

// run registers the agent and heartbeats until ctx is done. Failed beats
// are logged and retried on the next tick.
func (a *agentLoop) run(ctx context.Context) error {
	if err := a.register(ctx); err != nil {
		return fmt.Errorf("failed to register: %w", err)
	}

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		a.beat(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (a *agentLoop) register(ctx context.Context) error {
	info, err := a.client.register(ctx, a.name, a.role)
	if err != nil {
		return err
	}
	a.id = info.ID
	a.logf("registered %s as id %d", info.Name, info.ID)
	return nil
}

// beat sends one heartbeat if the global switch allows it. A board that no
// longer knows the agent (restarted without a database) gets a fresh
// registration and the beat is retried once under the new id.
func (a *agentLoop) beat(ctx context.Context) bool {
	if !a.ignoreSwitch {
		active, err := a.client.switchActive(ctx)
		if err != nil {
			if !errors.Is(ctx.Err(), context.Canceled) {
				a.logf("heartbeat switch check failed: %v", err)
			}
			return false
		}
		if !active {
			a.logf("heartbeat switch is off, skipping")
			return false
		}
	}

	info, err := a.client.heartbeat(ctx, a.id, a.status, a.task)
	if isNotFound(err) {
		a.logf("agent id %d unknown to the board, registering again", a.id)
		if err := a.register(ctx); err != nil {
			a.logf("re-registration failed: %v", err)
			return false
		}
		info, err = a.client.heartbeat(ctx, a.id, a.status, a.task)
	}
	if err != nil {
		if !errors.Is(ctx.Err(), context.Canceled) {
			a.logf("heartbeat failed: %v", err)
		}
		return false
	}
	a.logf("heartbeat ok (%s)", info.Status)
	return true
}
