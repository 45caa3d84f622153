// ABOUTME: Captures the recent output of an agent's tmux session
// ABOUTME: Output is redacted before it is returned

package terminal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/2389/coven-board/internal/redact"
)

// Defaults for a capture.
const (
	DefaultTimeout = 5 * time.Second
	DefaultLines   = 30
)

var (
	// ErrInvalidName is returned for session names outside [A-Za-z0-9_-].
	ErrInvalidName = errors.New("invalid agent name")
	// ErrTmuxNotInstalled is returned when the tmux binary cannot be found.
	ErrTmuxNotInstalled = errors.New("tmux is not installed")
	// ErrSessionNotFound is returned when tmux has no session of that name.
	ErrSessionNotFound = errors.New("tmux session not found")
	// ErrTimeout is returned when tmux does not answer in time.
	ErrTimeout = errors.New("tmux command timed out")
)

var sessionNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Runner executes a command and returns stdout and stderr separately.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Capturer fetches pane contents through tmux.
type Capturer struct {
	runner  Runner
	timeout time.Duration
	lines   int
}

// NewCapturer creates a capturer. A nil runner uses os/exec; non-positive
// timeout and lines fall back to the defaults.
func NewCapturer(runner Runner, timeout time.Duration, lines int) *Capturer {
	if runner == nil {
		runner = execRunner{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if lines <= 0 {
		lines = DefaultLines
	}
	return &Capturer{runner: runner, timeout: timeout, lines: lines}
}

// ValidName reports whether name is an acceptable session name.
func ValidName(name string) bool {
	return sessionNameRe.MatchString(name)
}

// Capture returns the last lines of the session called name, redacted.
// A SessionError carries tmux's stderr when the session is missing.
func (c *Capturer) Capture(ctx context.Context, name string) (string, error) {
	if !ValidName(name) {
		return "", ErrInvalidName
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	stdout, stderr, err := c.runner.Run(ctx, "tmux", "capture-pane", "-p", "-t", name, "-S", "-"+strconv.Itoa(c.lines))
	switch {
	case err == nil:
		return redact.String(string(stdout)), nil
	case errors.Is(err, exec.ErrNotFound):
		return "", ErrTmuxNotInstalled
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "", ErrTimeout
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &SessionError{Detail: strings.TrimSpace(string(stderr))}
		}
		return "", fmt.Errorf("running tmux: %w", err)
	}
}

// SessionError reports a capture of a session tmux does not know.
type SessionError struct {
	Detail string
}

func (e *SessionError) Error() string {
	if e.Detail == "" {
		return ErrSessionNotFound.Error()
	}
	return ErrSessionNotFound.Error() + ": " + e.Detail
}

// Unwrap lets errors.Is match ErrSessionNotFound.
func (e *SessionError) Unwrap() error { return ErrSessionNotFound }
