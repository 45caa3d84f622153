// ABOUTME: Activity producer reading recent commits from a local git checkout
// ABOUTME: Shells out to git log with a fixed, delimiter-separated format

package activity

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const (
	gitLogFormat  = "--format=%h||%an||%s||%aI"
	gitLogTimeout = 5 * time.Second
	commitLimit   = 20
)

// CommandRunner runs an external command in dir and returns its stdout.
type CommandRunner func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.Output()
}

// CommitSource reports the most recent commits of a repository checkout.
type CommitSource struct {
	dir string
	run CommandRunner
}

// NewCommitSource creates a commit producer for the checkout at dir.
// A nil runner uses os/exec.
func NewCommitSource(dir string, run CommandRunner) *CommitSource {
	if run == nil {
		run = execRunner
	}
	return &CommitSource{dir: dir, run: run}
}

// Name implements Source.
func (s *CommitSource) Name() string { return "git" }

// Poll implements Source.
func (s *CommitSource) Poll(ctx context.Context) ([]Event, error) {
	ctx, cancel := context.WithTimeout(ctx, gitLogTimeout)
	defer cancel()

	out, err := s.run(ctx, s.dir, "git", "log", gitLogFormat, fmt.Sprintf("-%d", commitLimit))
	if err != nil {
		return nil, fmt.Errorf("git log in %s: %w", s.dir, err)
	}
	return ParseGitLog(out), nil
}

// ParseGitLog turns git log output in the producer's format into commit events.
// Lines that do not have all four fields, or whose date does not parse, are skipped.
func ParseGitLog(out []byte) []Event {
	var events []Event
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.SplitN(line, "||", 4)
		if len(parts) != 4 {
			continue
		}
		hash, author, subject, date := parts[0], parts[1], parts[2], strings.TrimSpace(parts[3])
		ts, err := time.Parse(time.RFC3339, date)
		if err != nil {
			continue
		}
		events = append(events, Event{
			Type:      TypeCommit,
			Agent:     author,
			Message:   hash + " " + subject,
			Timestamp: ts,
			Key:       "commit:" + hash,
		})
	}
	return events
}
