// ABOUTME: Periodic background tasks: issue refresh, liveness observation, activity maintenance
// ABOUTME: Each task runs in its own goroutine on its own ticker and never mutates agent state

package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/2389/coven-board/internal/activity"
	"github.com/2389/coven-board/internal/agent"
	"github.com/2389/coven-board/internal/issues"
	"github.com/2389/coven-board/internal/liveness"
	"github.com/2389/coven-board/internal/metrics"
)

// DefaultRefreshConcurrency bounds how many repositories refresh at once.
const DefaultRefreshConcurrency = 4

// IssueCache is the part of the issue cache the scheduler drives.
type IssueCache interface {
	Repos() []string
	Refresh(ctx context.Context, repo string) error
	Counts() map[issues.Column]int
}

// AgentLister reports the current agents with their effective status.
type AgentLister interface {
	List() []agent.View
}

// Config configures the scheduler. A non-positive interval disables its task.
type Config struct {
	RefreshInterval     time.Duration
	LivenessTick        time.Duration
	MaintenanceInterval time.Duration

	// RefreshConcurrency caps parallel repository refreshes.
	RefreshConcurrency int

	// Sources are polled into the feed on each maintenance pass.
	Sources []activity.Source

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// RepoResult is the outcome of refreshing one repository.
type RepoResult struct {
	Repo string
	Err  error
}

// Transition records an agent whose effective status changed between ticks.
type Transition struct {
	AgentID int64
	Name    string
	From    liveness.Status
	To      liveness.Status
}

// Scheduler owns the background loops.
type Scheduler struct {
	cfg    Config
	issues IssueCache
	agents AgentLister
	feed   *activity.Feed
	logger *slog.Logger

	mu         sync.Mutex
	lastStatus map[int64]liveness.Status

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates a scheduler. Any of issueCache, agents or feed may be nil, in
// which case the corresponding task does nothing.
func New(cfg Config, issueCache IssueCache, agents AgentLister, feed *activity.Feed) *Scheduler {
	if cfg.RefreshConcurrency <= 0 {
		cfg.RefreshConcurrency = DefaultRefreshConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scheduler{
		cfg:        cfg,
		issues:     issueCache,
		agents:     agents,
		feed:       feed,
		logger:     cfg.Logger.With("component", "scheduler"),
		lastStatus: make(map[int64]liveness.Status),
	}
}

// Start launches every enabled task. Each task runs once immediately and then
// on its interval until Stop is called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		ctx, s.cancel = context.WithCancel(ctx)

		s.every(ctx, "issue-refresh", s.cfg.RefreshInterval, func(ctx context.Context) {
			s.RefreshAll(ctx)
		})
		s.every(ctx, "liveness", s.cfg.LivenessTick, func(context.Context) {
			s.CheckLiveness()
		})
		s.every(ctx, "activity", s.cfg.MaintenanceInterval, func(ctx context.Context) {
			s.Maintain(ctx)
		})
	})
}

// Stop cancels every task and waits for in-flight passes to return.
// It is safe to call multiple times and before Start.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
	})
}

func (s *Scheduler) every(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		s.logger.Info("task disabled", "task", name)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		fn(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				fn(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// RefreshAll refreshes every configured repository concurrently and returns
// one result per repository in configuration order. Failures are logged and
// counted; the cache keeps serving the previous snapshot for those repos.
func (s *Scheduler) RefreshAll(ctx context.Context) []RepoResult {
	if s.issues == nil {
		return nil
	}

	repos := s.issues.Repos()
	results := make([]RepoResult, len(repos))
	runID := uuid.New().String()
	logger := s.logger.With("run_id", runID)
	start := time.Now()

	var g errgroup.Group
	g.SetLimit(s.cfg.RefreshConcurrency)
	for i, repo := range repos {
		g.Go(func() error {
			began := time.Now()
			err := s.issues.Refresh(ctx, repo)
			s.cfg.Metrics.Refresh(repo, err, time.Since(began))
			if err != nil {
				logger.Warn("issue refresh failed", "repo", repo, "error", err)
			}
			results[i] = RepoResult{Repo: repo, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	logger.Debug("issue refresh pass complete",
		"repos", len(repos),
		"failed", failed,
		"duration", time.Since(start))

	s.publishIssueCounts()
	return results
}

func (s *Scheduler) publishIssueCounts() {
	counts := s.issues.Counts()
	gauge := make(map[string]int, len(issues.Columns))
	for _, col := range issues.Columns {
		gauge[string(col)] = counts[col]
	}
	s.cfg.Metrics.SetIssues(gauge)
}

// CheckLiveness observes every agent's effective status, logs changes since
// the previous check and publishes per-status gauges. It returns the changes.
// An agent seen for the first time is not reported as a transition.
func (s *Scheduler) CheckLiveness() []Transition {
	if s.agents == nil {
		return nil
	}

	views := s.agents.List()
	counts := make(map[string]int, len(liveness.All))
	for _, st := range liveness.All {
		counts[string(st)] = 0
	}

	s.mu.Lock()
	var changes []Transition
	for _, v := range views {
		counts[string(v.Status)]++
		prev, seen := s.lastStatus[v.ID]
		s.lastStatus[v.ID] = v.Status
		if seen && prev != v.Status {
			changes = append(changes, Transition{AgentID: v.ID, Name: v.Name, From: prev, To: v.Status})
		}
	}
	s.mu.Unlock()

	for _, c := range changes {
		s.logger.Info("agent status changed",
			"agent_id", c.AgentID,
			"name", c.Name,
			"from", c.From,
			"to", c.To)
	}
	s.cfg.Metrics.SetAgents(counts)
	return changes
}

// Maintain evicts events outside the activity window and polls the configured
// sources. It returns how many events were evicted and how many were added.
func (s *Scheduler) Maintain(ctx context.Context) (evicted, added int) {
	if s.feed == nil {
		return 0, 0
	}

	evicted = s.feed.Evict()
	if len(s.cfg.Sources) > 0 {
		added = activity.PollInto(ctx, s.feed, s.cfg.Sources, s.logger)
	}
	if evicted > 0 || added > 0 {
		s.logger.Debug("activity maintenance", "evicted", evicted, "added", added)
	}
	s.cfg.Metrics.SetActivityEvents(s.feed.Len())
	return evicted, added
}
