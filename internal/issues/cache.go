// ABOUTME: Per-repository issue cache with lock-free reads and single-flight refresh
// ABOUTME: A failed refresh records the failure and leaves the last-good issues in place

package issues

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/2389/coven-board/internal/store"
)

// DefaultFetchTimeout bounds a single repository refresh.
const DefaultFetchTimeout = 30 * time.Second

// snapshot is the immutable state of one repository. It is replaced, never mutated.
type snapshot struct {
	issues              []Issue
	lastRefreshed       time.Time
	lastAttempt         time.Time
	lastError           string
	consecutiveFailures int
	seeded              bool
}

type repoState struct {
	name string
	snap atomic.Pointer[snapshot]
}

// CacheConfig configures a Cache.
type CacheConfig struct {
	// Repos lists "owner/name" repositories in display order.
	Repos        []string
	FetchTimeout time.Duration
	// RefreshInterval is used only to flag stale repositories in Status.
	RefreshInterval time.Duration
	Projector       *Projector
	// Store, when set, receives every successful refresh and can seed the cache.
	Store  store.Store
	Logger *slog.Logger
	Now    func() time.Time
}

// Cache holds the last-good issue set of every configured repository.
// The set of repositories is fixed at construction, so reads need no lock.
type Cache struct {
	repos   []*repoState
	byName  map[string]*repoState
	fetcher Fetcher
	group   singleflight.Group

	projector       *Projector
	fetchTimeout    time.Duration
	refreshInterval time.Duration
	store           store.Store
	logger          *slog.Logger
	now             func() time.Time
}

// NewCache creates a cache for cfg.Repos. Duplicate repositories are ignored.
func NewCache(cfg CacheConfig, fetcher Fetcher) *Cache {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.Projector == nil {
		cfg.Projector = NewProjector(nil, nil, 0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	c := &Cache{
		byName:          make(map[string]*repoState, len(cfg.Repos)),
		fetcher:         fetcher,
		projector:       cfg.Projector,
		fetchTimeout:    cfg.FetchTimeout,
		refreshInterval: cfg.RefreshInterval,
		store:           cfg.Store,
		logger:          cfg.Logger.With("component", "issue-cache"),
		now:             cfg.Now,
	}
	for _, name := range cfg.Repos {
		key := strings.ToLower(name)
		if _, dup := c.byName[key]; dup {
			continue
		}
		rs := &repoState{name: name}
		rs.snap.Store(&snapshot{})
		c.repos = append(c.repos, rs)
		c.byName[key] = rs
	}
	return c
}

// Repos returns the configured repositories in display order.
func (c *Cache) Repos() []string {
	names := make([]string, len(c.repos))
	for i, rs := range c.repos {
		names[i] = rs.name
	}
	return names
}

func (c *Cache) lookup(repo string) (*repoState, bool) {
	rs, ok := c.byName[strings.ToLower(repo)]
	return rs, ok
}

// Seed loads last-good issue sets from the store. Repositories that were never
// saved are left empty. It is meant to run once, before the first refresh.
func (c *Cache) Seed(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	for _, rs := range c.repos {
		saved, err := c.store.LoadIssues(ctx, rs.name)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("seeding %s: %w", rs.name, err)
		}
		rs.snap.Store(&snapshot{
			issues:        fromRecords(saved.Issues),
			lastRefreshed: saved.RefreshedAt,
			seeded:        true,
		})
		c.logger.Info("seeded issues from store", "repo", rs.name, "count", len(saved.Issues), "refreshed_at", saved.RefreshedAt)
	}
	return nil
}

// Refresh fetches repo and replaces its issue set. Concurrent calls for the
// same repository share one fetch. The fetch is bounded by the fetch timeout
// and is not cancelled when ctx is, since other callers may be waiting on it;
// ctx only bounds how long this caller waits.
func (c *Cache) Refresh(ctx context.Context, repo string) error {
	rs, ok := c.lookup(repo)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRepo, repo)
	}

	ch := c.group.DoChan(rs.name, func() (any, error) {
		return nil, c.refresh(context.WithoutCancel(ctx), rs)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Cache) refresh(ctx context.Context, rs *repoState) error {
	started := c.now()
	fctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	fetched, err := c.fetcher.Fetch(fctx, rs.name)
	cancel()

	prev := rs.snap.Load()
	next := *prev
	next.lastAttempt = started

	if err != nil {
		next.lastError = err.Error()
		next.consecutiveFailures++
		rs.snap.Store(&next)
		c.logger.Warn("issue refresh failed",
			"repo", rs.name,
			"error", err,
			"consecutive_failures", next.consecutiveFailures,
			"serving", len(next.issues),
		)
		return fmt.Errorf("%w: %s: %w", ErrUpstreamUnavailable, rs.name, err)
	}

	issues := make([]Issue, len(fetched))
	for i, is := range fetched {
		is.Repo = rs.name
		is.Column = ""
		is.Labels = append([]string(nil), is.Labels...)
		issues[i] = is
	}
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Number < issues[j].Number })

	refreshed := c.now()
	next = snapshot{
		issues:        issues,
		lastRefreshed: refreshed,
		lastAttempt:   started,
	}
	rs.snap.Store(&next)
	c.logger.Debug("issues refreshed", "repo", rs.name, "count", len(issues), "duration", refreshed.Sub(started))

	if c.store != nil {
		if err := c.store.SaveIssues(ctx, rs.name, toRecords(issues), refreshed); err != nil {
			c.logger.Error("failed to persist issues", "repo", rs.name, "error", err)
		}
	}
	return nil
}

// Filter narrows List and Board. Zero fields match everything.
type Filter struct {
	Repo   string
	Label  string
	Column Column
}

// List returns the cached issues of every configured repository, in
// configuration order, each annotated with its current column.
func (c *Cache) List(f Filter) []Issue {
	now := c.now()
	var out []Issue
	for _, rs := range c.repos {
		if f.Repo != "" && !strings.EqualFold(rs.name, f.Repo) {
			continue
		}
		for _, is := range rs.snap.Load().issues {
			if f.Label != "" && !is.HasLabel(f.Label) {
				continue
			}
			is.Column = c.projector.Column(is, now)
			if f.Column != "" && is.Column != f.Column {
				continue
			}
			is.Labels = append([]string(nil), is.Labels...)
			out = append(out, is)
		}
	}
	return out
}

// BoardColumn is one kanban column with its issues.
type BoardColumn struct {
	Name   Column
	Count  int
	Issues []Issue
}

// Board groups issues into columns.
type Board struct {
	Columns []BoardColumn
	Total   int
}

// Board returns the filtered issues grouped into every column, in board order.
// Columns with no issues are present with a zero count.
func (c *Cache) Board(f Filter) Board {
	issues := c.List(f)

	idx := make(map[Column]int, len(Columns))
	b := Board{Columns: make([]BoardColumn, len(Columns)), Total: len(issues)}
	for i, col := range Columns {
		idx[col] = i
		b.Columns[i] = BoardColumn{Name: col, Issues: []Issue{}}
	}
	for _, is := range issues {
		bc := &b.Columns[idx[is.Column]]
		bc.Issues = append(bc.Issues, is)
		bc.Count++
	}
	return b
}

// RepoStatus describes the refresh health of one repository.
type RepoStatus struct {
	Repo                string
	LastRefreshed       time.Time
	LastAttempt         time.Time
	LastError           string
	ConsecutiveFailures int
	Count               int
	Stale               bool
	Seeded              bool
}

// Status reports refresh health for every configured repository.
// A repository is stale when it has never refreshed, or its last success is
// older than the refresh interval plus the fetch timeout.
func (c *Cache) Status() []RepoStatus {
	now := c.now()
	out := make([]RepoStatus, 0, len(c.repos))
	for _, rs := range c.repos {
		snap := rs.snap.Load()
		st := RepoStatus{
			Repo:                rs.name,
			LastRefreshed:       snap.lastRefreshed,
			LastAttempt:         snap.lastAttempt,
			LastError:           snap.lastError,
			ConsecutiveFailures: snap.consecutiveFailures,
			Count:               len(snap.issues),
			Seeded:              snap.seeded,
		}
		switch {
		case snap.lastRefreshed.IsZero():
			st.Stale = true
		case c.refreshInterval > 0:
			st.Stale = now.Sub(snap.lastRefreshed) > c.refreshInterval+c.fetchTimeout
		}
		out = append(out, st)
	}
	return out
}

// Counts returns the number of cached issues per column across all repositories.
func (c *Cache) Counts() map[Column]int {
	counts := make(map[Column]int, len(Columns))
	for _, col := range Columns {
		counts[col] = 0
	}
	for _, is := range c.List(Filter{}) {
		counts[is.Column]++
	}
	return counts
}
