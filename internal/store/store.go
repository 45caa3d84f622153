// ABOUTME: Store interface and record types for coven-board persistence
// ABOUTME: Defines agent and issue records and the operations the board needs from storage

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateName is returned when saving an agent whose name belongs to another agent ID
var ErrDuplicateName = errors.New("agent name already taken")

// AgentRecord is the persisted form of a registered agent.
// Effective status is never stored; it is derived from LastActive on read.
type AgentRecord struct {
	ID             int64
	Name           string
	Role           string
	DeclaredStatus string
	CurrentTask    string
	LastActive     time.Time
	UptimeSince    time.Time
	CreatedAt      time.Time
}

// IssueRecord is the persisted form of an upstream issue.
// The kanban column is derived on read and not stored.
type IssueRecord struct {
	Repo      string
	Number    int
	Title     string
	URL       string
	Labels    []string
	Assignee  string
	State     string // open, closed
	UpdatedAt time.Time
}

// RepoSnapshot is the last successfully fetched issue set of one repository.
type RepoSnapshot struct {
	Repo        string
	Issues      []IssueRecord
	RefreshedAt time.Time
}

// Store defines the persistence operations used by the board.
type Store interface {
	// SaveAgent inserts or updates an agent keyed by ID.
	SaveAgent(ctx context.Context, agent *AgentRecord) error

	// ListAgents returns every agent ordered by ID.
	ListAgents(ctx context.Context) ([]*AgentRecord, error)

	// SaveIssues replaces the stored issue set of repo in one transaction.
	SaveIssues(ctx context.Context, repo string, issues []IssueRecord, refreshedAt time.Time) error

	// LoadIssues returns the stored issue set of repo.
	// Returns ErrNotFound if the repository was never saved.
	LoadIssues(ctx context.Context, repo string) (*RepoSnapshot, error)

	// Close releases any resources held by the store
	Close() error
}
