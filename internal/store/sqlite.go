// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Persists agents and last-good issue snapshots with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS agents (
			id              INTEGER PRIMARY KEY,
			name            TEXT NOT NULL UNIQUE,
			role            TEXT NOT NULL DEFAULT '',
			declared_status TEXT NOT NULL DEFAULT '',
			last_active     TEXT,
			uptime_since    TEXT,
			created_at      TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS issues (
			repo        TEXT NOT NULL,
			number      INTEGER NOT NULL,
			title       TEXT NOT NULL,
			url         TEXT NOT NULL DEFAULT '',
			labels_json TEXT NOT NULL DEFAULT '[]',
			assignee    TEXT,
			state       TEXT NOT NULL,
			updated_at  TEXT NOT NULL,

			PRIMARY KEY (repo, number),
			CHECK (state IN ('open', 'closed'))
		);

		CREATE TABLE IF NOT EXISTS issue_refreshes (
			repo         TEXT PRIMARY KEY,
			refreshed_at TEXT NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		table  string
		column string
		apply  string
	}{
		{
			table:  "agents",
			column: "current_task",
			apply:  `ALTER TABLE agents ADD COLUMN current_task TEXT NOT NULL DEFAULT ''`,
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(`SELECT 1 FROM pragma_table_info(?) WHERE name = ?`, m.table, m.column).Scan(&exists)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("checking %s.%s: %w", m.table, m.column, err)
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// SaveAgent inserts the agent or updates the row with the same ID.
// Returns ErrDuplicateName if another ID already owns the name.
func (s *SQLiteStore) SaveAgent(ctx context.Context, agent *AgentRecord) error {
	query := `
		INSERT INTO agents (id, name, role, declared_status, current_task, last_active, uptime_since, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			declared_status = excluded.declared_status,
			current_task = excluded.current_task,
			last_active = excluded.last_active,
			uptime_since = excluded.uptime_since
	`

	_, err := s.db.ExecContext(ctx, query,
		agent.ID,
		agent.Name,
		agent.Role,
		agent.DeclaredStatus,
		agent.CurrentTask,
		formatTime(agent.LastActive),
		formatTime(agent.UptimeSince),
		agent.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateName
		}
		return fmt.Errorf("saving agent: %w", err)
	}

	s.logger.Debug("saved agent", "id", agent.ID, "name", agent.Name)
	return nil
}

// ListAgents returns all agents ordered by ID.
func (s *SQLiteStore) ListAgents(ctx context.Context) ([]*AgentRecord, error) {
	query := `
		SELECT id, name, role, declared_status, current_task, last_active, uptime_since, created_at
		FROM agents
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()

	var agents []*AgentRecord
	for rows.Next() {
		var a AgentRecord
		var lastActive, uptimeSince sql.NullString
		var createdAt string

		if err := rows.Scan(&a.ID, &a.Name, &a.Role, &a.DeclaredStatus, &a.CurrentTask,
			&lastActive, &uptimeSince, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning agent: %w", err)
		}

		if a.LastActive, err = parseNullTime(lastActive); err != nil {
			return nil, fmt.Errorf("parsing last_active: %w", err)
		}
		if a.UptimeSince, err = parseNullTime(uptimeSince); err != nil {
			return nil, fmt.Errorf("parsing uptime_since: %w", err)
		}
		if a.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}

		agents = append(agents, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agents: %w", err)
	}

	return agents, nil
}

// SaveIssues replaces every stored issue of repo and stamps the refresh time.
func (s *SQLiteStore) SaveIssues(ctx context.Context, repo string, issues []IssueRecord, refreshedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM issues WHERE repo = ?`, repo); err != nil {
		return fmt.Errorf("clearing issues for %s: %w", repo, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO issues (repo, number, title, url, labels_json, assignee, state, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing issue insert: %w", err)
	}
	defer stmt.Close()

	for _, issue := range issues {
		labels := issue.Labels
		if labels == nil {
			labels = []string{}
		}
		labelsJSON, err := json.Marshal(labels)
		if err != nil {
			return fmt.Errorf("marshaling labels: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			repo,
			issue.Number,
			issue.Title,
			issue.URL,
			string(labelsJSON),
			nullString(issue.Assignee),
			issue.State,
			issue.UpdatedAt.UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("inserting issue %s#%d: %w", repo, issue.Number, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO issue_refreshes (repo, refreshed_at) VALUES (?, ?)
		ON CONFLICT(repo) DO UPDATE SET refreshed_at = excluded.refreshed_at
	`, repo, refreshedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("stamping refresh for %s: %w", repo, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing issues for %s: %w", repo, err)
	}

	s.logger.Debug("saved issues", "repo", repo, "count", len(issues))
	return nil
}

// LoadIssues returns the stored snapshot of repo ordered by issue number.
// Returns ErrNotFound if the repository has never been saved.
func (s *SQLiteStore) LoadIssues(ctx context.Context, repo string) (*RepoSnapshot, error) {
	var refreshedAt string
	err := s.db.QueryRowContext(ctx, `SELECT refreshed_at FROM issue_refreshes WHERE repo = ?`, repo).Scan(&refreshedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying refresh for %s: %w", repo, err)
	}

	snap := &RepoSnapshot{Repo: repo}
	if snap.RefreshedAt, err = time.Parse(time.RFC3339Nano, refreshedAt); err != nil {
		return nil, fmt.Errorf("parsing refreshed_at: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT number, title, url, labels_json, assignee, state, updated_at
		FROM issues
		WHERE repo = ?
		ORDER BY number ASC
	`, repo)
	if err != nil {
		return nil, fmt.Errorf("querying issues for %s: %w", repo, err)
	}
	defer rows.Close()

	for rows.Next() {
		issue := IssueRecord{Repo: repo}
		var labelsJSON, updatedAt string
		var assignee sql.NullString

		if err := rows.Scan(&issue.Number, &issue.Title, &issue.URL, &labelsJSON,
			&assignee, &issue.State, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning issue: %w", err)
		}
		if err := json.Unmarshal([]byte(labelsJSON), &issue.Labels); err != nil {
			return nil, fmt.Errorf("parsing labels of %s#%d: %w", repo, issue.Number, err)
		}
		issue.Assignee = assignee.String
		if issue.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		snap.Issues = append(snap.Issues, issue)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating issues: %w", err)
	}

	return snap, nil
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// nullString returns nil for empty strings so they are stored as NULL
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseNullTime(ns sql.NullString) (time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, ns.String)
}
