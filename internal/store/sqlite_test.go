// ABOUTME: Tests for SQLite store specifics
// ABOUTME: Covers file creation, migrations and persistence across reopen

package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	// Verify the database file was created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestNewSQLiteStore_Memory(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.SaveAgent(ctx, testAgent(1, "kat")))
	agents, err := store.ListAgents(ctx)
	require.NoError(t, err)
	assert.Len(t, agents, 1)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "board.db")
	ctx := context.Background()

	first, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, first.SaveAgent(ctx, testAgent(1, "kat")))
	require.NoError(t, first.SaveIssues(ctx, "acme/api", []IssueRecord{
		{Repo: "acme/api", Number: 1, Title: "one", State: "open", UpdatedAt: time.Now().UTC()},
	}, time.Now()))
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer second.Close()

	agents, err := second.ListAgents(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, "kat", agents[0].Name)

	snap, err := second.LoadIssues(ctx, "acme/api")
	require.NoError(t, err)
	assert.Len(t, snap.Issues, 1)
}

func TestSQLiteStore_MigratesOldAgentsTable(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "old.db")

	// Lay down the schema as it was before current_task existed.
	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE agents (
			id              INTEGER PRIMARY KEY,
			name            TEXT NOT NULL UNIQUE,
			role            TEXT NOT NULL DEFAULT '',
			declared_status TEXT NOT NULL DEFAULT '',
			last_active     TEXT,
			uptime_since    TEXT,
			created_at      TEXT NOT NULL
		);
		INSERT INTO agents (id, name, created_at) VALUES (1, 'kat', '2026-03-01T12:00:00Z');
	`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	agents, err := store.ListAgents(context.Background())
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, "", agents[0].CurrentTask)
	assert.True(t, agents[0].LastActive.IsZero())

	// Running migrations again is a no-op.
	assert.NoError(t, store.runMigrations())
}

func TestIsConstraintViolation(t *testing.T) {
	assert.False(t, isConstraintViolation(nil))
	assert.True(t, isConstraintViolation(sqlError("UNIQUE constraint failed: agents.name")))
	assert.False(t, isConstraintViolation(sqlError("database is locked")))
}

type sqlError string

func (e sqlError) Error() string { return string(e) }
