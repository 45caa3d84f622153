// Package store provides persistent storage for the board using SQLite.
//
// # Architecture
//
// The board keeps its authoritative state in memory. The store is a
// durability layer underneath it:
//
//   - Agents are written behind by the agent registry and loaded once at startup.
//   - Issue snapshots are written after every successful refresh and loaded at
//     startup so a restarted board serves the last-good issues before its first
//     fetch completes.
//
// SQLiteStore implements Store; MockStore is an in-memory stand-in for tests.
//
// # Data Models
//
//   - AgentRecord: A registered agent. Effective status is derived, never stored.
//   - IssueRecord: An upstream issue. The kanban column is derived, never stored.
//   - RepoSnapshot: The last-good issue set of one repository and its refresh time.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA busy_timeout=5000;
//
// Database file locations:
//
//   - Production: /var/lib/coven-board/board.db
//   - Development: ~/.local/share/coven/board.db
//   - Testing: :memory: (in-memory database)
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: Requested entity does not exist
//   - ErrDuplicateName: Agent name belongs to a different ID
//
// All methods accept context.Context for cancellation support.
package store
