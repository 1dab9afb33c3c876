// Package store provides durable storage for hearthd using SQLite.
//
// # Architecture
//
// SQLiteStore implements two contracts in a single struct:
//
//   - session.Store: create, fetch, save, list and sweep sessions
//   - authz.AllowList: always-allow decisions per (server, tool)
//
// Session history is kept as one JSON document per row so the coordinator
// can evolve the turn format without schema changes.
//
// # SQLite Configuration
//
// The store uses the pure-Go modernc.org/sqlite driver with WAL mode and a
// single open connection:
//
//	PRAGMA journal_mode=WAL;
//
// Database file locations:
//
//   - Default: ~/.local/share/hearth/hearth.db
//   - Testing: t.TempDir() or ":memory:"
//
// # Timestamps
//
// Timestamps are stored as fixed-width UTC text, which lets the expiry sweep
// compare them directly in SQL.
//
// # Errors
//
// Get returns session.ErrNotFound for unknown ids. All methods accept a
// context.Context for cancellation.
package store
