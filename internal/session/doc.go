// Package session defines conversational sessions and their storage contract.
//
// A Session is addressed by an opaque id and carries the conversation
// history the query coordinator builds up. Every access through the daemon
// refreshes its expiry to now+TTL (24h by default); the Reaper deletes
// sessions whose expiry has passed.
//
// MemoryStore keeps sessions in process memory. The SQLite-backed store in
// internal/store satisfies the same Store interface for sessions that must
// survive restarts.
//
// KeyedMutex serializes concurrent queries that target the same session id.
package session
