// Package store provides SQLite-backed durable storage for action logs,
// prompt state cache entries, prompts and attachments.
//
// # Action logs
//
// Logs are append-only and keyed by their content-derived identifier.
// Appending identical content twice reports ir.AlreadyExists; an identifier
// whose stored content differs is ErrDataIntegrity. Every accepted log gets a
// server timestamp from ServerClock, strictly increasing across the store,
// and FetchActionLogs returns a task's history ordered by it:
//
//	ORDER BY server_seconds ASC, server_nanos ASC, id ASC
//
// Declared parents must already be stored for the same task.
//
// # Prompt state cache
//
// CacheStore persists one entry per task. Writes are conditional on the
// revision the caller read (0 for "must not exist yet"); a lost race is
// reported as ErrConcurrencyConflict and never overwrites.
//
// # Database configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
//
// All identifiers are computed in internal/ir with RFC 8785 canonical JSON
// and domain-separated SHA-256.
package store
