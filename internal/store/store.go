package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/reviewlog/internal/ir"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema
// 1 - Added index on prompt_state_cache.due_timestamp_millis
const currentSchemaVersion = 1

// DefaultAttachmentBaseURL prefixes attachment URLs unless overridden.
const DefaultAttachmentBaseURL = "https://localhost/attachments"

// Store provides durable storage for action logs and their derived state.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db                *sql.DB
	clock             *ServerClock
	attachmentBaseURL string
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the wall-clock source used for server timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.clock = NewServerClock(now)
	}
}

// WithAttachmentBaseURL sets the prefix used by AttachmentURL.
func WithAttachmentBaseURL(baseURL string) Option {
	return func(s *Store) {
		s.attachmentBaseURL = strings.TrimRight(baseURL, "/")
	}
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically, and resumes the
// server clock after the latest stored timestamp.
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{
		db:                db,
		clock:             NewServerClock(nil),
		attachmentBaseURL: DefaultAttachmentBaseURL,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.resumeClock(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Clock returns the server clock that stamps accepted logs.
func (s *Store) Clock() *ServerClock {
	return s.clock
}

func (s *Store) resumeClock() error {
	var ts ir.ServerTimestamp
	err := s.db.QueryRow(`
		SELECT server_seconds, server_nanos FROM action_logs
		ORDER BY server_seconds DESC, server_nanos DESC
		LIMIT 1
	`).Scan(&ts.Seconds, &ts.Nanoseconds)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("resume server clock: %w", err)
	}
	s.clock.Observe(ts)
	return nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 indexes due times for ListCacheEntries(DueBeforeMillis).
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_prompt_state_cache_due
		ON prompt_state_cache(due_timestamp_millis)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

