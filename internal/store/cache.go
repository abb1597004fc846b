package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/reviewlog/internal/ir"
)

// dueTimer is implemented by scheduler states that expose a due time.
// States that do not implement it are stored with a due time of 0.
type dueTimer interface {
	DueTimestampMillis() int64
}

// CacheStore persists PromptStateCache entries for one state type.
// States are stored as JSON; the scheduler owns their shape.
type CacheStore[S any] struct {
	s *Store
}

// NewCacheStore returns a cache view over the store for state type S.
func NewCacheStore[S any](s *Store) *CacheStore[S] {
	return &CacheStore[S]{s: s}
}

// GetCache returns the entry for a task, or nil when none exists.
func (c *CacheStore[S]) GetCache(ctx context.Context, taskID string) (*ir.PromptStateCache[S], error) {
	row := c.s.db.QueryRowContext(ctx, `
		SELECT task_id, state, latest_log_id, latest_server_seconds, latest_server_nanos, revision
		FROM prompt_state_cache
		WHERE task_id = ?
	`, taskID)
	entry, err := scanCacheEntry[S](row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cache %s: %w", taskID, err)
	}
	return entry, nil
}

// PutCache writes an entry if the stored revision still equals
// expectedRevision. An expectedRevision of 0 means the entry must not exist
// yet. Returns the new revision, or ErrConcurrencyConflict when the
// condition does not hold.
func (c *CacheStore[S]) PutCache(ctx context.Context, entry ir.PromptStateCache[S], expectedRevision int64) (int64, error) {
	state, err := json.Marshal(entry.State)
	if err != nil {
		return 0, fmt.Errorf("put cache %s: marshal state: %w", entry.TaskID, err)
	}
	var due int64
	if d, ok := any(entry.State).(dueTimer); ok {
		due = d.DueTimestampMillis()
	}

	newRevision := expectedRevision + 1
	var res sql.Result
	if expectedRevision == 0 {
		res, err = c.s.db.ExecContext(ctx, `
			INSERT INTO prompt_state_cache
			(task_id, state, latest_log_id, latest_server_seconds, latest_server_nanos, due_timestamp_millis, revision)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(task_id) DO NOTHING
		`,
			entry.TaskID,
			string(state),
			entry.LatestLogID,
			entry.LatestLogServerTimestamp.Seconds,
			entry.LatestLogServerTimestamp.Nanoseconds,
			due,
			newRevision,
		)
	} else {
		res, err = c.s.db.ExecContext(ctx, `
			UPDATE prompt_state_cache
			SET state = ?, latest_log_id = ?, latest_server_seconds = ?, latest_server_nanos = ?,
			    due_timestamp_millis = ?, revision = ?
			WHERE task_id = ? AND revision = ?
		`,
			string(state),
			entry.LatestLogID,
			entry.LatestLogServerTimestamp.Seconds,
			entry.LatestLogServerTimestamp.Nanoseconds,
			due,
			newRevision,
			entry.TaskID,
			expectedRevision,
		)
	}
	if err != nil {
		return 0, fmt.Errorf("put cache %s: %w", entry.TaskID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("put cache %s: rows affected: %w", entry.TaskID, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("put cache %s at revision %d: %w", entry.TaskID, expectedRevision, ErrConcurrencyConflict)
	}
	return newRevision, nil
}

// CacheQuery filters ListCacheEntries. Zero values disable a filter.
type CacheQuery struct {
	// Limit caps the number of entries returned.
	Limit int

	// AfterTaskID resumes a listing after the given task (keyset paging).
	AfterTaskID string

	// DueBeforeMillis keeps only entries due strictly before the given time.
	DueBeforeMillis int64
}

// ListCacheEntries returns entries ordered by task ID.
func (c *CacheStore[S]) ListCacheEntries(ctx context.Context, q CacheQuery) ([]ir.PromptStateCache[S], error) {
	var where []string
	var args []any
	if q.AfterTaskID != "" {
		where = append(where, "task_id > ?")
		args = append(args, q.AfterTaskID)
	}
	if q.DueBeforeMillis > 0 {
		where = append(where, "due_timestamp_millis < ?")
		args = append(args, q.DueBeforeMillis)
	}

	query := `
		SELECT task_id, state, latest_log_id, latest_server_seconds, latest_server_nanos, revision
		FROM prompt_state_cache`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\t\tORDER BY task_id COLLATE BINARY ASC"
	if q.Limit > 0 {
		query += "\n\t\tLIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := c.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}
	defer rows.Close()

	entries := []ir.PromptStateCache[S]{}
	for rows.Next() {
		entry, err := scanCacheEntry[S](rows)
		if err != nil {
			return nil, fmt.Errorf("list cache entries: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cache entries: %w", err)
	}
	return entries, nil
}

// DeleteCache removes a task's entry. Used when rebuilding from history.
func (c *CacheStore[S]) DeleteCache(ctx context.Context, taskID string) error {
	if _, err := c.s.db.ExecContext(ctx, `DELETE FROM prompt_state_cache WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("delete cache %s: %w", taskID, err)
	}
	return nil
}

func scanCacheEntry[S any](row rowScanner) (*ir.PromptStateCache[S], error) {
	var entry ir.PromptStateCache[S]
	var state string
	if err := row.Scan(
		&entry.TaskID,
		&state,
		&entry.LatestLogID,
		&entry.LatestLogServerTimestamp.Seconds,
		&entry.LatestLogServerTimestamp.Nanoseconds,
		&entry.Revision,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(state), &entry.State); err != nil {
		return nil, fmt.Errorf("decode state for %s: %w", entry.TaskID, err)
	}
	return &entry, nil
}
