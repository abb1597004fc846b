package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/reviewlog/internal/ir"
)

// AppendActionLog durably stores a log unless a log with the same
// identifier already exists.
//
// The identifier is computed from content (a supplied ID must match it).
// The server timestamp is assigned at acceptance unless one is already set.
// Returns ir.AlreadyExists with the originally stored timestamp for
// duplicates, and ErrDataIntegrity when the stored content differs, a
// parent is missing or belongs to another task, or an attachment is unknown.
func (s *Store) AppendActionLog(ctx context.Context, log ir.ActionLog) (ir.AppendResult, error) {
	log, err := log.WithID()
	if err != nil {
		return ir.AppendResult{}, fmt.Errorf("append action log: %w", err)
	}
	content, err := ir.ActionLogContent(log)
	if err != nil {
		return ir.AppendResult{}, fmt.Errorf("append action log: %w", err)
	}
	parentKey, err := parentKeyFor(log.ParentIDs)
	if err != nil {
		return ir.AppendResult{}, fmt.Errorf("append action log: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ir.AppendResult{}, fmt.Errorf("append action log: begin tx: %w", err)
	}
	defer tx.Rollback()

	var existing string
	var existingTS ir.ServerTimestamp
	err = tx.QueryRowContext(ctx, `
		SELECT content, server_seconds, server_nanos FROM action_logs WHERE id = ?
	`, log.ID).Scan(&existing, &existingTS.Seconds, &existingTS.Nanoseconds)
	switch {
	case err == nil:
		if existing != string(content) {
			return ir.AppendResult{}, fmt.Errorf("append action log %s: %w: identifier collision with differing content", log.ID, ErrDataIntegrity)
		}
		log.ServerTimestamp = existingTS
		return ir.AppendResult{Status: ir.AlreadyExists, Log: log}, nil
	case !errors.Is(err, sql.ErrNoRows):
		return ir.AppendResult{}, fmt.Errorf("append action log: lookup: %w", err)
	}

	for _, parentID := range log.ParentIDs {
		var parentTask string
		err := tx.QueryRowContext(ctx, `SELECT task_id FROM action_logs WHERE id = ?`, parentID).Scan(&parentTask)
		if errors.Is(err, sql.ErrNoRows) {
			return ir.AppendResult{}, fmt.Errorf("append action log %s: %w: parent %s does not exist", log.ID, ErrDataIntegrity, parentID)
		}
		if err != nil {
			return ir.AppendResult{}, fmt.Errorf("append action log: parent lookup: %w", err)
		}
		if parentTask != log.TaskID {
			return ir.AppendResult{}, fmt.Errorf("append action log %s: %w: parent %s belongs to task %s", log.ID, ErrDataIntegrity, parentID, parentTask)
		}
	}

	for _, attachmentID := range log.AttachmentIDs {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM attachments WHERE id = ?`, attachmentID).Scan(&n); err != nil {
			return ir.AppendResult{}, fmt.Errorf("append action log: attachment lookup: %w", err)
		}
		if n == 0 {
			return ir.AppendResult{}, fmt.Errorf("append action log %s: %w: attachment %s does not exist", log.ID, ErrDataIntegrity, attachmentID)
		}
	}

	if log.ServerTimestamp.IsZero() {
		log.ServerTimestamp = s.clock.Next()
	} else {
		s.clock.Observe(log.ServerTimestamp)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO action_logs
		(id, task_id, log_type, content, parent_key, server_seconds, server_nanos)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		log.ID,
		log.TaskID,
		string(log.Type),
		string(content),
		parentKey,
		log.ServerTimestamp.Seconds,
		log.ServerTimestamp.Nanoseconds,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ir.AppendResult{}, fmt.Errorf("append action log %s: %w: server timestamp %s already used for task %s",
				log.ID, ErrDataIntegrity, log.ServerTimestamp, log.TaskID)
		}
		return ir.AppendResult{}, fmt.Errorf("append action log: insert: %w", err)
	}

	for i, parentID := range log.ParentIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO action_log_parents (log_id, parent_id, position) VALUES (?, ?, ?)
		`, log.ID, parentID, i); err != nil {
			return ir.AppendResult{}, fmt.Errorf("append action log: insert parent: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return ir.AppendResult{}, fmt.Errorf("append action log: commit: %w", err)
	}

	return ir.AppendResult{Status: ir.Stored, Log: log}, nil
}

// FetchActionLogs returns every log for a task in ascending server
// timestamp order. Returns an empty slice (not nil) for unknown tasks.
func (s *Store) FetchActionLogs(ctx context.Context, taskID string) ([]ir.ActionLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, server_seconds, server_nanos
		FROM action_logs
		WHERE task_id = ?
		ORDER BY server_seconds ASC, server_nanos ASC, id COLLATE BINARY ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("fetch action logs: %w", err)
	}
	return collectActionLogs(rows)
}

// ReadActionLog retrieves a single log by ID.
// Returns ErrNotFound if it does not exist.
func (s *Store) ReadActionLog(ctx context.Context, id string) (ir.ActionLog, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content, server_seconds, server_nanos
		FROM action_logs
		WHERE id = ?
	`, id)
	log, err := scanActionLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.ActionLog{}, fmt.Errorf("read action log %s: %w", id, ErrNotFound)
	}
	return log, err
}

// FindSiblings returns the other logs of the task whose parent set equals
// the given one, in server timestamp order.
func (s *Store) FindSiblings(ctx context.Context, taskID string, parentIDs []string, excludeID string) ([]ir.ActionLog, error) {
	parentKey, err := parentKeyFor(parentIDs)
	if err != nil {
		return nil, fmt.Errorf("find siblings: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, server_seconds, server_nanos
		FROM action_logs
		WHERE task_id = ? AND parent_key = ? AND id != ?
		ORDER BY server_seconds ASC, server_nanos ASC, id COLLATE BINARY ASC
	`, taskID, parentKey, excludeID)
	if err != nil {
		return nil, fmt.Errorf("find siblings: %w", err)
	}
	return collectActionLogs(rows)
}

// ListTaskIDs returns every task that has at least one log, sorted.
func (s *Store) ListTaskIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT task_id FROM action_logs ORDER BY task_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list task ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan task id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task ids: %w", err)
	}
	return ids, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActionLog(row rowScanner) (ir.ActionLog, error) {
	var id, content string
	var ts ir.ServerTimestamp
	if err := row.Scan(&id, &content, &ts.Seconds, &ts.Nanoseconds); err != nil {
		return ir.ActionLog{}, err
	}
	log, err := ir.DecodeActionLogContent([]byte(content))
	if err != nil {
		return ir.ActionLog{}, fmt.Errorf("action log %s: %w", id, err)
	}
	log.ID = id
	log.ServerTimestamp = ts
	return log, nil
}

func collectActionLogs(rows *sql.Rows) ([]ir.ActionLog, error) {
	defer rows.Close()

	logs := []ir.ActionLog{}
	for rows.Next() {
		log, err := scanActionLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan action log: %w", err)
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate action logs: %w", err)
	}
	return logs, nil
}

// parentKeyFor is the order-independent form of a parent set, used to
// find sibling logs.
func parentKeyFor(parentIDs []string) (string, error) {
	sorted := slices.Clone(parentIDs)
	if sorted == nil {
		sorted = []string{}
	}
	slices.Sort(sorted)
	data, err := ir.MarshalCanonical(sorted)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
