package ir

import (
	"encoding/json"
	"fmt"
)

// ValidationError describes one problem with a submitted record.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks an action log's shape. All problems are returned rather
// than the first one. The ID is not checked here; see WithID.
func (log *ActionLog) Validate() []ValidationError {
	var errs []ValidationError
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if log.TaskID == "" {
		add("task_id", "is required")
	}
	if !ValidActionLogTypes[log.Type] {
		add("action_log_type", "unknown action log type %q", log.Type)
	}
	if log.TimestampMillis <= 0 {
		add("timestamp_millis", "must be positive, got %d", log.TimestampMillis)
	}

	seen := make(map[string]bool, len(log.ParentIDs))
	for i, p := range log.ParentIDs {
		switch {
		case p == "":
			add(fmt.Sprintf("parent_action_log_ids[%d]", i), "is empty")
		case seen[p]:
			add(fmt.Sprintf("parent_action_log_ids[%d]", i), "duplicate parent %q", p)
		case log.ID != "" && p == log.ID:
			add(fmt.Sprintf("parent_action_log_ids[%d]", i), "log cannot be its own parent")
		}
		seen[p] = true
	}

	for i, id := range log.AttachmentIDs {
		if id == "" {
			add(fmt.Sprintf("attachment_ids[%d]", i), "is empty")
		}
	}

	switch log.Type {
	case RepetitionActionLogType:
		if !ValidRepetitionOutcomes[log.Outcome] {
			add("outcome", "invalid repetition outcome %q", log.Outcome)
		}
	case RescheduleActionLogType:
		if log.NewTimestampMillis <= 0 {
			add("new_timestamp_millis", "must be positive for reschedule logs")
		}
	case UpdateMetadataActionLogType:
		if len(log.Metadata) == 0 {
			add("metadata", "must not be empty for updateMetadata logs")
		}
	}
	if log.Type != RepetitionActionLogType && log.Outcome != "" {
		add("outcome", "only repetition logs carry an outcome")
	}

	if _, err := MarshalCanonical(log.Metadata.orEmpty()); err != nil {
		add("metadata", "%v", err)
	}

	return errs
}

func (obj IRObject) orEmpty() IRObject {
	if obj == nil {
		return IRObject{}
	}
	return obj
}

// WithID returns a copy of the log with its content-addressed ID filled in.
// A log that already carries an ID must carry the correct one.
func (log ActionLog) WithID() (ActionLog, error) {
	id, err := ActionLogID(log)
	if err != nil {
		return log, err
	}
	if log.ID != "" && log.ID != id {
		return log, ValidationError{
			Field:   "id",
			Message: fmt.Sprintf("does not match content: got %s, computed %s", log.ID, id),
		}
	}
	log.ID = id
	return log, nil
}

// DecodeActionLogContent parses the output of ActionLogContent back into a
// log. ID and ServerTimestamp are left for the caller to fill.
func DecodeActionLogContent(data []byte) (ActionLog, error) {
	var log ActionLog
	if err := json.Unmarshal(data, &log); err != nil {
		return ActionLog{}, fmt.Errorf("decode action log content: %w", err)
	}
	if log.ParentIDs == nil {
		log.ParentIDs = []string{}
	}
	return log, nil
}

// SameParents reports whether two logs name the same parent set,
// irrespective of order.
func SameParents(a, b ActionLog) bool {
	if len(a.ParentIDs) != len(b.ParentIDs) {
		return false
	}
	set := make(map[string]bool, len(a.ParentIDs))
	for _, p := range a.ParentIDs {
		set[p] = true
	}
	for _, p := range b.ParentIDs {
		if !set[p] {
			return false
		}
	}
	return true
}
