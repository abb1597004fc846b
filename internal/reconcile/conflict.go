package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/reviewlog/internal/ir"
)

// Conflict records two logs that extend the same history with
// contradicting events. Conflicts are reported, never resolved: the cache
// still follows server timestamp order.
type Conflict struct {
	TaskID    string
	LogID     string
	SiblingID string
	ParentIDs []string
	Reason    string
}

// Err returns the conflict as a CONFLICTING_UPDATE error.
func (c Conflict) Err() *Error {
	return &Error{
		Code:    ErrCodeConflictingUpdate,
		Message: fmt.Sprintf("log contradicts sibling %s: %s", c.SiblingID, c.Reason),
		TaskID:  c.TaskID,
		LogID:   c.LogID,
		Details: map[string]string{
			"sibling_id": c.SiblingID,
			"parent_ids": strings.Join(c.ParentIDs, ","),
		},
	}
}

// Contradicts reports whether two logs with the same parents record
// incompatible events, and why. Root logs (no parents) never contradict:
// independent devices ingesting the same task is expected.
func Contradicts(a, b ir.ActionLog) (string, bool) {
	if len(a.ParentIDs) == 0 || !ir.SameParents(a, b) {
		return "", false
	}

	switch {
	case a.Type == ir.RepetitionActionLogType && b.Type == ir.RepetitionActionLogType:
		if a.Outcome != b.Outcome {
			return fmt.Sprintf("repetition outcomes %s and %s", a.Outcome, b.Outcome), true
		}
	case a.Type == ir.RescheduleActionLogType && b.Type == ir.RescheduleActionLogType:
		if a.NewTimestampMillis != b.NewTimestampMillis {
			return fmt.Sprintf("rescheduled to %d and %d", a.NewTimestampMillis, b.NewTimestampMillis), true
		}
	case (a.Type == ir.DeleteActionLogType) != (b.Type == ir.DeleteActionLogType):
		return fmt.Sprintf("%s concurrent with %s", a.Type, b.Type), true
	}
	return "", false
}

// detectConflicts looks up siblings of log and keeps the contradicting
// ones. Lookup failures are logged and yield no conflicts.
func detectConflicts(ctx context.Context, finder SiblingFinder, log ir.ActionLog) []Conflict {
	if finder == nil || len(log.ParentIDs) == 0 {
		return nil
	}

	siblings, err := finder.FindSiblings(ctx, log.TaskID, log.ParentIDs, log.ID)
	if err != nil {
		slog.Warn("conflict detection skipped",
			"task_id", log.TaskID,
			"log_id", log.ID,
			"error", err,
		)
		return nil
	}

	var conflicts []Conflict
	for _, sib := range siblings {
		reason, ok := Contradicts(log, sib)
		if !ok {
			continue
		}
		conflicts = append(conflicts, Conflict{
			TaskID:    log.TaskID,
			LogID:     log.ID,
			SiblingID: sib.ID,
			ParentIDs: log.ParentIDs,
			Reason:    reason,
		})
		slog.Warn("conflicting sibling logs",
			"task_id", log.TaskID,
			"log_id", log.ID,
			"sibling_id", sib.ID,
			"reason", reason,
		)
	}
	return conflicts
}
