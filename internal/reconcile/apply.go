package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/reviewlog/internal/ir"
)

// Path identifies which branch of the decision procedure produced an entry.
type Path string

const (
	// PathInitial: the task had no cache entry.
	PathInitial Path = "initial"

	// PathIncremental: the log was strictly newer than the cache and was
	// applied on top of the cached state.
	PathIncremental Path = "incremental"

	// PathReplay: the log was not strictly newer, so the state was
	// recomputed from the full history.
	PathReplay Path = "replay"
)

// Decide returns the branch Apply takes for log against current.
// A log whose server timestamp equals the cache's latest is not newer.
func Decide[S any](log ir.ActionLog, current *ir.PromptStateCache[S]) Path {
	switch {
	case current == nil:
		return PathInitial
	case log.ServerTimestamp.After(current.LatestLogServerTimestamp):
		return PathIncremental
	default:
		return PathReplay
	}
}

// Apply computes the cache entry that results from reconciling one stored
// log against the task's current entry (nil when absent).
//
//   - initial: the scheduler is applied to (nil, log).
//   - incremental: the scheduler is applied to (current state, log) and the
//     log becomes the latest contributing log.
//   - replay: fetcher supplies the task's history, which is folded from
//     empty state. The latest timestamp becomes the maximum of the history
//     and the current entry, so it never regresses.
//
// fetcher is only called on the replay path. Its failure returns an error
// and no entry. The returned entry carries current's revision; the cache
// store assigns the next one on write.
func Apply[S any](
	ctx context.Context,
	sched Scheduler[S],
	log ir.ActionLog,
	current *ir.PromptStateCache[S],
	fetcher HistoryFetcher,
) (ir.PromptStateCache[S], Path, error) {
	if current != nil && current.TaskID != log.TaskID {
		return ir.PromptStateCache[S]{}, "", &Error{
			Code:    ErrCodeValidation,
			Message: fmt.Sprintf("log belongs to task %s, cache entry to %s", log.TaskID, current.TaskID),
			TaskID:  log.TaskID,
			LogID:   log.ID,
		}
	}

	path := Decide(log, current)
	switch path {
	case PathInitial:
		return ir.PromptStateCache[S]{
			TaskID:                   log.TaskID,
			State:                    sched.Apply(nil, log),
			LatestLogServerTimestamp: log.ServerTimestamp,
			LatestLogID:              log.ID,
		}, path, nil

	case PathIncremental:
		prior := current.State
		return ir.PromptStateCache[S]{
			TaskID:                   log.TaskID,
			State:                    sched.Apply(&prior, log),
			LatestLogServerTimestamp: log.ServerTimestamp,
			LatestLogID:              log.ID,
			Revision:                 current.Revision,
		}, path, nil
	}

	if fetcher == nil {
		return ir.PromptStateCache[S]{}, path, &Error{
			Code:    ErrCodeStorageUnavailable,
			Message: "replay required but no history fetcher configured",
			TaskID:  log.TaskID,
			LogID:   log.ID,
		}
	}

	history, err := fetcher.FetchActionLogs(ctx, log.TaskID)
	if err != nil {
		return ir.PromptStateCache[S]{}, path, classify(fmt.Errorf("fetch history: %w", err), log.TaskID, log.ID)
	}
	for _, h := range history {
		if h.TaskID != log.TaskID {
			return ir.PromptStateCache[S]{}, path, &Error{
				Code:    ErrCodeDataIntegrity,
				Message: fmt.Sprintf("history fetch returned log of task %s", h.TaskID),
				TaskID:  log.TaskID,
				LogID:   h.ID,
			}
		}
	}
	history = withLog(history, log)

	slog.Debug("replaying task history",
		"task_id", log.TaskID,
		"log_id", log.ID,
		"history_len", len(history),
	)

	state, latest, latestID := Fold(sched, history)
	if current.LatestLogServerTimestamp.After(latest) {
		latest = current.LatestLogServerTimestamp
		latestID = current.LatestLogID
	}
	return ir.PromptStateCache[S]{
		TaskID:                   log.TaskID,
		State:                    state,
		LatestLogServerTimestamp: latest,
		LatestLogID:              latestID,
		Revision:                 current.Revision,
	}, path, nil
}

// Fold applies the scheduler to logs from empty state in ascending server
// timestamp order (ties broken by ID) and returns the final state with the
// timestamp and ID of the last log. logs is not modified.
func Fold[S any](sched Scheduler[S], logs []ir.ActionLog) (S, ir.ServerTimestamp, string) {
	ordered := slices.Clone(logs)
	slices.SortStableFunc(ordered, compareLogs)

	var state *S
	var latest ir.ServerTimestamp
	var latestID string
	for _, log := range ordered {
		next := sched.Apply(state, log)
		state = &next
		latest = log.ServerTimestamp
		latestID = log.ID
	}

	if state == nil {
		var zero S
		return zero, latest, latestID
	}
	return *state, latest, latestID
}

// withLog returns history with log added unless a log with its ID is
// already present. The fetch may be a snapshot taken before log was
// visible.
func withLog(history []ir.ActionLog, log ir.ActionLog) []ir.ActionLog {
	for _, h := range history {
		if h.ID == log.ID {
			return history
		}
	}
	out := make([]ir.ActionLog, 0, len(history)+1)
	out = append(out, history...)
	return append(out, log)
}

func compareLogs(a, b ir.ActionLog) int {
	if c := a.ServerTimestamp.Compare(b.ServerTimestamp); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}
