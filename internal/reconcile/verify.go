package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/reviewlog/internal/ir"
	"github.com/roach88/reviewlog/internal/store"
)

// VerifyResult compares a task's cached entry with a full replay.
type VerifyResult[S any] struct {
	TaskID string

	// Cached is the stored entry, nil when the task has none.
	Cached *ir.PromptStateCache[S]

	// Replayed is the entry full replay produces, nil when the task has no
	// logs.
	Replayed *ir.PromptStateCache[S]

	// LogCount is the number of logs replayed.
	LogCount int

	// Drift lists every difference found. Empty means the cache is
	// consistent.
	Drift []string
}

// OK reports whether no drift was found.
func (r VerifyResult[S]) OK() bool {
	return len(r.Drift) == 0
}

// Verify recomputes a task's state from its full history and compares it
// with the cached entry. It never writes.
func (e *Engine[S]) Verify(ctx context.Context, taskID string) (VerifyResult[S], error) {
	res := VerifyResult[S]{TaskID: taskID}

	cached, err := e.cache.GetCache(ctx, taskID)
	if err != nil {
		return res, classify(fmt.Errorf("read cache: %w", err), taskID, "")
	}
	res.Cached = cached

	replayed, n, err := e.replayAll(ctx, taskID)
	if err != nil {
		return res, err
	}
	res.LogCount = n
	res.Replayed = replayed

	switch {
	case cached == nil && replayed == nil:
	case cached == nil:
		res.Drift = append(res.Drift, "task has logs but no cache entry")
	case replayed == nil:
		res.Drift = append(res.Drift, "cache entry exists but task has no logs")
	default:
		if cached.LatestLogServerTimestamp != replayed.LatestLogServerTimestamp {
			res.Drift = append(res.Drift, fmt.Sprintf("latest server timestamp: cached %s, replayed %s",
				cached.LatestLogServerTimestamp, replayed.LatestLogServerTimestamp))
		}
		if cached.LatestLogID != replayed.LatestLogID {
			res.Drift = append(res.Drift, fmt.Sprintf("latest log: cached %s, replayed %s",
				cached.LatestLogID, replayed.LatestLogID))
		}
		same, err := sameState(cached.State, replayed.State)
		if err != nil {
			return res, fmt.Errorf("verify %s: %w", taskID, err)
		}
		if !same {
			res.Drift = append(res.Drift, "derived state differs from full replay")
		}
	}

	if !res.OK() {
		slog.Warn("cache drift detected", "task_id", taskID, "drift", res.Drift)
	}
	return res, nil
}

// Rebuild replaces a task's cache entry with the result of full replay.
// The latest server timestamp never moves backwards.
func (e *Engine[S]) Rebuild(ctx context.Context, taskID string) (ir.PromptStateCache[S], error) {
	for attempt := 0; ; attempt++ {
		current, err := e.cache.GetCache(ctx, taskID)
		if err != nil {
			return ir.PromptStateCache[S]{}, classify(fmt.Errorf("read cache: %w", err), taskID, "")
		}

		replayed, _, err := e.replayAll(ctx, taskID)
		if err != nil {
			return ir.PromptStateCache[S]{}, err
		}
		if replayed == nil {
			return ir.PromptStateCache[S]{}, &Error{
				Code:    ErrCodeValidation,
				Message: "task has no action logs",
				TaskID:  taskID,
			}
		}
		if current != nil && current.LatestLogServerTimestamp.After(replayed.LatestLogServerTimestamp) {
			replayed.LatestLogServerTimestamp = current.LatestLogServerTimestamp
			replayed.LatestLogID = current.LatestLogID
		}

		entry, err := e.commit(ctx, *replayed, revisionOf(current))
		if err == nil {
			slog.Info("cache entry rebuilt", "task_id", taskID, "revision", entry.Revision)
			return entry, nil
		}
		if !errors.Is(err, store.ErrConcurrencyConflict) {
			slog.Error("rebuild aborted", "task_id", taskID, "error", err)
			return ir.PromptStateCache[S]{}, classify(err, taskID, "")
		}
		if attempt >= e.maxRetries {
			return ir.PromptStateCache[S]{}, &Error{
				Code:    ErrCodeConcurrencyConflict,
				Message: fmt.Sprintf("cache entry kept changing after %d retries", e.maxRetries),
				TaskID:  taskID,
				Err:     err,
			}
		}
		slog.Warn("cache entry changed during rebuild, retrying",
			"task_id", taskID,
			"attempt", attempt+1,
		)
	}
}

// replayAll folds a task's full history. Returns nil when it has no logs.
func (e *Engine[S]) replayAll(ctx context.Context, taskID string) (*ir.PromptStateCache[S], int, error) {
	fetchCtx := ctx
	if e.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, e.fetchTimeout)
		defer cancel()
	}

	history, err := e.fetcher.FetchActionLogs(fetchCtx, taskID)
	if err != nil {
		return nil, 0, classify(fmt.Errorf("fetch history: %w", err), taskID, "")
	}
	if len(history) == 0 {
		return nil, 0, nil
	}

	state, latest, latestID := Fold(e.sched, history)
	return &ir.PromptStateCache[S]{
		TaskID:                   taskID,
		State:                    state,
		LatestLogServerTimestamp: latest,
		LatestLogID:              latestID,
	}, len(history), nil
}

// sameState compares states by their JSON encoding, which is also how the
// cache store persists them.
func sameState[S any](a, b S) (bool, error) {
	ja, err := json.Marshal(a)
	if err != nil {
		return false, fmt.Errorf("marshal cached state: %w", err)
	}
	jb, err := json.Marshal(b)
	if err != nil {
		return false, fmt.Errorf("marshal replayed state: %w", err)
	}
	return bytes.Equal(ja, jb), nil
}
