package reconcile

import (
	"context"
	"log/slog"

	"github.com/roach88/reviewlog/internal/ir"
)

// Update describes one successful reconciliation.
type Update[S any] struct {
	// Batch correlates the logs of one submission.
	Batch string

	// Log is the reconciled log, with its server timestamp.
	Log ir.ActionLog

	// Path is the branch of the decision procedure that was taken.
	Path Path

	// Entry is the cache entry as written, including its new revision.
	Entry ir.PromptStateCache[S]

	// Conflicts lists siblings of Log whose outcomes contradict it.
	Conflicts []Conflict
}

// ConflictError returns a CONFLICTING_UPDATE error describing the first
// detected conflict, or nil when there is none.
func (u Update[S]) ConflictError() error {
	if len(u.Conflicts) == 0 {
		return nil
	}
	return u.Conflicts[0].Err()
}

// Observer is notified after every successful reconciliation.
// Notifications are fire-and-forget; observers must not block for long.
type Observer[S any] interface {
	Observe(ctx context.Context, u Update[S])
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc[S any] func(ctx context.Context, u Update[S])

// Observe calls f(ctx, u).
func (f ObserverFunc[S]) Observe(ctx context.Context, u Update[S]) {
	f(ctx, u)
}

// SlogObserver logs every update at Info level.
type SlogObserver[S any] struct {
	Logger *slog.Logger
}

// Observe implements Observer.
func (o SlogObserver[S]) Observe(ctx context.Context, u Update[S]) {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []any{
		"batch", u.Batch,
		"task_id", u.Entry.TaskID,
		"log_id", u.Log.ID,
		"latest_log_id", u.Entry.LatestLogID,
		"path", string(u.Path),
		"server_seconds", u.Entry.LatestLogServerTimestamp.Seconds,
		"server_nanos", u.Entry.LatestLogServerTimestamp.Nanoseconds,
		"revision", u.Entry.Revision,
	}
	if p, ok := any(u.Entry.State).(interface{ PolicyName() string }); ok {
		attrs = append(attrs, "policy", p.PolicyName())
	}
	if len(u.Conflicts) > 0 {
		attrs = append(attrs, "conflicts", len(u.Conflicts))
	}
	logger.InfoContext(ctx, "task state updated", attrs...)
}
