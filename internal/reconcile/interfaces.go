package reconcile

import (
	"context"

	"github.com/roach88/reviewlog/internal/ir"
)

// Scheduler computes a task's next derived state from its prior state (nil
// for a task with no state) and one action log. Implementations must be
// pure and deterministic and must not modify prior.
type Scheduler[S any] interface {
	Apply(prior *S, log ir.ActionLog) S
}

// SchedulerFunc adapts a function to Scheduler.
type SchedulerFunc[S any] func(prior *S, log ir.ActionLog) S

// Apply calls f(prior, log).
func (f SchedulerFunc[S]) Apply(prior *S, log ir.ActionLog) S {
	return f(prior, log)
}

// HistoryFetcher returns every stored log of a task in ascending server
// timestamp order. Only the replay path calls it.
type HistoryFetcher interface {
	FetchActionLogs(ctx context.Context, taskID string) ([]ir.ActionLog, error)
}

// HistoryFetcherFunc adapts a function to HistoryFetcher.
type HistoryFetcherFunc func(ctx context.Context, taskID string) ([]ir.ActionLog, error)

// FetchActionLogs calls f(ctx, taskID).
func (f HistoryFetcherFunc) FetchActionLogs(ctx context.Context, taskID string) ([]ir.ActionLog, error) {
	return f(ctx, taskID)
}

// LogStore is the append-only action log store.
// Implemented by *store.Store and testutil.MemoryLogStore.
type LogStore interface {
	HistoryFetcher
	AppendActionLog(ctx context.Context, log ir.ActionLog) (ir.AppendResult, error)
}

// CacheStore persists one cache entry per task with conditional writes.
// Implemented by *store.CacheStore and testutil.MemoryCacheStore.
type CacheStore[S any] interface {
	// GetCache returns nil, nil when the task has no entry.
	GetCache(ctx context.Context, taskID string) (*ir.PromptStateCache[S], error)

	// PutCache writes entry iff the stored revision equals expectedRevision
	// (0: no entry may exist) and returns the new revision. A failed
	// condition is reported as store.ErrConcurrencyConflict.
	PutCache(ctx context.Context, entry ir.PromptStateCache[S], expectedRevision int64) (int64, error)
}

// SiblingFinder finds logs sharing a parent set, for conflict detection.
type SiblingFinder interface {
	FindSiblings(ctx context.Context, taskID string, parentIDs []string, excludeID string) ([]ir.ActionLog, error)
}

// PromptStore stores prompts under their content-addressed IDs.
type PromptStore interface {
	StorePrompts(ctx context.Context, prompts []ir.Prompt) ([]string, error)
}

// BatchTokenGenerator generates tokens correlating the logs of one
// submission. Implemented by UUIDv7Generator and FixedGenerator.
type BatchTokenGenerator interface {
	Generate() string
}
