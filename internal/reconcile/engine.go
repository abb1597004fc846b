package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/reviewlog/internal/ir"
	"github.com/roach88/reviewlog/internal/store"
)

const (
	// DefaultMaxRetries bounds optimistic retries of one reconciliation.
	DefaultMaxRetries = 5

	// DefaultFetchTimeout bounds one history fetch on the replay path.
	DefaultFetchTimeout = 10 * time.Second

	// DefaultMaxConcurrentTasks bounds how many tasks Ingest reconciles at
	// once.
	DefaultMaxConcurrentTasks = 8
)

// Engine maintains the prompt state cache as logs are accepted.
//
// Thread-safety model:
//   - Reconcile, Ingest, Verify and Rebuild are safe from any goroutine.
//   - Reconciliations of the same task are serialized by a per-task lock
//     around read-decide-write. The replay fetch runs without the lock and
//     the result is committed only if the cache revision did not move;
//     otherwise the whole decision is retried.
//   - Different tasks never share state and run in parallel.
type Engine[S any] struct {
	logs     LogStore
	cache    CacheStore[S]
	sched    Scheduler[S]
	fetcher  HistoryFetcher
	siblings SiblingFinder
	locks    *taskLocks
	batchGen BatchTokenGenerator

	maxRetries         int
	fetchTimeout       time.Duration
	maxConcurrentTasks int64

	obsMu     sync.RWMutex
	observers []Observer[S]
}

type options struct {
	maxRetries         int
	fetchTimeout       time.Duration
	maxConcurrentTasks int64
	batchGen           BatchTokenGenerator
	fetcher            HistoryFetcher
	siblings           SiblingFinder
	disableSiblings    bool
}

// Option configures an Engine.
type Option func(*options)

// WithMaxRetries sets how many times a reconciliation is retried after
// losing a race on the cache entry. Default: DefaultMaxRetries.
func WithMaxRetries(n int) Option {
	return func(o *options) {
		o.maxRetries = n
	}
}

// WithFetchTimeout bounds each replay history fetch. Default:
// DefaultFetchTimeout. Zero disables the timeout.
func WithFetchTimeout(d time.Duration) Option {
	return func(o *options) {
		o.fetchTimeout = d
	}
}

// WithMaxConcurrentTasks bounds cross-task parallelism in Ingest.
// Default: DefaultMaxConcurrentTasks.
func WithMaxConcurrentTasks(n int) Option {
	return func(o *options) {
		o.maxConcurrentTasks = int64(n)
	}
}

// WithBatchTokenGenerator sets the generator for batch tokens.
// Default: UUIDv7Generator.
func WithBatchTokenGenerator(g BatchTokenGenerator) Option {
	return func(o *options) {
		o.batchGen = g
	}
}

// WithHistoryFetcher overrides where replay reads history from.
// Default: the log store.
func WithHistoryFetcher(f HistoryFetcher) Option {
	return func(o *options) {
		o.fetcher = f
	}
}

// WithSiblingFinder enables conflict detection using f. By default the log
// store is used when it implements SiblingFinder.
func WithSiblingFinder(f SiblingFinder) Option {
	return func(o *options) {
		o.siblings = f
	}
}

// WithoutConflictDetection disables sibling conflict detection.
func WithoutConflictDetection() Option {
	return func(o *options) {
		o.disableSiblings = true
	}
}

// New creates an Engine over the given stores and scheduler.
func New[S any](logs LogStore, cache CacheStore[S], sched Scheduler[S], opts ...Option) *Engine[S] {
	o := options{
		maxRetries:         DefaultMaxRetries,
		fetchTimeout:       DefaultFetchTimeout,
		maxConcurrentTasks: DefaultMaxConcurrentTasks,
		batchGen:           UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.fetcher == nil {
		o.fetcher = logs
	}
	if o.siblings == nil {
		if f, ok := logs.(SiblingFinder); ok {
			o.siblings = f
		}
	}
	if o.disableSiblings {
		o.siblings = nil
	}
	if o.maxRetries < 0 {
		o.maxRetries = 0
	}
	if o.maxConcurrentTasks < 1 {
		o.maxConcurrentTasks = 1
	}

	return &Engine[S]{
		logs:               logs,
		cache:              cache,
		sched:              sched,
		fetcher:            o.fetcher,
		siblings:           o.siblings,
		locks:              newTaskLocks(),
		batchGen:           o.batchGen,
		maxRetries:         o.maxRetries,
		fetchTimeout:       o.fetchTimeout,
		maxConcurrentTasks: o.maxConcurrentTasks,
	}
}

// Subscribe registers an observer for future updates.
func (e *Engine[S]) Subscribe(o Observer[S]) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	e.observers = append(e.observers, o)
}

func (e *Engine[S]) notify(ctx context.Context, u Update[S]) {
	e.obsMu.RLock()
	observers := e.observers
	e.obsMu.RUnlock()

	for _, o := range observers {
		o.Observe(ctx, u)
	}
}

// Reconcile folds one stored log into its task's cache entry.
//
// log must come from the log store: it needs its ID and server timestamp.
// On error the cache entry is unchanged.
func (e *Engine[S]) Reconcile(ctx context.Context, log ir.ActionLog) (Update[S], error) {
	return e.reconcile(ctx, log, e.batchGen.Generate())
}

func (e *Engine[S]) reconcile(ctx context.Context, log ir.ActionLog, batch string) (Update[S], error) {
	if log.ID == "" || log.ServerTimestamp.IsZero() {
		return Update[S]{}, &Error{
			Code:    ErrCodeValidation,
			Message: "log has not been stored: id and server timestamp are required",
			TaskID:  log.TaskID,
			LogID:   log.ID,
		}
	}

	for attempt := 0; ; attempt++ {
		entry, path, err := e.reconcileOnce(ctx, log)
		if err == nil {
			u := Update[S]{
				Batch: batch,
				Log:   log,
				Path:  path,
				Entry: entry,
			}
			u.Conflicts = detectConflicts(ctx, e.siblings, log)
			slog.Debug("reconciled",
				"task_id", log.TaskID,
				"log_id", log.ID,
				"path", string(path),
				"revision", entry.Revision,
				"attempt", attempt,
			)
			e.notify(ctx, u)
			return u, nil
		}

		if !errors.Is(err, store.ErrConcurrencyConflict) {
			slog.Error("reconciliation aborted",
				"task_id", log.TaskID,
				"log_id", log.ID,
				"error", err,
			)
			return Update[S]{}, classify(err, log.TaskID, log.ID)
		}
		if attempt >= e.maxRetries {
			return Update[S]{}, &Error{
				Code:    ErrCodeConcurrencyConflict,
				Message: fmt.Sprintf("cache entry kept changing after %d retries", e.maxRetries),
				TaskID:  log.TaskID,
				LogID:   log.ID,
				Err:     err,
			}
		}
		slog.Warn("cache entry changed concurrently, retrying",
			"task_id", log.TaskID,
			"log_id", log.ID,
			"attempt", attempt+1,
		)
	}
}

// reconcileOnce runs the decision procedure once. A lost race is reported
// as store.ErrConcurrencyConflict so the caller retries from a fresh read.
func (e *Engine[S]) reconcileOnce(ctx context.Context, log ir.ActionLog) (ir.PromptStateCache[S], Path, error) {
	unlock := e.locks.lock(log.TaskID)
	current, err := e.cache.GetCache(ctx, log.TaskID)
	if err != nil {
		unlock()
		return ir.PromptStateCache[S]{}, "", fmt.Errorf("read cache: %w", err)
	}

	if Decide(log, current) != PathReplay {
		defer unlock()
		entry, path, err := Apply(ctx, e.sched, log, current, nil)
		if err != nil {
			return ir.PromptStateCache[S]{}, path, err
		}
		entry.Revision, err = e.cache.PutCache(ctx, entry, revisionOf(current))
		if err != nil {
			return ir.PromptStateCache[S]{}, path, fmt.Errorf("write cache: %w", err)
		}
		return entry, path, nil
	}
	unlock()

	entry, path, err := e.replay(ctx, log, current)
	if err != nil {
		return ir.PromptStateCache[S]{}, path, err
	}
	unchanged, err := sameEntry(entry, *current)
	if err != nil {
		return ir.PromptStateCache[S]{}, path, err
	}
	if unchanged {
		return *current, path, nil
	}
	entry, err = e.commit(ctx, entry, current.Revision)
	return entry, path, err
}

// replay runs Apply's replay path under the fetch timeout, without holding
// the task lock.
func (e *Engine[S]) replay(ctx context.Context, log ir.ActionLog, current *ir.PromptStateCache[S]) (ir.PromptStateCache[S], Path, error) {
	fetchCtx := ctx
	if e.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, e.fetchTimeout)
		defer cancel()
	}
	return Apply(fetchCtx, e.sched, log, current, e.fetcher)
}

// commit writes entry if the cache is still at expectedRevision.
func (e *Engine[S]) commit(ctx context.Context, entry ir.PromptStateCache[S], expectedRevision int64) (ir.PromptStateCache[S], error) {
	unlock := e.locks.lock(entry.TaskID)
	defer unlock()

	latest, err := e.cache.GetCache(ctx, entry.TaskID)
	if err != nil {
		return ir.PromptStateCache[S]{}, fmt.Errorf("re-read cache: %w", err)
	}
	if revisionOf(latest) != expectedRevision {
		return ir.PromptStateCache[S]{}, fmt.Errorf("cache moved from revision %d to %d during replay: %w",
			expectedRevision, revisionOf(latest), store.ErrConcurrencyConflict)
	}

	entry.Revision, err = e.cache.PutCache(ctx, entry, expectedRevision)
	if err != nil {
		return ir.PromptStateCache[S]{}, fmt.Errorf("write cache: %w", err)
	}
	return entry, nil
}

// sameEntry reports whether a replayed entry matches the current one, in
// which case nothing needs to be written.
func sameEntry[S any](replayed, current ir.PromptStateCache[S]) (bool, error) {
	if replayed.LatestLogServerTimestamp != current.LatestLogServerTimestamp ||
		replayed.LatestLogID != current.LatestLogID {
		return false, nil
	}
	return sameState(current.State, replayed.State)
}

func revisionOf[S any](entry *ir.PromptStateCache[S]) int64 {
	if entry == nil {
		return 0
	}
	return entry.Revision
}
