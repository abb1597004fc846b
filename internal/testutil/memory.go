package testutil

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/reviewlog/internal/ir"
	"github.com/roach88/reviewlog/internal/store"
)

// MemoryLogStore is an in-memory action log store with the same contract
// as store.Store: content-addressed dedup, parent checks, and server
// timestamps from a DeterministicClock.
//
// Thread-safety: MemoryLogStore is safe for concurrent use. Hooks run with
// the store unlocked.
type MemoryLogStore struct {
	mu      sync.Mutex
	clock   *DeterministicClock
	logs    map[string]ir.ActionLog
	content map[string]string
	byTask  map[string][]string

	fetchCalls int

	// FetchErr, when set, is returned by every FetchActionLogs call.
	FetchErr error

	// OnFetch, when set, runs at the start of FetchActionLogs. A non-nil
	// error is returned to the caller. Tests use it to block a replay or to
	// interleave writes.
	OnFetch func(ctx context.Context, taskID string) error
}

// NewMemoryLogStore creates an empty store. A nil clock gets a fresh
// DeterministicClock.
func NewMemoryLogStore(clock *DeterministicClock) *MemoryLogStore {
	if clock == nil {
		clock = NewDeterministicClock()
	}
	return &MemoryLogStore{
		clock:   clock,
		logs:    make(map[string]ir.ActionLog),
		content: make(map[string]string),
		byTask:  make(map[string][]string),
	}
}

// AppendActionLog stores log unless its ID is already present.
func (m *MemoryLogStore) AppendActionLog(_ context.Context, log ir.ActionLog) (ir.AppendResult, error) {
	log, err := log.WithID()
	if err != nil {
		return ir.AppendResult{}, err
	}
	content, err := ir.ActionLogContent(log)
	if err != nil {
		return ir.AppendResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.content[log.ID]; ok {
		if existing != string(content) {
			return ir.AppendResult{}, fmt.Errorf("append %s: %w", log.ID, store.ErrDataIntegrity)
		}
		return ir.AppendResult{Status: ir.AlreadyExists, Log: m.logs[log.ID]}, nil
	}

	for _, p := range log.ParentIDs {
		parent, ok := m.logs[p]
		if !ok || parent.TaskID != log.TaskID {
			return ir.AppendResult{}, fmt.Errorf("append %s: parent %s: %w", log.ID, p, store.ErrDataIntegrity)
		}
	}

	if log.ServerTimestamp.IsZero() {
		log.ServerTimestamp = m.clock.Next()
	} else {
		m.clock.Observe(log.ServerTimestamp)
	}
	for _, id := range m.byTask[log.TaskID] {
		if m.logs[id].ServerTimestamp == log.ServerTimestamp {
			return ir.AppendResult{}, fmt.Errorf("append %s: timestamp %s reused: %w", log.ID, log.ServerTimestamp, store.ErrDataIntegrity)
		}
	}

	if log.ParentIDs == nil {
		log.ParentIDs = []string{}
	}
	m.logs[log.ID] = log
	m.content[log.ID] = string(content)
	m.byTask[log.TaskID] = append(m.byTask[log.TaskID], log.ID)
	return ir.AppendResult{Status: ir.Stored, Log: log}, nil
}

// FetchActionLogs returns a task's logs in server timestamp order.
func (m *MemoryLogStore) FetchActionLogs(ctx context.Context, taskID string) ([]ir.ActionLog, error) {
	m.mu.Lock()
	m.fetchCalls++
	hook, fetchErr := m.OnFetch, m.FetchErr
	m.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, taskID); err != nil {
			return nil, err
		}
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedLocked(m.byTask[taskID]), nil
}

// FindSiblings returns the other logs of the task with the same parent set.
func (m *MemoryLogStore) FindSiblings(_ context.Context, taskID string, parentIDs []string, excludeID string) ([]ir.ActionLog, error) {
	probe := ir.ActionLog{ParentIDs: parentIDs}

	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for _, id := range m.byTask[taskID] {
		if id != excludeID && ir.SameParents(probe, m.logs[id]) {
			ids = append(ids, id)
		}
	}
	return m.sortedLocked(ids), nil
}

// FetchCalls returns how many times FetchActionLogs was called.
func (m *MemoryLogStore) FetchCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchCalls
}

// Len returns the number of stored logs.
func (m *MemoryLogStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.logs)
}

// TaskIDs returns every task with logs, sorted.
func (m *MemoryLogStore) TaskIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.byTask))
	for id := range m.byTask {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *MemoryLogStore) sortedLocked(ids []string) []ir.ActionLog {
	out := make([]ir.ActionLog, 0, len(ids))
	for _, id := range ids {
		log := m.logs[id]
		log.ParentIDs = slices.Clone(log.ParentIDs)
		out = append(out, log)
	}
	slices.SortFunc(out, func(a, b ir.ActionLog) int {
		if c := a.ServerTimestamp.Compare(b.ServerTimestamp); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// MemoryCacheStore is an in-memory prompt state cache with conditional
// writes, matching store.CacheStore.
//
// Thread-safety: MemoryCacheStore is safe for concurrent use. Hooks run
// with the store unlocked.
type MemoryCacheStore[S any] struct {
	mu      sync.Mutex
	entries map[string]ir.PromptStateCache[S]
	puts    int

	// GetErr and PutErr, when set, fail every GetCache or PutCache call.
	GetErr error
	PutErr error

	// BeforePut, when set, runs before each conditional write. Tests use it
	// to slip a competing write in between read and write.
	BeforePut func(taskID string)
}

// NewMemoryCacheStore creates an empty cache store.
func NewMemoryCacheStore[S any]() *MemoryCacheStore[S] {
	return &MemoryCacheStore[S]{entries: make(map[string]ir.PromptStateCache[S])}
}

// GetCache returns a copy of the task's entry, or nil.
func (m *MemoryCacheStore[S]) GetCache(_ context.Context, taskID string) (*ir.PromptStateCache[S], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	entry, ok := m.entries[taskID]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// PutCache writes entry iff the stored revision equals expectedRevision.
func (m *MemoryCacheStore[S]) PutCache(_ context.Context, entry ir.PromptStateCache[S], expectedRevision int64) (int64, error) {
	m.mu.Lock()
	hook := m.BeforePut
	m.mu.Unlock()
	if hook != nil {
		hook(entry.TaskID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PutErr != nil {
		return 0, m.PutErr
	}

	var current int64
	if existing, ok := m.entries[entry.TaskID]; ok {
		current = existing.Revision
	}
	if current != expectedRevision {
		return 0, fmt.Errorf("put %s: have revision %d, expected %d: %w",
			entry.TaskID, current, expectedRevision, store.ErrConcurrencyConflict)
	}

	entry.Revision = expectedRevision + 1
	m.entries[entry.TaskID] = entry
	m.puts++
	return entry.Revision, nil
}

// Set stores entry unconditionally, keeping its Revision. For seeding.
func (m *MemoryCacheStore[S]) Set(entry ir.PromptStateCache[S]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.TaskID] = entry
}

// Puts returns the number of successful writes.
func (m *MemoryCacheStore[S]) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}
