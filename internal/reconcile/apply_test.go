package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reviewlog/internal/ir"
)

func fetchOf(logs ...ir.ActionLog) HistoryFetcherFunc {
	return func(ctx context.Context, taskID string) ([]ir.ActionLog, error) {
		return logs, nil
	}
}

func failFetch(t *testing.T) HistoryFetcherFunc {
	return func(ctx context.Context, taskID string) ([]ir.ActionLog, error) {
		t.Fatal("history fetch on a non-replay path")
		return nil, nil
	}
}

func TestDecide(t *testing.T) {
	cached := &ir.PromptStateCache[trace]{TaskID: "task-a", LatestLogServerTimestamp: ir.ServerTimestamp{Seconds: 1000, Nanoseconds: 5}}

	tests := []struct {
		name    string
		ts      ir.ServerTimestamp
		current *ir.PromptStateCache[trace]
		want    Path
	}{
		{"no entry", ts(1), nil, PathInitial},
		{"newer seconds", ts(1001), cached, PathIncremental},
		{"newer nanos", ir.ServerTimestamp{Seconds: 1000, Nanoseconds: 6}, cached, PathIncremental},
		{"equal", ir.ServerTimestamp{Seconds: 1000, Nanoseconds: 5}, cached, PathReplay},
		{"older nanos", ir.ServerTimestamp{Seconds: 1000, Nanoseconds: 4}, cached, PathReplay},
		{"older seconds", ts(999), cached, PathReplay},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := ir.ActionLog{TaskID: "task-a", ServerTimestamp: tt.ts}
			assert.Equal(t, tt.want, Decide(log, tt.current))
		})
	}
}

func TestApply_Initial(t *testing.T) {
	l1 := mkLog(t, "task-a", 1, 1000)

	entry, path, err := Apply(context.Background(), traceScheduler, l1, nil, failFetch(t))
	require.NoError(t, err)

	assert.Equal(t, PathInitial, path)
	assert.Equal(t, "task-a", entry.TaskID)
	assert.Equal(t, trace{1}, entry.State)
	assert.Equal(t, ts(1000), entry.LatestLogServerTimestamp)
	assert.Equal(t, l1.ID, entry.LatestLogID)
	assert.Zero(t, entry.Revision)
}

func TestApply_Incremental(t *testing.T) {
	l1 := mkLog(t, "task-a", 1, 1000)
	l2 := mkLog(t, "task-a", 2, 2000)
	current := &ir.PromptStateCache[trace]{
		TaskID:                   "task-a",
		State:                    trace{1},
		LatestLogServerTimestamp: ts(1000),
		LatestLogID:              l1.ID,
		Revision:                 3,
	}

	entry, path, err := Apply(context.Background(), traceScheduler, l2, current, failFetch(t))
	require.NoError(t, err)

	assert.Equal(t, PathIncremental, path)
	assert.Equal(t, trace{1, 2}, entry.State)
	assert.Equal(t, ts(2000), entry.LatestLogServerTimestamp)
	assert.Equal(t, l2.ID, entry.LatestLogID)
	assert.Equal(t, int64(3), entry.Revision)
	assert.Equal(t, trace{1}, current.State, "prior state must not be modified")
}

// A log older than the cache is replayed from history, and the latest
// timestamp does not move backwards.
func TestApply_ReplayOutOfOrderLog(t *testing.T) {
	l1 := mkLog(t, "task-a", 1, 1000)
	l3 := mkLog(t, "task-a", 3, 500)
	current := &ir.PromptStateCache[trace]{
		TaskID:                   "task-a",
		State:                    trace{1},
		LatestLogServerTimestamp: ts(1000),
		LatestLogID:              l1.ID,
	}

	entry, path, err := Apply(context.Background(), traceScheduler, l3, current, fetchOf(l3, l1))
	require.NoError(t, err)

	assert.Equal(t, PathReplay, path)
	assert.Equal(t, ts(1000), entry.LatestLogServerTimestamp)
	assert.Equal(t, l1.ID, entry.LatestLogID)

	want, _, _ := Fold(traceScheduler, []ir.ActionLog{l1, l3})
	assert.Equal(t, want, entry.State)
	assert.Equal(t, trace{3, 1}, entry.State)
}

func TestApply_EqualTimestampReplays(t *testing.T) {
	l1 := mkLog(t, "task-a", 1, 1000)
	current := &ir.PromptStateCache[trace]{
		TaskID:                   "task-a",
		State:                    trace{1},
		LatestLogServerTimestamp: ts(1000),
		LatestLogID:              l1.ID,
	}

	var calls int
	fetcher := HistoryFetcherFunc(func(ctx context.Context, taskID string) ([]ir.ActionLog, error) {
		calls++
		return []ir.ActionLog{l1}, nil
	})

	entry, path, err := Apply(context.Background(), traceScheduler, l1, current, fetcher)
	require.NoError(t, err)
	assert.Equal(t, PathReplay, path)
	assert.Equal(t, 1, calls)
	assert.Equal(t, trace{1}, entry.State)
	assert.Equal(t, ts(1000), entry.LatestLogServerTimestamp)
}

// The fetch may miss the triggering log; it is folded in anyway.
func TestApply_ReplayIncludesTriggeringLog(t *testing.T) {
	l1 := mkLog(t, "task-a", 1, 1000)
	l2 := mkLog(t, "task-a", 2, 2000)
	l3 := mkLog(t, "task-a", 3, 1500)
	current := &ir.PromptStateCache[trace]{
		TaskID:                   "task-a",
		State:                    trace{1, 2},
		LatestLogServerTimestamp: ts(2000),
		LatestLogID:              l2.ID,
	}

	entry, _, err := Apply(context.Background(), traceScheduler, l3, current, fetchOf(l1, l2))
	require.NoError(t, err)
	assert.Equal(t, trace{1, 3, 2}, entry.State)
	assert.Equal(t, ts(2000), entry.LatestLogServerTimestamp)
	assert.Equal(t, l2.ID, entry.LatestLogID)
}

func TestApply_ReplayFetchFailure(t *testing.T) {
	l1 := mkLog(t, "task-a", 1, 1000)
	current := &ir.PromptStateCache[trace]{TaskID: "task-a", LatestLogServerTimestamp: ts(2000)}

	fetcher := HistoryFetcherFunc(func(ctx context.Context, taskID string) ([]ir.ActionLog, error) {
		return nil, errors.New("connection reset")
	})
	_, path, err := Apply(context.Background(), traceScheduler, l1, current, fetcher)
	assert.Equal(t, PathReplay, path)
	assert.True(t, IsStorageUnavailable(err))
	assert.ErrorContains(t, err, "connection reset")
}

func TestApply_ReplayWithoutFetcher(t *testing.T) {
	l1 := mkLog(t, "task-a", 1, 1000)
	current := &ir.PromptStateCache[trace]{TaskID: "task-a", LatestLogServerTimestamp: ts(2000)}

	_, _, err := Apply[trace](context.Background(), traceScheduler, l1, current, nil)
	assert.True(t, IsStorageUnavailable(err))
}

func TestApply_TaskMismatch(t *testing.T) {
	l1 := mkLog(t, "task-a", 1, 1000)
	current := &ir.PromptStateCache[trace]{TaskID: "task-b"}

	_, _, err := Apply(context.Background(), traceScheduler, l1, current, failFetch(t))
	assert.True(t, IsValidationError(err))
}

func TestApply_HistoryFromAnotherTask(t *testing.T) {
	l1 := mkLog(t, "task-a", 1, 1000)
	foreign := mkLog(t, "task-b", 2, 900)
	current := &ir.PromptStateCache[trace]{TaskID: "task-a", LatestLogServerTimestamp: ts(2000)}

	_, _, err := Apply(context.Background(), traceScheduler, l1, current, fetchOf(foreign))
	assert.True(t, IsDataIntegrityError(err))
}

func TestFold(t *testing.T) {
	l1 := mkLog(t, "task-a", 1, 100)
	l2 := mkLog(t, "task-a", 2, 200)
	l3 := mkLog(t, "task-a", 3, 300)

	state, latest, latestID := Fold(traceScheduler, []ir.ActionLog{l3, l1, l2})
	assert.Equal(t, trace{1, 2, 3}, state)
	assert.Equal(t, ts(300), latest)
	assert.Equal(t, l3.ID, latestID)
}

func TestFold_TiesBrokenByID(t *testing.T) {
	a := mkLog(t, "task-a", 1, 100)
	b := mkLog(t, "task-a", 2, 100)
	first, second := a, b
	if b.ID < a.ID {
		first, second = b, a
	}

	state, _, latestID := Fold(traceScheduler, []ir.ActionLog{second, first})
	assert.Equal(t, trace{first.TimestampMillis, second.TimestampMillis}, state)
	assert.Equal(t, second.ID, latestID)
}

func TestFold_Empty(t *testing.T) {
	state, latest, latestID := Fold(traceScheduler, nil)
	assert.Nil(t, state)
	assert.True(t, latest.IsZero())
	assert.Empty(t, latestID)
}
