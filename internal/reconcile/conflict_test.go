package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reviewlog/internal/ir"
)

func TestContradicts(t *testing.T) {
	parents := []string{"p1"}
	rep := func(o ir.RepetitionOutcome) ir.ActionLog {
		return ir.ActionLog{Type: ir.RepetitionActionLogType, ParentIDs: parents, Outcome: o}
	}
	resched := func(at int64) ir.ActionLog {
		return ir.ActionLog{Type: ir.RescheduleActionLogType, ParentIDs: parents, NewTimestampMillis: at}
	}
	del := ir.ActionLog{Type: ir.DeleteActionLogType, ParentIDs: parents}
	meta := ir.ActionLog{Type: ir.UpdateMetadataActionLogType, ParentIDs: parents}

	tests := []struct {
		name string
		a, b ir.ActionLog
		want bool
	}{
		{"same outcome", rep(ir.Remembered), rep(ir.Remembered), false},
		{"different outcomes", rep(ir.Remembered), rep(ir.Forgotten), true},
		{"same reschedule", resched(100), resched(100), false},
		{"different reschedules", resched(100), resched(200), true},
		{"delete and repetition", del, rep(ir.Remembered), true},
		{"repetition and delete", rep(ir.Skipped), del, true},
		{"two deletes", del, del, false},
		{"metadata and repetition", meta, rep(ir.Remembered), false},
		{"different parents", rep(ir.Remembered), ir.ActionLog{Type: ir.RepetitionActionLogType, ParentIDs: []string{"p2"}, Outcome: ir.Forgotten}, false},
		{"roots", ir.ActionLog{Type: ir.RepetitionActionLogType, Outcome: ir.Remembered}, ir.ActionLog{Type: ir.RepetitionActionLogType, Outcome: ir.Forgotten}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, got := Contradicts(tt.a, tt.b)
			assert.Equal(t, tt.want, got)
			if got {
				assert.NotEmpty(t, reason)
			}
		})
	}
}

func TestEngine_DetectsConflictingSiblings(t *testing.T) {
	env := newTestEnv(t)
	root := env.arrive(t, mkLog(t, "task-a", 1, 100))

	remembered := mkLog(t, "task-a", 2, 200, root.Log.ID)
	u := env.arrive(t, remembered)
	assert.Empty(t, u.Conflicts)
	assert.NoError(t, u.ConflictError())

	forgotten, err := ir.ActionLog{
		Type:            ir.RepetitionActionLogType,
		TaskID:          "task-a",
		ParentIDs:       []string{root.Log.ID},
		TimestampMillis: 3,
		Outcome:         ir.Forgotten,
		ServerTimestamp: ts(300),
	}.WithID()
	require.NoError(t, err)

	u = env.arrive(t, forgotten)
	require.Len(t, u.Conflicts, 1)
	c := u.Conflicts[0]
	assert.Equal(t, forgotten.ID, c.LogID)
	assert.Equal(t, remembered.ID, c.SiblingID)
	assert.Equal(t, []string{root.Log.ID}, c.ParentIDs)

	err = u.ConflictError()
	assert.True(t, IsConflictingUpdate(err))
	assert.False(t, IsRetryable(err))

	// The cache still follows server timestamp order.
	assert.Equal(t, trace{1, 2, 3}, u.Entry.State)
}

func TestEngine_ConflictDetectionDisabled(t *testing.T) {
	env := newTestEnv(t, WithoutConflictDetection())
	root := env.arrive(t, mkLog(t, "task-a", 1, 100))
	env.arrive(t, mkLog(t, "task-a", 2, 200, root.Log.ID))

	del, err := ir.ActionLog{
		Type:            ir.DeleteActionLogType,
		TaskID:          "task-a",
		ParentIDs:       []string{root.Log.ID},
		TimestampMillis: 3,
		ServerTimestamp: ts(300),
	}.WithID()
	require.NoError(t, err)

	u := env.arrive(t, del)
	assert.Empty(t, u.Conflicts)
}

type failingFinder struct{}

func (failingFinder) FindSiblings(context.Context, string, []string, string) ([]ir.ActionLog, error) {
	return nil, assert.AnError
}

func TestDetectConflicts_LookupFailure(t *testing.T) {
	log := mkLog(t, "task-a", 2, 200, "p1")
	assert.Nil(t, detectConflicts(context.Background(), failingFinder{}, log))
	assert.Nil(t, detectConflicts(context.Background(), nil, log))
}
