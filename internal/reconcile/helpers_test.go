package reconcile

import (
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/reviewlog/internal/ir"
	"github.com/roach88/reviewlog/internal/testutil"
)

// trace records the client timestamps of the logs folded into it, in fold
// order. Distinct logs in these tests carry distinct client timestamps.
type trace []int64

var traceScheduler = SchedulerFunc[trace](func(prior *trace, log ir.ActionLog) trace {
	var out trace
	if prior != nil {
		out = slices.Clone(*prior)
	}
	return append(out, log.TimestampMillis)
})

// mkLog builds a remembered repetition with its ID and server timestamp set.
func mkLog(t *testing.T, taskID string, clientMillis, serverSeconds int64, parents ...string) ir.ActionLog {
	t.Helper()
	if parents == nil {
		parents = []string{}
	}
	log, err := ir.ActionLog{
		Type:            ir.RepetitionActionLogType,
		TaskID:          taskID,
		ParentIDs:       parents,
		TimestampMillis: clientMillis,
		Outcome:         ir.Remembered,
	}.WithID()
	require.NoError(t, err)
	log.ServerTimestamp = ir.ServerTimestamp{Seconds: serverSeconds}
	return log
}

func ts(seconds int64) ir.ServerTimestamp {
	return ir.ServerTimestamp{Seconds: seconds}
}

type testEnv struct {
	logs  *testutil.MemoryLogStore
	cache *testutil.MemoryCacheStore[trace]
	eng   *Engine[trace]
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	logs := testutil.NewMemoryLogStore(nil)
	cache := testutil.NewMemoryCacheStore[trace]()
	opts = append([]Option{WithBatchTokenGenerator(testutil.NewFixedBatchGenerator(""))}, opts...)
	return &testEnv{
		logs:  logs,
		cache: cache,
		eng:   New[trace](logs, cache, traceScheduler, opts...),
	}
}

// arrive appends log and reconciles it, as a sync endpoint would.
func (env *testEnv) arrive(t *testing.T, log ir.ActionLog) Update[trace] {
	t.Helper()
	res, err := env.logs.AppendActionLog(context.Background(), log)
	require.NoError(t, err)
	u, err := env.eng.Reconcile(context.Background(), res.Log)
	require.NoError(t, err)
	return u
}

func (env *testEnv) entry(t *testing.T, taskID string) *ir.PromptStateCache[trace] {
	t.Helper()
	e, err := env.cache.GetCache(context.Background(), taskID)
	require.NoError(t, err)
	return e
}
