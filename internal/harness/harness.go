package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/reviewlog/internal/ir"
	"github.com/roach88/reviewlog/internal/reconcile"
	"github.com/roach88/reviewlog/internal/scheduler"
	"github.com/roach88/reviewlog/internal/store"
	"github.com/roach88/reviewlog/internal/testutil"
)

// Harness runs the arrival orders of one scenario.
type Harness struct {
	scenario *Scenario
	sched    reconcile.Scheduler[scheduler.State]
	logs     map[string]ir.ActionLog
	names    map[string]string
	logger   *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each arrival order runs in a fresh in-memory database. Every log is
// appended with its scenario server timestamp and reconciled immediately,
// the way a sync endpoint processes uploads.
//
// Execution flow:
// 1. Load policies and build the scheduler
// 2. Resolve log names to content-addressed logs
// 3. Run every arrival order
// 4. Evaluate assertions across the runs
func Run(scenario *Scenario) (*Result, error) {
	sched, err := buildScheduler(scenario)
	if err != nil {
		return nil, err
	}
	logs, names, err := buildLogs(scenario)
	if err != nil {
		return nil, err
	}

	h := &Harness{
		scenario: scenario,
		sched:    sched,
		logs:     logs,
		names:    names,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	ctx := context.Background()
	result := NewResult()
	for i, order := range scenario.orders() {
		run, err := h.runOrder(ctx, order)
		if err != nil {
			return nil, fmt.Errorf("arrival order %d: %w", i, err)
		}
		result.Runs = append(result.Runs, run)
	}

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}
	return result, nil
}

func buildScheduler(s *Scenario) (*scheduler.Dispatcher, error) {
	var policies []*scheduler.IntervalLadder
	if s.Policies != "" {
		loaded, err := scheduler.LoadPolicies(s.Policies)
		if err != nil {
			return nil, fmt.Errorf("load policies: %w", err)
		}
		policies = loaded
	}
	registry, err := scheduler.NewRegistry(policies...)
	if err != nil {
		return nil, err
	}
	policy := s.Policy
	if policy == "" {
		policy = scheduler.DefaultPolicyName
	}
	return scheduler.NewDispatcher(registry, policy)
}

// buildLogs converts log steps into identified action logs. It returns
// the logs by name and the names by ID.
func buildLogs(s *Scenario) (map[string]ir.ActionLog, map[string]string, error) {
	logs := make(map[string]ir.ActionLog, len(s.Logs))
	names := make(map[string]string, len(s.Logs))

	for _, step := range s.Logs {
		metadata, err := ir.ObjectFromMap(step.Metadata)
		if err != nil {
			return nil, nil, fmt.Errorf("log %q: metadata: %w", step.Name, err)
		}
		parents := make([]string, len(step.Parents))
		for i, p := range step.Parents {
			parents[i] = logs[p].ID
		}

		log := ir.ActionLog{
			Type:               step.Type,
			TaskID:             s.taskID(),
			ParentIDs:          parents,
			TimestampMillis:    step.TimestampMillis,
			Outcome:            step.Outcome,
			NewTimestampMillis: step.NewTimestampMillis,
			Metadata:           metadata,
			ServerTimestamp:    ir.ServerTimestamp{Seconds: step.ServerSeconds},
		}
		if errs := log.Validate(); len(errs) > 0 {
			return nil, nil, fmt.Errorf("log %q: %w", step.Name, errs[0])
		}
		log, err = log.WithID()
		if err != nil {
			return nil, nil, fmt.Errorf("log %q: %w", step.Name, err)
		}
		if other, ok := names[log.ID]; ok {
			return nil, nil, fmt.Errorf("log %q has the same content as %q", step.Name, other)
		}
		logs[step.Name] = log
		names[log.ID] = step.Name
	}
	return logs, names, nil
}

// runOrder appends and reconciles the logs in order against a fresh store.
func (h *Harness) runOrder(ctx context.Context, order []string) (RunResult, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return RunResult{}, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	cache := store.NewCacheStore[scheduler.State](st)
	eng := reconcile.New[scheduler.State](st, cache, h.sched,
		reconcile.WithBatchTokenGenerator(testutil.NewFixedBatchGenerator(h.scenario.BatchToken)),
	)

	run := RunResult{Order: slices.Clone(order), Trace: []TraceEvent{}}
	for _, name := range order {
		appended, err := st.AppendActionLog(ctx, h.logs[name])
		if err != nil {
			return RunResult{}, fmt.Errorf("append %q: %w", name, err)
		}
		u, err := eng.Reconcile(ctx, appended.Log)
		if err != nil {
			return RunResult{}, fmt.Errorf("reconcile %q: %w", name, err)
		}

		run.Trace = append(run.Trace, TraceEvent{
			Log:           name,
			Path:          string(u.Path),
			ServerSeconds: appended.Log.ServerTimestamp.Seconds,
			LatestLog:     h.names[u.Entry.LatestLogID],
			Revision:      u.Entry.Revision,
			Conflicts:     len(u.Conflicts),
		})
		h.logger.Info("log reconciled",
			"log", name,
			"path", string(u.Path),
			"revision", u.Entry.Revision,
		)
	}

	entry, err := cache.GetCache(ctx, h.scenario.taskID())
	if err != nil {
		return RunResult{}, err
	}
	if entry == nil {
		return RunResult{}, fmt.Errorf("no cache entry after %d logs", len(order))
	}
	run.Entry = *entry
	run.LatestLog = h.names[entry.LatestLogID]
	return run, nil
}
