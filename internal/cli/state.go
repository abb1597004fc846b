package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/reviewlog/internal/ir"
	"github.com/roach88/reviewlog/internal/scheduler"
	"github.com/roach88/reviewlog/internal/store"
)

// StateOptions holds flags for the state command.
type StateOptions struct {
	*RootOptions
	DueBefore int64 // unix millis; 0 disables the filter
	DueNow    bool
	Limit     int
	After     string
}

// TaskState is one task's cached state as printed by the state command.
type TaskState struct {
	TaskID              string          `json:"task_id"`
	State               scheduler.State `json:"state"`
	LatestLogID         string          `json:"latest_log_id"`
	LatestServerSeconds int64           `json:"latest_server_seconds"`
	LatestServerNanos   int64           `json:"latest_server_nanos"`
	Revision            int64           `json:"revision"`
}

// StateResult holds the listed task states.
type StateResult struct {
	Tasks []TaskState `json:"tasks"`

	// Next is the task ID to pass to --after for the next page, empty on
	// the last page.
	Next string `json:"next,omitempty"`
}

// NewStateCommand creates the state command.
func NewStateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "state [task-id]",
		Short: "Show cached task state",
		Long: `Show the cached state of one task, or list task states ordered by task ID.

Examples:
  reviewlog state --db ./reviewlog.db 2b1f0c...
  reviewlog state --db ./reviewlog.db --due-now --limit 20
  reviewlog state --db ./reviewlog.db --after 2b1f0c... --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID := ""
			if len(args) == 1 {
				taskID = args[0]
			}
			return runState(cmd.Context(), opts, cmd, taskID)
		},
	}

	cmd.Flags().Int64Var(&opts.DueBefore, "due-before", 0, "only tasks due before this unix time in milliseconds")
	cmd.Flags().BoolVar(&opts.DueNow, "due-now", false, "only tasks that are due now")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of tasks to list")
	cmd.Flags().StringVar(&opts.After, "after", "", "list tasks after this task ID")
	cmd.MarkFlagsMutuallyExclusive("due-before", "due-now")

	return cmd
}

func runState(ctx context.Context, opts *StateOptions, cmd *cobra.Command, taskID string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := opts.formatter(cmd)

	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	if taskID != "" {
		entry, err := a.cache.GetCache(ctx, taskID)
		if err != nil {
			return out.Failure(ExitCommandError, "failed to read task state", err, nil, nil)
		}
		if entry == nil {
			return out.Failure(ExitFailure, "task not found",
				fmt.Errorf("task %s has no cached state", taskID), nil, nil)
		}
		result := StateResult{Tasks: []TaskState{taskStateOf(*entry)}}
		return out.Success(result, func(w io.Writer) { renderStateText(w, result) })
	}

	q := store.CacheQuery{
		Limit:           opts.Limit,
		AfterTaskID:     opts.After,
		DueBeforeMillis: opts.DueBefore,
	}
	if opts.DueNow {
		q.DueBeforeMillis = time.Now().UnixMilli()
	}

	entries, err := a.cache.ListCacheEntries(ctx, q)
	if err != nil {
		return out.Failure(ExitCommandError, "failed to list task states", err, nil, nil)
	}

	result := StateResult{Tasks: make([]TaskState, 0, len(entries))}
	for _, e := range entries {
		result.Tasks = append(result.Tasks, taskStateOf(e))
	}
	if opts.Limit > 0 && len(entries) == opts.Limit {
		result.Next = entries[len(entries)-1].TaskID
	}
	return out.Success(result, func(w io.Writer) { renderStateText(w, result) })
}

func taskStateOf(e ir.PromptStateCache[scheduler.State]) TaskState {
	return TaskState{
		TaskID:              e.TaskID,
		State:               e.State,
		LatestLogID:         e.LatestLogID,
		LatestServerSeconds: e.LatestLogServerTimestamp.Seconds,
		LatestServerNanos:   e.LatestLogServerTimestamp.Nanoseconds,
		Revision:            e.Revision,
	}
}

func renderStateText(w io.Writer, result StateResult) {
	if len(result.Tasks) == 0 {
		fmt.Fprintln(w, "No tasks found.")
		return
	}

	for _, t := range result.Tasks {
		s := t.State
		status := "active"
		switch {
		case s.Deleted:
			status = "deleted"
		case s.NeedsRetry:
			status = "retry"
		}
		fmt.Fprintf(w, "%s  %s  due %s  rung %d  reviews %d  lapses %d  (%s)\n",
			t.TaskID, status,
			time.UnixMilli(s.DueMillis).UTC().Format(time.RFC3339),
			s.LadderIndex, s.RepetitionCount, s.LapseCount, s.Policy)
	}
	if result.Next != "" {
		fmt.Fprintf(w, "\nMore tasks: --after %s\n", result.Next)
	}
}
