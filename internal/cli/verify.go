package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Repair bool
}

// VerifyTaskResult holds the verification result for a single task.
type VerifyTaskResult struct {
	TaskID   string   `json:"task_id"`
	LogCount int      `json:"log_count"`
	OK       bool     `json:"ok"`
	Drift    []string `json:"drift,omitempty"`
	Repaired bool     `json:"repaired,omitempty"`
}

// VerifyResult holds the overall verification result.
type VerifyResult struct {
	Tasks      []VerifyTaskResult `json:"tasks"`
	TotalTasks int                `json:"total_tasks"`
	Drifted    int                `json:"drifted"`
	Repaired   int                `json:"repaired"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify [task-id...]",
		Short: "Verify cached task state against full replay",
		Long: `Recompute task state from each task's complete action log history and
compare it with the cached state. Without task IDs every task with logs is
checked.

With --repair, drifted entries are replaced by the replayed state.

Exit codes:
  0 - No drift, or all drift repaired
  1 - Drift detected and not repaired
  2 - Command error (database not found, etc.)

Examples:
  reviewlog verify --db ./reviewlog.db
  reviewlog verify --db ./reviewlog.db --repair 2b1f0c...`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd.Context(), opts, cmd, args)
		},
	}

	cmd.Flags().BoolVar(&opts.Repair, "repair", false, "rebuild drifted cache entries from history")

	return cmd
}

func runVerify(ctx context.Context, opts *VerifyOptions, cmd *cobra.Command, taskIDs []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := opts.formatter(cmd)

	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(taskIDs) == 0 {
		taskIDs, err = a.store.ListTaskIDs(ctx)
		if err != nil {
			return out.Failure(ExitCommandError, "failed to list tasks", err, nil, nil)
		}
	}

	result := VerifyResult{
		Tasks:      make([]VerifyTaskResult, 0, len(taskIDs)),
		TotalTasks: len(taskIDs),
	}
	for _, taskID := range taskIDs {
		vr, err := a.engine.Verify(ctx, taskID)
		if err != nil {
			return out.Failure(exitCodeFor(err), fmt.Sprintf("failed to verify task %s", taskID), err, nil, nil)
		}

		tr := VerifyTaskResult{TaskID: taskID, LogCount: vr.LogCount, OK: vr.OK(), Drift: vr.Drift}
		if !tr.OK {
			result.Drifted++
			// A cache entry without logs cannot be rebuilt.
			if opts.Repair && vr.LogCount > 0 {
				if _, err := a.engine.Rebuild(ctx, taskID); err != nil {
					return out.Failure(exitCodeFor(err), fmt.Sprintf("failed to repair task %s", taskID), err, nil, nil)
				}
				tr.Repaired = true
				result.Repaired++
			}
		}
		result.Tasks = append(result.Tasks, tr)
	}

	render := func(w io.Writer) { renderVerifyText(w, result, opts.Verbose) }
	if result.Drifted > result.Repaired {
		return out.Failure(ExitFailure, "cache drift detected",
			fmt.Errorf("%d of %d task(s) drifted from replay", result.Drifted-result.Repaired, result.TotalTasks),
			result, render)
	}
	return out.Success(result, render)
}

func renderVerifyText(w io.Writer, result VerifyResult, verbose bool) {
	if result.TotalTasks == 0 {
		fmt.Fprintln(w, "No tasks found in database.")
		return
	}

	fmt.Fprintf(w, "Verify Summary: %d task(s)\n\n", result.TotalTasks)
	for _, t := range result.Tasks {
		switch {
		case t.OK:
			if verbose {
				fmt.Fprintf(w, "✓ %s (%d logs)\n", t.TaskID, t.LogCount)
			}
			continue
		case t.Repaired:
			fmt.Fprintf(w, "↻ %s repaired\n", t.TaskID)
		default:
			fmt.Fprintf(w, "✗ %s\n", t.TaskID)
		}
		for _, d := range t.Drift {
			fmt.Fprintf(w, "  %s\n", d)
		}
	}

	if result.Drifted == 0 {
		fmt.Fprintln(w, "✓ All cached task state matches replay")
		return
	}
	if result.Drifted == result.Repaired {
		fmt.Fprintf(w, "✓ Repaired %d drifted task(s)\n", result.Repaired)
	}
}
