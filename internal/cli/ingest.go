package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/reviewlog/internal/ir"
	"github.com/roach88/reviewlog/internal/reconcile"
	"github.com/roach88/reviewlog/internal/scheduler"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
}

// batchFile is the on-disk form of one submission. JSON files parse too,
// since YAML is a superset of JSON.
type batchFile struct {
	Prompts map[string]batchPrompt `yaml:"prompts"`
	Logs    []batchLog             `yaml:"logs"`
}

type batchPrompt struct {
	Type ir.PromptType  `yaml:"prompt_type"`
	Body map[string]any `yaml:"body"`
}

type batchLog struct {
	ir.ActionLog `yaml:",inline"`
	Metadata     map[string]any `yaml:"metadata"`
}

// IngestLogResult is the outcome of one submitted log.
type IngestLogResult struct {
	Index     int    `json:"index"`
	TaskID    string `json:"task_id"`
	LogID     string `json:"log_id"`
	Status    string `json:"status"` // "stored", "alreadyExists", "failed" or "skipped"
	Path      string `json:"path,omitempty"`
	Conflicts int    `json:"conflicts,omitempty"`
	Error     string `json:"error,omitempty"`
}

// IngestResult summarizes one ingest run.
type IngestResult struct {
	Batch         string            `json:"batch"`
	Prompts       int               `json:"prompts"`
	Submitted     int               `json:"submitted"`
	Stored        int               `json:"stored"`
	AlreadyExists int               `json:"already_exists"`
	Failed        int               `json:"failed"`
	Logs          []IngestLogResult `json:"logs"`
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Append action logs and update task state",
		Long: `Append the action logs in a YAML or JSON batch file and reconcile the
state of every affected task.

The file may embed the prompts the logs refer to, keyed by their
content-addressed IDs. Every ID is checked against the server's own hash
before anything is stored.

  prompts:
    <prompt id>:
      prompt_type: qaPrompt
      body: {question: ..., answer: ...}
  logs:
    - action_log_type: ingest
      task_id: <task id>
      parent_action_log_ids: []
      timestamp_millis: 1700000000000

Exit codes:
  0 - All logs stored or already present
  1 - The batch was rejected or some logs failed
  2 - Command error (unreadable file, database error, etc.)

Examples:
  reviewlog ingest --db ./reviewlog.db batch.yaml
  reviewlog ingest --config reviewlog.yaml --format json batch.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), opts, cmd, args[0])
		},
	}

	return cmd
}

func runIngest(ctx context.Context, opts *IngestOptions, cmd *cobra.Command, path string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := opts.formatter(cmd)

	prompts, logs, err := loadBatchFile(path)
	if err != nil {
		return out.Failure(ExitFailure, "failed to load batch file", err, nil, nil)
	}

	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	res, ingestErr := a.engine.RecordEmbeddedActions(ctx, a.store, prompts, logs)
	result := summarizeIngest(res, len(prompts), len(logs))
	render := func(w io.Writer) { renderIngestText(w, result, opts.Verbose) }

	if ingestErr != nil {
		return out.Failure(exitCodeFor(ingestErr), "ingest failed", ingestErr, result, render)
	}
	return out.Success(result, render)
}

// loadBatchFile decodes a batch file into prompts and action logs.
func loadBatchFile(path string) (map[string]ir.Prompt, []ir.ActionLog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}

	var file batchFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}

	prompts := make(map[string]ir.Prompt, len(file.Prompts))
	for id, p := range file.Prompts {
		body, err := ir.ObjectFromMap(p.Body)
		if err != nil {
			return nil, nil, fmt.Errorf("prompt %s: body: %w", id, err)
		}
		prompts[id] = ir.Prompt{Type: p.Type, Body: body}
	}

	logs := make([]ir.ActionLog, len(file.Logs))
	for i, l := range file.Logs {
		metadata, err := ir.ObjectFromMap(l.Metadata)
		if err != nil {
			return nil, nil, fmt.Errorf("log %d: metadata: %w", i, err)
		}
		log := l.ActionLog
		log.Metadata = metadata
		if log.ParentIDs == nil {
			log.ParentIDs = []string{}
		}
		logs[i] = log
	}
	return prompts, logs, nil
}

func summarizeIngest(res reconcile.IngestResult[scheduler.State], prompts, submitted int) IngestResult {
	out := IngestResult{
		Batch:     res.Batch,
		Prompts:   prompts,
		Submitted: submitted,
		Logs:      make([]IngestLogResult, 0, len(res.Results)),
	}
	for _, lr := range res.Results {
		r := IngestLogResult{
			Index:  lr.Index,
			TaskID: lr.Log.TaskID,
			LogID:  lr.Log.ID,
			Status: string(lr.Status),
		}
		switch {
		case lr.Err != nil:
			r.Status = "failed"
			r.Error = lr.Err.Error()
			out.Failed++
		case lr.Status == ir.Stored:
			out.Stored++
		case lr.Status == ir.AlreadyExists:
			out.AlreadyExists++
		default:
			r.Status = "skipped"
		}
		if lr.Update != nil {
			r.Path = string(lr.Update.Path)
			r.Conflicts = len(lr.Update.Conflicts)
		}
		out.Logs = append(out.Logs, r)
	}
	return out
}

func renderIngestText(w io.Writer, result IngestResult, verbose bool) {
	if result.Batch == "" {
		return
	}
	fmt.Fprintf(w, "Batch %s: %d submitted, %d stored, %d already present, %d failed\n",
		result.Batch, result.Submitted, result.Stored, result.AlreadyExists, result.Failed)

	for _, r := range result.Logs {
		switch {
		case r.Error != "":
			fmt.Fprintf(w, "  ✗ [%d] %s: %s\n", r.Index, r.LogID, r.Error)
		case r.Conflicts > 0:
			fmt.Fprintf(w, "  ! [%d] %s conflicts with %d sibling(s)\n", r.Index, r.LogID, r.Conflicts)
		case verbose:
			fmt.Fprintf(w, "  ✓ [%d] %s %s (task %s, %s)\n", r.Index, r.LogID, r.Status, r.TaskID, r.Path)
		}
	}
}
