package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/roach88/reviewlog/internal/ir"
)

// LogResult is the outcome of one submitted log.
type LogResult[S any] struct {
	// Index is the log's position in the submission.
	Index int

	// Log is the stored log, with ID and server timestamp.
	Log ir.ActionLog

	// Status is Stored or AlreadyExists; empty when the append failed or
	// never ran.
	Status ir.AppendStatus

	// Update is set when the log was newly stored and reconciled.
	Update *Update[S]

	// Err is the failure for this log, if any.
	Err error
}

// IngestResult is the outcome of one submission.
type IngestResult[S any] struct {
	Batch   string
	Results []LogResult[S]
}

// Stored returns how many logs were newly stored.
func (r IngestResult[S]) Stored() int {
	n := 0
	for _, lr := range r.Results {
		if lr.Status == ir.Stored {
			n++
		}
	}
	return n
}

// Ingest appends logs and reconciles every newly stored one.
//
// All logs are validated before anything is stored; one invalid log
// rejects the whole submission with a VALIDATION error. Logs of the same
// task are appended and reconciled in submission order. Different tasks
// run in parallel, bounded by WithMaxConcurrentTasks. A failure stops the
// remaining logs of that task only; the first failure is returned along
// with the per-log results.
//
// A log that already exists is reconciled again unless it is the latest
// log of its task's cache entry, so a resubmission repairs a reconciliation
// that failed after the append. Re-reconciling an older duplicate replays
// the task and writes nothing when the state is unchanged.
func (e *Engine[S]) Ingest(ctx context.Context, logs []ir.ActionLog) (IngestResult[S], error) {
	prepared := make([]ir.ActionLog, len(logs))
	for i, log := range logs {
		if errs := log.Validate(); len(errs) > 0 {
			return IngestResult[S]{}, NewValidationError(log, i, errs)
		}
		withID, err := log.WithID()
		if err != nil {
			return IngestResult[S]{}, classify(fmt.Errorf("log %d: %w", i, err), log.TaskID, log.ID)
		}
		prepared[i] = withID
	}

	res := IngestResult[S]{
		Batch:   e.batchGen.Generate(),
		Results: make([]LogResult[S], len(prepared)),
	}
	for i, log := range prepared {
		res.Results[i] = LogResult[S]{Index: i, Log: log}
	}

	byTask := make(map[string][]int)
	var order []string
	for i, log := range prepared {
		if _, ok := byTask[log.TaskID]; !ok {
			order = append(order, log.TaskID)
		}
		byTask[log.TaskID] = append(byTask[log.TaskID], i)
	}

	sem := semaphore.NewWeighted(e.maxConcurrentTasks)
	var g errgroup.Group
	for _, taskID := range order {
		indexes := byTask[taskID]
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				err = classify(err, taskID, "")
				for _, i := range indexes {
					res.Results[i].Err = err
				}
				return err
			}
			defer sem.Release(1)
			return e.ingestTask(ctx, res.Batch, indexes, res.Results)
		})
	}
	err := g.Wait()

	slog.Info("ingested action logs",
		"batch", res.Batch,
		"submitted", len(prepared),
		"stored", res.Stored(),
		"tasks", len(order),
	)
	return res, err
}

// ingestTask processes one task's logs in order. Each goroutine writes only
// its own task's entries of results.
func (e *Engine[S]) ingestTask(ctx context.Context, batch string, indexes []int, results []LogResult[S]) error {
	for n, i := range indexes {
		log := results[i].Log

		appended, err := e.logs.AppendActionLog(ctx, log)
		if err != nil {
			err = classify(fmt.Errorf("append: %w", err), log.TaskID, log.ID)
			results[i].Err = err
			skipRemaining(results, indexes[n+1:], log.ID, err)
			return err
		}
		results[i].Log = appended.Log
		results[i].Status = appended.Status

		if appended.Status == ir.AlreadyExists {
			covered, err := e.covers(ctx, appended.Log)
			if err != nil {
				results[i].Err = err
				skipRemaining(results, indexes[n+1:], log.ID, err)
				return err
			}
			if covered {
				slog.Debug("action log already reconciled, skipping",
					"task_id", log.TaskID,
					"log_id", log.ID,
				)
				continue
			}
		}

		u, err := e.reconcile(ctx, appended.Log, batch)
		if err != nil {
			results[i].Err = err
			skipRemaining(results, indexes[n+1:], log.ID, err)
			return err
		}
		results[i].Update = &u
	}
	return nil
}

// covers reports whether log is the latest log of its task's cache entry,
// which proves it was folded in.
func (e *Engine[S]) covers(ctx context.Context, log ir.ActionLog) (bool, error) {
	current, err := e.cache.GetCache(ctx, log.TaskID)
	if err != nil {
		return false, classify(fmt.Errorf("read cache: %w", err), log.TaskID, log.ID)
	}
	return current != nil && current.LatestLogID == log.ID, nil
}

// skipRemaining marks logs that were never attempted with the code of the
// failure that stopped their task.
func skipRemaining[S any](results []LogResult[S], indexes []int, failedID string, cause error) {
	code := ErrCodeStorageUnavailable
	var re *Error
	if errors.As(cause, &re) {
		code = re.Code
	}
	for _, i := range indexes {
		results[i].Err = &Error{
			Code:    code,
			Message: fmt.Sprintf("not attempted: earlier log %s of the task failed", failedID),
			TaskID:  results[i].Log.TaskID,
			LogID:   results[i].Log.ID,
			Err:     cause,
		}
	}
}

// RecordEmbeddedActions stores prompts submitted alongside logs, then
// ingests the logs.
//
// promptsByID maps client-computed prompt IDs to prompts. Each ID must
// equal the server-computed one; a mismatch (usually a client running a
// different hashing version) rejects the submission before anything is
// stored.
func (e *Engine[S]) RecordEmbeddedActions(
	ctx context.Context,
	prompts PromptStore,
	promptsByID map[string]ir.Prompt,
	logs []ir.ActionLog,
) (IngestResult[S], error) {
	ids := make([]string, 0, len(promptsByID))
	for id := range promptsByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	batch := make([]ir.Prompt, len(ids))
	var mismatched []string
	for i, id := range ids {
		p := promptsByID[id]
		if errs := p.Validate(); len(errs) > 0 {
			return IngestResult[S]{}, &Error{
				Code:    ErrCodeValidation,
				Message: fmt.Sprintf("invalid prompt %s: %s", id, errs[0].Error()),
			}
		}
		computed, err := ir.PromptID(p)
		if err != nil {
			return IngestResult[S]{}, classify(err, "", "")
		}
		if computed != id {
			mismatched = append(mismatched, id)
		}
		batch[i] = p
	}
	if len(mismatched) > 0 {
		return IngestResult[S]{}, mismatchError(mismatched)
	}

	if len(batch) > 0 {
		stored, err := prompts.StorePrompts(ctx, batch)
		if err != nil {
			return IngestResult[S]{}, classify(fmt.Errorf("store prompts: %w", err), "", "")
		}
		for i, id := range stored {
			if id != ids[i] {
				mismatched = append(mismatched, ids[i])
			}
		}
		if len(mismatched) > 0 {
			return IngestResult[S]{}, mismatchError(mismatched)
		}
	}

	return e.Ingest(ctx, logs)
}

func mismatchError(ids []string) *Error {
	return &Error{
		Code:    ErrCodeDataIntegrity,
		Message: "prompts don't match their IDs (server/client version mismatch?)",
		Details: map[string]string{"prompt_ids": strings.Join(ids, ",")},
	}
}
