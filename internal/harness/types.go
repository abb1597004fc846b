package harness

import (
	"github.com/roach88/reviewlog/internal/ir"
	"github.com/roach88/reviewlog/internal/scheduler"
)

// TraceEvent records one reconciliation within a run. Logs are referred to
// by their scenario names.
type TraceEvent struct {
	Log           string `json:"log"`
	Path          string `json:"path"`
	ServerSeconds int64  `json:"server_seconds"`
	LatestLog     string `json:"latest_log"`
	Revision      int64  `json:"revision"`
	Conflicts     int    `json:"conflicts,omitempty"`
}

// RunResult is the outcome of one arrival order.
type RunResult struct {
	// Order is the arrival order, by log name.
	Order []string `json:"order"`

	// Trace has one event per arrival.
	Trace []TraceEvent `json:"trace"`

	// Entry is the final cache entry.
	Entry ir.PromptStateCache[scheduler.State] `json:"entry"`

	// LatestLog is the name of Entry's latest log.
	LatestLog string `json:"latest_log"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all assertions hold for every run.
	Pass bool `json:"pass"`

	// Runs has one entry per arrival order.
	Runs []RunResult `json:"runs"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Runs:   []RunResult{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
