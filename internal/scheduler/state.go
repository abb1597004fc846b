package scheduler

import "github.com/roach88/reviewlog/internal/ir"

// State is the derived scheduling state of one task.
type State struct {
	// Policy names the policy that produced this state.
	Policy string `json:"policy"`

	IntervalMillis       int64 `json:"interval_millis"`
	DueMillis            int64 `json:"due_millis"`
	LastRepetitionMillis int64 `json:"last_repetition_millis,omitempty"`
	LadderIndex          int   `json:"ladder_index"`

	// NeedsRetry is set after a forgotten repetition until the next
	// remembered one.
	NeedsRetry bool `json:"needs_retry,omitempty"`
	Deleted    bool `json:"deleted,omitempty"`

	RepetitionCount int `json:"repetition_count"`
	LapseCount      int `json:"lapse_count"`

	Metadata ir.IRObject `json:"metadata,omitempty"`
}

// DueTimestampMillis exposes the due time to the cache store's index.
func (s State) DueTimestampMillis() int64 {
	return s.DueMillis
}

func (s State) clone() State {
	s.Metadata = s.Metadata.Clone()
	return s
}

// PolicyName returns the name of the policy that produced the state.
func (s State) PolicyName() string {
	return s.Policy
}
