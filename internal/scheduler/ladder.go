package scheduler

import (
	"fmt"
	"time"

	"github.com/roach88/reviewlog/internal/ir"
)

// DefaultPolicyName is the policy applied to tasks with no prior state
// unless configured otherwise.
const DefaultPolicyName = "interval-ladder"

// IntervalLadder schedules reviews on a fixed ladder of intervals.
// A remembered repetition climbs one rung, a forgotten one drops back to
// the first rung and schedules a short retry.
type IntervalLadder struct {
	Name             string
	IntervalsMillis  []int64
	RetryDelayMillis int64
}

// DefaultPolicy returns the built-in interval ladder:
// 1, 3, 7, 14, 30, 60 and 120 days with a 10 minute retry.
func DefaultPolicy() *IntervalLadder {
	day := int64(24 * time.Hour / time.Millisecond)
	return &IntervalLadder{
		Name:             DefaultPolicyName,
		IntervalsMillis:  []int64{1 * day, 3 * day, 7 * day, 14 * day, 30 * day, 60 * day, 120 * day},
		RetryDelayMillis: int64(10 * time.Minute / time.Millisecond),
	}
}

// Validate checks that the ladder can schedule anything.
func (p *IntervalLadder) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("policy name is required")
	}
	if len(p.IntervalsMillis) == 0 {
		return fmt.Errorf("policy %q: at least one interval is required", p.Name)
	}
	for i, iv := range p.IntervalsMillis {
		if iv <= 0 {
			return fmt.Errorf("policy %q: interval %d must be positive", p.Name, i)
		}
		if i > 0 && iv < p.IntervalsMillis[i-1] {
			return fmt.Errorf("policy %q: interval %d is shorter than interval %d", p.Name, i, i-1)
		}
	}
	if p.RetryDelayMillis <= 0 {
		return fmt.Errorf("policy %q: retry delay must be positive", p.Name)
	}
	return nil
}

// Apply returns the state that follows prior after log. prior is never
// modified.
func (p *IntervalLadder) Apply(prior *State, log ir.ActionLog) State {
	var next State
	if prior == nil {
		next = State{
			IntervalMillis: p.IntervalsMillis[0],
			DueMillis:      log.TimestampMillis + p.IntervalsMillis[0],
		}
	} else {
		next = prior.clone()
	}
	next.Policy = p.Name
	next.LadderIndex = p.clampRung(next.LadderIndex)

	switch log.Type {
	case ir.IngestActionLogType:
		next.Deleted = false
		next.Metadata = mergeMetadata(next.Metadata, log.Metadata)

	case ir.RepetitionActionLogType:
		p.applyRepetition(&next, log)

	case ir.RescheduleActionLogType:
		next.DueMillis = log.NewTimestampMillis

	case ir.DeleteActionLogType:
		next.Deleted = true

	case ir.UpdateMetadataActionLogType:
		next.Metadata = mergeMetadata(next.Metadata, log.Metadata)
	}

	return next
}

func (p *IntervalLadder) applyRepetition(next *State, log ir.ActionLog) {
	switch log.Outcome {
	case ir.Remembered:
		if next.NeedsRetry {
			next.NeedsRetry = false
		} else {
			next.LadderIndex = p.clampRung(next.LadderIndex + 1)
		}
		next.IntervalMillis = p.IntervalsMillis[next.LadderIndex]
		next.DueMillis = log.TimestampMillis + next.IntervalMillis
		next.LastRepetitionMillis = log.TimestampMillis
		next.RepetitionCount++

	case ir.Forgotten:
		next.LadderIndex = 0
		next.NeedsRetry = true
		next.IntervalMillis = p.IntervalsMillis[0]
		next.DueMillis = log.TimestampMillis + p.RetryDelayMillis
		next.LastRepetitionMillis = log.TimestampMillis
		next.RepetitionCount++
		next.LapseCount++

	case ir.Skipped:
		next.DueMillis = log.TimestampMillis + p.RetryDelayMillis
	}
}

func (p *IntervalLadder) clampRung(i int) int {
	switch {
	case i < 0:
		return 0
	case i >= len(p.IntervalsMillis):
		return len(p.IntervalsMillis) - 1
	}
	return i
}

// mergeMetadata returns base with patch's keys overlaid, without modifying
// either. Returns nil when both are empty.
func mergeMetadata(base, patch ir.IRObject) ir.IRObject {
	if len(base) == 0 && len(patch) == 0 {
		return nil
	}
	out := base.Clone()
	if out == nil {
		out = make(ir.IRObject, len(patch))
	}
	for k, v := range patch.Clone() {
		out[k] = v
	}
	return out
}
