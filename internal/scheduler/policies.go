package scheduler

import (
	"fmt"
	"os"
	"sort"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// policySchema constrains policy files. Every interval and the retry delay
// must be positive, and a ladder needs at least one rung.
const policySchema = `
#Policy: {
	intervals_hours: [int & >0, ...int & >0]
	retry_delay_minutes: *10 | (int & >0)
}

policy: [string]: #Policy
`

// PolicyError reports a policy file problem, with the CUE position when
// one is known.
type PolicyError struct {
	Policy  string
	Message string
	Pos     token.Pos
}

func (e *PolicyError) Error() string {
	prefix := "policies"
	if e.Policy != "" {
		prefix = "policy." + e.Policy
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			prefix, e.Message)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

type policyFile struct {
	IntervalsHours    []int64 `json:"intervals_hours"`
	RetryDelayMinutes int64   `json:"retry_delay_minutes"`
}

// LoadPolicies reads interval-ladder policies from a CUE file:
//
//	policy: gentle: {
//		intervals_hours: [12, 48, 168]
//		retry_delay_minutes: 5
//	}
//
// Policies are returned sorted by name.
func LoadPolicies(path string) ([]*IntervalLadder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policies: %w", err)
	}
	return ParsePolicies(path, data)
}

// ParsePolicies is LoadPolicies for in-memory CUE source. filename is used
// only in error positions.
func ParsePolicies(filename string, src []byte) ([]*IntervalLadder, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(policySchema, cue.Filename("policy_schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, formatCUEError(err, "")
	}

	user := ctx.CompileBytes(src, cue.Filename(filename))
	if err := user.Err(); err != nil {
		return nil, formatCUEError(err, "")
	}

	v := schema.Unify(user)
	if err := v.Validate(); err != nil {
		return nil, formatCUEError(err, "")
	}

	policiesVal := v.LookupPath(cue.ParsePath("policy"))
	if !policiesVal.Exists() {
		return nil, &PolicyError{Message: "no policy declarations found"}
	}

	iter, err := policiesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err, "")
	}

	var out []*IntervalLadder
	for iter.Next() {
		name := iter.Label()
		var raw policyFile
		if err := iter.Value().Decode(&raw); err != nil {
			return nil, formatCUEError(err, name)
		}

		p := &IntervalLadder{
			Name:             name,
			IntervalsMillis:  make([]int64, len(raw.IntervalsHours)),
			RetryDelayMillis: raw.RetryDelayMinutes * int64(time.Minute/time.Millisecond),
		}
		for i, h := range raw.IntervalsHours {
			p.IntervalsMillis[i] = h * int64(time.Hour/time.Millisecond)
		}
		if err := p.Validate(); err != nil {
			return nil, &PolicyError{Policy: name, Message: err.Error(), Pos: iter.Value().Pos()}
		}
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error, policy string) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &PolicyError{Policy: policy, Message: err.Error()}
	}

	first := errs[0]
	pe := &PolicyError{Policy: policy, Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		pe.Pos = positions[0]
	}
	return pe
}
