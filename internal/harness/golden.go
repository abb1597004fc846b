package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/reviewlog/internal/ir"
)

// Snapshot captures every run of a scenario for golden comparison.
// It is serialized as canonical JSON for deterministic comparison.
type Snapshot struct {
	ScenarioName string
	Runs         []RunResult
}

// toCanonicalMap converts a Snapshot to a map[string]any for canonical JSON
// serialization. Log IDs are replaced by scenario names so golden files
// stay readable.
func (s *Snapshot) toCanonicalMap() (map[string]any, error) {
	runs := make([]any, len(s.Runs))
	for i, run := range s.Runs {
		trace := make([]any, len(run.Trace))
		for j, event := range run.Trace {
			eventMap := map[string]any{
				"log":            event.Log,
				"path":           event.Path,
				"server_seconds": event.ServerSeconds,
				"latest_log":     event.LatestLog,
				"revision":       event.Revision,
			}
			if event.Conflicts > 0 {
				eventMap["conflicts"] = event.Conflicts
			}
			trace[j] = eventMap
		}

		state, err := stateFields(run.Entry.State)
		if err != nil {
			return nil, err
		}
		order := make([]any, len(run.Order))
		for j, name := range run.Order {
			order[j] = name
		}

		runs[i] = map[string]any{
			"order":                 order,
			"trace":                 trace,
			"latest_log":            run.LatestLog,
			"latest_server_seconds": run.Entry.LatestLogServerTimestamp.Seconds,
			"state":                 state,
		}
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"runs":          runs,
	}, nil
}

// RunWithGolden executes a scenario and compares its runs against a golden
// file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check assertions.
// Test failure (via goldie) occurs if the runs don't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := Snapshot{
		ScenarioName: scenarioName,
		Runs:         result.Runs,
	}
	canonicalMap, err := snapshot.toCanonicalMap()
	if err != nil {
		return err
	}
	data, err := ir.MarshalCanonical(canonicalMap)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
