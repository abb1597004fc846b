package harness

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/reviewlog/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string    // Assertion type for categorization
	Expected string    // Human-readable expected outcome
	Actual   string    // Human-readable actual outcome
	Run      RunResult // The failing run, for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Run.Order) > 0 {
		fmt.Fprintf(&buf, "\nArrival order: %s\n", strings.Join(e.Run.Order, ", "))
		for i, event := range e.Run.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s -> latest %s (rev %d)\n",
				i+1, event.Log, event.Path, event.LatestLog, event.Revision)
		}
	}

	return buf.String()
}

// assertConverges checks that every run ended with the same state and
// latest log. Revisions may differ: they count writes, not content.
func assertConverges(runs []RunResult) error {
	if len(runs) < 2 {
		return nil
	}
	first := runs[0]
	firstState, err := json.Marshal(first.Entry.State)
	if err != nil {
		return err
	}

	for _, run := range runs[1:] {
		if run.Entry.LatestLogServerTimestamp != first.Entry.LatestLogServerTimestamp || run.LatestLog != first.LatestLog {
			return &AssertionError{
				Type:     AssertConverges,
				Expected: fmt.Sprintf("latest log %s at %s", first.LatestLog, first.Entry.LatestLogServerTimestamp),
				Actual:   fmt.Sprintf("latest log %s at %s", run.LatestLog, run.Entry.LatestLogServerTimestamp),
				Run:      run,
			}
		}
		state, err := json.Marshal(run.Entry.State)
		if err != nil {
			return err
		}
		if string(state) != string(firstState) {
			return &AssertionError{
				Type:     AssertConverges,
				Expected: string(firstState),
				Actual:   string(state),
				Run:      run,
			}
		}
	}
	return nil
}

// assertLatestLog checks the latest contributing log of every run.
func assertLatestLog(runs []RunResult, assertion Assertion) error {
	for _, run := range runs {
		if run.LatestLog != assertion.Log {
			return &AssertionError{
				Type:     AssertLatestLog,
				Expected: assertion.Log,
				Actual:   run.LatestLog,
				Run:      run,
			}
		}
	}
	return nil
}

// assertFinalState checks expected state fields of every run using subset
// semantics. A field the state omits matches an expected zero value.
func assertFinalState(runs []RunResult, assertion Assertion) error {
	keys := make([]string, 0, len(assertion.Expect))
	for k := range assertion.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, run := range runs {
		actual, err := stateFields(run.Entry.State)
		if err != nil {
			return err
		}
		for _, key := range keys {
			expectedValue := assertion.Expect[key]
			actualValue, exists := actual[key]
			if !exists && !isZero(expectedValue) {
				return &AssertionError{
					Type:     AssertFinalState,
					Expected: fmt.Sprintf("field %q = %v", key, expectedValue),
					Actual:   fmt.Sprintf("field %q not present in state", key),
					Run:      run,
				}
			}
			if exists && !stateValuesEqual(expectedValue, actualValue) {
				return &AssertionError{
					Type:     AssertFinalState,
					Expected: fmt.Sprintf("field %q = %v (type %T)", key, expectedValue, expectedValue),
					Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actualValue, actualValue),
					Run:      run,
				}
			}
		}
	}
	return nil
}

// assertPaths checks the decision path taken for each arrival of the
// first run.
func assertPaths(runs []RunResult, assertion Assertion) error {
	run := runs[0]
	actual := make([]string, len(run.Trace))
	for i, event := range run.Trace {
		actual[i] = event.Path
	}
	if !reflect.DeepEqual(actual, assertion.Paths) {
		return &AssertionError{
			Type:     AssertPaths,
			Expected: strings.Join(assertion.Paths, ", "),
			Actual:   strings.Join(actual, ", "),
			Run:      run,
		}
	}
	return nil
}

// assertConflictCount checks the number of conflicts reported during the
// first run.
func assertConflictCount(runs []RunResult, assertion Assertion) error {
	run := runs[0]
	count := 0
	for _, event := range run.Trace {
		count += event.Conflicts
	}
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertConflictCount,
			Expected: fmt.Sprintf("%d conflicts", assertion.Count),
			Actual:   fmt.Sprintf("%d conflicts", count),
			Run:      run,
		}
	}
	return nil
}

// stateFields decodes a state into its JSON fields.
func stateFields(state any) (map[string]any, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return fields, nil
}

// stateValuesEqual compares a YAML-decoded expected value with a
// JSON-decoded actual one. Both are normalized to IR values, so YAML ints
// compare equal to JSON numbers.
func stateValuesEqual(expected, actual any) bool {
	exp, err := ir.FromAny(expected)
	if err != nil {
		return false
	}
	act, err := ir.FromAny(actual)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(exp, act)
}

func isZero(v any) bool {
	switch val := v.(type) {
	case bool:
		return !val
	case int:
		return val == 0
	case string:
		return val == ""
	}
	return false
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string
	if len(result.Runs) == 0 {
		return []string{"no runs to evaluate"}
	}

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertConverges:
			err = assertConverges(result.Runs)
		case AssertLatestLog:
			err = assertLatestLog(result.Runs, assertion)
		case AssertFinalState:
			err = assertFinalState(result.Runs, assertion)
		case AssertPaths:
			err = assertPaths(result.Runs, assertion)
		case AssertConflictCount:
			err = assertConflictCount(result.Runs, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
