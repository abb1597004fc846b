package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/reviewlog/internal/ir"
)

// Scenario defines a reconciliation scenario: a set of action logs with
// fixed server timestamps, the orders in which they reach the engine, and
// what the resulting cache entry must look like.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// TaskID is the task every log belongs to. Defaults to "task".
	TaskID string `yaml:"task_id,omitempty"`

	// Policy names the scheduling policy for new tasks.
	// Defaults to the built-in interval ladder.
	Policy string `yaml:"policy,omitempty"`

	// Policies is an optional CUE policy file, relative to the scenario.
	Policies string `yaml:"policies,omitempty"`

	// Logs are the action logs, parents listed before children.
	Logs []LogStep `yaml:"logs"`

	// Arrivals lists arrival orders by log name. Each order runs against a
	// fresh store. Defaults to the order of Logs.
	Arrivals [][]string `yaml:"arrivals,omitempty"`

	// Assertions validate every run.
	Assertions []Assertion `yaml:"assertions"`

	// BatchToken is the fixed batch token for deterministic tests.
	// Defaults to "test-batch-default".
	BatchToken string `yaml:"batch_token,omitempty"`
}

// LogStep is one action log, referenced by name.
type LogStep struct {
	Name string           `yaml:"name"`
	Type ir.ActionLogType `yaml:"type"`

	// Parents name earlier logs.
	Parents []string `yaml:"parents,omitempty"`

	TimestampMillis    int64                `yaml:"timestamp_millis"`
	Outcome            ir.RepetitionOutcome `yaml:"outcome,omitempty"`
	NewTimestampMillis int64                `yaml:"new_timestamp_millis,omitempty"`
	Metadata           map[string]any       `yaml:"metadata,omitempty"`

	// ServerSeconds is the server timestamp the log was accepted at.
	ServerSeconds int64 `yaml:"server_seconds"`
}

// Assertion validates the outcome of every arrival order.
type Assertion struct {
	// Type specifies the assertion type:
	// - "converges": every arrival order yields the same cache entry
	// - "latest_log": the entry's latest log is Log
	// - "final_state": the state's fields match Expect (subset match)
	// - "paths": the first arrival order took Paths, one per log
	// - "conflict_count": Count conflicts were reported in the first order
	Type string `yaml:"type"`

	// Log names the expected latest log (latest_log).
	Log string `yaml:"log,omitempty"`

	// Expect contains expected state fields (final_state).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Paths are the expected decision paths (paths).
	Paths []string `yaml:"paths,omitempty"`

	// Count is the expected number of conflicts (conflict_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertConverges     = "converges"
	AssertLatestLog     = "latest_log"
	AssertFinalState    = "final_state"
	AssertPaths         = "paths"
	AssertConflictCount = "conflict_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// A relative policies path is resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if scenario.Policies != "" && !filepath.IsAbs(scenario.Policies) {
		scenario.Policies = filepath.Join(filepath.Dir(path), scenario.Policies)
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Logs) == 0 {
		return fmt.Errorf("logs list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	names := make(map[string]bool, len(s.Logs))
	servers := make(map[int64]string, len(s.Logs))
	for i, step := range s.Logs {
		if step.Name == "" {
			return fmt.Errorf("logs[%d]: name is required", i)
		}
		if names[step.Name] {
			return fmt.Errorf("logs[%d]: duplicate name %q", i, step.Name)
		}
		if step.ServerSeconds <= 0 {
			return fmt.Errorf("logs[%d]: server_seconds must be positive", i)
		}
		if other, ok := servers[step.ServerSeconds]; ok {
			return fmt.Errorf("logs[%d]: server_seconds %d already used by %q", i, step.ServerSeconds, other)
		}
		for _, p := range step.Parents {
			if !names[p] {
				return fmt.Errorf("logs[%d]: parent %q must be listed earlier", i, p)
			}
		}
		names[step.Name] = true
		servers[step.ServerSeconds] = step.Name
	}

	for i, order := range s.Arrivals {
		if len(order) != len(s.Logs) {
			return fmt.Errorf("arrivals[%d]: must list all %d logs, got %d", i, len(s.Logs), len(order))
		}
		seen := make(map[string]bool, len(order))
		for _, name := range order {
			if !names[name] {
				return fmt.Errorf("arrivals[%d]: unknown log %q", i, name)
			}
			if seen[name] {
				return fmt.Errorf("arrivals[%d]: log %q listed twice", i, name)
			}
			seen[name] = true
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, names); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, names map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertConverges:
	case AssertLatestLog:
		if !names[a.Log] {
			return fmt.Errorf("assertions[%d]: log must name a scenario log for latest_log", index)
		}
	case AssertFinalState:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertPaths:
		if len(a.Paths) == 0 {
			return fmt.Errorf("assertions[%d]: paths list is required for paths", index)
		}
	case AssertConflictCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for conflict_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// orders returns the arrival orders to run.
func (s *Scenario) orders() [][]string {
	if len(s.Arrivals) > 0 {
		return s.Arrivals
	}
	order := make([]string, len(s.Logs))
	for i, step := range s.Logs {
		order[i] = step.Name
	}
	return [][]string{order}
}

func (s *Scenario) taskID() string {
	if s.TaskID == "" {
		return "task"
	}
	return s.TaskID
}
