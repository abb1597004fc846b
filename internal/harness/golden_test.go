package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenarios runs every scenario under testdata/scenarios and compares
// its runs with testdata/golden/{name}.golden.
func TestScenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestSnapshot_UsesNames(t *testing.T) {
	result, err := Run(twoLogScenario())
	require.NoError(t, err)

	snapshot := Snapshot{ScenarioName: "two_logs", Runs: result.Runs}
	m, err := snapshot.toCanonicalMap()
	require.NoError(t, err)

	runs := m["runs"].([]any)
	require.Len(t, runs, 1)
	run := runs[0].(map[string]any)
	assert.Equal(t, "review", run["latest_log"])
	assert.Equal(t, int64(20), run["latest_server_seconds"])

	trace := run["trace"].([]any)
	first := trace[0].(map[string]any)
	assert.Equal(t, "ingest", first["log"])
	assert.NotContains(t, first, "conflicts")
}
