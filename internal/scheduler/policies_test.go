package scheduler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPolicies_Testdata(t *testing.T) {
	policies, err := LoadPolicies(filepath.Join("testdata", "policies.cue"))
	require.NoError(t, err)
	require.Len(t, policies, 2)

	gentle := policies[0]
	assert.Equal(t, "gentle", gentle.Name)
	assert.Equal(t, []int64{12 * hour, 48 * hour, 168 * hour}, gentle.IntervalsMillis)
	assert.Equal(t, int64(5*60_000), gentle.RetryDelayMillis)

	ladder := policies[1]
	assert.Equal(t, "interval-ladder", ladder.Name)
	assert.Equal(t, int64(10*60_000), ladder.RetryDelayMillis, "retry delay defaults to 10 minutes")
}

func TestParsePolicies_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax", `policy: {`},
		{"empty ladder", `policy: x: intervals_hours: []`},
		{"non-positive interval", `policy: x: intervals_hours: [0]`},
		{"unknown field", `policy: x: {intervals_hours: [1], speed: 2}`},
		{"shrinking ladder", `policy: x: intervals_hours: [10, 5]`},
		{"no policies", `other: 1`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePolicies("inline.cue", []byte(tt.src))
			require.Error(t, err)

			var pe *PolicyError
			assert.ErrorAs(t, err, &pe)
		})
	}
}

func TestLoadPolicies_MissingFile(t *testing.T) {
	_, err := LoadPolicies(filepath.Join(t.TempDir(), "missing.cue"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadPolicies_RegistersIntoRegistry(t *testing.T) {
	policies, err := LoadPolicies(filepath.Join("testdata", "policies.cue"))
	require.NoError(t, err)

	r, err := NewRegistry(policies...)
	require.NoError(t, err)
	assert.Equal(t, []string{"gentle", "interval-ladder"}, r.Names())

	p, err := r.Lookup(DefaultPolicyName)
	require.NoError(t, err)
	assert.Len(t, p.IntervalsMillis, 5, "file overrides the built-in ladder")
}
