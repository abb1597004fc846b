package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reviewlog/internal/ir"
)

func TestRegistry_HasDefault(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	p, err := r.Lookup(DefaultPolicyName)
	require.NoError(t, err)
	assert.Len(t, p.IntervalsMillis, 7)
	assert.Equal(t, []string{DefaultPolicyName}, r.Names())
}

func TestRegistry_RejectsInvalid(t *testing.T) {
	_, err := NewRegistry(&IntervalLadder{Name: "broken"})
	require.Error(t, err)
}

func TestRegistry_LookupUnknown(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	_, err = r.Lookup("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestDispatcher_UsesPriorPolicy(t *testing.T) {
	r, err := NewRegistry(testLadder())
	require.NoError(t, err)

	d, err := NewDispatcher(r, DefaultPolicyName)
	require.NoError(t, err)

	fresh := d.Apply(nil, repetition(1000, ir.Remembered))
	assert.Equal(t, DefaultPolicyName, fresh.Policy)

	prior := State{Policy: "test"}
	next := d.Apply(&prior, repetition(1000, ir.Remembered))
	assert.Equal(t, "test", next.Policy)
	assert.Equal(t, 2*hour, next.IntervalMillis)
}

func TestDispatcher_UnknownPriorPolicyFallsBack(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	d, err := NewDispatcher(r, DefaultPolicyName)
	require.NoError(t, err)

	next := d.Apply(&State{Policy: "retired"}, repetition(1000, ir.Remembered))
	assert.Equal(t, DefaultPolicyName, next.Policy)
}

func TestNewDispatcher_UnknownFallback(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	_, err = NewDispatcher(r, "missing")
	require.Error(t, err)
}
