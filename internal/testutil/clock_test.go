package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reviewlog/internal/ir"
)

func TestDeterministicClock_StartsAtZero(t *testing.T) {
	clock := NewDeterministicClock()
	assert.True(t, clock.Current().IsZero())
}

func TestDeterministicClock_NextIncrementsMonotonically(t *testing.T) {
	clock := NewDeterministicClock()

	assert.Equal(t, ir.ServerTimestamp{Seconds: 1}, clock.Next())
	assert.Equal(t, ir.ServerTimestamp{Seconds: 1}, clock.Current())

	assert.Equal(t, ir.ServerTimestamp{Seconds: 2}, clock.Next())
	assert.Equal(t, ir.ServerTimestamp{Seconds: 3}, clock.Next())
	assert.Equal(t, ir.ServerTimestamp{Seconds: 4}, clock.Next())
	assert.Equal(t, ir.ServerTimestamp{Seconds: 4}, clock.Current())
}

func TestDeterministicClock_Now(t *testing.T) {
	clock := NewDeterministicClock()
	assert.Equal(t, time.Unix(1, 0), clock.Now())
	assert.Equal(t, time.Unix(2, 0), clock.Now())
}

func TestDeterministicClock_Observe(t *testing.T) {
	clock := NewDeterministicClock()

	clock.Observe(ir.ServerTimestamp{Seconds: 10})
	assert.Equal(t, ir.ServerTimestamp{Seconds: 11}, clock.Next())

	// Observing the past does not move the clock back.
	clock.Observe(ir.ServerTimestamp{Seconds: 3})
	assert.Equal(t, ir.ServerTimestamp{Seconds: 12}, clock.Next())
}

func TestDeterministicClock_Reset(t *testing.T) {
	clock := NewDeterministicClock()

	clock.Next()
	clock.Next()
	clock.Next()
	assert.Equal(t, int64(3), clock.Current().Seconds)

	clock.Reset()
	assert.True(t, clock.Current().IsZero())
	assert.Equal(t, int64(1), clock.Next().Seconds)
}

func TestDeterministicClock_ThreadSafe(t *testing.T) {
	clock := NewDeterministicClock()
	const numGoroutines = 100
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make([][]int64, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		results[i] = make([]int64, callsPerGoroutine)
		go func(idx int) {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				results[idx][j] = clock.Next().Seconds
			}
		}(i)
	}

	wg.Wait()

	allValues := make(map[int64]bool)
	for i := 0; i < numGoroutines; i++ {
		for j := 0; j < callsPerGoroutine; j++ {
			val := results[i][j]
			require.False(t, allValues[val], "duplicate value %d", val)
			allValues[val] = true
		}
	}

	expectedTotal := numGoroutines * callsPerGoroutine
	assert.Len(t, allValues, expectedTotal)
	for i := int64(1); i <= int64(expectedTotal); i++ {
		assert.True(t, allValues[i], "missing value %d", i)
	}
}

func TestDeterministicClock_Deterministic(t *testing.T) {
	clock1 := NewDeterministicClock()
	clock2 := NewDeterministicClock()

	for i := 0; i < 100; i++ {
		assert.Equal(t, clock1.Next(), clock2.Next())
	}
}
