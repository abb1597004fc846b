package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	rec := &Recorder[string]{}
	assert.Equal(t, 0, rec.Len())
	assert.Empty(t, rec.Items())

	rec.Record(context.Background(), "a")
	rec.Record(context.Background(), "b")
	assert.Equal(t, []string{"a", "b"}, rec.Items())

	// Items is a copy.
	items := rec.Items()
	items[0] = "changed"
	assert.Equal(t, "a", rec.Items()[0])
}

func TestRecorder_Concurrent(t *testing.T) {
	rec := &Recorder[int]{}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			rec.Record(context.Background(), n)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, rec.Len())
}
