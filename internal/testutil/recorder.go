package testutil

import (
	"context"
	"sync"
)

// Recorder collects values passed to Record, typically observer
// notifications:
//
//	rec := &testutil.Recorder[reconcile.Update[scheduler.State]]{}
//	eng.Subscribe(reconcile.ObserverFunc[scheduler.State](rec.Record))
//
// Thread-safety: Recorder is safe for concurrent use.
type Recorder[T any] struct {
	mu    sync.Mutex
	items []T
}

// Record appends v.
func (r *Recorder[T]) Record(_ context.Context, v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, v)
}

// Items returns a copy of everything recorded so far.
func (r *Recorder[T]) Items() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, len(r.items))
	copy(out, r.items)
	return out
}

// Len returns the number of recorded values.
func (r *Recorder[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
