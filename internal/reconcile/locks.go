package reconcile

import "sync"

// taskLocks serializes reconciliation per task. Entries are dropped once
// no goroutine holds or waits for them.
type taskLocks struct {
	mu    sync.Mutex
	locks map[string]*taskLock
}

type taskLock struct {
	mu   sync.Mutex
	refs int
}

func newTaskLocks() *taskLocks {
	return &taskLocks{locks: make(map[string]*taskLock)}
}

// lock blocks until the task's lock is held and returns its release func.
func (t *taskLocks) lock(taskID string) (unlock func()) {
	t.mu.Lock()
	l, ok := t.locks[taskID]
	if !ok {
		l = &taskLock{}
		t.locks[taskID] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, taskID)
		}
		t.mu.Unlock()
	}
}

// size returns the number of live entries. Used by tests.
func (t *taskLocks) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
