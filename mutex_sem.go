package corosync

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// semMutex is the Semaphore-variant Mutex: it has no FIFO queue or
// inner gate of its own at all — waiter discipline (including fairness
// under contention) is delegated entirely to a weighted semaphore of
// capacity 1, the same golang.org/x/sync/semaphore.Weighted used to
// back BoundedAsyncQueue's item/slot counters.
type semMutex struct {
	sem *semaphore.Weighted
}

var _ Mutex = (*semMutex)(nil)

// NewSemaphoreMutex returns a Mutex implemented directly atop a
// capacity-1 counting semaphore, rather than a hand-rolled FIFO queue.
func NewSemaphoreMutex() Mutex {
	return &semMutex{sem: semaphore.NewWeighted(1)}
}

// Lock implements Mutex.
func (m *semMutex) Lock(ctx context.Context) (ReleaseHandle, error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, &CancelledError{Cause: err}
	}
	return NewScopedRelease(func() { m.sem.Release(1) }), nil
}

// TryLock implements Mutex.
func (m *semMutex) TryLock() (ReleaseHandle, bool) {
	if !m.sem.TryAcquire(1) {
		return nil, false
	}
	return NewScopedRelease(func() { m.sem.Release(1) }), true
}
