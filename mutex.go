package corosync

import (
	"container/list"
	"context"
	"sync"
)

// Mutex is a FIFO-fair, cancellable, non-reentrant mutual-exclusion
// lock. Three constructors (NewSpinMutex, NewMonitorMutex,
// NewSemaphoreMutex) produce interchangeable implementations of this
// same contract; they differ only in how they protect their own
// internal waiter queue.
//
// Mutex does not support recursive acquisition: a goroutine that calls
// Lock while already holding the mutex will deadlock against itself,
// same as sync.Mutex.
type Mutex interface {
	// Lock suspends until the mutex can be acquired or ctx is done.
	// If ctx is already done, it fails immediately without enqueuing
	// a waiter. On success, the returned handle's Close releases the
	// mutex; it must be released exactly once.
	Lock(ctx context.Context) (ReleaseHandle, error)

	// TryLock acquires the mutex without suspending. It never steals
	// ahead of an existing waiter: if any goroutine is already queued
	// (or holding), TryLock fails.
	TryLock() (ReleaseHandle, bool)
}

// innerGate is the short critical section a FIFO mutex variant uses to
// protect its own waiter queue. Acquiring it must never be held across
// a suspension point of external code.
type innerGate interface {
	Lock()
	Unlock()
}

// fifoMutex implements the FIFO-fair Mutex contract in terms of an
// innerGate; NewSpinMutex and NewMonitorMutex differ only in which gate
// they plug in.
type fifoMutex struct {
	gate  innerGate
	queue list.List // of *waiter, oldest (head/holder) at Front
}

var _ Mutex = (*fifoMutex)(nil)

func newFifoMutex(gate innerGate) *fifoMutex {
	return &fifoMutex{gate: gate}
}

// Lock implements Mutex.
func (m *fifoMutex) Lock(ctx context.Context) (ReleaseHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, &CancelledError{Cause: err}
	}

	w := newWaiter()
	m.gate.Lock()
	elem := m.queue.PushBack(w)
	sole := m.queue.Front() == elem
	if sole {
		w.activate()
	}
	m.gate.Unlock()

	if !sole {
		logEvent("mutex", LevelDebug, "waiter parked behind holder", nil, nil)
	}

	select {
	case <-w.ready:
	case <-ctx.Done():
		w.cancel() // if this loses the race, w is already Activated.
		<-w.ready
	}

	if w.Status() == waiterCancelled {
		m.removeAndHandoff(elem)
		return nil, &CancelledError{Cause: ctx.Err()}
	}

	return NewScopedRelease(func() { m.release(elem) }), nil
}

// TryLock implements Mutex.
func (m *fifoMutex) TryLock() (ReleaseHandle, bool) {
	m.gate.Lock()
	defer m.gate.Unlock()

	if m.queue.Len() != 0 {
		return nil, false
	}
	w := newWaiter()
	w.activate()
	elem := m.queue.PushBack(w)
	return NewScopedRelease(func() { m.release(elem) }), true
}

// removeAndHandoff removes a cancelled waiter from the queue. If it was
// the head — meaning it was about to become (or already was about to
// be recognized as) the holder — the next waiter, if any, is activated
// in its place so the cancellation never strands the rest of the queue.
func (m *fifoMutex) removeAndHandoff(elem *list.Element) {
	m.gate.Lock()
	defer m.gate.Unlock()

	wasHead := m.queue.Front() == elem
	m.queue.Remove(elem)
	if wasHead && m.queue.Len() > 0 {
		next := m.queue.Front().Value.(*waiter)
		next.activate()
	}
}

// release removes the head waiter (the current holder) and activates
// the new head, if any.
func (m *fifoMutex) release(elem *list.Element) {
	m.gate.Lock()
	defer m.gate.Unlock()

	m.queue.Remove(elem)
	if m.queue.Len() > 0 {
		m.queue.Front().Value.(*waiter).activate()
	}
}

// waiterCount reports how many goroutines currently hold or await the
// mutex. Exposed via Metrics, not part of the Mutex contract proper:
// primitives expose no inspection of waiter identity, only counts.
func (m *fifoMutex) waiterCount() int {
	m.gate.Lock()
	defer m.gate.Unlock()
	return m.queue.Len()
}

// mutexMetricsProvider is implemented by Mutex variants that can report
// waiter counts; the Semaphore variant delegates entirely to
// golang.org/x/sync/semaphore and has no queue to inspect, so it
// deliberately does not implement this.
type mutexMetricsProvider interface {
	waiterCount() int
}

// MutexMetrics reports the number of goroutines currently holding or
// awaiting m, if m's variant tracks one. ok is false for variants (the
// Semaphore mutex) with no inspectable waiter queue.
func MutexMetrics(m Mutex) (waiters int, ok bool) {
	if p, ok := m.(mutexMetricsProvider); ok {
		return p.waiterCount(), true
	}
	return 0, false
}

// monitorGate is the sync.Mutex-backed innerGate (the "Monitor" variant).
type monitorGate struct {
	mu sync.Mutex
}

func (g *monitorGate) Lock()   { g.mu.Lock() }
func (g *monitorGate) Unlock() { g.mu.Unlock() }

// NewMonitorMutex returns a Mutex whose internal waiter queue is
// protected by a native OS-level mutex (sync.Mutex). This is the
// simplest of the three variants: the inner gate itself may briefly
// block an OS thread, but only for the duration of a queue splice, never
// across a caller's suspension.
func NewMonitorMutex() Mutex {
	return newFifoMutex(&monitorGate{})
}
