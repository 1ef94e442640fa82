package corosync

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// BoundedAsyncQueue is a capacity-bounded asynchronous producer/consumer
// queue built from two counting semaphores (items, slots) over a
// caller-supplied Collection[T]. Add suspends while the collection is
// full; Take suspends while it is empty. Both restore the
// semaphore/collection invariant exactly on cancellation.
//
// An unbounded queue (NewUnboundedAsyncQueue) has no slots semaphore:
// Add never suspends on capacity.
type BoundedAsyncQueue[T any] struct {
	collection Collection[T]
	items      *semaphore.Weighted
	slots      *semaphore.Weighted // nil when unbounded
	capacity   int                 // 0 when unbounded
}

// NewBoundedAsyncQueue creates a queue over collection with the given
// capacity. It fails with *InvalidArgumentError if capacity <= 0 or if
// collection already holds more than capacity elements.
func NewBoundedAsyncQueue[T any](collection Collection[T], capacity int) (*BoundedAsyncQueue[T], error) {
	if capacity <= 0 {
		return nil, &InvalidArgumentError{Message: "capacity must be positive"}
	}
	initial := collection.Len()
	if initial > capacity {
		return nil, &InvalidArgumentError{Message: "initial collection size exceeds capacity"}
	}

	q := &BoundedAsyncQueue[T]{
		collection: collection,
		items:      semaphore.NewWeighted(int64(capacity)),
		slots:      semaphore.NewWeighted(int64(capacity)),
		capacity:   capacity,
	}
	// items.Weighted starts with full availability (== capacity); reserve
	// down to the initial item count so Take only unblocks for elements
	// actually present. slots mirrors this in the other direction: reserve
	// `initial` of it so only (capacity - initial) room remains for Add.
	reserveSemaphore(q.items, capacity-initial)
	reserveSemaphore(q.slots, initial)
	return q, nil
}

// NewUnboundedAsyncQueue creates a queue over collection with no
// capacity limit: Add never suspends waiting for a slot.
func NewUnboundedAsyncQueue[T any](collection Collection[T]) *BoundedAsyncQueue[T] {
	const unboundedHeadroom = int64(1) << 62

	initial := collection.Len()
	q := &BoundedAsyncQueue[T]{
		collection: collection,
		items:      semaphore.NewWeighted(unboundedHeadroom + int64(initial)),
	}
	reserveSemaphore(q.items, int(unboundedHeadroom))
	return q
}

// reserveSemaphore consumes n permits from sem at construction time so
// its subsequent availability reflects the queue's actual starting
// state rather than its raw capacity.
func reserveSemaphore(sem *semaphore.Weighted, n int) {
	if n <= 0 {
		return
	}
	if !sem.TryAcquire(int64(n)) {
		fatalf("queue: failed to reserve %d permits at construction", n)
	}
}

// Add suspends until there is room (skipped when unbounded) and then
// inserts item, or fails with *CancelledError if ctx is done first.
func (q *BoundedAsyncQueue[T]) Add(ctx context.Context, item T) error {
	if q.slots != nil {
		if err := q.slots.Acquire(ctx, 1); err != nil {
			return &CancelledError{Cause: err}
		}
	}

	if !q.collection.TryAdd(item) {
		// Collection refused despite a reserved slot: give the slot back
		// and report it as a (non-cancellation) failure to the caller.
		if q.slots != nil {
			q.slots.Release(1)
		}
		return &InvalidStateError{Message: "collection refused insertion"}
	}
	q.items.Release(1)
	return nil
}

// TryAdd attempts a non-blocking insert, reporting whether it succeeded.
func (q *BoundedAsyncQueue[T]) TryAdd(item T) bool {
	if q.slots != nil {
		if !q.slots.TryAcquire(1) {
			return false
		}
	}
	if !q.collection.TryAdd(item) {
		if q.slots != nil {
			q.slots.Release(1)
		}
		return false
	}
	q.items.Release(1)
	return true
}

// Take suspends until an element is available and then removes and
// returns it, or fails with *CancelledError if ctx is done first.
func (q *BoundedAsyncQueue[T]) Take(ctx context.Context) (T, error) {
	var zero T
	if err := q.items.Acquire(ctx, 1); err != nil {
		return zero, &CancelledError{Cause: err}
	}
	item, ok := q.collection.TryTake()
	if !ok {
		fatalf("queue: items permit granted but collection was empty")
	}
	if q.slots != nil {
		q.slots.Release(1)
	}
	return item, nil
}

// TryTake attempts a non-blocking removal.
func (q *BoundedAsyncQueue[T]) TryTake() (T, bool) {
	var zero T
	if !q.items.TryAcquire(1) {
		return zero, false
	}
	item, ok := q.collection.TryTake()
	if !ok {
		fatalf("queue: items permit granted but collection was empty")
	}
	if q.slots != nil {
		q.slots.Release(1)
	}
	return item, true
}

// Count returns the current number of queued elements.
func (q *BoundedAsyncQueue[T]) Count() int {
	return q.collection.Len()
}

// Capacity returns the queue's configured capacity, or 0 if unbounded.
func (q *BoundedAsyncQueue[T]) Capacity() int {
	return q.capacity
}

// QueueMetrics is a snapshot returned by BoundedAsyncQueue.Metrics.
type QueueMetrics struct {
	Count    int
	Capacity int // 0 when unbounded
}

// Metrics returns a point-in-time snapshot of the queue's occupancy.
func (q *BoundedAsyncQueue[T]) Metrics() QueueMetrics {
	return QueueMetrics{Count: q.Count(), Capacity: q.capacity}
}

// ConsumingStream returns a lazy, single-consumer sequence over q. ctx
// bounds every Take it performs; dropping the stream via Close cancels
// any Take in flight.
func (q *BoundedAsyncQueue[T]) ConsumingStream(ctx context.Context) *ConsumingStream[T] {
	cctx, cancel := context.WithCancel(ctx)
	return &ConsumingStream[T]{queue: q, ctx: cctx, cancel: cancel}
}

// ConsumingStream is a single-consumer iterator driven by
// BoundedAsyncQueue.Take. Concurrent calls to Next are rejected with
// *InvalidStateError rather than silently interleaving.
type ConsumingStream[T any] struct {
	queue  *BoundedAsyncQueue[T]
	ctx    context.Context
	cancel context.CancelFunc
	inUse  atomic.Bool
}

// Next blocks until the next element is available, the stream's context
// is cancelled, or Close is called.
func (s *ConsumingStream[T]) Next() (T, error) {
	var zero T
	if !s.inUse.CompareAndSwap(false, true) {
		return zero, &InvalidStateError{Message: "concurrent ConsumingStream.Next calls are not allowed"}
	}
	defer s.inUse.Store(false)
	return s.queue.Take(s.ctx)
}

// Close cancels the stream's internal cancellation source, unblocking
// any in-flight Next with a *CancelledError.
func (s *ConsumingStream[T]) Close() {
	s.cancel()
}
