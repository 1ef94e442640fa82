package corosync

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// QueuedMessage is one message captured by a MessageQueue binding: the
// publish key it arrived under, and its payload.
type QueuedMessage struct {
	Key     string
	Payload any
}

// MessageQueue buffers messages delivered from one or more router
// bindings into a single bounded, FIFO, multi-consumer queue. Unlike
// BoundedAsyncQueue, enqueueing never suspends a publisher: once the
// queue is full, the oldest buffered message is dropped to make room
// for the newest.
type MessageQueue struct {
	gate     Mutex
	items    *semaphore.Weighted
	buf      Collection[QueuedMessage]
	capacity int
	bindings []ReleaseHandle
}

// NewMessageQueue creates an empty MessageQueue with room for capacity
// buffered messages.
func NewMessageQueue(capacity int) (*MessageQueue, error) {
	if capacity <= 0 {
		return nil, &InvalidArgumentError{Message: "capacity must be positive"}
	}
	q := &MessageQueue{
		gate:     NewSpinMutex(),
		items:    semaphore.NewWeighted(int64(capacity)),
		buf:      NewFIFOCollection[QueuedMessage](capacity),
		capacity: capacity,
	}
	// The queue starts empty: hold every items permit so Take only
	// unblocks for messages actually buffered.
	reserveSemaphore(q.items, capacity)
	return q, nil
}

// BindBroadcast subscribes the queue to every message router delivers,
// returning a handle that, when closed, stops further delivery into
// this queue (messages already buffered are unaffected).
func (q *MessageQueue) BindBroadcast(ctx context.Context, router *BroadcastRouter) (ReleaseHandle, error) {
	handle, err := router.Register(ctx, "", func(_ context.Context, key string, message any) error {
		q.enqueue(QueuedMessage{Key: key, Payload: message})
		return nil
	})
	if err != nil {
		return nil, err
	}
	q.trackBinding(handle)
	return handle, nil
}

// BindKeyed subscribes the queue to messages router delivers under key.
func (q *MessageQueue) BindKeyed(ctx context.Context, router *KeyedRouter, key string) (ReleaseHandle, error) {
	handle, err := router.Register(ctx, key, func(_ context.Context, k string, message any) error {
		q.enqueue(QueuedMessage{Key: k, Payload: message})
		return nil
	})
	if err != nil {
		return nil, err
	}
	q.trackBinding(handle)
	return handle, nil
}

func (q *MessageQueue) trackBinding(h ReleaseHandle) {
	lh, err := q.gate.Lock(context.Background())
	if err != nil {
		return
	}
	defer lh.Close()
	q.bindings = append(q.bindings, h)
}

// enqueue inserts msg, dropping the oldest buffered message first if
// the queue is already at capacity.
func (q *MessageQueue) enqueue(msg QueuedMessage) {
	lh, err := q.gate.Lock(context.Background())
	if err != nil {
		return
	}
	defer lh.Close()

	if !q.buf.TryAdd(msg) {
		if _, dropped := q.buf.TryTake(); dropped {
			if !q.items.TryAcquire(1) {
				fatalf("messagequeue: items permit accounting lost track of a dropped message")
			}
			logEvent("messagequeue", LevelWarn, "dropped oldest message: queue at capacity", nil, map[string]any{"capacity": q.capacity})
		}
		if !q.buf.TryAdd(msg) {
			fatalf("messagequeue: insertion failed immediately after freeing a slot")
		}
	}
	q.items.Release(1)
}

// TakeMessageAsync suspends until a message is available, returning it,
// or fails with *CancelledError if ctx is done first.
func (q *MessageQueue) TakeMessageAsync(ctx context.Context) (QueuedMessage, error) {
	var zero QueuedMessage
	if err := q.items.Acquire(ctx, 1); err != nil {
		return zero, &CancelledError{Cause: err}
	}
	lh, err := q.gate.Lock(context.Background())
	if err != nil {
		return zero, err
	}
	defer lh.Close()

	msg, ok := q.buf.TryTake()
	if !ok {
		fatalf("messagequeue: items permit granted but buffer was empty")
	}
	return msg, nil
}

// TryTakeMessage attempts a non-blocking removal of the oldest buffered
// message.
func (q *MessageQueue) TryTakeMessage() (QueuedMessage, bool) {
	var zero QueuedMessage
	if !q.items.TryAcquire(1) {
		return zero, false
	}
	lh, err := q.gate.Lock(context.Background())
	if err != nil {
		return zero, false
	}
	defer lh.Close()

	msg, ok := q.buf.TryTake()
	if !ok {
		fatalf("messagequeue: items permit granted but buffer was empty")
	}
	return msg, true
}

// Count returns the number of messages currently buffered.
func (q *MessageQueue) Count() int {
	return q.buf.Len()
}

// Capacity returns the queue's configured capacity.
func (q *MessageQueue) Capacity() int {
	return q.capacity
}

// Close unregisters every router binding this queue tracked via
// BindBroadcast/BindKeyed. Already-buffered messages remain available
// to TakeMessageAsync/TryTakeMessage.
func (q *MessageQueue) Close() {
	lh, err := q.gate.Lock(context.Background())
	if err != nil {
		return
	}
	bindings := q.bindings
	q.bindings = nil
	lh.Close()

	for _, b := range bindings {
		b.Close()
	}
}
