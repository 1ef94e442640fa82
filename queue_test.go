package corosync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundedAsyncQueue_FIFOOrder(t *testing.T) {
	q, err := NewBoundedAsyncQueue[int](NewFIFOCollection[int](4), 4)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		require.NoError(t, q.Add(context.Background(), i))
	}
	assert.Equal(t, 4, q.Count())

	for i := 0; i < 4; i++ {
		v, err := q.Take(context.Background())
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	assert.Equal(t, 0, q.Count())
}

func TestBoundedAsyncQueue_LIFOOrder(t *testing.T) {
	q, err := NewBoundedAsyncQueue[int](NewLIFOCollection[int](4), 4)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		require.NoError(t, q.Add(context.Background(), i))
	}

	for i := 3; i >= 0; i-- {
		v, err := q.Take(context.Background())
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
}

func TestBoundedAsyncQueue_AddBlocksWhenFull(t *testing.T) {
	q, err := NewBoundedAsyncQueue[int](NewFIFOCollection[int](1), 1)
	require.NoError(t, err)

	require.NoError(t, q.Add(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err = q.Add(ctx, 2)
	require.Error(t, err)
	var cancelled *CancelledError
	assert.ErrorAs(t, err, &cancelled)
}

func TestBoundedAsyncQueue_TakeBlocksWhenEmptyThenUnblocks(t *testing.T) {
	q, err := NewBoundedAsyncQueue[int](NewFIFOCollection[int](1), 1)
	require.NoError(t, err)

	result := make(chan int, 1)
	go func() {
		v, err := q.Take(context.Background())
		if err == nil {
			result <- v
		}
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-result:
		t.Fatal("Take returned before any item was added")
	default:
	}

	require.NoError(t, q.Add(context.Background(), 42))

	select {
	case v := <-result:
		assert.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("Take never unblocked after Add")
	}
}

func TestBoundedAsyncQueue_TryAddTryTake(t *testing.T) {
	q, err := NewBoundedAsyncQueue[int](NewFIFOCollection[int](1), 1)
	require.NoError(t, err)

	assert.True(t, q.TryAdd(1))
	assert.False(t, q.TryAdd(2))

	v, ok := q.TryTake()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = q.TryTake()
	assert.False(t, ok)
}

func TestBoundedAsyncQueue_Unbounded(t *testing.T) {
	q := NewUnboundedAsyncQueue[int](NewFIFOCollection[int](1000))
	for i := 0; i < 1000; i++ {
		assert.True(t, q.TryAdd(i))
	}
	assert.Equal(t, 0, q.Capacity())
}

func TestBoundedAsyncQueue_RejectsOversizedInitialCollection(t *testing.T) {
	c := NewFIFOCollection[int](4)
	c.TryAdd(1)
	c.TryAdd(2)
	_, err := NewBoundedAsyncQueue[int](c, 1)
	require.Error(t, err)
	var invalidArg *InvalidArgumentError
	assert.ErrorAs(t, err, &invalidArg)
}

func TestBoundedAsyncQueue_ConcurrentProducersConsumers(t *testing.T) {
	const n = 2000
	q, err := NewBoundedAsyncQueue[int](NewFIFOCollection[int](16), 16)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			require.NoError(t, q.Add(context.Background(), i))
		}
	}()

	sum := 0
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			v, err := q.Take(context.Background())
			require.NoError(t, err)
			sum += v
		}
	}()
	wg.Wait()

	expected := n * (n - 1) / 2
	assert.Equal(t, expected, sum)
}

func TestConsumingStream_IterationAndClose(t *testing.T) {
	q, err := NewBoundedAsyncQueue[int](NewFIFOCollection[int](4), 4)
	require.NoError(t, err)
	require.NoError(t, q.Add(context.Background(), 1))
	require.NoError(t, q.Add(context.Background(), 2))

	stream := q.ConsumingStream(context.Background())
	v, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = stream.Next()
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	done := make(chan error, 1)
	go func() {
		_, err := stream.Next()
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	stream.Close()

	select {
	case err := <-done:
		require.Error(t, err)
		var cancelled *CancelledError
		assert.ErrorAs(t, err, &cancelled)
	case <-time.After(time.Second):
		t.Fatal("Next never unblocked after Close")
	}
}

func TestConsumingStream_ConcurrentNextRejected(t *testing.T) {
	q, err := NewBoundedAsyncQueue[int](NewFIFOCollection[int](4), 4)
	require.NoError(t, err)
	stream := q.ConsumingStream(context.Background())
	defer stream.Close()

	started := make(chan struct{})
	go func() {
		close(started)
		_, _ = stream.Next()
	}()
	<-started
	time.Sleep(20 * time.Millisecond)

	_, err = stream.Next()
	require.Error(t, err)
	var invalidState *InvalidStateError
	assert.ErrorAs(t, err, &invalidState)
}
