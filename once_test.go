package corosync

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOnceFlag_SingleCaller(t *testing.T) {
	var f OnceFlag
	assert.False(t, f.IsSet())
	assert.True(t, f.TrySet())
	assert.True(t, f.IsSet())
	assert.False(t, f.TrySet())
	assert.False(t, f.TrySet())
}

func TestOnceFlag_ConcurrentCallersExactlyOneWins(t *testing.T) {
	const goroutines = 20000

	var f OnceFlag
	var winners atomic.Int64
	var wg sync.WaitGroup
	wg.Add(goroutines)
	start := make(chan struct{})

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			<-start
			if f.TrySet() {
				winners.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, winners.Load())
	assert.True(t, f.IsSet())
}
