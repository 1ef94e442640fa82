// Copyright 2026 corosync contributors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package corosync

import (
	"runtime"
	"sync/atomic"
	"time"
)

const (
	spinStartingBackoff = 50 * time.Microsecond
	spinMaxBackoff      = 500 * time.Millisecond
	spinBackoffFactor   = 2
	// spinYields is how many bare runtime.Gosched rounds are tried
	// before escalating to a timed sleep; single-processor hosts skip
	// straight to sleeping since yielding cannot let another thread run.
	spinYields = 4
)

// spinGate is a CAS spinlock guarding the mutex's own waiter queue. It
// cooperates with the scheduler via exponential-backoff yield/sleep so
// contention on the inner gate never monopolizes a worker: a tight CAS
// loop would burn a core waiting on what is, by construction, an
// extremely short critical section (a list splice), but under heavy
// contention even that needs to back off.
type spinGate struct {
	locked atomic.Bool
}

func (g *spinGate) Lock() {
	if g.locked.CompareAndSwap(false, true) {
		return
	}

	backoff := spinStartingBackoff
	singleCPU := runtime.GOMAXPROCS(0) == 1
	for attempt := 0; ; attempt++ {
		if singleCPU || attempt >= spinYields {
			time.Sleep(backoff)
			backoff *= spinBackoffFactor
			if backoff > spinMaxBackoff {
				backoff = spinMaxBackoff
			}
		} else {
			runtime.Gosched()
		}
		if g.locked.CompareAndSwap(false, true) {
			return
		}
	}
}

func (g *spinGate) Unlock() {
	g.locked.Store(false)
}

// NewSpinMutex returns a Mutex whose internal waiter queue is protected
// by a spinning compare-and-swap gate with exponential backoff, rather
// than an OS mutex. Useful when the gate's critical section (a list
// splice) is so short that a native mutex's syscall-adjacent overhead
// would dominate under light contention.
func NewSpinMutex() Mutex {
	return newFifoMutex(&spinGate{})
}
