package corosync

import "sync/atomic"

// waiterStatus is the terminal status of a waiter. A waiter starts
// pending and transitions exactly once, via a CAS race between
// whichever of activate/cancel gets there first, to one of the two
// terminal states below.
type waiterStatus int32

const (
	waiterPending waiterStatus = iota
	waiterActivated
	waiterCancelled
)

// waiter is a completion cell: a future-like value created when a
// caller suspends on a FIFO-fair primitive (Mutex, ReaderWriterLock),
// completed exactly once, and used by the caller to resume.
//
// ready is closed exactly once, by whichever of activate/cancel wins
// the CAS on status; the loser observes the already-closed channel and
// reads the status the winner installed. This is a one-shot broadcast
// with a single winner, rather than an idempotent no-op loser.
type waiter struct {
	status atomic.Int32
	ready  chan struct{}
}

func newWaiter() *waiter {
	return &waiter{ready: make(chan struct{})}
}

// activate transitions Pending -> Activated. Reports whether this call
// performed the transition (false if the waiter was already terminal,
// e.g. raced by a concurrent cancellation).
func (w *waiter) activate() bool {
	if w.status.CompareAndSwap(int32(waiterPending), int32(waiterActivated)) {
		close(w.ready)
		return true
	}
	return false
}

// cancel transitions Pending -> Cancelled. Reports whether this call
// performed the transition (false if a concurrent activate already won).
func (w *waiter) cancel() bool {
	if w.status.CompareAndSwap(int32(waiterPending), int32(waiterCancelled)) {
		close(w.ready)
		return true
	}
	return false
}

// Status returns the waiter's current terminal status, or waiterPending
// if it has not yet completed. Only meaningful to call after <-w.ready,
// except for diagnostics.
func (w *waiter) Status() waiterStatus {
	return waiterStatus(w.status.Load())
}
