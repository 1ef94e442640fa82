package corosync

import (
	"context"
	"sync"
)

// rwPhase is the ReaderWriterLock's tagged state, one of four phases
// with a fixed invariant over reading/pendingWriters/pendingReaders.
// Transitions are total and centralized below rather than dispatched
// per-phase via subclassing, so every transition is auditable in one
// place.
type rwPhase int

const (
	rwIdle rwPhase = iota
	rwReading
	rwPendingWrite
	rwWriting
)

func (p rwPhase) String() string {
	switch p {
	case rwIdle:
		return "Idle"
	case rwReading:
		return "Reading"
	case rwPendingWrite:
		return "PendingWrite"
	case rwWriting:
		return "Writing"
	default:
		return "Unknown"
	}
}

// ReaderWriterLock is a writer-preferring, FIFO-fair, cancellable
// reader/writer lock: once a writer is queued, new readers park behind
// it, but if every queued writer disappears (released or cancelled)
// before its turn, the readers parked behind it are batch-activated.
//
// Reentrant acquisition (a holder re-acquiring, in either mode) and
// reader-to-writer upgrade are not supported.
type ReaderWriterLock struct {
	mu sync.Mutex // protects the fields below; never held across a suspension

	phase rwPhase

	// reading holds every currently active reader.
	reading []*waiter
	// pendingWriters holds queued writers; index 0 holds the lock
	// while phase == rwWriting.
	pendingWriters []*waiter
	// pendingReaders holds readers parked behind a writer.
	pendingReaders []*waiter
}

// NewReaderWriterLock returns a lock starting in the Idle phase.
func NewReaderWriterLock() *ReaderWriterLock {
	return &ReaderWriterLock{}
}

// WaitForRead suspends until read access is granted or ctx is done.
func (l *ReaderWriterLock) WaitForRead(ctx context.Context) (ReleaseHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, &CancelledError{Cause: err}
	}

	w := newWaiter()
	l.mu.Lock()
	switch l.phase {
	case rwIdle:
		l.reading = append(l.reading, w)
		w.activate()
		l.phase = rwReading
	case rwReading:
		l.reading = append(l.reading, w)
		w.activate()
	case rwPendingWrite, rwWriting:
		l.pendingReaders = append(l.pendingReaders, w)
	default:
		fatalf("rwlock: WaitForRead: unknown phase %v", l.phase)
	}
	l.mu.Unlock()

	if w.Status() == waiterActivated {
		return NewScopedRelease(func() { l.releaseReader(w) }), nil
	}

	select {
	case <-w.ready:
	case <-ctx.Done():
		w.cancel()
		<-w.ready
	}

	if w.Status() == waiterCancelled {
		l.cancelPendingReader(w)
		return nil, &CancelledError{Cause: ctx.Err()}
	}
	return NewScopedRelease(func() { l.releaseReader(w) }), nil
}

// WaitForWrite suspends until exclusive access is granted or ctx is done.
func (l *ReaderWriterLock) WaitForWrite(ctx context.Context) (ReleaseHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, &CancelledError{Cause: err}
	}

	w := newWaiter()
	l.mu.Lock()
	switch l.phase {
	case rwIdle:
		l.pendingWriters = append(l.pendingWriters, w)
		w.activate()
		l.phase = rwWriting
	case rwReading:
		l.pendingWriters = append(l.pendingWriters, w)
		l.phase = rwPendingWrite
	case rwPendingWrite, rwWriting:
		l.pendingWriters = append(l.pendingWriters, w)
	default:
		fatalf("rwlock: WaitForWrite: unknown phase %v", l.phase)
	}
	l.mu.Unlock()

	if w.Status() == waiterActivated {
		return NewScopedRelease(func() { l.releaseWriter(w) }), nil
	}

	select {
	case <-w.ready:
	case <-ctx.Done():
		w.cancel()
		<-w.ready
	}

	if w.Status() == waiterCancelled {
		l.cancelPendingWriter(w)
		return nil, &CancelledError{Cause: ctx.Err()}
	}
	return NewScopedRelease(func() { l.releaseWriter(w) }), nil
}

// TryEnterRead acquires read access without suspending. It succeeds
// only in the Idle or Reading phase.
func (l *ReaderWriterLock) TryEnterRead() (ReleaseHandle, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.phase != rwIdle && l.phase != rwReading {
		return nil, false
	}
	w := newWaiter()
	w.activate()
	l.reading = append(l.reading, w)
	l.phase = rwReading
	return NewScopedRelease(func() { l.releaseReader(w) }), true
}

// TryEnterWrite acquires exclusive access without suspending. It
// succeeds only in the Idle phase.
func (l *ReaderWriterLock) TryEnterWrite() (ReleaseHandle, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.phase != rwIdle {
		return nil, false
	}
	w := newWaiter()
	w.activate()
	l.pendingWriters = append(l.pendingWriters, w)
	l.phase = rwWriting
	return NewScopedRelease(func() { l.releaseWriter(w) }), true
}

// releaseReader handles an explicit reader release.
func (l *ReaderWriterLock) releaseReader(w *waiter) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !removeWaiter(&l.reading, w) {
		return // already removed (double release guarded upstream by OnceFlag)
	}

	if len(l.reading) != 0 {
		return
	}

	switch l.phase {
	case rwPendingWrite:
		if len(l.pendingWriters) == 0 {
			fatalf("rwlock: PendingWrite phase with no pending writers")
		}
		l.pendingWriters[0].activate()
		l.phase = rwWriting
	case rwReading:
		l.phase = rwIdle
	default:
		fatalf("rwlock: reading emptied in phase %v", l.phase)
	}
}

// cancelPendingReader handles a reader parked behind a writer being
// cancelled before activation; it never triggers a phase transition.
func (l *ReaderWriterLock) cancelPendingReader(w *waiter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	removeWaiter(&l.pendingReaders, w)
}

// releaseWriter handles an explicit release by the current holder
// (always index 0 of pendingWriters while phase == rwWriting).
func (l *ReaderWriterLock) releaseWriter(w *waiter) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.pendingWriters) == 0 || l.pendingWriters[0] != w {
		return // already removed
	}
	l.pendingWriters = l.pendingWriters[1:]
	l.afterWriterRemoved(true)
}

// cancelPendingWriter handles a queued (not-yet-active) writer being
// cancelled. An activated writer has already won its CAS race and
// cannot be cancelled afterward, but a cancelled writer can still be at
// the front of pendingWriters: in PendingWrite, where the front is not
// yet the holder, and in Writing, when the writer's cancellation beat
// the activate that handed it the lock.
func (l *ReaderWriterLock) cancelPendingWriter(w *waiter) {
	l.mu.Lock()
	defer l.mu.Unlock()

	wasFront := len(l.pendingWriters) > 0 && l.pendingWriters[0] == w
	if !removeWaiter(&l.pendingWriters, w) {
		return
	}
	l.afterWriterRemoved(wasFront)
}

// afterWriterRemoved centralizes the transition that follows any
// removal of a pendingWriters entry, whether by explicit release or by
// cancellation. In Writing, wasFront distinguishes "the head writer
// just left" from "a writer parked behind the holder vanished"; in
// PendingWrite it is ignored, and the merge runs once no writer is left.
func (l *ReaderWriterLock) afterWriterRemoved(wasFront bool) {
	switch l.phase {
	case rwWriting:
		if !wasFront {
			return // a parked writer behind the holder disappeared; holder unaffected
		}
		if len(l.pendingWriters) > 0 {
			l.pendingWriters[0].activate()
			return
		}
		if len(l.pendingReaders) > 0 {
			l.mergePendingReaders()
			l.phase = rwReading
			return
		}
		l.phase = rwIdle
	case rwPendingWrite:
		if len(l.pendingWriters) == 0 {
			l.mergePendingReaders()
			l.phase = rwReading
		}
		// else: remain PendingWrite; readers stay parked behind the
		// writers still ahead of them.
	default:
		fatalf("rwlock: afterWriterRemoved called in phase %v", l.phase)
	}
}

// mergePendingReaders activates every reader parked behind a pending
// writer and moves it into the active reading set. This is the
// operation the PendingWrite phase exists to make possible: an earlier
// writer being cancelled must not strand readers that queued after it.
func (l *ReaderWriterLock) mergePendingReaders() {
	for _, r := range l.pendingReaders {
		r.activate()
	}
	l.reading = append(l.reading, l.pendingReaders...)
	l.pendingReaders = nil
}

// removeWaiter deletes w from *s, preserving order, and reports whether
// it was found.
func removeWaiter(s *[]*waiter, w *waiter) bool {
	for i, x := range *s {
		if x == w {
			*s = append((*s)[:i], (*s)[i+1:]...)
			return true
		}
	}
	return false
}

// Metrics returns a point-in-time snapshot of the lock's waiter counts,
// for monitoring/diagnostics only — corosync exposes no inspection of
// waiter identity or order.
func (l *ReaderWriterLock) Metrics() RWLockMetrics {
	l.mu.Lock()
	defer l.mu.Unlock()
	return RWLockMetrics{
		Phase:          l.phase.String(),
		ActiveReaders:  len(l.reading),
		PendingWriters: len(l.pendingWriters),
		PendingReaders: len(l.pendingReaders),
	}
}

// RWLockMetrics is a snapshot returned by ReaderWriterLock.Metrics.
type RWLockMetrics struct {
	Phase          string
	ActiveReaders  int
	PendingWriters int
	PendingReaders int
}
