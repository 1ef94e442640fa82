package corosync

// ReleaseFunc runs the release action for a handle. It must not itself
// suspend; use an AsyncReleaseFunc (via NewAsyncScopedRelease) when the
// teardown action needs to await something.
type ReleaseFunc func()

// AsyncReleaseFunc is the counterpart of ReleaseFunc for a release
// action that may wait on something and can fail; it takes no context,
// so it cannot be cancelled once started.
type AsyncReleaseFunc func() error

// ReleaseHandle is returned by every acquiring operation in corosync
// (Mutex.Lock, ReaderWriterLock.WaitForRead/WaitForWrite,
// MessageRouter.Register). Close releases the held resource exactly
// once; subsequent calls are no-ops. Handles are not safe to share
// across goroutines that might race to decide whether to release —
// Close itself is safe to call concurrently, but only one logical
// owner should be deciding when to call it.
type ReleaseHandle interface {
	// Close releases the resource. Idempotent: only the first call
	// among any number of concurrent or repeated calls has an effect.
	Close()
}

// ScopedRelease adapts a single ReleaseFunc into an idempotent
// ReleaseHandle, guarded by an OnceFlag so finalizer-driven or
// caller-driven double release can never run the action twice.
type ScopedRelease struct {
	once    OnceFlag
	release ReleaseFunc
}

var _ ReleaseHandle = (*ScopedRelease)(nil)

// NewScopedRelease wraps release in an idempotent handle. release may
// be nil, in which case Close is a no-op beyond consuming the flag.
func NewScopedRelease(release ReleaseFunc) *ScopedRelease {
	return &ScopedRelease{release: release}
}

// Close runs the release action at most once.
func (s *ScopedRelease) Close() {
	if s.once.TrySet() && s.release != nil {
		s.release()
	}
}

// AsyncScopedRelease is the suspending analogue of ScopedRelease: its
// CloseContext variant runs the release action to completion and
// returns its error, while Close (to satisfy ReleaseHandle) discards
// that error. Neither variant can cancel a release in progress.
type AsyncScopedRelease struct {
	once    OnceFlag
	release AsyncReleaseFunc
}

var _ ReleaseHandle = (*AsyncScopedRelease)(nil)

// NewAsyncScopedRelease wraps a suspending release action.
func NewAsyncScopedRelease(release AsyncReleaseFunc) *AsyncScopedRelease {
	return &AsyncScopedRelease{release: release}
}

// Close runs the release action at most once, ignoring its error. Use
// CloseContext to observe failures.
func (s *AsyncScopedRelease) Close() {
	_ = s.CloseContext()
}

// CloseContext runs the release action at most once and returns its
// error. Repeated calls after the first are no-ops returning nil.
func (s *AsyncScopedRelease) CloseContext() error {
	if s.once.TrySet() && s.release != nil {
		return s.release()
	}
	return nil
}
