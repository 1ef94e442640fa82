package corosync

import "sync/atomic"

// OnceFlag is a lock-free one-shot latch: Unset -> Set, exactly once,
// under unbounded concurrent callers. It never resets and never
// allocates or suspends. Used in corosync for idempotent release
// (ScopedRelease, AsyncScopedRelease); waiter completion uses its own
// CAS on a status word instead.
type OnceFlag struct {
	set atomic.Bool
}

// IsSet reports whether TrySet has ever succeeded.
func (f *OnceFlag) IsSet() bool {
	return f.set.Load()
}

// TrySet atomically flips the flag from Unset to Set and reports
// whether this call performed that transition. Exactly one caller
// among any number of concurrent TrySet calls observes true: the
// transition succeeds iff the previous value was Unset, not merely
// because the flag now reads Set — every call after the first also
// leaves it Set, but only the one that actually moved it there
// reports success.
func (f *OnceFlag) TrySet() bool {
	return f.set.CompareAndSwap(false, true)
}
