package corosync

import "context"

// LockFunc acquires m, runs fn while holding it, and releases it before
// returning — a with-statement-shaped convenience over Mutex.Lock that
// cannot forget to Close the handle, including on panic.
func LockFunc(ctx context.Context, m Mutex, fn func(ctx context.Context) error) error {
	h, err := m.Lock(ctx)
	if err != nil {
		return err
	}
	defer h.Close()
	return fn(ctx)
}

// WithLock is LockFunc specialized to fn that cannot itself fail.
func WithLock(ctx context.Context, m Mutex, fn func(ctx context.Context)) error {
	return LockFunc(ctx, m, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

// RLockFunc acquires l for reading, runs fn, and releases it before
// returning.
func RLockFunc(ctx context.Context, l *ReaderWriterLock, fn func(ctx context.Context) error) error {
	h, err := l.WaitForRead(ctx)
	if err != nil {
		return err
	}
	defer h.Close()
	return fn(ctx)
}

// WLockFunc acquires l for writing, runs fn, and releases it before
// returning.
func WLockFunc(ctx context.Context, l *ReaderWriterLock, fn func(ctx context.Context) error) error {
	h, err := l.WaitForWrite(ctx)
	if err != nil {
		return err
	}
	defer h.Close()
	return fn(ctx)
}
