// Package corosync provides cooperative, cancellable synchronization
// primitives for programs built around an async/await-style scheduler:
// a FIFO-fair mutex (three interchangeable inner-gate strategies), a
// writer-preferring reader/writer lock, a bounded producer/consumer
// queue, a one-shot latch, and a publish/subscribe message router.
//
// None of the primitives in this package block an OS thread while a
// caller waits; waiters are parked as completion cells and resumed
// in FIFO order as the primitive's state permits. Every suspending
// operation accepts a context.Context and fails with a *CancelledError
// the instant that context is done, restoring the primitive's internal
// state as if the caller had never asked.
package corosync

import (
	"errors"
	"fmt"
)

// CancelledError reports that a suspending operation was cancelled via
// its context before it could complete.
type CancelledError struct {
	Cause error
}

func (e *CancelledError) Error() string {
	if e.Cause == nil {
		return "corosync: operation cancelled"
	}
	return fmt.Sprintf("corosync: operation cancelled: %s", e.Cause)
}

func (e *CancelledError) Unwrap() error { return e.Cause }

// Is reports whether target is also a *CancelledError, regardless of cause.
func (e *CancelledError) Is(target error) bool {
	var other *CancelledError
	return errors.As(target, &other)
}

// InvalidArgumentError reports a malformed argument: a nil handler, an
// empty key where one is required, a non-positive capacity, or an
// initial collection larger than the requested capacity.
type InvalidArgumentError struct {
	Message string
}

func (e *InvalidArgumentError) Error() string {
	if e.Message == "" {
		return "corosync: invalid argument"
	}
	return "corosync: invalid argument: " + e.Message
}

// InvalidStateError reports an operation that is illegal given the
// primitive's current state: duplicate (key, handler) registration,
// overlapping ConsumingStream iteration, or a BoundedAsyncQueue
// collection refusing an insert. Releasing a router subscription whose
// router has already been collected is a silent no-op, not this error.
type InvalidStateError struct {
	Message string
}

func (e *InvalidStateError) Error() string {
	if e.Message == "" {
		return "corosync: invalid state"
	}
	return "corosync: invalid state: " + e.Message
}

// AggregateError folds one or more handler failures from a single
// MessageRouter.Publish call into a single error value. It mirrors the
// shape (and the errors.Is/errors.As multi-unwrap support) of an
// ES2022 AggregateError.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "corosync: aggregate error (empty)"
	case 1:
		return fmt.Sprintf("corosync: 1 handler failed: %s", e.Errors[0])
	default:
		return fmt.Sprintf("corosync: %d handlers failed (first: %s)", len(e.Errors), e.Errors[0])
	}
}

// Unwrap returns the wrapped errors for errors.Is/errors.As multi-error
// matching (Go 1.20+).
func (e *AggregateError) Unwrap() []error { return e.Errors }

// Is reports whether target is also an *AggregateError, regardless of
// contents, so callers can branch on "did publish have any failures"
// without inspecting Errors directly.
func (e *AggregateError) Is(target error) bool {
	var other *AggregateError
	return errors.As(target, &other)
}

// Cause returns the first handler error, or nil if none. Provided for
// callers that only care about a representative underlying cause.
func (e *AggregateError) Cause() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// fatalf panics with a *FatalError. Reaching it means an internal phase
// invariant was violated: a bug in this package, never a caller error.
func fatalf(format string, args ...any) {
	panic(&FatalError{Message: fmt.Sprintf(format, args...)})
}

// FatalError indicates an invariant violation internal to corosync
// (e.g. a reader/writer lock phase predicate was violated). Per spec,
// this is unrecoverable: corosync panics rather than returning it, but
// it implements error so a recover()-based test harness can match on it.
type FatalError struct {
	Message string
}

func (e *FatalError) Error() string { return "corosync: fatal invariant violation: " + e.Message }
