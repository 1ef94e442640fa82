package corosync

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"weak"

	"golang.org/x/sync/errgroup"
)

// Handler is invoked once per matching subscription when a message is
// published. It receives the key passed to Publish (for a keyed router,
// as the publisher spelled it, before case folding) and the message
// value.
type Handler func(ctx context.Context, key string, message any) error

// PublishResult summarizes a single MessageRouter.Publish call: how
// many handlers were invoked, and the folded error (if any) — never
// raised, always returned via this struct.
type PublishResult struct {
	ReceiverCount uint
	Err           error
}

// subscription is a (bindingKey, handler) tuple. Its release handle
// holds a weak back-reference to the owning router so that unregistering
// tolerates the router having already been garbage-collected — a
// missing router is a no-op.
type subscription struct {
	key      string
	handler  Handler
	identity uintptr // reflect.ValueOf(handler).Pointer(), for identity dedup
}

// handlerIdentity extracts a best-effort identity for a Handler value.
// Go function values are not comparable, so this compares code pointers,
// which cannot distinguish two distinct closures sharing the same
// underlying function literal. It is sufficient for the common case:
// rejecting an accidental double-Register of the exact same handler
// value.
func handlerIdentity(h Handler) uintptr {
	return reflect.ValueOf(h).Pointer()
}

// dispatch runs handler over a snapshot of subscriptions matching key,
// concurrently, de-duplicating by handler identity, and folds every
// failure into an *AggregateError.
func dispatch(ctx context.Context, cfg *config, key string, message any, subs []*subscription) PublishResult {
	seen := make(map[uintptr]bool, len(subs))
	distinct := subs[:0:0]
	for _, s := range subs {
		if seen[s.identity] {
			continue
		}
		seen[s.identity] = true
		distinct = append(distinct, s)
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	if cfg != nil && cfg.dispatchConcurrency > 0 {
		g.SetLimit(cfg.dispatchConcurrency)
	}

	for _, s := range distinct {
		s := s
		g.Go(func() error {
			err := invokeHandler(ctx, s.handler, key, message)
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil // errors are folded below, not via errgroup's own short-circuit
		})
	}
	_ = g.Wait()

	result := PublishResult{ReceiverCount: uint(len(distinct))}
	if len(errs) > 0 {
		result.Err = &AggregateError{Errors: errs}
	}
	return result
}

// PanicError wraps a panic value recovered from a MessageRouter handler
// invocation, so one misbehaving handler cannot take down Publish.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return "corosync: handler panicked"
}

// invokeHandler runs handler, converting any recovered panic into a
// *PanicError so a single misbehaving handler cannot take the whole
// Publish dispatch down with it.
func invokeHandler(ctx context.Context, handler Handler, key string, message any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return handler(ctx, key, message)
}

// normalizeKey implements the keyed router's case-insensitive comparison.
func normalizeKey(key string) string {
	return strings.ToLower(key)
}

// --- Broadcast router -------------------------------------------------

// BroadcastRouter holds a flat, immutable, copy-on-write array of
// handlers. Publish invokes every distinct registered handler and
// reports the receiver count as of that snapshot.
type BroadcastRouter struct {
	gate Mutex
	subs atomic.Pointer[[]*subscription]
	cfg  *config
}

// NewBroadcastRouter creates an empty BroadcastRouter.
func NewBroadcastRouter(opts ...Option) (*BroadcastRouter, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	r := &BroadcastRouter{gate: NewSpinMutex(), cfg: cfg}
	empty := []*subscription{}
	r.subs.Store(&empty)
	return r, nil
}

// Register adds handler to the broadcast set under bindingKey (used
// only to detect duplicate registration, not for dispatch filtering —
// broadcast delivers to every handler regardless of key). It fails with
// *InvalidArgumentError if handler is nil, or *InvalidStateError if the
// exact (bindingKey, handler) pair is already registered.
func (r *BroadcastRouter) Register(ctx context.Context, bindingKey string, handler Handler) (ReleaseHandle, error) {
	if handler == nil {
		return nil, &InvalidArgumentError{Message: "handler must not be nil"}
	}
	h, err := r.gate.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	identity := handlerIdentity(handler)
	old := *r.subs.Load()
	for _, s := range old {
		if s.key == bindingKey && s.identity == identity {
			return nil, &InvalidStateError{Message: "handler already registered under this binding key"}
		}
	}

	sub := &subscription{key: bindingKey, handler: handler, identity: identity}
	next := make([]*subscription, len(old), len(old)+1)
	copy(next, old)
	next = append(next, sub)
	r.subs.Store(&next)

	logEvent("router", LevelDebug, "handler registered", nil, map[string]any{"key": bindingKey})

	weakRouter := weak.Make(r)
	return NewScopedRelease(func() { unregisterBroadcast(weakRouter, sub) }), nil
}

func unregisterBroadcast(weakRouter weak.Pointer[BroadcastRouter], sub *subscription) {
	r := weakRouter.Value()
	if r == nil {
		return // router already collected: no-op
	}
	ctx := context.Background()
	h, err := r.gate.Lock(ctx)
	if err != nil {
		return
	}
	defer h.Close()

	old := *r.subs.Load()
	next := make([]*subscription, 0, len(old))
	for _, s := range old {
		if s != sub {
			next = append(next, s)
		}
	}
	r.subs.Store(&next)
}

// Publish dispatches message to every distinct registered handler
// concurrently. The publish key passed to handlers is key; it plays no
// role in filtering for a broadcast router (every handler always
// receives every message).
func (r *BroadcastRouter) Publish(ctx context.Context, key string, message any) PublishResult {
	snapshot := *r.subs.Load()
	return dispatch(ctx, r.cfg, key, message, snapshot)
}

// --- Keyed router -------------------------------------------------

// KeyedRouter holds a map from (case-insensitive) key to an immutable,
// copy-on-write array of subscriptions. Publish under key k invokes
// only subscriptions registered under k.
type KeyedRouter struct {
	gate Mutex
	subs atomic.Pointer[map[string][]*subscription]
	cfg  *config
}

// NewKeyedRouter creates an empty KeyedRouter.
func NewKeyedRouter(opts ...Option) (*KeyedRouter, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	r := &KeyedRouter{gate: NewSpinMutex(), cfg: cfg}
	empty := map[string][]*subscription{}
	r.subs.Store(&empty)
	return r, nil
}

// Register adds handler under key. It fails with *InvalidArgumentError
// if handler is nil or key is empty, or *InvalidStateError if the exact
// (key, handler) pair is already registered.
func (r *KeyedRouter) Register(ctx context.Context, key string, handler Handler) (ReleaseHandle, error) {
	if handler == nil {
		return nil, &InvalidArgumentError{Message: "handler must not be nil"}
	}
	if key == "" {
		return nil, &InvalidArgumentError{Message: "key must not be empty"}
	}
	normalized := normalizeKey(key)

	h, err := r.gate.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	identity := handlerIdentity(handler)
	oldMap := *r.subs.Load()
	for _, s := range oldMap[normalized] {
		if s.identity == identity {
			return nil, &InvalidStateError{Message: "handler already registered under this key"}
		}
	}

	sub := &subscription{key: normalized, handler: handler, identity: identity}
	nextMap := make(map[string][]*subscription, len(oldMap)+1)
	for k, v := range oldMap {
		nextMap[k] = v
	}
	existing := nextMap[normalized]
	next := make([]*subscription, len(existing), len(existing)+1)
	copy(next, existing)
	nextMap[normalized] = append(next, sub)
	r.subs.Store(&nextMap)

	logEvent("router", LevelDebug, "handler registered", nil, map[string]any{"key": normalized})

	weakRouter := weak.Make(r)
	return NewScopedRelease(func() { unregisterKeyed(weakRouter, normalized, sub) }), nil
}

func unregisterKeyed(weakRouter weak.Pointer[KeyedRouter], key string, sub *subscription) {
	r := weakRouter.Value()
	if r == nil {
		return
	}
	ctx := context.Background()
	h, err := r.gate.Lock(ctx)
	if err != nil {
		return
	}
	defer h.Close()

	oldMap := *r.subs.Load()
	existing := oldMap[key]
	next := make([]*subscription, 0, len(existing))
	for _, s := range existing {
		if s != sub {
			next = append(next, s)
		}
	}

	nextMap := make(map[string][]*subscription, len(oldMap))
	for k, v := range oldMap {
		nextMap[k] = v
	}
	if len(next) == 0 {
		delete(nextMap, key)
	} else {
		nextMap[key] = next
	}
	r.subs.Store(&nextMap)
}

// Publish dispatches message to every distinct handler registered under
// key (case-insensitive).
func (r *KeyedRouter) Publish(ctx context.Context, key string, message any) PublishResult {
	snapshot := (*r.subs.Load())[normalizeKey(key)]
	return dispatch(ctx, r.cfg, key, message, snapshot)
}
