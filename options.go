// Copyright 2026 corosync contributors
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this
// copyright notice appears in all copies.

package corosync

// Option configures a corosync primitive at construction time: an
// unexported config struct, a functional-option interface wrapping a
// closure, and a resolve* helper that applies options in order and
// short-circuits on the first error.
type Option interface {
	apply(*config) error
}

type config struct {
	dispatchConcurrency int
}

type optionFunc struct {
	fn func(*config) error
}

func (o optionFunc) apply(c *config) error { return o.fn(c) }

// WithDispatchConcurrency bounds how many MessageRouter handlers a single
// Publish call invokes concurrently. n <= 0 means unbounded (the
// default): every registered handler is invoked concurrently.
func WithDispatchConcurrency(n int) Option {
	return optionFunc{func(c *config) error {
		c.dispatchConcurrency = n
		return nil
	}}
}

func resolveOptions(opts []Option) (*config, error) {
	cfg := &config{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
