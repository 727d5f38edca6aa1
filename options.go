// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package forkjoin

import (
	"fmt"
	"runtime"

	"github.com/joeycumines/logiface"
)

// schedOptions holds configuration options for Scheduler creation.
type schedOptions struct {
	workers       int
	logger        *logiface.Logger[logiface.Event]
	pinStrategy   PinStrategy
	parkThreshold int
	metrics       bool
}

// Option configures a Scheduler instance.
type Option interface {
	apply(*schedOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyFunc func(*schedOptions) error
}

func (o *optionImpl) apply(opts *schedOptions) error {
	return o.applyFunc(opts)
}

// WithWorkers sets the pool size. Values below 1 are rejected. The default
// is runtime.NumCPU().
func WithWorkers(n int) Option {
	return &optionImpl{func(opts *schedOptions) error {
		if n < 1 {
			return fmt.Errorf("forkjoin: worker count must be >= 1, got %d", n)
		}
		opts.workers = n
		return nil
	}}
}

// WithLogger sets the structured logger the scheduler logs through. The
// default is nil, which disables logging entirely (logiface treats a nil
// logger as disabled at every level).
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *schedOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithPinning sets the worker-to-CPU binding strategy. The default is
// PinNone. Pinning is best-effort: platforms without affinity support run
// unpinned, and a failed binding is logged and otherwise ignored.
func WithPinning(strategy PinStrategy) Option {
	return &optionImpl{func(opts *schedOptions) error {
		switch strategy {
		case PinNone, PinSequential, PinScatter:
			opts.pinStrategy = strategy
			return nil
		default:
			return fmt.Errorf("forkjoin: unknown pin strategy %d", strategy)
		}
	}}
}

// WithParkThreshold sets the number of consecutive empty scans before an
// idle worker parks on its event-count. Lower values save CPU at the cost
// of wakeup latency on bursty workloads.
func WithParkThreshold(k int) Option {
	return &optionImpl{func(opts *schedOptions) error {
		if k < 1 {
			return fmt.Errorf("forkjoin: park threshold must be >= 1, got %d", k)
		}
		opts.parkThreshold = k
		return nil
	}}
}

// WithMetrics enables collection of runtime counters, available via
// [Scheduler.Metrics]. The overhead is a handful of atomic increments on
// scheduling events; the frame-allocation counter is the only one near the
// hot path. Disabled by default.
func WithMetrics(enabled bool) Option {
	return &optionImpl{func(opts *schedOptions) error {
		opts.metrics = enabled
		return nil
	}}
}

// resolveOptions applies Option instances to schedOptions.
func resolveOptions(opts []Option) (*schedOptions, error) {
	cfg := &schedOptions{
		workers:       runtime.NumCPU(),
		pinStrategy:   PinNone,
		parkThreshold: defaultParkThreshold,
	}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
