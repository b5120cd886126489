// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package skylut

import (
	"fmt"
	"log/slog"
)

const (
	// DefaultScatteringOrders is the highest scattering order computed by default.
	DefaultScatteringOrders = 4

	// DefaultRingSize is the number of Updaters in a Ring by default.
	DefaultRingSize = 3

	// DefaultFadeTicks is the number of ticks a full cross-fade takes.
	// The weight advances by 1/DefaultFadeTicks per tick.
	DefaultFadeTicks = 19
)

// Option configures an Updater or a Ring during creation.
//
// Example:
//
//	u, err := skylut.NewUpdater(disp, alloc, cfg,
//		skylut.WithScatteringOrders(6),
//		skylut.WithStepSplit(skylut.StepSingleScattering, 4))
type Option func(*options)

// options holds optional configuration for Updaters and Rings.
type options struct {
	orders    int
	splits    Splits
	ringSize  int
	crossFade bool
	fadeTicks int
	binder    Binder
	logger    *slog.Logger
}

// defaultOptions returns the default options.
func defaultOptions() options {
	return options{
		orders:    DefaultScatteringOrders,
		ringSize:  DefaultRingSize,
		fadeTicks: DefaultFadeTicks,
	}
}

func buildOptions(opts []Option) (options, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.orders < 1 {
		return o, fmt.Errorf("%w: scattering orders %d must be >= 1", ErrInvalidOption, o.orders)
	}
	if o.fadeTicks < 1 {
		return o, fmt.Errorf("%w: fade ticks %d must be >= 1", ErrInvalidOption, o.fadeTicks)
	}
	for k, n := range o.splits {
		if n < 0 {
			return o, fmt.Errorf("%w: %s split %d must be >= 0", ErrInvalidOption, StepKind(k), n)
		}
	}
	return o, nil
}

// log returns the configured logger, falling back to the package logger.
func (o *options) log() *slog.Logger {
	if o.logger != nil {
		return o.logger
	}
	return Logger()
}

// WithScatteringOrders sets the highest scattering order computed per run.
// Order 1 is single scattering; n must be at least 1.
func WithScatteringOrders(n int) Option {
	return func(o *options) {
		o.orders = n
	}
}

// WithStepSplit divides every step of the given kind into parts sub-ranges,
// each performed by a separate Advance call. StepCombine ignores splits.
func WithStepSplit(kind StepKind, parts int) Option {
	return func(o *options) {
		if kind >= 0 && kind < stepKindCount {
			o.splits[kind] = parts
		}
	}
}

// WithSplits replaces all per-kind splits at once.
func WithSplits(s Splits) Option {
	return func(o *options) {
		o.splits = s
	}
}

// WithRingSize sets the number of Updaters in a Ring. Ignored by NewUpdater.
func WithRingSize(n int) Option {
	return func(o *options) {
		o.ringSize = n
	}
}

// WithCrossFade enables the cross-fade weight between the two most recent
// completed LUT sets. Requires a ring size of at least 3.
func WithCrossFade(enabled bool) Option {
	return func(o *options) {
		o.crossFade = enabled
	}
}

// WithFadeTicks sets how many ticks a full cross-fade takes.
func WithFadeTicks(n int) Option {
	return func(o *options) {
		o.fadeTicks = n
	}
}

// WithBinder sets the consumer notified when a Ring publishes a LUT set.
// Ignored by NewUpdater.
func WithBinder(b Binder) Option {
	return func(o *options) {
		o.binder = b
	}
}

// WithLogger overrides the package logger for one Updater or Ring.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}
