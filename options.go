package hostexec

import (
	"errors"
	"runtime"

	"github.com/joeycumines/logiface"
)

// contextOptions holds configuration for New.
type contextOptions struct {
	allocator      Allocator
	queue          WorkQueue
	logger         *logiface.Logger[logiface.Event]
	sink           DiagnosticSink
	parallelism    int
	blockingLimit  int
	metricsEnabled bool
}

// Option configures a [HostContext] instance.
type Option interface {
	apply(*contextOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyFunc func(*contextOptions) error
}

func (o *optionImpl) apply(opts *contextOptions) error {
	return o.applyFunc(opts)
}

// WithAllocator sets the allocator byte allocations route through.
// Defaults to [NewHeapAllocator]. The context assumes ownership for
// leak accounting at Close, but does not otherwise manage it.
func WithAllocator(a Allocator) Option {
	return &optionImpl{func(opts *contextOptions) error {
		if a == nil {
			return errors.New(`hostexec: nil allocator`)
		}
		opts.allocator = a
		return nil
	}}
}

// WithWorkQueue sets the work queue tasks are submitted to. When
// provided, the context treats it as externally owned: Close neither
// quiesces nor stops it, since other producers may share it. Defaults
// to an internally owned pooled queue, which Close does drain and stop.
func WithWorkQueue(q WorkQueue) Option {
	return &optionImpl{func(opts *contextOptions) error {
		if q == nil {
			return errors.New(`hostexec: nil work queue`)
		}
		opts.queue = q
		return nil
	}}
}

// WithLogger sets the structured logger used for internal events
// (isolated continuation panics, lifecycle, cancellation) and, unless
// overridden via [WithDiagnosticSink], for emitted diagnostics.
// A nil logger is accepted and disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *contextOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithDiagnosticSink installs the callable invoked by
// [HostContext.EmitError]. Defaults to logging through the configured
// logger.
func WithDiagnosticSink(sink DiagnosticSink) Option {
	return &optionImpl{func(opts *contextOptions) error {
		if sink == nil {
			return errors.New(`hostexec: nil diagnostic sink`)
		}
		opts.sink = sink
		return nil
	}}
}

// WithParallelism sets the worker count of the internally owned queue.
// Ignored when [WithWorkQueue] is used. Zero selects the default
// (GOMAXPROCS); negative values are rejected.
func WithParallelism(n int) Option {
	return &optionImpl{func(opts *contextOptions) error {
		if n < 0 {
			return errors.New(`hostexec: negative parallelism`)
		}
		opts.parallelism = n
		return nil
	}}
}

// WithBlockingLimit caps concurrently running blocking tasks on the
// internally owned queue. Ignored when [WithWorkQueue] is used. Zero
// selects the default (8x parallelism); negative values are rejected.
func WithBlockingLimit(n int) Option {
	return &optionImpl{func(opts *contextOptions) error {
		if n < 0 {
			return errors.New(`hostexec: negative blocking limit`)
		}
		opts.blockingLimit = n
		return nil
	}}
}

// WithMetrics enables counter collection, exposed via
// [HostContext.Metrics]. Disabled by default; recording calls are
// no-ops when disabled.
func WithMetrics(enabled bool) Option {
	return &optionImpl{func(opts *contextOptions) error {
		opts.metricsEnabled = enabled
		return nil
	}}
}

// resolveContextOptions applies Option instances over the defaults.
func resolveContextOptions(opts []Option) (*contextOptions, error) {
	cfg := &contextOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue // skip nil options gracefully
		}
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.allocator == nil {
		cfg.allocator = NewHeapAllocator()
	}
	if cfg.parallelism == 0 {
		cfg.parallelism = runtime.GOMAXPROCS(0)
	}
	return cfg, nil
}
