package kernel

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultCores       = 2
	DefaultTickPeriod  = time.Millisecond
	DefaultMaxTasks    = 32
	DefaultStackSize   = 2 << 10
	DefaultStackMemory = 64 << 10
)

type options struct {
	cores        int
	tickPeriod   time.Duration
	maxTasks     int
	stackSize    int
	stackMemory  int
	initialTick  Tick
	affinity     bool
	logger       zerolog.Logger
	tickSource   func(core int, period time.Duration) TickSource
	faultHandler func(*FaultError)
}

// Option configures a Kernel.
type Option interface {
	apply(*options) error
}

type optionImpl struct {
	applyFunc func(*options) error
}

func (o *optionImpl) apply(opts *options) error {
	return o.applyFunc(opts)
}

// WithCores sets the number of simulated processors, each with its own
// scheduler and tick source.
func WithCores(n int) Option {
	return &optionImpl{func(opts *options) error {
		if n < 1 {
			return fmt.Errorf("kernel: invalid core count %d", n)
		}
		opts.cores = n
		return nil
	}}
}

// WithTickPeriod sets the interval between two ticks of every core.
func WithTickPeriod(d time.Duration) Option {
	return &optionImpl{func(opts *options) error {
		if d <= 0 {
			return fmt.Errorf("kernel: invalid tick period %s", d)
		}
		opts.tickPeriod = d
		return nil
	}}
}

// WithMaxTasks sets the number of task slots in the arena.
func WithMaxTasks(n int) Option {
	return &optionImpl{func(opts *options) error {
		if n < 1 {
			return fmt.Errorf("kernel: invalid task limit %d", n)
		}
		opts.maxTasks = n
		return nil
	}}
}

// WithStackSize sets the stack size given to tasks created without an
// explicit size.
func WithStackSize(size int) Option {
	return &optionImpl{func(opts *options) error {
		if size < 1 {
			return fmt.Errorf("kernel: invalid stack size %d", size)
		}
		opts.stackSize = size
		return nil
	}}
}

// WithStackMemory sets the size of the memory region task stacks are carved
// from.
func WithStackMemory(size int) Option {
	return &optionImpl{func(opts *options) error {
		if size < bytesPerBlock {
			return fmt.Errorf("kernel: invalid stack memory size %d", size)
		}
		opts.stackMemory = size
		return nil
	}}
}

// WithInitialTick sets the tick counter value every core starts at.
func WithInitialTick(t Tick) Option {
	return &optionImpl{func(opts *options) error {
		opts.initialTick = t
		return nil
	}}
}

// WithThreadAffinity pins the OS thread of every task and scheduler loop to
// a single host CPU per simulated core, where the host supports it.
func WithThreadAffinity(enabled bool) Option {
	return &optionImpl{func(opts *options) error {
		opts.affinity = enabled
		return nil
	}}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return &optionImpl{func(opts *options) error {
		opts.logger = l
		return nil
	}}
}

// WithTickSource replaces the periodic tick source of each core.
func WithTickSource(fn func(core int, period time.Duration) TickSource) Option {
	return &optionImpl{func(opts *options) error {
		if fn == nil {
			return fmt.Errorf("kernel: nil tick source")
		}
		opts.tickSource = fn
		return nil
	}}
}

// WithFaultHandler installs a callback invoked after a panicking task has
// been reclaimed. It runs on the scheduler loop of the task's core and must
// not block.
func WithFaultHandler(fn func(*FaultError)) Option {
	return &optionImpl{func(opts *options) error {
		opts.faultHandler = fn
		return nil
	}}
}

func resolveOptions(opts []Option) (*options, error) {
	cfg := &options{
		cores:       DefaultCores,
		tickPeriod:  DefaultTickPeriod,
		maxTasks:    DefaultMaxTasks,
		stackSize:   DefaultStackSize,
		stackMemory: DefaultStackMemory,
		logger:      zerolog.Nop(),
		tickSource: func(_ int, period time.Duration) TickSource {
			return PeriodicTicker{Period: period}
		},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}
	if usable := cfg.stackMemory / bytesPerBlock * bytesPerBlock; cfg.stackSize > usable {
		return nil, fmt.Errorf("kernel: stack size %d exceeds stack memory %d", cfg.stackSize, usable)
	}
	return cfg, nil
}
