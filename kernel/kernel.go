// Package kernel implements a cooperative multitasking kernel for a
// multi-processor microcontroller, simulated on the host.
//
// Every processor is a Core with its own scheduler, ready queue, sleep queue
// and tick counter. Tasks run on the core they were created on until they
// suspend themselves (Yield, Sleep, WaitOne, Acquire) or return; they are
// never preempted. The cores share the task arena, the stack memory, the
// semaphores and a set of counters, all behind one cross-core lock.
package kernel

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Kernel is the explicit state of the whole system: one Core per processor
// and the Shared state between them.
type Kernel struct {
	opts    *options
	cores   []*Core
	shared  *Shared
	log     zerolog.Logger
	limiter *catrate.Limiter

	quit      chan struct{}
	closeOnce sync.Once
	running   atomic.Bool
}

// New initializes the per-core and shared structures. Tasks may be created
// before the cores are started.
func New(opts ...Option) (*Kernel, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	k := &Kernel{
		opts:    cfg,
		shared:  newShared(cfg.maxTasks, cfg.stackMemory),
		log:     cfg.logger,
		limiter: newWarnLimiter(),
		quit:    make(chan struct{}),
	}
	k.cores = make([]*Core, cfg.cores)
	for i := range k.cores {
		k.cores[i] = newCore(k, i)
	}
	k.log.Debug().
		Int("cores", cfg.cores).
		Int("slots", cfg.maxTasks).
		Int("stack_memory", k.shared.arena.heap.size()).
		Dur("tick", cfg.tickPeriod).
		Msg("kernel initialized")
	return k, nil
}

// Run starts every core and blocks until ctx is done or a core fails. All
// tasks are terminated before it returns; the kernel cannot be run again.
func (k *Kernel) Run(ctx context.Context) error {
	if k.closed() {
		return ErrClosed
	}
	if !k.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, c := range k.cores {
		c := c
		g.Go(func() error {
			return c.Start(ctx)
		})
	}
	err := g.Wait()
	k.Close()
	k.waitTasks()
	return err
}

// waitTasks waits for the goroutine of every task still in the arena to end.
// The kernel must be closed.
func (k *Kernel) waitTasks() {
	s := k.shared
	var done []<-chan struct{}
	s.lock.Lock()
	for _, sl := range s.arena.slots {
		if sl.task != nil {
			done = append(done, sl.task.tcb.Done())
		}
	}
	s.lock.Unlock()
	for _, ch := range done {
		<-ch
	}
	k.log.Debug().Int("tasks", len(done)).Msg("tasks terminated")
}

// Close terminates every task that is not running. It is called by Run on
// return and only needs to be called directly for a kernel that was never
// run.
func (k *Kernel) Close() error {
	k.closeOnce.Do(func() {
		close(k.quit)
	})
	return nil
}

func (k *Kernel) closed() bool {
	select {
	case <-k.quit:
		return true
	default:
		return false
	}
}

// NumCores returns the number of processors.
func (k *Kernel) NumCores() int {
	return len(k.cores)
}

// Core returns processor i, or nil if there is no such processor.
func (k *Kernel) Core(i int) *Core {
	if i < 0 || i >= len(k.cores) {
		return nil
	}
	return k.cores[i]
}

// Create starts a new task on the given core.
func (k *Kernel) Create(core int, entry Entry) (Handle, error) {
	c := k.Core(core)
	if c == nil {
		return Handle{}, ErrInvalidCore
	}
	return c.Create(entry)
}

// Lookup returns the state of the task identified by h. A handle to a task
// that has exited fails with a *StaleHandleError.
func (k *Kernel) Lookup(h Handle) (State, error) {
	t, err := k.shared.lookup(h)
	if err != nil {
		return StateDead, err
	}
	c := t.core
	mask := c.irq.Disable()
	defer c.irq.Restore(mask)
	// Reclaiming happens with the owning core's interrupts disabled, so the
	// slot either still belongs to t here or the handle went stale.
	if _, err := k.shared.lookup(h); err != nil {
		return StateDead, err
	}
	return t.tcb.RunState, nil
}

// Kills returns the number of tasks reclaimed since the kernel was created.
func (k *Kernel) Kills() uint64 {
	return k.shared.arena.kills.Load()
}

// Shared returns the state shared between the cores.
func (k *Kernel) Shared() *Shared {
	return k.shared
}

// TickPeriod returns the interval between two ticks.
func (k *Kernel) TickPeriod() time.Duration {
	return k.opts.tickPeriod
}

// Stats is a snapshot of the kernel's bookkeeping.
type Stats struct {
	Kills      uint64
	Live       int
	FreeSlots  int
	StackInUse int
	StackTotal int
	Cores      []CoreStats
}

// CoreStats is a snapshot of one core.
type CoreStats struct {
	ID       int
	Ticks    Tick
	Switches uint64
	Ready    int
	Sleeping int
}

// Stats returns a snapshot of the kernel. It must not be called from within
// Shared.Do.
func (k *Kernel) Stats() Stats {
	var st Stats
	st.Cores = make([]CoreStats, len(k.cores))
	for i, c := range k.cores {
		mask := c.irq.Disable()
		cs := CoreStats{
			ID:       c.id,
			Ticks:    c.Now(),
			Switches: c.switches.Load(),
			Ready:    c.ready.Len(),
		}
		for tm := c.sleepQueue; tm != nil; tm = tm.next {
			cs.Sleeping++
		}
		c.irq.Restore(mask)
		st.Cores[i] = cs
	}

	s := k.shared
	s.lock.Lock()
	st.Live = s.arena.live
	st.FreeSlots = len(s.arena.free)
	st.StackInUse = s.arena.heap.inUse
	st.StackTotal = s.arena.heap.size()
	s.lock.Unlock()
	st.Kills = s.arena.kills.Load()
	return st
}
