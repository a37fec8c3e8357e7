package kernel

import (
	"context"
	"runtime"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/piccolo-os/piccolo/internal/interrupt"
	"github.com/piccolo-os/piccolo/internal/task"
)

// Core is the scheduler of one processor. It owns a ready queue and a sleep
// queue, both guarded by the core's interrupt mask, and runs one task at a
// time until that task suspends itself.
type Core struct {
	id  int
	k   *Kernel
	irq interrupt.Mask

	// Guarded by irq.
	ready      task.Queue
	sleepQueue *Timer
	scratch    []delivery

	// Wakeups posted by other cores. Guarded by the cross-core lock.
	inbox []delivery

	ticks    atomic.Uint32
	switches atomic.Uint64
	started  atomic.Bool

	// Rung when something may have become ready while the loop is idle.
	wake chan struct{}

	src TickSource
	log zerolog.Logger
}

func newCore(k *Kernel, id int) *Core {
	c := &Core{
		id:   id,
		k:    k,
		wake: make(chan struct{}, 1),
		src:  k.opts.tickSource(id, k.opts.tickPeriod),
		log:  k.log.With().Int("core", id).Logger(),
	}
	c.ticks.Store(uint32(k.opts.initialTick))
	return c
}

// ID returns the index of the core.
func (c *Core) ID() int {
	return c.id
}

// Now returns the current tick of the core.
func (c *Core) Now() Tick {
	return Tick(c.ticks.Load())
}

// Start runs the tick source and the scheduler loop of the core until ctx is
// done. A core can only be started once.
func (c *Core) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrRunning
	}
	c.log.Info().Msg("core started")
	defer c.log.Info().Uint64("switches", c.switches.Load()).Msg("core stopped")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.src.Start(ctx, c.tick)
	})
	g.Go(func() error {
		return c.loop(ctx)
	})
	return g.Wait()
}

func (c *Core) loop(ctx context.Context) error {
	if c.k.opts.affinity {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		c.pin()
	}
	for ctx.Err() == nil {
		t := c.next()
		if t == nil {
			// Nothing to do: wait for a tick, a new task or a wakeup from
			// another core.
			select {
			case <-ctx.Done():
			case <-c.wake:
			}
			continue
		}

		c.switches.Add(1)
		t.tcb.Resume()

		if t.tcb.Exited() {
			c.park(t)
		}
	}
	return nil
}

// next applies pending cross-core wakeups and pops the next task to run.
func (c *Core) next() *Task {
	mask := c.irq.Disable()
	defer c.irq.Restore(mask)

	c.drainInbox()
	tcb := c.ready.Pop()
	if tcb == nil {
		return nil
	}
	tcb.RunState = task.StateRunning

	s := c.k.shared
	s.lock.Lock()
	t := s.arena.owner(tcb)
	s.lock.Unlock()
	return t
}

// park reclaims a task whose entry function returned.
func (c *Core) park(t *Task) {
	tcb := t.tcb
	h := t.Handle()
	var fault *FaultError
	if tcb.Panic != nil {
		fault = &FaultError{Handle: h, Core: c.id, Value: tcb.Panic, Stack: tcb.PanicStack}
	}

	mask := c.irq.Disable()
	tcb.RunState = task.StateDead
	tcb.Signals = 0
	c.k.shared.reclaim(t)
	c.irq.Restore(mask)

	if fault != nil {
		c.log.Error().Stringer("task", h).Interface("panic", fault.Value).Msg("task faulted")
		if fn := c.k.opts.faultHandler; fn != nil {
			fn(fault)
		}
		return
	}
	c.log.Debug().Stringer("task", h).Msg("task exited")
}

// Create starts a new task on the core with the default stack size.
func (c *Core) Create(entry Entry) (Handle, error) {
	return c.CreateStack(entry, c.k.opts.stackSize)
}

// CreateStack starts a new task on the core with a stack of size bytes. The
// task is put at the back of the ready queue. A failed creation returns the
// null handle together with the reason.
func (c *Core) CreateStack(entry Entry, size int) (Handle, error) {
	if entry == nil {
		return Handle{}, ErrNilEntry
	}
	if c.k.closed() {
		return Handle{}, ErrClosed
	}
	if size < 1 {
		size = c.k.opts.stackSize
	}
	t, err := c.k.shared.create(c, size)
	if err != nil {
		c.k.warn(err).Int("core", c.id).Int("stack", size).Err(err).Msg("task creation failed")
		return Handle{}, err
	}

	var enter func()
	if c.k.opts.affinity {
		enter = func() {
			runtime.LockOSThread()
			c.pin()
		}
	}
	t.tcb.Start(func() { entry(t) }, c.k.quit, enter)

	mask := c.irq.Disable()
	c.ready.Push(t.tcb)
	c.irq.Restore(mask)
	c.notify()

	c.log.Debug().Stringer("task", t.Handle()).Int("stack", size).Msg("task created")
	return t.Handle(), nil
}

// pin binds the calling OS thread to the host CPU of this core.
func (c *Core) pin() {
	cpu := c.id % runtime.NumCPU()
	if err := pinThread(cpu); err != nil {
		c.k.warn(errAffinity).Int("core", c.id).Err(err).Msg("thread affinity unavailable")
	}
}

// notify wakes the scheduler loop if it is idle.
func (c *Core) notify() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// post queues a wakeup for a task of this core. The cross-core lock must be
// held. The caller rings the doorbell with notify once it dropped the lock.
func (c *Core) post(d delivery) {
	c.inbox = append(c.inbox, d)
}

// drainInbox applies the wakeups posted by other cores. Interrupts of the
// core must be disabled.
func (c *Core) drainInbox() {
	s := c.k.shared
	s.lock.Lock()
	if len(c.inbox) == 0 {
		s.lock.Unlock()
		return
	}
	c.scratch, c.inbox = c.inbox, c.scratch[:0]
	s.lock.Unlock()

	for i, d := range c.scratch {
		switch d.kind {
		case deliverSignal:
			c.deliverSignal(d.task)
		case deliverGrant:
			c.grant(d.task)
		}
		c.scratch[i] = delivery{}
	}
	c.scratch = c.scratch[:0]
}

// deliverSignal counts one signal for t and readies it if it waits for one.
// Interrupts of the core must be disabled.
func (c *Core) deliverSignal(t *Task) {
	tcb := t.tcb
	if tcb.RunState == task.StateDead {
		// Exited after the signal was posted.
		return
	}
	if tcb.Signals != ^uint32(0) {
		tcb.Signals++
	}
	if tcb.RunState == task.StateWaitingSignal {
		c.makeReady(t)
	}
}

// grant wakes t, which was handed a semaphore permit while it waited.
// Interrupts of the core must be disabled.
func (c *Core) grant(t *Task) {
	c.disarm(&t.semTimer)
	c.makeReady(t)
}

func (c *Core) makeReady(t *Task) {
	t.tcb.RunState = task.StateReady
	c.ready.Push(t.tcb)
}
