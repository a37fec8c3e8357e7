package kernel

import (
	"fmt"
	"runtime"
	"sync/atomic"
)

// NumCounters is the number of shared counter slots.
const NumCounters = 8

// spinLock is the lock shared between the cores. It must be held for very
// short periods only, so busy-waiting is fine.
type spinLock struct {
	state atomic.Uint32
}

func (l *spinLock) Lock() {
	for !l.state.CompareAndSwap(0, 1) {
		spinLoopWait()
	}
}

func (l *spinLock) Unlock() {
	l.state.Store(0)
}

func spinLoopWait() {
	runtime.Gosched()
}

// Shared is the state visible to every core: the task arena, the shared
// counters and the inboxes used to deliver wakeups across cores.
//
// Lock order: a core's interrupt mask may be held while taking the shared
// lock, never the other way around, and no code holds the interrupt mask of
// a core other than its own.
type Shared struct {
	lock     spinLock
	arena    *arena
	counters [NumCounters]uint64
}

func newShared(maxTasks, stackMemory int) *Shared {
	return &Shared{arena: newArena(maxTasks, stackMemory)}
}

// Do runs fn with the interrupts of t's core disabled and the shared lock
// held. t may be nil when called from outside any task. fn must not call
// anything that suspends the task.
func (s *Shared) Do(t *Task, fn func()) {
	if t != nil {
		c := t.core
		mask := c.irq.Disable()
		defer c.irq.Restore(mask)
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	fn()
}

// Add adds delta to a shared counter and returns the new value.
func (s *Shared) Add(t *Task, slot int, delta uint64) uint64 {
	checkCounter(slot)
	var v uint64
	s.Do(t, func() {
		s.counters[slot] += delta
		v = s.counters[slot]
	})
	return v
}

// Load returns the value of a shared counter.
func (s *Shared) Load(slot int) uint64 {
	checkCounter(slot)
	s.lock.Lock()
	v := s.counters[slot]
	s.lock.Unlock()
	return v
}

func checkCounter(slot int) {
	if slot < 0 || slot >= NumCounters {
		panic(fmt.Sprintf("kernel: counter slot %d out of range", slot))
	}
}

func (s *Shared) create(c *Core, stackSize int) (*Task, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.arena.alloc(c, stackSize)
}

func (s *Shared) reclaim(t *Task) {
	s.lock.Lock()
	s.arena.reclaim(t)
	s.lock.Unlock()
}

func (s *Shared) lookup(h Handle) (*Task, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.arena.lookup(h)
}

type deliveryKind uint8

const (
	deliverSignal deliveryKind = iota + 1
	deliverGrant
)

// delivery is a wakeup posted to the core that owns the target task.
type delivery struct {
	kind deliveryKind
	task *Task
}

// send delivers one signal to the task identified by h. When from is the
// core owning the target, the signal is applied directly; from's interrupts
// must be disabled then. Any other target gets the signal through its
// core's inbox.
func (s *Shared) send(from *Core, h Handle) error {
	s.lock.Lock()
	target, err := s.arena.lookup(h)
	if err != nil {
		s.lock.Unlock()
		return err
	}
	if target.core == from {
		s.lock.Unlock()
		from.deliverSignal(target)
		return nil
	}
	target.core.post(delivery{kind: deliverSignal, task: target})
	s.lock.Unlock()
	target.core.notify()
	return nil
}
