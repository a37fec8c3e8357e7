package kernel

import (
	"fmt"
	"time"

	"github.com/piccolo-os/piccolo/internal/task"
)

// Semaphore is a counting lock shared by the tasks of every core.
//
// A Release with tasks waiting hands the permit straight to the first waiter
// instead of incrementing the count, so a permit can never be taken by a task
// that arrived later, nor by a waiter that has already timed out.
type Semaphore struct {
	k *Kernel

	// Guarded by the cross-core lock.
	count   int
	max     int
	waiters task.Queue
}

// NewSemaphore returns a semaphore holding count of at most max permits.
func (k *Kernel) NewSemaphore(count, max int) *Semaphore {
	if max < 1 || count < 0 || count > max {
		panic(fmt.Sprintf("kernel: invalid semaphore count %d/%d", count, max))
	}
	return &Semaphore{k: k, count: count, max: max}
}

// Count returns the number of available permits.
func (s *Semaphore) Count() int {
	sh := s.k.shared
	sh.lock.Lock()
	defer sh.lock.Unlock()
	return s.count
}

// Waiters returns the number of tasks blocked on the semaphore.
func (s *Semaphore) Waiters() int {
	sh := s.k.shared
	sh.lock.Lock()
	defer sh.lock.Unlock()
	return s.waiters.Len()
}

// Acquire takes a permit, blocking until one is available.
func (s *Semaphore) Acquire(t *Task) {
	s.acquire(t, 0, false)
}

// AcquireTimeout takes a permit, blocking at most d (rounded up to whole
// ticks). It reports false if it timed out, in which case no permit was
// taken.
func (s *Semaphore) AcquireTimeout(t *Task, d time.Duration) bool {
	if d <= 0 {
		return s.TryAcquire(t)
	}
	return s.acquire(t, d, true)
}

// TryAcquire takes a permit if one is available without blocking.
func (s *Semaphore) TryAcquire(t *Task) bool {
	c := t.core
	mask := c.irq.Disable()
	defer c.irq.Restore(mask)
	sh := s.k.shared
	sh.lock.Lock()
	defer sh.lock.Unlock()
	if s.count > 0 {
		s.count--
		return true
	}
	return false
}

func (s *Semaphore) acquire(t *Task, d time.Duration, timed bool) bool {
	c := t.core
	sh := s.k.shared

	mask := c.irq.Disable()
	sh.lock.Lock()
	if s.count > 0 {
		s.count--
		sh.lock.Unlock()
		c.irq.Restore(mask)
		return true
	}
	t.tcb.Granted = false
	s.waiters.Push(t.tcb)
	sh.lock.Unlock()

	if timed {
		tm := &t.semTimer
		tm.task = t
		tm.sem = s
		tm.when = c.Now() + Tick(c.ticksFor(d))
		c.addTimer(tm)
	}
	t.block(mask, task.StateWaitingSemaphore)

	// Woken by a grant or by the timeout, whichever came first.
	sh.lock.Lock()
	ok := t.tcb.Granted
	t.tcb.Granted = false
	sh.lock.Unlock()
	return ok
}

// Release returns a permit. If tasks are waiting, the first one gets it. t is
// the releasing task, or nil outside of any task.
func (s *Semaphore) Release(t *Task) {
	var c *Core
	if t != nil {
		c = t.core
		mask := c.irq.Disable()
		defer c.irq.Restore(mask)
	}
	sh := s.k.shared

	sh.lock.Lock()
	tcb := s.waiters.Pop()
	if tcb == nil {
		full := s.count == s.max
		if !full {
			s.count++
		}
		sh.lock.Unlock()
		if full {
			s.k.warn(errOverRelease).Int("max", s.max).Msg("semaphore released above its maximum")
		}
		return
	}
	tcb.Granted = true
	w := sh.arena.owner(tcb)
	if w.core == c {
		sh.lock.Unlock()
		c.grant(w)
		return
	}
	w.core.post(delivery{kind: deliverGrant, task: w})
	sh.lock.Unlock()
	w.core.notify()
}

// timeout withdraws t from the wait queue after its deadline passed. It
// reports false if t was granted a permit first, in which case the grant
// wakes it instead.
func (s *Semaphore) timeout(t *Task) bool {
	sh := s.k.shared
	sh.lock.Lock()
	defer sh.lock.Unlock()
	if t.tcb.Granted {
		return false
	}
	s.waiters.Remove(t.tcb)
	return true
}
