package kernel

import (
	"math"
	"time"

	"github.com/piccolo-os/piccolo/internal/task"
)

// Tick is a value of a core's tick counter. The counter wraps around, so
// ticks must be compared with Before and After rather than with < and >.
type Tick uint32

// Before reports whether t is earlier than u. The result is only meaningful
// for ticks less than 2^31 apart.
func (t Tick) Before(u Tick) bool {
	return int32(t-u) < 0
}

// After reports whether t is later than u.
func (t Tick) After(u Tick) bool {
	return int32(t-u) > 0
}

// Sub returns the number of ticks from u to t.
func (t Tick) Sub(u Tick) int32 {
	return int32(t - u)
}

// Timer is a reusable token for a pending wakeup. A task passes the same
// Timer to every Sleep so that sleeping needs no allocation. The zero value
// is ready to use. A Timer may be armed for one sleep at a time only.
type Timer struct {
	next  *Timer
	task  *Task
	sem   *Semaphore
	when  Tick
	armed bool
}

// When returns the tick the timer was last armed for.
func (tm *Timer) When() Tick {
	return tm.when
}

// maxSleepTicks keeps deadlines within the range Before can compare.
const maxSleepTicks = math.MaxInt32

// ticksFor converts d to a number of ticks, rounding up.
func (c *Core) ticksFor(d time.Duration) uint32 {
	p := c.k.opts.tickPeriod
	n := int64(d / p)
	if d%p != 0 {
		n++
	}
	if n < 1 {
		n = 1
	}
	if n > maxSleepTicks {
		n = maxSleepTicks
	}
	return uint32(n)
}

// addTimer inserts tm into the sleep queue, ordered by deadline. Timers with
// the same deadline fire in the order they were added. Interrupts of the
// core must be disabled.
func (c *Core) addTimer(tm *Timer) {
	if tm.armed {
		panic("kernel: timer is already armed")
	}
	tm.armed = true
	q := &c.sleepQueue
	for *q != nil && !tm.when.Before((*q).when) {
		q = &(*q).next
	}
	tm.next = *q
	*q = tm
}

// disarm removes tm from the sleep queue if it is there. Interrupts of the
// core must be disabled.
func (c *Core) disarm(tm *Timer) {
	if !tm.armed {
		return
	}
	for q := &c.sleepQueue; *q != nil; q = &(*q).next {
		if *q == tm {
			*q = tm.next
			break
		}
	}
	tm.next = nil
	tm.armed = false
}

// tick is the periodic interrupt handler of the core. It advances the tick
// counter and readies every task whose deadline has passed. It never
// switches the running task.
func (c *Core) tick() {
	mask := c.irq.Disable()
	now := Tick(c.ticks.Add(1))
	var woken task.Queue
	for tm := c.sleepQueue; tm != nil && !now.Before(tm.when); tm = c.sleepQueue {
		c.sleepQueue = tm.next
		tm.next = nil
		tm.armed = false
		if c.expire(tm) {
			woken.Push(tm.task.tcb)
		}
	}
	woke := !woken.Empty()
	c.ready.Append(&woken)
	c.irq.Restore(mask)
	if woke {
		c.notify()
	}
}

// expire handles a timer that reached its deadline and reports whether its
// task is ready again. For a semaphore timeout that is only the case if no
// permit was handed to the task in the meantime.
func (c *Core) expire(tm *Timer) bool {
	t := tm.task
	if tm.sem != nil && !tm.sem.timeout(t) {
		return false
	}
	t.tcb.RunState = task.StateReady
	return true
}

// Sleep suspends the task for at least d, rounded up to whole ticks: it
// resumes at the first tick at or after Now()+ceil(d/period). tm is the
// reusable timer token; nil uses one owned by the task. A non-positive d
// yields instead.
func (t *Task) Sleep(tm *Timer, d time.Duration) {
	if d <= 0 {
		t.Yield()
		return
	}
	if tm == nil {
		tm = &t.sleepTimer
	}
	c := t.core
	n := c.ticksFor(d)

	mask := c.irq.Disable()
	tm.task = t
	tm.sem = nil
	tm.when = c.Now() + Tick(n)
	c.addTimer(tm)
	t.block(mask, task.StateSleeping)
}
