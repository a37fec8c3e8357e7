package kernel

import (
	"github.com/piccolo-os/piccolo/internal/task"
)

// Send delivers one signal to the task identified by h, which may run on any
// core. A task that waits for signals is made ready. Signals sent to a task
// that has not consumed the previous ones are counted, never lost.
func (t *Task) Send(h Handle) error {
	c := t.core
	mask := c.irq.Disable()
	defer c.irq.Restore(mask)
	err := c.k.shared.send(c, h)
	if err != nil {
		c.k.warn(errSendFailed).Stringer("from", t.Handle()).Stringer("to", h).Err(err).Msg("signal not delivered")
	}
	return err
}

// Signal delivers one signal to the task identified by h from outside of any
// task, for example from a host callback.
func (k *Kernel) Signal(h Handle) error {
	return k.shared.send(nil, h)
}

// Poll returns the number of pending signals and clears them, without
// blocking.
func (t *Task) Poll() uint32 {
	c := t.core
	mask := c.irq.Disable()
	defer c.irq.Restore(mask)
	c.drainInbox()
	n := t.tcb.Signals
	t.tcb.Signals = 0
	return n
}

// WaitOne blocks until at least one signal is pending, then clears and
// returns the number of signals pending at that point. Signals sent while
// the task was not running are coalesced into a single wakeup.
func (t *Task) WaitOne() uint32 {
	c := t.core
	for {
		mask := c.irq.Disable()
		c.drainInbox()
		if n := t.tcb.Signals; n > 0 {
			t.tcb.Signals = 0
			c.irq.Restore(mask)
			return n
		}
		t.block(mask, task.StateWaitingSignal)
	}
}

// WaitAll is the same as WaitOne: every wait consumes all pending signals.
func (t *Task) WaitAll() uint32 {
	return t.WaitOne()
}
