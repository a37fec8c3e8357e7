package kernel

import (
	"github.com/piccolo-os/piccolo/internal/interrupt"
	"github.com/piccolo-os/piccolo/internal/task"
)

// State is the scheduling state of a task.
type State = task.State

const (
	StateReady            = task.StateReady
	StateRunning          = task.StateRunning
	StateSleeping         = task.StateSleeping
	StateWaitingSignal    = task.StateWaitingSignal
	StateWaitingSemaphore = task.StateWaitingSemaphore
	StateDead             = task.StateDead
)

// Entry is the body of a task. Returning from it terminates the task.
type Entry func(t *Task)

// Task is the view a running task has of itself. It is passed to the task's
// Entry and must only be used from that task, with the exception of Handle
// and Core.
type Task struct {
	k    *Kernel
	core *Core
	tcb  *task.Task

	// Internal tokens for sleeps without a caller supplied Timer and for
	// semaphore timeouts.
	sleepTimer Timer
	semTimer   Timer
}

// Handle returns the handle of the task.
func (t *Task) Handle() Handle {
	return Handle{index: t.tcb.Index, gen: t.tcb.Gen}
}

// Core returns the processor the task runs on.
func (t *Task) Core() *Core {
	return t.core
}

// Kernel returns the kernel the task belongs to.
func (t *Task) Kernel() *Kernel {
	return t.k
}

// Stack returns the stack region owned by the task.
func (t *Task) Stack() []byte {
	return t.tcb.Stack
}

// Create starts a new task on the same core as t.
func (t *Task) Create(entry Entry) (Handle, error) {
	return t.core.Create(entry)
}

// Now returns the current tick of the task's core.
func (t *Task) Now() Tick {
	return t.core.Now()
}

// Yield moves the task to the back of its core's ready queue and runs the
// next ready task. It returns immediately if no other task is ready.
func (t *Task) Yield() {
	c := t.core
	mask := c.irq.Disable()
	t.tcb.RunState = task.StateReady
	c.ready.Push(t.tcb)
	c.irq.Restore(mask)
	t.tcb.Pause()
}

// Exit terminates the task. Deferred functions of the entry run first.
func (t *Task) Exit() {
	t.tcb.Exit()
}

// block puts the task in the given wait state and hands control back to the
// scheduler. Whatever will wake the task up must already be set up. The
// interrupts of the task's core must be disabled; they are restored here.
func (t *Task) block(mask interrupt.State, state task.State) {
	t.tcb.RunState = state
	t.core.irq.Restore(mask)
	t.tcb.Pause()
}
