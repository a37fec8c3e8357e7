// Package task holds the task control block and the context switch between a
// core's scheduler loop and the tasks it runs.
package task

import "fmt"

// State is the scheduling state of a task.
type State uint8

const (
	StateReady State = iota
	StateRunning
	StateSleeping
	StateWaitingSignal
	StateWaitingSemaphore
	StateDead
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateSleeping:
		return "sleeping"
	case StateWaitingSignal:
		return "waiting-signal"
	case StateWaitingSemaphore:
		return "waiting-semaphore"
	case StateDead:
		return "dead"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Task is a task control block.
//
// Unless noted otherwise, fields are owned by the core the task belongs to and
// may only be touched with that core's interrupts disabled. Next is owned by
// whichever queue the task currently sits in.
type Task struct {
	// Next is a field which can be used to make a linked list of tasks.
	Next *Task

	RunState State

	// Core is the index of the processor that owns the task.
	Core int

	// Slot index and generation in the task arena.
	Index uint32
	Gen   uint32

	// Signals is the number of signals delivered but not yet consumed.
	Signals uint32

	// Granted is set when a semaphore permit was handed to this task while
	// it waited. Guarded by the cross-core lock.
	Granted bool

	// Stack is the task's exclusively owned stack region. It is nil once the
	// task is dead.
	Stack    []byte
	StackOff int

	// Panic holds the recovered value if the entry function panicked.
	Panic      any
	PanicStack []byte

	state state
}
