package task

import (
	"runtime"
	"runtime/debug"
)

// Each task runs on its own goroutine, which holds the task's execution
// context while it is paused. Control is handed back and forth over two
// unbuffered channels, so that the goroutine only executes between a Resume
// by the scheduler and the next Pause (or exit) by the task itself.
type state struct {
	resume chan struct{}
	paused chan struct{}

	// Closed by the kernel on shutdown. Parked tasks exit when they see it.
	quit <-chan struct{}

	// Lifecycle hooks, called on the task goroutine.
	enter func()

	// Closed when the task goroutine has ended, for whatever reason.
	done chan struct{}

	exited bool
	killed bool
}

// Start prepares the task to run fn on its own goroutine. fn does not run
// until the first call to Resume. Closing quit makes a paused task exit
// without returning to its caller.
//
// enter, if not nil, is called on the task goroutine right before fn. It is
// used to pin the goroutine to an OS thread.
func (t *Task) Start(fn func(), quit <-chan struct{}, enter func()) {
	t.state = state{
		resume: make(chan struct{}),
		paused: make(chan struct{}),
		quit:   quit,
		enter:  enter,
		done:   make(chan struct{}),
	}
	go t.run(fn)
}

func (t *Task) run(fn func()) {
	defer close(t.state.done)
	defer t.exit()
	select {
	case <-t.state.resume:
	case <-t.state.quit:
		t.state.killed = true
		return
	}
	if t.state.enter != nil {
		t.state.enter()
	}
	fn()
}

// exit runs as the last deferred call of the task goroutine. It records a
// panic, if any, and hands control back to the scheduler for the final time.
func (t *Task) exit() {
	if t.state.killed {
		return
	}
	if r := recover(); r != nil {
		t.Panic = r
		t.PanicStack = debug.Stack()
	}
	t.state.exited = true
	t.state.paused <- struct{}{}
}

// Resume the task until it pauses or completes.
// This may only be called from the scheduler of the task's core.
func (t *Task) Resume() {
	t.state.resume <- struct{}{}
	<-t.state.paused
}

// Pause suspends the current task and returns to the scheduler. It returns
// once the scheduler resumes the task again.
// A task that was killed never suspends again: Pause from one of its
// deferred calls ends that call, and the remaining ones still run.
// This function may only be called from the task's own goroutine.
func (t *Task) Pause() {
	if t.state.killed {
		runtime.Goexit()
	}
	t.state.paused <- struct{}{}
	select {
	case <-t.state.resume:
	case <-t.state.quit:
		t.state.killed = true
		runtime.Goexit()
	}
}

// Exit terminates the current task. Deferred calls of the entry function run
// before control returns to the scheduler.
// This function may only be called from the task's own goroutine.
func (t *Task) Exit() {
	runtime.Goexit()
}

// Done returns a channel that is closed once the task goroutine has ended,
// either by returning or by being killed.
func (t *Task) Done() <-chan struct{} {
	return t.state.done
}

// Exited reports whether the task goroutine has finished. It is only
// meaningful to the scheduler right after Resume returned.
func (t *Task) Exited() bool {
	return t.state.exited
}
