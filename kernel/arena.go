package kernel

import (
	"sync/atomic"

	"github.com/piccolo-os/piccolo/internal/task"
)

type slot struct {
	gen  uint32
	task *Task
}

// arena owns every task slot and the stack memory. It is shared between the
// cores and guarded by the cross-core lock, except for kills which may be
// read without it.
type arena struct {
	slots []slot
	free  []uint32 // LIFO
	live  int
	heap  *stackHeap
	kills atomic.Uint64
}

func newArena(maxTasks, stackMemory int) *arena {
	a := &arena{
		slots: make([]slot, maxTasks),
		free:  make([]uint32, 0, maxTasks),
		heap:  newStackHeap(stackMemory),
	}
	for i := range a.slots {
		a.slots[i].gen = 1
	}
	// Push in reverse so that slot 0 is handed out first.
	for i := maxTasks - 1; i >= 0; i-- {
		a.free = append(a.free, uint32(i))
	}
	return a
}

// alloc takes a slot from the free list and gives it a stack of stackSize
// bytes. The returned task is ready but not yet started.
func (a *arena) alloc(c *Core, stackSize int) (*Task, error) {
	if len(a.free) == 0 {
		return nil, ErrNoSlot
	}
	off, ok := a.heap.alloc(stackSize)
	if !ok {
		return nil, ErrNoMemory
	}
	idx := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]

	s := &a.slots[idx]
	t := &Task{
		k:    c.k,
		core: c,
		tcb: &task.Task{
			RunState: task.StateReady,
			Core:     c.id,
			Index:    idx,
			Gen:      s.gen,
			Stack:    a.heap.region(off, stackSize),
			StackOff: off,
		},
	}
	s.task = t
	a.live++
	return t, nil
}

// reclaim releases the stack of a dead task and returns its slot to the
// free list. Bumping the generation invalidates every outstanding handle.
func (a *arena) reclaim(t *Task) {
	tcb := t.tcb
	s := &a.slots[tcb.Index]
	if s.task != t {
		panic("kernel: reclaiming a task that does not own its slot")
	}
	a.heap.free(tcb.StackOff)
	tcb.Stack = nil
	s.task = nil
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	a.free = append(a.free, tcb.Index)
	a.live--
	a.kills.Add(1)
}

func (a *arena) lookup(h Handle) (*Task, error) {
	if h.IsNull() || int(h.index) >= len(a.slots) {
		return nil, ErrInvalidHandle
	}
	s := &a.slots[h.index]
	if s.gen != h.gen || s.task == nil {
		return nil, &StaleHandleError{Handle: h, Current: s.gen}
	}
	return s.task, nil
}

// owner returns the kernel task a control block belongs to.
func (a *arena) owner(tcb *task.Task) *Task {
	return a.slots[tcb.Index].task
}
