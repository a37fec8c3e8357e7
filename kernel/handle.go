package kernel

import "fmt"

// Handle identifies a task: the arena slot it occupies plus the generation of
// that slot at creation time. Slot generations start at 1, so the zero Handle
// never refers to a task.
type Handle struct {
	index uint32
	gen   uint32
}

// IsNull reports whether h is the zero handle returned by failed creations.
func (h Handle) IsNull() bool { return h.gen == 0 }

// Index returns the arena slot index.
func (h Handle) Index() uint32 { return h.index }

// Generation returns the slot generation the handle was issued for.
func (h Handle) Generation() uint32 { return h.gen }

func (h Handle) String() string {
	if h.IsNull() {
		return "task(nil)"
	}
	return fmt.Sprintf("task(%d.%d)", h.index, h.gen)
}
