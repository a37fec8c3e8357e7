package kernel

// Task stacks are carved out of one fixed memory region, the same way a
// small heap would be managed on a microcontroller.
//
// The region is split into blocks of bytesPerBlock bytes. A stack occupies a
// run of blocks: the first one is marked "head", the following ones "tail".
// Allocation is first-fit over the block states. Freeing a stack marks its
// head and every tail block after it as free again, so the start and the end
// of every stack can always be found from the state table alone.

const bytesPerBlock = 64

type blockState uint8

const (
	blockStateFree blockState = iota
	blockStateHead
	blockStateTail
)

func (s blockState) String() string {
	switch s {
	case blockStateFree:
		return "free"
	case blockStateHead:
		return "head"
	case blockStateTail:
		return "tail"
	default:
		// must never happen
		return "!err"
	}
}

// stackHeap is guarded by the cross-core lock.
type stackHeap struct {
	mem    []byte
	states []blockState
	inUse  int
}

func newStackHeap(size int) *stackHeap {
	blocks := size / bytesPerBlock
	return &stackHeap{
		mem:    make([]byte, blocks*bytesPerBlock),
		states: make([]blockState, blocks),
	}
}

func blocksFor(size int) int {
	return (size + bytesPerBlock - 1) / bytesPerBlock
}

// alloc reserves size bytes and returns the offset of the region. The
// region is zeroed.
func (h *stackHeap) alloc(size int) (int, bool) {
	if size < 1 || size > len(h.mem) {
		return 0, false
	}
	n := blocksFor(size)
	if n > len(h.states) {
		return 0, false
	}
	run := 0
	for b := range h.states {
		if h.states[b] != blockStateFree {
			run = 0
			continue
		}
		run++
		if run < n {
			continue
		}
		start := b - n + 1
		h.states[start] = blockStateHead
		for i := start + 1; i <= b; i++ {
			h.states[i] = blockStateTail
		}
		h.inUse += n * bytesPerBlock
		off := start * bytesPerBlock
		clear(h.mem[off : off+n*bytesPerBlock])
		return off, true
	}
	return 0, false
}

// free releases the stack starting at off.
func (h *stackHeap) free(off int) {
	b := off / bytesPerBlock
	if off%bytesPerBlock != 0 || b >= len(h.states) || h.states[b] != blockStateHead {
		panic("kernel: freeing a stack that is not allocated")
	}
	h.states[b] = blockStateFree
	n := 1
	for b++; b < len(h.states) && h.states[b] == blockStateTail; b++ {
		h.states[b] = blockStateFree
		n++
	}
	h.inUse -= n * bytesPerBlock
}

// region returns the memory of an allocated stack, capped so that it cannot
// be resliced into a neighbour.
func (h *stackHeap) region(off, size int) []byte {
	return h.mem[off : off+size : off+size]
}

func (h *stackHeap) size() int {
	return len(h.mem)
}
