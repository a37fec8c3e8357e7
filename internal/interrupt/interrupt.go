// Package interrupt emulates interrupt masking on a simulated processor.
//
// Every core owns one Mask. Its tick handler runs with the mask held, just
// like an interrupt handler runs with interrupts disabled, and the core's
// tasks and scheduler disable interrupts around every change to the core's
// ready and sleep structures. Masks do not nest.
package interrupt

import "sync"

// State is the interrupt state returned by Disable. It must be handed back
// to Restore.
type State uint8

const (
	stateMasked State = iota + 1
)

// Mask is the interrupt enable flag of a single core.
// The zero value has interrupts enabled.
type Mask struct {
	mu sync.Mutex
}

// Disable masks interrupts on the core, waiting for a running handler to
// finish first.
func (m *Mask) Disable() State {
	m.mu.Lock()
	return stateMasked
}

// Restore undoes a previous Disable.
func (m *Mask) Restore(s State) {
	if s != stateMasked {
		panic("interrupt: restore of a state that was not returned by Disable")
	}
	m.mu.Unlock()
}
