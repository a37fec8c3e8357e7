package kernel

import (
	"errors"
	"fmt"
)

var (
	ErrNoMemory      = errors.New("kernel: no stack memory available")
	ErrNoSlot        = errors.New("kernel: no free task slot")
	ErrNilEntry      = errors.New("kernel: nil task entry")
	ErrInvalidHandle = errors.New("kernel: invalid task handle")
	ErrStaleHandle   = errors.New("kernel: stale task handle")
	ErrInvalidCore   = errors.New("kernel: invalid core")
	ErrRunning       = errors.New("kernel: scheduler already running")
	ErrClosed        = errors.New("kernel: closed")
)

// StaleHandleError is returned when a handle refers to a slot that has been
// reclaimed, and possibly reused, since the handle was issued.
type StaleHandleError struct {
	Handle Handle

	// Generation the slot is at now.
	Current uint32
}

func (e *StaleHandleError) Error() string {
	return fmt.Sprintf("kernel: stale task handle %s (slot is at generation %d)", e.Handle, e.Current)
}

// Is makes errors.Is(err, ErrStaleHandle) match.
func (e *StaleHandleError) Is(target error) bool {
	return target == ErrStaleHandle
}

// FaultError describes a task whose entry function panicked. The task has
// been reclaimed by the time the error is reported.
type FaultError struct {
	Handle Handle
	Core   int
	Value  any
	Stack  []byte
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("kernel: task %s on core %d panicked: %v", e.Handle, e.Core, e.Value)
}

// Unwrap returns the panic value if it is an error.
func (e *FaultError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
