// Package machine simulates the GPIO block of the target chip on the host, so
// that programs written against it can run and be observed without hardware.
package machine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var ErrInvalidInputPin = errors.New("machine: invalid input pin")

// Device is the running program's chip name.
const Device = "rp2040-sim"

// Generic constants.
const (
	KHz = 1000
	MHz = 1000_000
	GHz = 1000_000_000
)

// PinMode sets the direction and pull mode of the pin. For example, PinOutput
// sets the pin as an output and PinInputPullup sets the pin as an input with a
// pull-up.
type PinMode uint8

const (
	pinUnconfigured PinMode = iota
	PinOutput
	PinInput
	PinInputPulldown
	PinInputPullup
)

func (m PinMode) String() string {
	switch m {
	case pinUnconfigured:
		return "unconfigured"
	case PinOutput:
		return "output"
	case PinInput:
		return "input"
	case PinInputPulldown:
		return "input-pulldown"
	case PinInputPullup:
		return "input-pullup"
	default:
		return fmt.Sprintf("PinMode(%d)", uint8(m))
	}
}

type PinConfig struct {
	Mode PinMode
}

// Pin is a single pin on a chip, which may be connected to other hardware
// devices.
type Pin uint8

// NoPin explicitly indicates "not a pin".
const NoPin = Pin(0xff)

type pinState struct {
	mode    atomic.Uint32
	level   atomic.Bool
	toggles atomic.Uint64
}

var (
	pins [numPins]pinState

	observerMu sync.RWMutex
	observer   func(p Pin, high bool)
)

func (p Pin) state() *pinState {
	if int(p) >= numPins {
		return nil
	}
	return &pins[p]
}

// Configure sets the pin mode. Pull-ups drive an input high.
func (p Pin) Configure(config PinConfig) {
	s := p.state()
	if s == nil {
		return
	}
	s.mode.Store(uint32(config.Mode))
	switch config.Mode {
	case PinInputPullup:
		s.level.Store(true)
	case PinInputPulldown:
		s.level.Store(false)
	}
}

// Mode returns the mode the pin was last configured with.
func (p Pin) Mode() PinMode {
	s := p.state()
	if s == nil {
		return pinUnconfigured
	}
	return PinMode(s.mode.Load())
}

// Set drives an output pin. Setting a pin that is not configured as an
// output has no effect, like writing the output register of an input pin.
func (p Pin) Set(high bool) {
	s := p.state()
	if s == nil || PinMode(s.mode.Load()) != PinOutput {
		return
	}
	if s.level.Swap(high) != high {
		s.toggles.Add(1)
	}
	observerMu.RLock()
	fn := observer
	observerMu.RUnlock()
	if fn != nil {
		fn(p, high)
	}
}

// Get returns the current level of the pin.
func (p Pin) Get() bool {
	s := p.state()
	if s == nil {
		return false
	}
	return s.level.Load()
}

// High sets this GPIO pin to high, assuming it has been configured as an output
// pin.
func (p Pin) High() {
	p.Set(true)
}

// Low sets this GPIO pin to low, assuming it has been configured as an output
// pin.
func (p Pin) Low() {
	p.Set(false)
}

// Toggle inverts the level of an output pin.
func (p Pin) Toggle() {
	p.Set(!p.Get())
}

// Toggles returns how often the pin changed level as an output.
func (p Pin) Toggles() uint64 {
	s := p.state()
	if s == nil {
		return 0
	}
	return s.toggles.Load()
}

// Drive sets the level seen on an input pin, as external hardware would.
func (p Pin) Drive(high bool) error {
	s := p.state()
	if s == nil {
		return ErrInvalidInputPin
	}
	switch PinMode(s.mode.Load()) {
	case PinInput, PinInputPulldown, PinInputPullup:
		s.level.Store(high)
		return nil
	default:
		return ErrInvalidInputPin
	}
}

// SetObserver installs a function called on every Set of an output pin, from
// the goroutine of the caller. nil removes the observer.
func SetObserver(fn func(p Pin, high bool)) {
	observerMu.Lock()
	observer = fn
	observerMu.Unlock()
}

// Reset returns every pin to its power-on state.
func Reset() {
	for i := range pins {
		pins[i].mode.Store(uint32(pinUnconfigured))
		pins[i].level.Store(false)
		pins[i].toggles.Store(0)
	}
}

func (p Pin) String() string {
	if p == NoPin {
		return "NoPin"
	}
	return fmt.Sprintf("GPIO%d", uint8(p))
}
