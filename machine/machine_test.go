package machine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutputPin(t *testing.T) {
	Reset()
	defer Reset()

	var seen []bool
	SetObserver(func(p Pin, high bool) {
		if p == LED {
			seen = append(seen, high)
		}
	})
	defer SetObserver(nil)

	// Unconfigured pins ignore writes.
	LED.High()
	assert.False(t, LED.Get())

	LED.Configure(PinConfig{Mode: PinOutput})
	assert.Equal(t, PinOutput, LED.Mode())
	LED.High()
	assert.True(t, LED.Get())
	LED.Toggle()
	assert.False(t, LED.Get())
	LED.Low()
	assert.Equal(t, uint64(2), LED.Toggles())
	assert.Equal(t, []bool{true, false, false}, seen)
}

func TestInputPin(t *testing.T) {
	Reset()
	defer Reset()

	assert.ErrorIs(t, GPIO14.Drive(true), ErrInvalidInputPin)
	GPIO14.Configure(PinConfig{Mode: PinInputPullup})
	assert.True(t, GPIO14.Get())
	assert.NoError(t, GPIO14.Drive(false))
	assert.False(t, GPIO14.Get())

	// Writes to an input are ignored.
	GPIO14.High()
	assert.False(t, GPIO14.Get())
	assert.Zero(t, GPIO14.Toggles())
}

func TestNoPin(t *testing.T) {
	NoPin.Configure(PinConfig{Mode: PinOutput})
	NoPin.High()
	assert.False(t, NoPin.Get())
	assert.Equal(t, "NoPin", NoPin.String())
	assert.Equal(t, "GPIO25", LED.String())
	assert.ErrorIs(t, NoPin.Drive(true), ErrInvalidInputPin)
	assert.Equal(t, "input-pullup", PinInputPullup.String())
}
