package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piccolo-os/piccolo/internal/config"
	"github.com/piccolo-os/piccolo/internal/console"
	"github.com/piccolo-os/piccolo/kernel"
	"github.com/piccolo-os/piccolo/machine"
)

func TestIsPrime(t *testing.T) {
	var got []uint32
	for n := uint32(0); n < 30; n++ {
		if isPrime(n) {
			got = append(got, n)
		}
	}
	assert.Equal(t, []uint32{2, 3, 5, 7, 11, 13, 17, 19, 23, 29}, got)
	assert.True(t, isPrime(4294967291))
}

// syncBuffer is written by tasks and read by the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Contains(s string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Contains(b.buf.String(), s)
}

func testSystem(t *testing.T, tickers []*kernel.ManualTicker) (*system, *syncBuffer) {
	t.Helper()
	k, err := kernel.New(
		kernel.WithCores(len(tickers)),
		kernel.WithTickSource(func(core int, _ time.Duration) kernel.TickSource {
			return tickers[core]
		}),
	)
	require.NoError(t, err)
	buf := &syncBuffer{}
	return newSystem(k, console.New(buf), zerolog.Nop()), buf
}

func runSystem(t *testing.T, s *system) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.k.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
}

func waitSleeping(t *testing.T, s *system, name string) {
	t.Helper()
	require.Eventually(t, func() bool {
		st, err := s.k.Lookup(s.tasks[name])
		return err == nil && st == kernel.StateSleeping
	}, time.Second, time.Millisecond)
}

func TestBootErrors(t *testing.T) {
	s, _ := testSystem(t, []*kernel.ManualTicker{kernel.NewManualTicker()})
	defer s.k.Close()

	for _, spec := range []config.TaskSpec{
		{Name: "a", Run: "nonsense"},
		{Name: "b", Run: "blink -pin 99"},
		{Name: "c", Run: "blink -bogus"},
		{Name: "d", Run: "counter -slot 7"},
		{Name: "e", Run: "primes -batch 0"},
		{Name: "f", Core: 3, Run: "blink"},
		{Name: "g", Run: "primes -signal reportr"},
	} {
		assert.Error(t, s.boot([]config.TaskSpec{spec}), spec.Name)
	}
	assert.Empty(t, s.tasks)

	// A task may refer to one defined later in the list.
	require.NoError(t, s.boot([]config.TaskSpec{
		{Name: "primes", Run: "primes -signal reporter -limit 1"},
		{Name: "reporter", Run: "reporter"},
	}))
	assert.Len(t, s.tasks, 2)
	assert.Error(t, s.signal("nobody"))
}

func TestBlink(t *testing.T) {
	machine.Reset()
	defer machine.Reset()
	ticker := kernel.NewManualTicker()
	s, _ := testSystem(t, []*kernel.ManualTicker{ticker})
	require.NoError(t, s.boot([]config.TaskSpec{
		{Name: "fast", Run: "blink -pin 14 -period 2ms"},
	}))
	runSystem(t, s)

	waitSleeping(t, s, "fast")
	assert.True(t, machine.GPIO14.Get())
	for i := 0; i < 4; i++ {
		waitSleeping(t, s, "fast")
		ticker.Advance(2)
		want := uint64(i + 2)
		require.Eventually(t, func() bool { return machine.GPIO14.Toggles() == want }, time.Second, time.Millisecond)
	}
	assert.Equal(t, machine.PinOutput, machine.GPIO14.Mode())
}

func TestPrimesSignalReporter(t *testing.T) {
	tickers := []*kernel.ManualTicker{kernel.NewManualTicker(), kernel.NewManualTicker()}
	s, out := testSystem(t, tickers)
	require.NoError(t, s.boot([]config.TaskSpec{
		{Name: "reporter", Core: 1, Run: "reporter -every 1ms"},
		{Name: "primes", Core: 0, Run: "primes -signal reporter -batch 10 -limit 100"},
	}))
	runSystem(t, s)

	// primes sends 10 signals and exits.
	require.Eventually(t, func() bool { return s.k.Kills() == 1 }, 2*time.Second, time.Millisecond)
	total := func() bool {
		tickers[1].Advance(1)
		return out.Contains("(10 total)")
	}
	require.Eventually(t, total, 2*time.Second, 5*time.Millisecond)
}

func TestCounterAndMutex(t *testing.T) {
	tickers := []*kernel.ManualTicker{kernel.NewManualTicker(), kernel.NewManualTicker()}
	s, _ := testSystem(t, tickers)
	require.NoError(t, s.boot([]config.TaskSpec{
		{Name: "count0", Core: 0, Run: "counter -slot 2 -period 1ms"},
		{Name: "count1", Core: 1, Run: "counter -slot 2 -period 1ms"},
		{Name: "m0", Core: 0, Run: "mutex -hold 1ms -timeout 1ms"},
		{Name: "m1", Core: 1, Run: "mutex -hold 1ms -timeout 1ms"},
	}))
	runSystem(t, s)

	sh := s.k.Shared()
	require.Eventually(t, func() bool {
		tickers[0].Advance(1)
		tickers[1].Advance(1)
		return sh.Load(2) >= 40 && sh.Load(slotMutexHolds) >= 4
	}, 5*time.Second, time.Millisecond)
}

func TestChurn(t *testing.T) {
	ticker := kernel.NewManualTicker()
	s, _ := testSystem(t, []*kernel.ManualTicker{ticker})
	require.NoError(t, s.boot([]config.TaskSpec{
		{Name: "churn", Run: "churn -period 1ms -stack 128"},
	}))
	runSystem(t, s)

	require.Eventually(t, func() bool {
		ticker.Advance(1)
		return s.k.Kills() >= 50
	}, 5*time.Second, time.Millisecond)
	assert.LessOrEqual(t, s.k.Stats().Live, 2)
}

func TestRepeat(t *testing.T) {
	for name, repeat := range map[string]func(time.Duration, func()) func() bool{
		"delay": repeatWithDelay,
		"rate":  repeatAtRate,
	} {
		var n atomic.Int32
		stop := repeat(time.Millisecond, func() { n.Add(1) })
		require.Eventually(t, func() bool { return n.Load() >= 3 }, time.Second, time.Millisecond, name)
		assert.True(t, stop(), name)
		assert.False(t, stop(), name)
	}
}
