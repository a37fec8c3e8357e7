package kernel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalCoalescingSameCore(t *testing.T) {
	const k = 5
	kern, _ := startKernel(t, 1)

	got := make(chan uint32, 4)
	recvr, err := kern.Create(0, func(t *Task) {
		for {
			got <- t.WaitOne()
		}
	})
	require.NoError(t, err)
	waitState(t, kern, recvr, StateWaitingSignal)

	_, err = kern.Create(0, func(tk *Task) {
		for i := 0; i < k; i++ {
			assert.NoError(t, tk.Send(recvr))
		}
	})
	require.NoError(t, err)

	assert.Equal(t, uint32(k), recv(t, got))
	waitState(t, kern, recvr, StateWaitingSignal)
	noRecv(t, got)
}

func TestSignalCoalescingCrossCore(t *testing.T) {
	const k = 7
	kern, tickers := startKernel(t, 2)

	got := make(chan uint32, 4)
	recvr, err := kern.Create(1, func(t *Task) {
		// Not waiting while the signals arrive.
		t.Sleep(nil, time.Millisecond)
		for {
			got <- t.WaitOne()
		}
	})
	require.NoError(t, err)
	waitState(t, kern, recvr, StateSleeping)

	sent := make(chan struct{})
	_, err = kern.Create(0, func(tk *Task) {
		for i := 0; i < k; i++ {
			assert.NoError(t, tk.Send(recvr))
			tk.Yield()
		}
		close(sent)
	})
	require.NoError(t, err)
	recv(t, sent)

	tickers[1].Advance(1)
	assert.Equal(t, uint32(k), recv(t, got))
	waitState(t, kern, recvr, StateWaitingSignal)
	noRecv(t, got)

	// A waiting task is woken by a single signal from outside any task.
	require.NoError(t, kern.Signal(recvr))
	assert.Equal(t, uint32(1), recv(t, got))
}

func TestSignalBurstNoLoss(t *testing.T) {
	const k = 10000
	kern, _ := startKernel(t, 2)

	total := make(chan uint64, 1)
	wakes := make(chan int, 1)
	recvr, err := kern.Create(1, func(t *Task) {
		var sum uint64
		n := 0
		for sum < k {
			sum += uint64(t.WaitAll())
			n++
		}
		total <- sum
		wakes <- n
	})
	require.NoError(t, err)

	_, err = kern.Create(0, func(t *Task) {
		for i := 0; i < k; i++ {
			if err := t.Send(recvr); err != nil {
				panic(err)
			}
			if i%1000 == 0 {
				t.Yield()
			}
		}
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(k), recv(t, total))
	assert.LessOrEqual(t, recv(t, wakes), k)
}

func TestPoll(t *testing.T) {
	kern, _ := startKernel(t, 1)
	polls := make(chan uint32, 3)
	_, err := kern.Create(0, func(tk *Task) {
		polls <- tk.Poll()
		for i := 0; i < 3; i++ {
			assert.NoError(t, tk.Send(tk.Handle()))
		}
		polls <- tk.Poll()
		polls <- tk.Poll()
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(0), recv(t, polls))
	assert.Equal(t, uint32(3), recv(t, polls))
	assert.Equal(t, uint32(0), recv(t, polls))
}

func TestSendStale(t *testing.T) {
	kern, _ := startKernel(t, 1)
	gone, err := kern.Create(0, func(*Task) {})
	require.NoError(t, err)
	waitDead(t, kern, gone)

	errs := make(chan error, 2)
	_, err = kern.Create(0, func(t *Task) {
		errs <- t.Send(gone)
		errs <- t.Send(Handle{})
	})
	require.NoError(t, err)
	assert.ErrorIs(t, recv(t, errs), ErrStaleHandle)
	assert.ErrorIs(t, recv(t, errs), ErrInvalidHandle)
}
