package kernel

import (
	"context"
	"time"
)

// TickSource drives the tick interrupt of one core. Start calls tick once per
// period until ctx is done. Calls to tick never overlap.
type TickSource interface {
	Start(ctx context.Context, tick func()) error
}

// PeriodicTicker ticks on a host timer. Ticks missed because the host was
// busy are dropped, like a timer interrupt that stays pending only once.
type PeriodicTicker struct {
	Period time.Duration
}

func (p PeriodicTicker) Start(ctx context.Context, tick func()) error {
	t := time.NewTicker(p.Period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			tick()
		}
	}
}

// ManualTicker only ticks when told to. It makes time deterministic in tests.
type ManualTicker struct {
	advance chan int
	done    chan struct{}
}

func NewManualTicker() *ManualTicker {
	return &ManualTicker{
		advance: make(chan int),
		done:    make(chan struct{}),
	}
}

func (m *ManualTicker) Start(ctx context.Context, tick func()) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-m.advance:
			for i := 0; i < n; i++ {
				tick()
			}
			m.done <- struct{}{}
		}
	}
}

// Advance delivers n ticks and returns once the tick handler has processed
// all of them. It blocks until the ticker has been started.
func (m *ManualTicker) Advance(n int) {
	m.advance <- n
	<-m.done
}
