package kernel

import (
	"fmt"
	"sync/atomic"
	"testing"
)

// Cost of a yield with m tasks yielding in turn on one core, then with all
// but one of them blocked.
func BenchmarkYield(b *testing.B) {
	for m := 1; m <= 3; m++ {
		b.Run(fmt.Sprintf("ready=%d", m), func(b *testing.B) {
			benchmarkYield(b, m, 0)
		})
	}
	for m := 2; m <= 3; m++ {
		b.Run(fmt.Sprintf("ready=1/blocked=%d", m-1), func(b *testing.B) {
			benchmarkYield(b, 1, m-1)
		})
	}
}

func benchmarkYield(b *testing.B, ready, blocked int) {
	k, _ := startKernel(b, 1)
	for i := 0; i < blocked; i++ {
		h, err := k.Create(0, func(t *Task) {
			for {
				t.WaitOne()
			}
		})
		if err != nil {
			b.Fatal(err)
		}
		waitState(b, k, h, StateWaitingSignal)
	}

	var n atomic.Int64
	target := int64(b.N)
	done := make(chan struct{})
	b.ResetTimer()
	for i := 0; i < ready; i++ {
		_, err := k.Create(0, func(t *Task) {
			for {
				if n.Add(1) == target {
					close(done)
				}
				t.Yield()
			}
		})
		if err != nil {
			b.Fatal(err)
		}
	}
	<-done
	b.StopTimer()
}
