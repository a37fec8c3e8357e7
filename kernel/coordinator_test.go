package kernel

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpinLock(t *testing.T) {
	var (
		l  spinLock
		n  int
		wg sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				l.Lock()
				n++
				l.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 8000, n)
}

func TestCrossCoreCounters(t *testing.T) {
	const n = 2000
	k, _ := startKernel(t, 2)
	sh := k.Shared()

	done := make(chan struct{}, 2)
	for core := 0; core < 2; core++ {
		core := core
		_, err := k.Create(core, func(t *Task) {
			for i := 0; i < n; i++ {
				// Both cores hammer slot 0; each also owns a private slot.
				sh.Add(t, 0, 1)
				sh.Add(t, 1+core, 1)
				if i%64 == 0 {
					t.Yield()
				}
			}
			done <- struct{}{}
		})
		require.NoError(t, err)
	}
	recv(t, done)
	recv(t, done)

	assert.Equal(t, uint64(2*n), sh.Load(0))
	assert.Equal(t, uint64(n), sh.Load(1))
	assert.Equal(t, uint64(n), sh.Load(2))
	assert.Equal(t, uint64(4*n), sh.Load(0)+sh.Load(1)+sh.Load(2))
}

func TestSharedDo(t *testing.T) {
	k, _ := startKernel(t, 2)
	sh := k.Shared()

	var pairs [2]uint64
	var torn atomic.Bool
	done := make(chan struct{}, 2)
	for core := 0; core < 2; core++ {
		_, err := k.Create(core, func(t *Task) {
			for i := 0; i < 1000; i++ {
				sh.Do(t, func() {
					if pairs[0] != pairs[1] {
						torn.Store(true)
					}
					pairs[0]++
					pairs[1]++
				})
			}
			done <- struct{}{}
		})
		require.NoError(t, err)
	}
	recv(t, done)
	recv(t, done)

	sh.Do(nil, func() {
		assert.Equal(t, uint64(2000), pairs[0])
	})
	assert.False(t, torn.Load())
}

func TestCounterRange(t *testing.T) {
	k, err := New()
	require.NoError(t, err)
	defer k.Close()
	assert.Panics(t, func() { k.Shared().Load(NumCounters) })
	assert.Panics(t, func() { k.Shared().Add(nil, -1, 1) })
	assert.Equal(t, uint64(3), k.Shared().Add(nil, NumCounters-1, 3))
}
