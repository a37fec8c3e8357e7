package main

import (
	"flag"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/piccolo-os/piccolo/internal/config"
	"github.com/piccolo-os/piccolo/internal/console"
	"github.com/piccolo-os/piccolo/kernel"
	"github.com/piccolo-os/piccolo/machine"
)

// Shared counter slots used by the programs. Slots below numCounterSlots are
// free for the counter program.
const (
	slotMutexHolds = kernel.NumCounters - 2
	slotMutexFails = kernel.NumCounters - 1

	numCounterSlots = kernel.NumCounters - 2
)

// A program turns a command line into a task entry.
type program func(s *system, args []string) (kernel.Entry, error)

var programs = map[string]program{
	"blink":    blink,
	"alarm":    alarm,
	"primes":   primes,
	"reporter": reporter,
	"churn":    churn,
	"mutex":    mutex,
	"counter":  counter,
}

// system holds what the demo programs share.
type system struct {
	k   *kernel.Kernel
	out *console.Console
	log zerolog.Logger

	// Filled in before the kernel starts and read-only afterwards.
	tasks map[string]kernel.Handle

	mutex *kernel.Semaphore

	// Task names referred to by the program being parsed.
	refs []string
}

func newSystem(k *kernel.Kernel, out *console.Console, log zerolog.Logger) *system {
	return &system{
		k:     k,
		out:   out,
		log:   log,
		tasks: map[string]kernel.Handle{},
		mutex: k.NewSemaphore(1, 1),
	}
}

// boot creates the configured tasks. Every program is parsed and every task
// a program refers to is resolved before the first task is created.
func (s *system) boot(specs []config.TaskSpec) error {
	names := make(map[string]bool, len(specs))
	for _, spec := range specs {
		names[spec.Name] = true
	}
	for name := range s.tasks {
		names[name] = true
	}

	entries := make([]kernel.Entry, len(specs))
	for i, spec := range specs {
		args, err := spec.Args()
		if err != nil {
			return err
		}
		prog, ok := programs[args[0]]
		if !ok {
			return fmt.Errorf("task %s: unknown program %q", spec.Name, args[0])
		}
		s.refs = s.refs[:0]
		entry, err := prog(s, args[1:])
		if err != nil {
			return fmt.Errorf("task %s: %w", spec.Name, err)
		}
		for _, ref := range s.refs {
			if !names[ref] {
				return fmt.Errorf("task %s: no task named %q", spec.Name, ref)
			}
		}
		entries[i] = entry
	}

	for i, spec := range specs {
		c := s.k.Core(spec.Core)
		if c == nil {
			return fmt.Errorf("task %s: %w", spec.Name, kernel.ErrInvalidCore)
		}
		h, err := c.CreateStack(entries[i], int(spec.Stack))
		if err != nil {
			return fmt.Errorf("task %s: %w", spec.Name, err)
		}
		s.tasks[spec.Name] = h
		s.log.Debug().Str("name", spec.Name).Stringer("task", h).Int("core", spec.Core).Msg("boot task")
	}
	return nil
}

// refer records that the program being parsed talks to the named task.
func (s *system) refer(name string) {
	s.refs = append(s.refs, name)
}

func (s *system) signal(name string) error {
	h, ok := s.tasks[name]
	if !ok {
		return fmt.Errorf("no task named %q", name)
	}
	return s.k.Signal(h)
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// blink toggles a GPIO pin forever.
func blink(s *system, args []string) (kernel.Entry, error) {
	fs := newFlagSet("blink")
	pin := fs.Int("pin", int(machine.LED), "GPIO number")
	period := fs.Duration("period", time.Second, "time spent in each state")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *pin < 0 || *pin > int(machine.GPIO29) {
		return nil, fmt.Errorf("blink: no GPIO%d", *pin)
	}
	p := machine.Pin(*pin)
	return func(t *kernel.Task) {
		var tm kernel.Timer
		p.Configure(machine.PinConfig{Mode: machine.PinOutput})
		for {
			p.High()
			t.Sleep(&tm, *period)
			p.Low()
			t.Sleep(&tm, *period)
		}
	}, nil
}

// alarm arms a host timer and yields until its callback fires, then runs a
// repeating host timer for a while, once with a fixed delay between callbacks
// and once at a fixed rate.
func alarm(s *system, args []string) (kernel.Entry, error) {
	fs := newFlagSet("alarm")
	after := fs.Duration("after", 2*time.Second, "delay of the one-shot alarm")
	every := fs.Duration("every", 500*time.Millisecond, "period of the repeating timer")
	span := fs.Duration("for", 3*time.Second, "how long the repeating timer runs")
	rest := fs.Duration("rest", 2*time.Second, "pause after cancelling the repeating timer")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return func(t *kernel.Task) {
		var tm kernel.Timer
		for {
			var fired atomic.Bool
			s.out.Printf("Hello Timer!")
			oneShot := time.AfterFunc(*after, func() {
				s.out.Printf("Timer fired!")
				fired.Store(true)
			})
			for !fired.Load() {
				t.Yield()
			}
			oneShot.Stop()

			stop := repeatWithDelay(*every, func() {
				s.out.Printf("Repeat at %d", time.Now().UnixMicro())
			})
			t.Sleep(&tm, *span)
			s.out.Printf("cancelled... %t", stop())
			t.Sleep(&tm, *rest)

			stop = repeatAtRate(*every, func() {
				s.out.Printf("Repeat at %d", time.Now().UnixMicro())
			})
			t.Sleep(&tm, *span)
			s.out.Printf("cancelled... %t", stop())
			t.Sleep(&tm, *rest)
			s.out.Printf("Done")
		}
	}, nil
}

// repeatWithDelay calls fn every d, measured from the end of the previous
// call. The returned function cancels it and reports whether it was running.
func repeatWithDelay(d time.Duration, fn func()) func() bool {
	var stopped atomic.Bool
	var timer atomic.Pointer[time.Timer]
	var tick func()
	tick = func() {
		if stopped.Load() {
			return
		}
		fn()
		timer.Store(time.AfterFunc(d, tick))
	}
	timer.Store(time.AfterFunc(d, tick))
	return func() bool {
		if stopped.Swap(true) {
			return false
		}
		timer.Load().Stop()
		return true
	}
}

// repeatAtRate calls fn every d, measured from the start of the previous
// call.
func repeatAtRate(d time.Duration, fn func()) func() bool {
	ticker := time.NewTicker(d)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
	var stopped atomic.Bool
	return func() bool {
		if stopped.Swap(true) {
			return false
		}
		ticker.Stop()
		close(done)
		return true
	}
}

func isPrime(n uint32) bool {
	if n&1 == 0 || n < 2 {
		return n == 2
	}
	// p*p <= n could overflow
	for p := uint32(3); p <= n/p; p += 2 {
		if n%p == 0 {
			return false
		}
	}
	return true
}

// primes is a pure load generator. It signals a task every batch primes and
// yields, and otherwise never gives up its core.
func primes(s *system, args []string) (kernel.Entry, error) {
	fs := newFlagSet("primes")
	target := fs.String("signal", "", "task to signal")
	batch := fs.Int("batch", 1000, "primes per signal")
	limit := fs.Uint("limit", 0, "stop after this many primes (0 = never)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *batch < 1 {
		return nil, fmt.Errorf("primes: invalid batch %d", *batch)
	}
	if *target != "" {
		s.refer(*target)
	}
	return func(t *kernel.Task) {
		found := uint(0)
		for n := uint32(2); *limit == 0 || found < *limit; n++ {
			if !isPrime(n) {
				continue
			}
			found++
			if found%uint(*batch) != 0 {
				continue
			}
			if *target != "" {
				if err := t.Send(s.tasks[*target]); err != nil {
					s.log.Error().Err(err).Str("target", *target).Msg("primes: signal failed")
					return
				}
			}
			t.Yield()
		}
	}, nil
}

// reporter wakes up on signals, which are coalesced while it sleeps, and
// prints what it got together with the kernel's reclaim counter.
func reporter(s *system, args []string) (kernel.Entry, error) {
	fs := newFlagSet("reporter")
	every := fs.Duration("every", time.Second, "minimum time between two reports")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return func(t *kernel.Task) {
		var tm kernel.Timer
		var total uint64
		for {
			n := t.WaitOne()
			total += uint64(n)
			s.out.Printf("reporter: %d signals (%d total), %d tasks reclaimed", n, total, s.k.Kills())
			t.Sleep(&tm, *every)
		}
	}, nil
}

// churn creates short-lived tasks in a loop.
func churn(s *system, args []string) (kernel.Entry, error) {
	fs := newFlagSet("churn")
	period := fs.Duration("period", 10*time.Millisecond, "time between creations")
	stack := fs.Int("stack", 256, "stack size of the children")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return func(t *kernel.Task) {
		var tm kernel.Timer
		child := func(t *kernel.Task) {
			// Touch the stack so that a dirty region would not go unnoticed.
			st := t.Stack()
			for i := range st {
				if st[i] != 0 {
					panic(fmt.Sprintf("churn: stack byte %d not zeroed", i))
				}
				st[i] = 0xa5
			}
		}
		for {
			if _, err := t.Core().CreateStack(child, *stack); err != nil {
				s.log.Warn().Err(err).Msg("churn: create failed")
			}
			t.Sleep(&tm, *period)
		}
	}, nil
}

// mutex competes for the shared semaphore with a timeout, across cores.
func mutex(s *system, args []string) (kernel.Entry, error) {
	fs := newFlagSet("mutex")
	hold := fs.Duration("hold", 5*time.Millisecond, "time the permit is held")
	timeout := fs.Duration("timeout", 20*time.Millisecond, "acquire timeout")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	sh := s.k.Shared()
	return func(t *kernel.Task) {
		var tm kernel.Timer
		for {
			if !s.mutex.AcquireTimeout(t, *timeout) {
				sh.Add(t, slotMutexFails, 1)
				t.Yield()
				continue
			}
			sh.Add(t, slotMutexHolds, 1)
			t.Sleep(&tm, *hold)
			s.mutex.Release(t)
			t.Yield()
		}
	}, nil
}

// counter increments a shared counter slot.
func counter(s *system, args []string) (kernel.Entry, error) {
	fs := newFlagSet("counter")
	slot := fs.Int("slot", 0, "shared counter slot")
	period := fs.Duration("period", time.Millisecond, "time between increments")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *slot < 0 || *slot >= numCounterSlots {
		return nil, fmt.Errorf("counter: slot %d out of range", *slot)
	}
	sh := s.k.Shared()
	return func(t *kernel.Task) {
		var tm kernel.Timer
		for {
			sh.Add(t, *slot, 1)
			t.Sleep(&tm, *period)
		}
	}, nil
}
