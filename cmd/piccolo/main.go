// Command piccolo boots the kernel on simulated cores and runs the demo tasks
// described by a configuration file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/piccolo-os/piccolo/diagnostics"
	"github.com/piccolo-os/piccolo/internal/config"
	"github.com/piccolo-os/piccolo/internal/console"
	"github.com/piccolo-os/piccolo/kernel"
	"github.com/piccolo-os/piccolo/metrics"
)

type flags struct {
	config   string
	port     string
	baud     int
	level    string
	duration time.Duration
	keys     bool
	affinity bool
}

func main() {
	var f flags
	flag.StringVar(&f.config, "config", "", "YAML system description (default: built-in demo)")
	flag.StringVar(&f.port, "port", "", "Serial port to use as the console instead of stdout.")
	flag.IntVar(&f.baud, "baud", 115200, "Baud rate of the serial console.")
	flag.StringVar(&f.level, "log", "info", "Log level: debug, info, warn or error.")
	flag.DurationVar(&f.duration, "duration", 0, "Stop after this long (0 = run until interrupted).")
	flag.BoolVar(&f.keys, "keys", false, "Read keys from the terminal: s signals the reporter, m prints metrics, q quits.")
	flag.BoolVar(&f.affinity, "affinity", false, "Pin every simulated core to its own host CPU.")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, f); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, f flags) error {
	cfg := config.Default()
	if f.config != "" {
		var err error
		cfg, err = config.Load(f.config)
		if err != nil {
			return err
		}
	}
	if f.affinity {
		cfg.Affinity = true
	}
	level, err := zerolog.ParseLevel(f.level)
	if err != nil {
		return err
	}

	out := console.Stdout()
	if f.port != "" {
		out, err = console.OpenSerial(f.port, f.baud)
		if err != nil {
			return err
		}
	}
	defer out.Close()
	log := out.Logger(level)

	var (
		faultsMu sync.Mutex
		faults   []error
	)
	opts := append(cfg.Options(),
		kernel.WithLogger(log),
		kernel.WithFaultHandler(func(fault *kernel.FaultError) {
			faultsMu.Lock()
			faults = append(faults, fault)
			faultsMu.Unlock()
		}),
	)
	k, err := kernel.New(opts...)
	if err != nil {
		return err
	}

	sys := newSystem(k, out, log)
	if err := sys.boot(cfg.Tasks); err != nil {
		k.Close()
		return err
	}

	if f.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.duration)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if f.keys {
		keys, err := console.Keys(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("no terminal, keys disabled")
		} else {
			go sys.handleKeys(keys, cancel)
		}
	}

	out.Printf("PICCOLO OS Demo Starting...")
	err = k.Run(ctx)

	sys.printMetrics()
	faultsMu.Lock()
	defer faultsMu.Unlock()
	if len(faults) > 0 {
		wd, _ := os.Getwd()
		diagnostics.CreateDiagnostics(errors.Join(faults...)).WriteTo(os.Stderr, wd)
	}
	return err
}

func (s *system) handleKeys(keys <-chan rune, quit context.CancelFunc) {
	for r := range keys {
		switch r {
		case 's':
			if err := s.signal("reporter"); err != nil {
				s.log.Warn().Err(err).Msg("cannot signal reporter")
			}
		case 'm':
			s.printMetrics()
		case 'q', 3: // ^C in raw mode
			quit()
			return
		}
	}
}

func (s *system) printMetrics() {
	descs := metrics.All()
	samples := make([]metrics.Sample, len(descs))
	for i, d := range descs {
		samples[i].Name = d.Name
	}
	metrics.Read(s.k, samples)
	for _, sample := range samples {
		switch sample.Value.Kind() {
		case metrics.KindUint64:
			s.out.Printf("%-40s %d", sample.Name, sample.Value.Uint64())
		case metrics.KindFloat64:
			s.out.Printf("%-40s %.3f", sample.Name, sample.Value.Float64())
		case metrics.KindFloat64Histogram:
			s.out.Printf("%-40s %v", sample.Name, sample.Value.Float64Histogram().Counts)
		}
	}
	sh := s.k.Shared()
	for slot := 0; slot < numCounterSlots; slot++ {
		if v := sh.Load(slot); v != 0 {
			s.out.Printf("shared counter %d = %d", slot, v)
		}
	}
	s.out.Printf("mutex: %d holds, %d timeouts", sh.Load(slotMutexHolds), sh.Load(slotMutexFails))
}
