// Package console is where the demo writes its output and reads its keys: the
// terminal, or a serial port to which a board console would be wired.
package console

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/mattn/go-colorable"
	"github.com/rs/zerolog"
	"go.bug.st/serial"
)

var ErrPortBusy = errors.New("console: serial port is used by another process")

// Console is an output stream. Close releases the serial port, if any.
type Console struct {
	w      io.Writer
	port   serial.Port
	lock   *flock.Flock
	colors bool
}

// Stdout returns a console on the standard output. ANSI colors work on every
// platform.
func Stdout() *Console {
	return &Console{w: colorable.NewColorableStdout(), colors: true}
}

// New returns a console writing to w, without colors.
func New(w io.Writer) *Console {
	return &Console{w: w}
}

// OpenSerial opens a serial port as the console. A lock file next to the
// system temporary directory keeps two demos from sharing a port.
func OpenSerial(port string, baud int) (*Console, error) {
	lock := flock.New(lockPath(port))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("console: lock %s: %w", port, err)
	}
	if !locked {
		return nil, ErrPortBusy
	}
	p, err := serial.Open(port, &serial.Mode{BaudRate: baud})
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("console: open %s: %w", port, err)
	}
	return &Console{w: p, port: p, lock: lock}, nil
}

func lockPath(port string) string {
	name := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(filepath.Clean(port))
	return filepath.Join(os.TempDir(), "piccolo"+name+".lock")
}

func (c *Console) Write(p []byte) (int, error) {
	return c.w.Write(p)
}

func (c *Console) Close() error {
	var err error
	if c.port != nil {
		err = c.port.Close()
		c.port = nil
	}
	if c.lock != nil {
		err = errors.Join(err, c.lock.Unlock())
		c.lock = nil
	}
	return err
}

// Logger returns a human readable zerolog logger writing to the console.
func (c *Console) Logger(level zerolog.Level) zerolog.Logger {
	w := zerolog.ConsoleWriter{
		Out:        c,
		NoColor:    !c.colors,
		TimeFormat: "15:04:05.000",
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Printf writes a line of plain output, the way a program prints on a board
// console.
func (c *Console) Printf(format string, args ...any) {
	fmt.Fprintf(c, "%s "+format+"\n", append([]any{time.Now().Format("15:04:05.000")}, args...)...)
}
