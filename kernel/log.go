package kernel

import (
	"errors"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/rs/zerolog"
)

// Warning categories that are not errors returned to a caller.
var (
	errAffinity    = errors.New("kernel: thread affinity")
	errOverRelease = errors.New("kernel: semaphore over-release")
	errSendFailed  = errors.New("kernel: signal send")
)

// Warnings are rate limited per category, as a misbehaving task can produce
// them in a tight loop.
var warnRates = map[time.Duration]int{
	time.Second: 5,
	time.Minute: 60,
}

func newWarnLimiter() *catrate.Limiter {
	return catrate.NewLimiter(warnRates)
}

// warn returns a warning event for the given category, or nil (which discards
// everything logged to it) if the category exceeded its rate.
func (k *Kernel) warn(category any) *zerolog.Event {
	if err, ok := category.(error); ok {
		category = warnCategory(err)
	}
	if _, ok := k.limiter.Allow(category); !ok {
		return nil
	}
	return k.log.Warn()
}

// warnCategory folds typed errors into their sentinel so that every stale
// handle shares one rate.
func warnCategory(err error) error {
	switch {
	case errors.Is(err, ErrStaleHandle):
		return ErrStaleHandle
	case errors.Is(err, ErrInvalidHandle):
		return ErrInvalidHandle
	}
	return err
}
