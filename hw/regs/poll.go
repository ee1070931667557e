package regs

import (
	"errors"
	"fmt"
	"runtime"
	"time"
)

// ErrPollTimeout is returned when a polled condition does not settle in time.
var ErrPollTimeout = errors.New("regs: poll timeout")

// PollConfig bounds a status poll. The first retry sleeps Interval; each later
// retry doubles the sleep up to MaxInterval. A zero Interval yields the processor
// between reads instead of sleeping.
type PollConfig struct {
	Timeout     time.Duration
	Interval    time.Duration
	MaxInterval time.Duration
}

// DefaultPollConfig matches the engine's bit reader, which settles within microseconds.
var DefaultPollConfig = PollConfig{
	Timeout:     100 * time.Millisecond,
	Interval:    time.Microsecond,
	MaxInterval: 100 * time.Microsecond,
}

// WaitClear polls the register at off until every bit of mask reads zero.
func WaitClear(f File, off, mask uint32, cfg PollConfig) error {
	if f.Read32(off)&mask == 0 {
		return nil
	}

	deadline := time.Now().Add(cfg.Timeout)
	sleep := cfg.Interval
	for {
		if sleep <= 0 {
			runtime.Gosched()
		} else {
			time.Sleep(sleep)
			if sleep *= 2; cfg.MaxInterval > 0 && sleep > cfg.MaxInterval {
				sleep = cfg.MaxInterval
			}
		}
		v := f.Read32(off)
		if v&mask == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: register %#x = %#x", ErrPollTimeout, off, v)
		}
	}
}
