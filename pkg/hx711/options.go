package hx711

import (
	"time"

	"github.com/itohio/gohx711/pkg/logging"
	"github.com/itohio/gohx711/pkg/timing"
)

const (
	// DefaultHighHold and DefaultLowHold are the clock phase durations of one
	// bit. The chip needs at least 0.2µs each and powers down past 60µs high.
	DefaultHighHold = time.Microsecond
	DefaultLowHold  = time.Microsecond

	// DefaultReadyPoll is the sleep between readiness checks in ReadValue.
	DefaultReadyPoll = time.Millisecond

	// readySetup is T1 in the datasheet: DOUT falling to the first clock edge.
	readySetup = 100 * time.Nanosecond
)

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l logging.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.log = l
		}
	}
}

// WithClock replaces the system clock, mostly for tests.
func WithClock(c timing.Clock) Option {
	return func(d *Driver) {
		if c != nil {
			d.clock = c
		}
	}
}

// WithReadyTimeout bounds how long ReadValue waits for DOUT to go low.
// Zero keeps the default, the settling time of the rate.
func WithReadyTimeout(t time.Duration) Option {
	return func(d *Driver) {
		if t > 0 {
			d.readyTimeout = t
		}
	}
}

// WithReadyPoll sets the sleep between readiness checks in ReadValue.
func WithReadyPoll(t time.Duration) Option {
	return func(d *Driver) {
		if t > 0 {
			d.readyPoll = t
		}
	}
}

// WithPulseTiming sets how long the clock is held high and low per bit.
func WithPulseTiming(high, low time.Duration) Option {
	return func(d *Driver) {
		d.highHold = high
		d.lowHold = low
	}
}

// WithStrictTiming enables the power-down threshold check from the start.
func WithStrictTiming(strict bool) Option {
	return func(d *Driver) {
		d.strict = strict
	}
}

// WithFormat sets the bit and byte presentation order.
func WithFormat(bit, byteOrder Format) Option {
	return func(d *Driver) {
		d.bitFormat = bit
		d.byteFormat = byteOrder
	}
}

// WithConfig sets the channel and gain applied by Connect.
func WithConfig(c Channel, g Gain) Option {
	return func(d *Driver) {
		d.channel = c
		d.gain = g
	}
}
