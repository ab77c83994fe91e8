// Package timing isolates the wall-clock and delay primitives used when
// bit-banging, so tests can substitute a deterministic clock.
package timing

import (
	"sync"
	"time"
)

// SpinThreshold is the longest delay System.Delay busy-waits for. OS sleeps
// overshoot by tens of microseconds, which is longer than the chip tolerates.
const SpinThreshold = 100 * time.Microsecond

// Clock provides time and delays to the protocol driver.
type Clock interface {
	Now() time.Time
	// Delay holds for at least d, busy-waiting for short durations.
	Delay(d time.Duration)
	// Sleep yields the goroutine for at least d.
	Sleep(d time.Duration)
}

// System is the real clock.
type System struct{}

var _ Clock = System{}

func (System) Now() time.Time { return time.Now() }

func (System) Delay(d time.Duration) {
	if d <= 0 {
		return
	}
	if d >= SpinThreshold {
		time.Sleep(d)
		return
	}
	end := time.Now().Add(d)
	for time.Now().Before(end) {
	}
}

func (System) Sleep(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

// Fake is a manually advanced clock. Delay and Sleep return immediately after
// moving the clock forward.
type Fake struct {
	mu    sync.Mutex
	now   time.Time
	stall time.Duration
	slept time.Duration
}

var _ Clock = (*Fake)(nil)

// NewFake returns a Fake clock starting at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Delay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d + f.stall)
	f.stall = 0
}

func (f *Fake) Sleep(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	f.slept += d
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// StallNext makes the next Delay take an extra d, as if the goroutine had been
// preempted in the middle of a clock pulse.
func (f *Fake) StallNext(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stall = d
}

// Slept returns the total time passed to Sleep.
func (f *Fake) Slept() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slept
}
