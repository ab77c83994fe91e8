package gpio

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/itohio/gohx711/pkg/config"
	"github.com/itohio/gohx711/pkg/timing"
)

// PowerDownHold is how long PD_SCK must stay high before the simulated chip
// powers down.
const PowerDownHold = 60 * time.Microsecond

const (
	maxRaw = 0x7FFFFF
	minRaw = -0x800000
)

// Mock simulates an HX711 wired to two GPIO lines. The first claimed input
// acts as DOUT and the first claimed output as PD_SCK.
//
// Each ready conversion latches a value on its first clock pulse and shifts
// it out MSB first over 24 pulses. Pulses while a conversion is still in
// progress shift nothing. The pulses that follow the word select the gain for
// the next conversion; they are counted when DOUT is next sampled with the
// clock low. Holding the clock high for PowerDownHold powers the chip down, and the
// falling edge resets it to channel A, gain 128.
type Mock struct {
	cfg   *config.MockConfig
	clock timing.Clock
	rng   *rand.Rand

	mu       sync.Mutex
	next     Handle
	handles  map[Handle]map[int]bool
	dataPin  int
	clockPin int

	clockHigh   bool
	risenAt     time.Time
	poweredDown bool
	pulses      int
	word        uint32
	readyAt     time.Time
	channel     string
	gain        int

	queue       []int32
	conversions []int
	failReads   int
	failWrites  int
}

// NewMock creates a simulated chip. A nil clock uses the system clock.
func NewMock(cfg *config.MockConfig, clk timing.Clock) *Mock {
	if cfg == nil {
		cfg = &config.MockConfig{
			Value:            100000,
			ValueB:           25000,
			ConversionPeriod: time.Millisecond,
			Seed:             1,
		}
	}
	if clk == nil {
		clk = timing.System{}
	}

	return &Mock{
		cfg:      cfg,
		clock:    clk,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		handles:  make(map[Handle]map[int]bool),
		dataPin:  -1,
		clockPin: -1,
		channel:  "A",
		gain:     128,
	}
}

func (m *Mock) Open(chip int) (Handle, error) {
	if chip < 0 {
		return 0, gpioErr("gpio.open", chip, fmt.Errorf("no such chip"))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	m.handles[m.next] = make(map[int]bool)
	return m.next, nil
}

func (m *Mock) ClaimInput(h Handle, pin int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.claim(h, pin, "gpio.claim_input"); err != nil {
		return err
	}
	if m.dataPin < 0 {
		m.dataPin = pin
		m.readyAt = m.clock.Now().Add(m.cfg.ConversionPeriod)
	}
	return nil
}

func (m *Mock) ClaimOutput(h Handle, pin int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.claim(h, pin, "gpio.claim_output"); err != nil {
		return err
	}
	if m.clockPin < 0 {
		m.clockPin = pin
		m.clockHigh = false
	}
	return nil
}

func (m *Mock) claim(h Handle, pin int, op string) error {
	pins, ok := m.handles[h]
	if !ok {
		return handleErr(op, h)
	}
	for _, other := range m.handles {
		if other[pin] {
			return gpioErr(op, pin, fmt.Errorf("already claimed"))
		}
	}
	pins[pin] = true
	return nil
}

func (m *Mock) check(h Handle, pin int, op string) error {
	pins, ok := m.handles[h]
	if !ok {
		return handleErr(op, h)
	}
	if !pins[pin] {
		return gpioErr(op, pin, fmt.Errorf("not claimed"))
	}
	return nil
}

func (m *Mock) Read(h Handle, pin int) (Level, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failReads > 0 {
		m.failReads--
		return Low, gpioErr("gpio.read", pin, fmt.Errorf("injected failure"))
	}
	if err := m.check(h, pin, "gpio.read"); err != nil {
		return Low, err
	}
	if pin != m.dataPin {
		return Low, nil
	}
	return m.dout(m.clock.Now()), nil
}

func (m *Mock) Write(h Handle, pin int, lvl Level) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWrites > 0 {
		m.failWrites--
		return gpioErr("gpio.write", pin, fmt.Errorf("injected failure"))
	}
	if err := m.check(h, pin, "gpio.write"); err != nil {
		return err
	}
	if pin != m.clockPin {
		return nil
	}

	now := m.clock.Now()
	switch {
	case lvl == High && !m.clockHigh:
		m.clockHigh = true
		m.risenAt = now
		if m.poweredDown {
			return nil
		}
		if m.pulses == 0 && now.Before(m.readyAt) {
			// nothing to shift out yet
			return nil
		}
		m.pulses++
		if m.pulses == 1 {
			m.word = m.latch()
		}
	case lvl == Low && m.clockHigh:
		m.clockHigh = false
		if m.poweredDown || now.Sub(m.risenAt) >= PowerDownHold {
			m.reset(now)
		}
	}
	return nil
}

func (m *Mock) Free(h Handle, pin int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pins, ok := m.handles[h]
	if !ok {
		return handleErr("gpio.free", h)
	}
	if pins[pin] {
		delete(pins, pin)
		m.release(pin)
	}
	return nil
}

func (m *Mock) Close(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pins, ok := m.handles[h]
	if !ok {
		return handleErr("gpio.close", h)
	}
	for pin := range pins {
		m.release(pin)
	}
	delete(m.handles, h)
	return nil
}

func (m *Mock) release(pin int) {
	if pin == m.dataPin {
		m.dataPin = -1
	}
	if pin == m.clockPin {
		m.clockPin = -1
	}
}

// dout computes the data line level at now. Must be called with mu held.
func (m *Mock) dout(now time.Time) Level {
	if m.clockHigh && !m.poweredDown && now.Sub(m.risenAt) >= PowerDownHold {
		m.poweredDown = true
		m.pulses = 0
	}
	if m.poweredDown {
		return High
	}
	if !m.clockHigh && m.pulses > 24 {
		m.finish(now)
	}

	switch {
	case m.pulses == 0:
		if now.Before(m.readyAt) {
			return High
		}
		return Low
	case m.pulses <= 24:
		return Level((m.word >> (24 - m.pulses)) & 1)
	default:
		return High
	}
}

// finish completes a conversion and applies the gain selected by the number
// of pulses clocked.
func (m *Mock) finish(now time.Time) {
	m.conversions = append(m.conversions, m.pulses)
	switch m.pulses {
	case 25:
		m.channel, m.gain = "A", 128
	case 26:
		m.channel, m.gain = "B", 32
	default:
		m.channel, m.gain = "A", 64
	}
	m.pulses = 0
	m.readyAt = now.Add(m.cfg.ConversionPeriod)
}

func (m *Mock) reset(now time.Time) {
	m.poweredDown = false
	m.pulses = 0
	m.channel, m.gain = "A", 128
	m.readyAt = now.Add(m.cfg.ConversionPeriod)
}

// latch picks the value of the conversion being shifted out.
func (m *Mock) latch() uint32 {
	var v int64
	if len(m.queue) > 0 {
		v = int64(m.queue[0])
		m.queue = m.queue[1:]
	} else {
		switch {
		case m.channel == "B":
			v = int64(m.cfg.ValueB)
		case m.gain == 64:
			v = int64(m.cfg.Value) / 2
		default:
			v = int64(m.cfg.Value)
		}
		if n := int64(m.cfg.NoiseLevel); n > 0 {
			v += m.rng.Int63n(2*n+1) - n
		}
	}

	if v > maxRaw {
		v = maxRaw
	} else if v < minRaw {
		v = minRaw
	}
	return uint32(v) & 0xFFFFFF
}

// Queue schedules raw values for the next conversions, ahead of the
// configured ones. Values outside the 24-bit range are clamped.
func (m *Mock) Queue(values ...int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, values...)
}

// SetValue changes the configured channel A reading.
func (m *Mock) SetValue(v int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.Value = v
}

// FailReads makes the next n reads fail.
func (m *Mock) FailReads(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failReads = n
}

// FailWrites makes the next n writes fail.
func (m *Mock) FailWrites(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrites = n
}

// Gain returns the channel and gain the next conversion uses.
func (m *Mock) Gain() (string, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channel, m.gain
}

// PoweredDown reports whether the chip is currently powered down.
func (m *Mock) PoweredDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.clockHigh && m.clock.Now().Sub(m.risenAt) >= PowerDownHold {
		return true
	}
	return m.poweredDown
}

// Conversions returns the pulse count of every completed conversion.
func (m *Mock) Conversions() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.conversions...)
}

// ClockHigh reports the last level written to PD_SCK.
func (m *Mock) ClockHigh() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clockHigh
}

// Claimed reports whether pin is claimed through any handle.
func (m *Mock) Claimed(pin int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pins := range m.handles {
		if pins[pin] {
			return true
		}
	}
	return false
}
