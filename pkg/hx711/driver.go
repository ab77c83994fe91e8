package hx711

import (
	"errors"
	"fmt"
	"math/bits"
	"runtime"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/itohio/gohx711/pkg/errcode"
	"github.com/itohio/gohx711/pkg/gpio"
	"github.com/itohio/gohx711/pkg/logging"
	"github.com/itohio/gohx711/pkg/timing"
)

// Driver owns the data and clock pins of one HX711.
//
// All wire access is serialized by a single lock that is held for one ready
// check plus conversion read and never across a sleep. SetConfig and PowerUp
// sequences are additionally serialized among themselves.
type Driver struct {
	backend  gpio.Backend
	chip     int
	dataPin  int
	clockPin int
	rate     Rate

	clock        timing.Clock
	log          logging.Logger
	readyTimeout time.Duration
	readyPoll    time.Duration
	highHold     time.Duration
	lowHold      time.Duration

	confMu sync.Mutex

	mu         sync.Mutex
	connected  bool
	handle     gpio.Handle
	cleanup    runtime.Cleanup
	channel    Channel
	gain       Gain
	strict     bool
	bitFormat  Format
	byteFormat Format
	discard    bool // next conversion was taken at the reset gain
}

// New returns a disconnected driver for the given pins on chip.
func New(backend gpio.Backend, chip, dataPin, clockPin int, rate Rate, opts ...Option) (*Driver, error) {
	if backend == nil {
		return nil, errcode.New(errcode.InvalidArgument, "hx711.new", "nil backend")
	}
	if dataPin < 0 || clockPin < 0 || dataPin == clockPin {
		return nil, errcode.New(errcode.InvalidArgument, "hx711.new", fmt.Sprintf("invalid pins data=%d clock=%d", dataPin, clockPin))
	}
	if rate.SettlingTime() == 0 {
		return nil, errcode.New(errcode.InvalidArgument, "hx711.new", fmt.Sprintf("unsupported rate %d Hz", int(rate)))
	}

	d := &Driver{
		backend:      backend,
		chip:         chip,
		dataPin:      dataPin,
		clockPin:     clockPin,
		rate:         rate,
		clock:        timing.System{},
		log:          logging.Null{},
		readyTimeout: rate.SettlingTime(),
		readyPoll:    DefaultReadyPoll,
		highHold:     DefaultHighHold,
		lowHold:      DefaultLowHold,
		channel:      DefaultChannel,
		gain:         DefaultGain,
		bitFormat:    DefaultFormat,
		byteFormat:   DefaultFormat,
	}
	for _, opt := range opts {
		opt(d)
	}

	if err := ValidateConfig(d.channel, d.gain); err != nil {
		return nil, err
	}
	if err := validateFormat("hx711.new", d.bitFormat, d.byteFormat); err != nil {
		return nil, err
	}
	return d, nil
}

type pins struct {
	backend gpio.Backend
	handle  gpio.Handle
	data    int
	clock   int
}

func (p pins) release() error {
	return multierr.Combine(
		p.backend.Free(p.handle, p.data),
		p.backend.Free(p.handle, p.clock),
		p.backend.Close(p.handle),
	)
}

// Connect claims both pins, drives the clock low and pushes the configured
// channel and gain to the chip.
func (d *Driver) Connect() error {
	if err := d.claim(); err != nil {
		return err
	}

	d.mu.Lock()
	ch, g := d.channel, d.gain
	d.mu.Unlock()

	if err := d.SetConfig(ch, g); err != nil {
		return multierr.Append(err, d.Disconnect())
	}

	d.log.Infof("hx711 connected on chip %d data=%d clock=%d rate=%dHz %v/%v", d.chip, d.dataPin, d.clockPin, int(d.rate), ch, g)
	return nil
}

func (d *Driver) claim() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return errcode.New(errcode.Error, "hx711.connect", "already connected")
	}

	h, err := d.backend.Open(d.chip)
	if err != nil {
		return err
	}
	p := pins{backend: d.backend, handle: h, data: d.dataPin, clock: d.clockPin}

	if err := d.backend.ClaimInput(h, d.dataPin); err != nil {
		return multierr.Append(err, d.backend.Close(h))
	}
	if err := d.backend.ClaimOutput(h, d.clockPin); err != nil {
		return multierr.Append(err, p.release())
	}
	if err := d.backend.Write(h, d.clockPin, gpio.Low); err != nil {
		return multierr.Append(err, p.release())
	}

	d.handle = h
	d.connected = true
	d.discard = false
	d.cleanup = runtime.AddCleanup(d, func(p pins) { _ = p.release() }, p)
	return nil
}

// Disconnect releases the pins and the chip handle. It is safe to call more
// than once.
func (d *Driver) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}
	d.connected = false
	d.cleanup.Stop()

	err := pins{backend: d.backend, handle: d.handle, data: d.dataPin, clock: d.clockPin}.release()
	if err != nil {
		d.log.Warnf("hx711 release: %v", err)
	}
	return err
}

// Close is Disconnect.
func (d *Driver) Close() error {
	return d.Disconnect()
}

// IsConnected reports whether the pins are claimed.
func (d *Driver) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

func (d *Driver) closedErr(op string) error {
	return errcode.New(errcode.Closed, op, "not connected")
}

// IsReady samples DOUT once. The chip has a conversion ready when it is low.
func (d *Driver) IsReady() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return false, d.closedErr("hx711.is_ready")
	}
	lvl, err := d.backend.Read(d.handle, d.dataPin)
	if err != nil {
		return false, err
	}
	return lvl == gpio.Low, nil
}

// TryReadValue reads a conversion if one is ready, and fails with
// errcode.NotReady otherwise. The ready check and the read happen under one
// lock acquisition.
func (d *Driver) TryReadValue() (Value, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	v, dropped, err := d.tryReadLocked()
	if err != nil {
		return Value{}, err
	}
	if dropped {
		return Value{}, errcode.New(errcode.NotReady, "hx711.read", "discarded conversion taken at the reset gain")
	}
	return v, nil
}

// tryReadLocked reads one conversion if DOUT is low. dropped reports that the
// conversion was consumed but taken at the gain the chip wakes up with.
// Must be called with mu held.
func (d *Driver) tryReadLocked() (v Value, dropped bool, err error) {
	if !d.connected {
		return Value{}, false, d.closedErr("hx711.read")
	}
	lvl, err := d.backend.Read(d.handle, d.dataPin)
	if err != nil {
		return Value{}, false, err
	}
	if lvl != gpio.Low {
		return Value{}, false, errcode.New(errcode.NotReady, "hx711.read", "conversion in progress")
	}

	v, err = d.readLocked()
	if err != nil {
		d.resyncLocked()
		return Value{}, false, err
	}
	if d.discard {
		d.discard = false
		return Value{}, true, nil
	}
	return v, false, nil
}

// resyncLocked puts the chip in a known state after a conversion was
// abandoned midway. The chip may still be shifting out the word, so the clock
// is held high past the power-down threshold and released, which resets it
// to channel A, gain 128. The first conversion after the reset is dropped
// unless that is the configured gain. Must be called with mu held.
func (d *Driver) resyncLocked() {
	err := d.backend.Write(d.handle, d.clockPin, gpio.High)
	if err == nil {
		d.clock.Delay(PowerDownThreshold)
	}
	err = multierr.Append(err, d.backend.Write(d.handle, d.clockPin, gpio.Low))
	if err != nil {
		d.log.Warnf("hx711 resync: %v", err)
	}
	d.discard = d.gain != Gain128
}

// ReadValue waits for a conversion and reads it. The lock is released
// between readiness checks. It fails with errcode.Timeout if the chip is not
// ready within the ready timeout.
func (d *Driver) ReadValue() (Value, error) {
	deadline := d.clock.Now().Add(d.readyTimeout)
	for {
		v, err := d.TryReadValue()
		if !errors.Is(err, errcode.NotReady) {
			return v, err
		}
		if !d.clock.Now().Before(deadline) {
			return Value{}, errcode.New(errcode.Timeout, "hx711.read", fmt.Sprintf("not ready after %v", d.readyTimeout))
		}
		d.clock.Sleep(d.readyPoll)
	}
}

// ReadChannel reads channel c, switching the configuration first when the
// current gain belongs to the other channel. Channel A falls back to gain 128.
func (d *Driver) ReadChannel(c Channel) (Value, error) {
	d.mu.Lock()
	g := d.gain
	d.mu.Unlock()

	var err error
	switch {
	case c == ChannelA && g == Gain32:
		err = d.SetConfig(ChannelA, Gain128)
	case c == ChannelB && g != Gain32:
		err = d.SetConfig(ChannelB, Gain32)
	case c != ChannelA && c != ChannelB:
		err = ValidateConfig(c, g)
	}
	if err != nil {
		return Value{}, err
	}
	return d.ReadValue()
}

// readLocked shifts out one conversion and the gain selection pulses.
// Must be called with mu held.
func (d *Driver) readLocked() (Value, error) {
	d.clock.Delay(readySetup)

	var raw [3]byte
	for i := range raw {
		for range 8 {
			bit, err := d.readBit()
			if err != nil {
				return Value{}, err
			}
			raw[i] = raw[i]<<1 | bit
		}
	}

	for range d.gain.Pulses() - BitsPerConversion {
		if _, err := d.readBit(); err != nil {
			return Value{}, err
		}
	}

	if d.bitFormat == LSB {
		for i := range raw {
			raw[i] = bits.Reverse8(raw[i])
		}
	}
	if d.byteFormat == LSB {
		raw[0], raw[2] = raw[2], raw[0]
	}
	return Decode(raw), nil
}

// readBit pulses the clock once and samples DOUT while it is high.
func (d *Driver) readBit() (byte, error) {
	start := d.clock.Now()
	if err := d.backend.Write(d.handle, d.clockPin, gpio.High); err != nil {
		return 0, err
	}
	d.clock.Delay(d.highHold)
	lvl, rerr := d.backend.Read(d.handle, d.dataPin)
	werr := d.backend.Write(d.handle, d.clockPin, gpio.Low)
	elapsed := d.clock.Now().Sub(start)
	if err := multierr.Append(rerr, werr); err != nil {
		return 0, err
	}
	d.clock.Delay(d.lowHold)

	if d.strict && elapsed >= PowerDownThreshold {
		return 0, errcode.New(errcode.Integrity, "hx711.read", fmt.Sprintf("clock held high for %v", elapsed))
	}
	return byte(lvl), nil
}

// SetConfig selects the channel and gain. The combination is validated
// before any wire access; one conversion is read to send the selection and
// the chip is power cycled so it takes effect. On failure the previous
// configuration is restored.
func (d *Driver) SetConfig(c Channel, g Gain) error {
	if err := ValidateConfig(c, g); err != nil {
		return err
	}

	d.confMu.Lock()
	defer d.confMu.Unlock()

	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		return d.closedErr("hx711.set_config")
	}
	prevC, prevG := d.channel, d.gain
	d.channel, d.gain = c, g
	d.mu.Unlock()

	err := d.commit()
	if err != nil {
		d.mu.Lock()
		d.channel, d.gain = prevC, prevG
		d.mu.Unlock()
		d.log.Warnf("hx711 set config %v/%v failed, keeping %v/%v: %v", c, g, prevC, prevG, err)
		return err
	}
	d.log.Debugf("hx711 config %v/%v", c, g)
	return nil
}

func (d *Driver) commit() error {
	if _, err := d.ReadValue(); err != nil {
		return err
	}
	if err := d.PowerDown(); err != nil {
		return err
	}
	return d.powerUp()
}

// PowerDown holds the clock high long enough for the chip to power down.
func (d *Driver) PowerDown() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return d.closedErr("hx711.power_down")
	}
	if err := d.backend.Write(d.handle, d.clockPin, gpio.Low); err != nil {
		return err
	}
	if err := d.backend.Write(d.handle, d.clockPin, gpio.High); err != nil {
		return err
	}
	d.clock.Delay(PowerDownThreshold)
	return nil
}

// PowerUp drives the clock low, waits for the output to settle and re-sends
// the configuration, since the chip always wakes on channel A, gain 128.
func (d *Driver) PowerUp() error {
	d.confMu.Lock()
	defer d.confMu.Unlock()
	return d.powerUp()
}

func (d *Driver) powerUp() error {
	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		return d.closedErr("hx711.power_up")
	}
	err := d.backend.Write(d.handle, d.clockPin, gpio.Low)
	g := d.gain
	// Whoever reads first after the reset gets a gain 128 conversion.
	d.discard = g != Gain128
	d.mu.Unlock()
	if err != nil {
		return err
	}

	d.clock.Sleep(d.rate.SettlingTime())

	if g != Gain128 {
		return d.reassertGain()
	}
	return nil
}

// reassertGain clocks out one conversion so the chip picks up the configured
// gain again. The conversion itself is not returned.
func (d *Driver) reassertGain() error {
	deadline := d.clock.Now().Add(d.readyTimeout)
	for {
		d.mu.Lock()
		_, _, err := d.tryReadLocked()
		d.mu.Unlock()
		if !errors.Is(err, errcode.NotReady) {
			return err
		}
		if !d.clock.Now().Before(deadline) {
			return errcode.New(errcode.Timeout, "hx711.power_up", fmt.Sprintf("not ready after %v", d.readyTimeout))
		}
		d.clock.Sleep(d.readyPoll)
	}
}

// SetStrictTiming turns the power-down threshold check on or off.
func (d *Driver) SetStrictTiming(strict bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.strict = strict
}

// SetFormat sets how captured bits and bytes are ordered before decoding.
func (d *Driver) SetFormat(bit, byteOrder Format) error {
	if err := validateFormat("hx711.set_format", bit, byteOrder); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bitFormat = bit
	d.byteFormat = byteOrder
	return nil
}

func validateFormat(op string, bit, byteOrder Format) error {
	if (bit != MSB && bit != LSB) || (byteOrder != MSB && byteOrder != LSB) {
		return errcode.New(errcode.InvalidArgument, op, fmt.Sprintf("invalid format %d/%d", bit, byteOrder))
	}
	return nil
}

// Channel returns the selected input channel.
func (d *Driver) Channel() Channel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.channel
}

// Gain returns the selected gain.
func (d *Driver) Gain() Gain {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gain
}

// StrictTiming reports whether reads fail when the clock stays high too long.
func (d *Driver) StrictTiming() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.strict
}

// BitFormat returns the bit order applied within each byte.
func (d *Driver) BitFormat() Format {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bitFormat
}

// ByteFormat returns the byte order applied to the 24-bit word.
func (d *Driver) ByteFormat() Format {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.byteFormat
}

// Rate returns the output data rate the chip is wired for.
func (d *Driver) Rate() Rate { return d.rate }

// DataPin returns the DOUT pin number.
func (d *Driver) DataPin() int { return d.dataPin }

// ClockPin returns the PD_SCK pin number.
func (d *Driver) ClockPin() int { return d.clockPin }
