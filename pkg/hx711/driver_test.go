package hx711

import (
	"sync"
	"testing"
	"time"

	"github.com/itohio/gohx711/pkg/config"
	"github.com/itohio/gohx711/pkg/errcode"
	"github.com/itohio/gohx711/pkg/gpio"
	"github.com/itohio/gohx711/pkg/timing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	dataPin  = 5
	clockPin = 6
)

// stallClock stretches the next delay of exactly hold by extra, as if the
// goroutine was preempted with the clock line high.
type stallClock struct {
	*timing.Fake

	mu    sync.Mutex
	hold  time.Duration
	extra time.Duration
}

func (c *stallClock) arm(extra time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.extra = extra
}

func (c *stallClock) Delay(d time.Duration) {
	c.mu.Lock()
	if d == c.hold && c.extra > 0 {
		d += c.extra
		c.extra = 0
	}
	c.mu.Unlock()
	c.Fake.Delay(d)
}

func newMock(clk timing.Clock, period time.Duration) *gpio.Mock {
	return gpio.NewMock(&config.MockConfig{
		Value:            1000,
		ValueB:           200,
		ConversionPeriod: period,
		Seed:             1,
	}, clk)
}

// skewClock lets time jump right after the read setup delay, before the
// first clock pulse. The driver then measures a long pulse although the
// line was high only for the hold time.
type skewClock struct {
	*timing.Fake

	mu      sync.Mutex
	jump    time.Duration
	pending bool
}

func (c *skewClock) arm(jump time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jump = jump
}

func (c *skewClock) Delay(d time.Duration) {
	c.Fake.Delay(d)
	c.mu.Lock()
	defer c.mu.Unlock()
	if d == readySetup && c.jump > 0 {
		c.pending = true
	}
}

func (c *skewClock) Now() time.Time {
	now := c.Fake.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending {
		c.Fake.Advance(c.jump)
		c.pending = false
		c.jump = 0
	}
	return now
}

// hookClock runs a callback once, right after the power-up settling sleep.
type hookClock struct {
	*timing.Fake

	mu     sync.Mutex
	settle time.Duration
	hook   func()
}

func (c *hookClock) onSettle(settle time.Duration, hook func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settle, c.hook = settle, hook
}

func (c *hookClock) Sleep(d time.Duration) {
	c.Fake.Sleep(d)
	c.mu.Lock()
	hook := c.hook
	if d != c.settle {
		hook = nil
	}
	if hook != nil {
		c.hook = nil
	}
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func connectDriver(t *testing.T, clk timing.Clock, opts ...Option) (*Driver, *gpio.Mock) {
	t.Helper()
	m := newMock(clk, time.Millisecond)

	opts = append([]Option{WithClock(clk), WithPulseTiming(2*time.Microsecond, time.Microsecond)}, opts...)
	d, err := New(m, 0, dataPin, clockPin, Rate80, opts...)
	require.NoError(t, err)
	require.NoError(t, d.Connect())
	t.Cleanup(func() { _ = d.Close() })
	return d, m
}

func newTestDriver(t *testing.T, opts ...Option) (*Driver, *gpio.Mock, *stallClock) {
	t.Helper()
	clk := &stallClock{Fake: timing.NewFake(time.Unix(0, 0)), hold: 2 * time.Microsecond}
	d, m := connectDriver(t, clk, opts...)
	return d, m, clk
}

func TestNew_Invalid(t *testing.T) {
	m := gpio.NewMock(nil, nil)

	_, err := New(nil, 0, dataPin, clockPin, Rate80)
	assert.Equal(t, errcode.InvalidArgument, errcode.Of(err))

	_, err = New(m, 0, 4, 4, Rate80)
	assert.Equal(t, errcode.InvalidArgument, errcode.Of(err))

	_, err = New(m, 0, -1, 4, Rate80)
	assert.Equal(t, errcode.InvalidArgument, errcode.Of(err))

	_, err = New(m, 0, dataPin, clockPin, Rate(40))
	assert.Equal(t, errcode.InvalidArgument, errcode.Of(err))

	_, err = New(m, 0, dataPin, clockPin, Rate80, WithConfig(ChannelB, Gain128))
	assert.Equal(t, errcode.InvalidArgument, errcode.Of(err))

	_, err = New(m, 0, dataPin, clockPin, Rate80, WithFormat(Format(7), MSB))
	assert.Equal(t, errcode.InvalidArgument, errcode.Of(err))

	_, err = New(m, 0, dataPin, clockPin, Rate80, WithFormat(LSB, Format(-1)))
	assert.Equal(t, errcode.InvalidArgument, errcode.Of(err))
}

func TestDriver_Connect(t *testing.T) {
	d, m, _ := newTestDriver(t)

	assert.True(t, d.IsConnected())
	assert.True(t, m.Claimed(dataPin))
	assert.True(t, m.Claimed(clockPin))
	assert.False(t, m.ClockHigh())
	assert.Equal(t, ChannelA, d.Channel())
	assert.Equal(t, Gain128, d.Gain())

	err := d.Connect()
	assert.Error(t, err, "already connected")

	require.NoError(t, d.Disconnect())
	assert.False(t, d.IsConnected())
	assert.False(t, m.Claimed(dataPin))
	assert.False(t, m.Claimed(clockPin))
	assert.NoError(t, d.Disconnect())
	assert.NoError(t, d.Close())

	_, err = d.ReadValue()
	assert.Equal(t, errcode.Closed, errcode.Of(err))
	_, err = d.IsReady()
	assert.Equal(t, errcode.Closed, errcode.Of(err))
	assert.Equal(t, errcode.Closed, errcode.Of(d.PowerDown()))

	require.NoError(t, d.Connect(), "reconnect after disconnect")
}

func TestDriver_ConnectTimeout(t *testing.T) {
	clk := timing.NewFake(time.Unix(0, 0))
	m := newMock(clk, time.Hour)

	d, err := New(m, 0, dataPin, clockPin, Rate80, WithClock(clk))
	require.NoError(t, err)

	err = d.Connect()
	assert.ErrorIs(t, err, errcode.Timeout)
	assert.False(t, d.IsConnected())
	assert.False(t, m.Claimed(dataPin))
	assert.False(t, m.Claimed(clockPin))
}

func TestDriver_ConnectClaimFailure(t *testing.T) {
	m := gpio.NewMock(nil, nil)
	h, err := m.Open(0)
	require.NoError(t, err)
	require.NoError(t, m.ClaimOutput(h, clockPin))

	d, err := New(m, 0, dataPin, clockPin, Rate80)
	require.NoError(t, err)
	err = d.Connect()
	assert.Equal(t, errcode.Gpio, errcode.Of(err))
	assert.False(t, m.Claimed(dataPin), "data pin released after clock claim failed")
}

func TestDriver_ReadValue(t *testing.T) {
	d, m, _ := newTestDriver(t)

	want := []int32{-5, 123456, Max, Min, 0, -1}
	m.Queue(want...)

	for _, w := range want {
		v, err := d.ReadValue()
		require.NoError(t, err)
		assert.Equal(t, w, v.Raw())
		assert.True(t, v.IsValid())
	}

	v, err := d.ReadValue()
	require.NoError(t, err)
	assert.Equal(t, int32(1000), v.Raw())
}

func TestDriver_TryReadValue(t *testing.T) {
	d, m, clk := newTestDriver(t)
	clk.Advance(time.Millisecond)

	_, err := d.ReadValue()
	require.NoError(t, err)

	ready, err := d.IsReady()
	require.NoError(t, err)
	assert.False(t, ready)

	_, err = d.TryReadValue()
	assert.ErrorIs(t, err, errcode.NotReady)

	clk.Advance(time.Millisecond)
	ready, err = d.IsReady()
	require.NoError(t, err)
	assert.True(t, ready)

	m.Queue(77)
	v, err := d.TryReadValue()
	require.NoError(t, err)
	assert.Equal(t, int32(77), v.Raw())
}

func TestDriver_ReadTimeout(t *testing.T) {
	d, _, clk := newTestDriver(t, WithReadyTimeout(10*time.Millisecond))

	require.NoError(t, d.PowerDown())
	before := clk.Slept()
	_, err := d.ReadValue()
	assert.ErrorIs(t, err, errcode.Timeout)
	assert.GreaterOrEqual(t, clk.Slept()-before, 10*time.Millisecond)
}

func TestDriver_GpioError(t *testing.T) {
	d, m, _ := newTestDriver(t)

	m.FailReads(1)
	_, err := d.ReadValue()
	assert.Equal(t, errcode.Gpio, errcode.Of(err))

	m.Queue(9)
	v, err := d.ReadValue()
	require.NoError(t, err)
	assert.Equal(t, int32(9), v.Raw())
}

func TestDriver_SetConfig(t *testing.T) {
	d, m, _ := newTestDriver(t)

	require.NoError(t, d.SetConfig(ChannelB, Gain32))
	assert.Equal(t, ChannelB, d.Channel())
	assert.Equal(t, Gain32, d.Gain())

	v, err := d.ReadValue()
	require.NoError(t, err)
	assert.Equal(t, int32(200), v.Raw())
	ch, gain := m.Gain()
	assert.Equal(t, "B", ch)
	assert.Equal(t, 32, gain)

	require.NoError(t, d.SetConfig(ChannelA, Gain64))
	v, err = d.ReadValue()
	require.NoError(t, err)
	assert.Equal(t, int32(500), v.Raw())
}

func TestDriver_SetConfig_Invalid(t *testing.T) {
	d, m, _ := newTestDriver(t)
	before := m.Conversions()

	err := d.SetConfig(ChannelA, Gain32)
	assert.Equal(t, errcode.InvalidArgument, errcode.Of(err))
	err = d.SetConfig(ChannelB, Gain128)
	assert.Equal(t, errcode.InvalidArgument, errcode.Of(err))

	assert.Equal(t, before, m.Conversions(), "no wire access")
	assert.Equal(t, ChannelA, d.Channel())
	assert.Equal(t, Gain128, d.Gain())
}

func TestDriver_SetConfig_Rollback(t *testing.T) {
	d, m, _ := newTestDriver(t)

	m.FailReads(1)
	err := d.SetConfig(ChannelB, Gain32)
	assert.Equal(t, errcode.Gpio, errcode.Of(err))
	assert.Equal(t, ChannelA, d.Channel())
	assert.Equal(t, Gain128, d.Gain())

	m.FailWrites(1)
	err = d.SetConfig(ChannelA, Gain64)
	assert.Equal(t, errcode.Gpio, errcode.Of(err))
	assert.Equal(t, Gain128, d.Gain())
}

func TestDriver_ReadChannel(t *testing.T) {
	d, _, _ := newTestDriver(t)

	v, err := d.ReadChannel(ChannelB)
	require.NoError(t, err)
	assert.Equal(t, int32(200), v.Raw())
	assert.Equal(t, Gain32, d.Gain())

	v, err = d.ReadChannel(ChannelA)
	require.NoError(t, err)
	assert.Equal(t, int32(1000), v.Raw())
	assert.Equal(t, Gain128, d.Gain())

	_, err = d.ReadChannel(Channel('Z'))
	assert.Equal(t, errcode.InvalidArgument, errcode.Of(err))
}

func TestDriver_PowerCycle(t *testing.T) {
	d, m, clk := newTestDriver(t)

	require.NoError(t, d.PowerDown())
	assert.True(t, m.PoweredDown())
	ready, err := d.IsReady()
	require.NoError(t, err)
	assert.False(t, ready)

	before := clk.Slept()
	require.NoError(t, d.PowerUp())
	assert.False(t, m.PoweredDown())
	assert.Equal(t, Rate80.SettlingTime(), clk.Slept()-before)

	v, err := d.ReadValue()
	require.NoError(t, err)
	assert.Equal(t, int32(1000), v.Raw())
}

func TestDriver_PowerUpReassertsGain(t *testing.T) {
	d, m, _ := newTestDriver(t, WithConfig(ChannelA, Gain64))
	assert.Equal(t, Gain64, d.Gain())

	require.NoError(t, d.PowerDown())
	require.NoError(t, d.PowerUp())

	v, err := d.ReadValue()
	require.NoError(t, err)
	assert.Equal(t, int32(500), v.Raw())
	_, gain := m.Gain()
	assert.Equal(t, 64, gain)
}

func TestDriver_StrictTiming(t *testing.T) {
	d, m, clk := newTestDriver(t)

	m.Queue(41, 42)
	clk.arm(PowerDownThreshold)
	d.SetStrictTiming(true)
	assert.True(t, d.StrictTiming())

	_, err := d.ReadValue()
	assert.ErrorIs(t, err, errcode.Integrity)

	v, err := d.ReadValue()
	require.NoError(t, err)
	assert.Equal(t, int32(42), v.Raw())
}

func TestDriver_StrictTiming_DiscardsResetGain(t *testing.T) {
	d, m, clk := newTestDriver(t, WithConfig(ChannelA, Gain64), WithStrictTiming(true))

	m.Queue(1, 2, 3)
	clk.arm(PowerDownThreshold)

	_, err := d.ReadValue()
	assert.ErrorIs(t, err, errcode.Integrity)

	v, err := d.ReadValue()
	require.NoError(t, err)
	assert.Equal(t, int32(3), v.Raw(), "conversion taken at the reset gain is dropped")
}

func TestDriver_StrictTiming_ResyncsMidWord(t *testing.T) {
	tests := []struct {
		name  string
		gain  Gain
		queue []int32
		want  int32
	}{
		{name: "gain 128", gain: Gain128, queue: []int32{0x123456, 0x0A0B0C}, want: 0x0A0B0C},
		{name: "gain 64", gain: Gain64, queue: []int32{0x123456, 1, 2}, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := &skewClock{Fake: timing.NewFake(time.Unix(0, 0))}
			d, m := connectDriver(t, clk, WithConfig(ChannelA, tt.gain), WithStrictTiming(true))

			m.Queue(tt.queue...)
			clk.arm(PowerDownThreshold + 10*time.Microsecond)

			_, err := d.ReadValue()
			assert.ErrorIs(t, err, errcode.Integrity)
			assert.False(t, m.ClockHigh())
			assert.False(t, m.PoweredDown())

			v, err := d.ReadValue()
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Raw(), "the abandoned word must not be read as a new conversion")
			ch, gain := m.Gain()
			assert.Equal(t, "A", ch)
			assert.Equal(t, int(tt.gain), gain)
		})
	}
}

func TestDriver_PowerUpDropsResetGainForConcurrentReader(t *testing.T) {
	clk := &hookClock{Fake: timing.NewFake(time.Unix(0, 0))}
	d, _ := connectDriver(t, clk, WithConfig(ChannelA, Gain64))

	require.NoError(t, d.PowerDown())

	var (
		got    Value
		gotErr error
	)
	clk.onSettle(Rate80.SettlingTime(), func() {
		got, gotErr = d.TryReadValue()
	})
	require.NoError(t, d.PowerUp())

	assert.ErrorIs(t, gotErr, errcode.NotReady)
	assert.False(t, got.IsSet())

	v, err := d.ReadValue()
	require.NoError(t, err)
	assert.Equal(t, int32(500), v.Raw())
}

func TestDriver_LenientTiming(t *testing.T) {
	d, _, clk := newTestDriver(t)

	clk.arm(PowerDownThreshold)
	_, err := d.ReadValue()
	assert.NoError(t, err, "stall is ignored unless strict")
}

func TestDriver_Format(t *testing.T) {
	tests := []struct {
		name       string
		bit, order Format
		want       int32
	}{
		{name: "msb/msb", bit: MSB, order: MSB, want: 0x010203},
		{name: "msb/lsb", bit: MSB, order: LSB, want: 0x030201},
		{name: "lsb/msb", bit: LSB, order: MSB, want: -(0x800000) + 0x40C0},
		{name: "lsb/lsb", bit: LSB, order: LSB, want: -(0x800000) + 0x404080},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, m, _ := newTestDriver(t)
			require.NoError(t, d.SetFormat(tt.bit, tt.order))
			assert.Equal(t, tt.bit, d.BitFormat())
			assert.Equal(t, tt.order, d.ByteFormat())

			m.Queue(0x010203)
			v, err := d.ReadValue()
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Raw())
		})
	}

	d, _, _ := newTestDriver(t)
	assert.Error(t, d.SetFormat(Format(7), MSB))
}

func TestDriver_ConcurrentReads(t *testing.T) {
	d, _, _ := newTestDriver(t, WithReadyTimeout(time.Hour))

	const (
		workers = 4
		reads   = 10
	)
	var wg sync.WaitGroup
	errs := make(chan error, workers*reads)
	vals := make(chan int32, workers*reads)

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range reads {
				v, err := d.ReadValue()
				if err != nil {
					errs <- err
					continue
				}
				vals <- v.Raw()
			}
		}()
	}
	wg.Wait()
	close(errs)
	close(vals)

	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}
	n := 0
	for v := range vals {
		assert.Equal(t, int32(1000), v)
		n++
	}
	assert.Equal(t, workers*reads, n)
}
