// Package hx711 talks to an HX711 24-bit load-cell ADC by bit-banging its
// PD_SCK (clock) and DOUT (data) lines through a gpio.Backend.
package hx711

import (
	"fmt"
	"strings"
	"time"

	"github.com/itohio/gohx711/pkg/errcode"
)

const (
	// PowerDownThreshold is the clock-high time after which the chip powers
	// down. Bits sampled past it are not trusted.
	PowerDownThreshold = 60 * time.Microsecond

	// BitsPerConversion is the number of data pulses in one conversion.
	BitsPerConversion = 24
)

// Channel is an analog input of the chip.
type Channel byte

const (
	ChannelA Channel = 'A'
	ChannelB Channel = 'B'
)

func (c Channel) String() string {
	switch c {
	case ChannelA, ChannelB:
		return string(rune(c))
	default:
		return fmt.Sprintf("Channel(%d)", byte(c))
	}
}

// ParseChannel accepts "A" or "B" in either case.
func ParseChannel(s string) (Channel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A":
		return ChannelA, nil
	case "B":
		return ChannelB, nil
	}
	return 0, errcode.New(errcode.InvalidArgument, "hx711.parse_channel", fmt.Sprintf("unknown channel %q", s))
}

// Gain is the amplification applied before conversion.
type Gain int

const (
	Gain128 Gain = 128
	Gain64  Gain = 64
	Gain32  Gain = 32
)

// Pulses returns the total clock pulses in a conversion period that select
// gain g for the following conversion, or 0 for an unknown gain.
func (g Gain) Pulses() int {
	switch g {
	case Gain128:
		return 25
	case Gain32:
		return 26
	case Gain64:
		return 27
	default:
		return 0
	}
}

func (g Gain) String() string { return fmt.Sprintf("x%d", int(g)) }

// ParseGain converts a configured gain number.
func ParseGain(n int) (Gain, error) {
	g := Gain(n)
	if g.Pulses() == 0 {
		return 0, errcode.New(errcode.InvalidArgument, "hx711.parse_gain", fmt.Sprintf("unknown gain %d", n))
	}
	return g, nil
}

// ValidateConfig checks that channel c supports gain g: channel A takes 128
// or 64, channel B only 32.
func ValidateConfig(c Channel, g Gain) error {
	ok := false
	switch c {
	case ChannelA:
		ok = g == Gain128 || g == Gain64
	case ChannelB:
		ok = g == Gain32
	}
	if !ok {
		return errcode.New(errcode.InvalidArgument, "hx711.config", fmt.Sprintf("channel %v does not support gain %d", c, int(g)))
	}
	return nil
}

// Format is the order in which bits or bytes are presented.
type Format int

const (
	MSB Format = iota
	LSB
)

func (f Format) String() string {
	if f == LSB {
		return "lsb"
	}
	return "msb"
}

// ParseFormat accepts "msb" or "lsb".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "msb":
		return MSB, nil
	case "lsb":
		return LSB, nil
	}
	return 0, errcode.New(errcode.InvalidArgument, "hx711.parse_format", fmt.Sprintf("unknown format %q", s))
}

// Rate is the output data rate selected by the RATE pin.
type Rate int

const (
	Rate10 Rate = 10
	Rate80 Rate = 80
)

// SettlingTime is how long output takes to become valid after a reset or
// a channel change.
func (r Rate) SettlingTime() time.Duration {
	switch r {
	case Rate10:
		return 400 * time.Millisecond
	case Rate80:
		return 50 * time.Millisecond
	default:
		return 0
	}
}

// ParseRate converts a configured rate in Hz.
func ParseRate(hz int) (Rate, error) {
	r := Rate(hz)
	if r.SettlingTime() == 0 {
		return 0, errcode.New(errcode.InvalidArgument, "hx711.parse_rate", fmt.Sprintf("unsupported rate %d Hz", hz))
	}
	return r, nil
}

const (
	DefaultChannel = ChannelA
	DefaultGain    = Gain128
	DefaultFormat  = MSB
)
