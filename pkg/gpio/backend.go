// Package gpio defines the narrow pin-access interface the HX711 driver is
// written against, and its implementations.
package gpio

import (
	"fmt"
	"strings"

	"github.com/itohio/gohx711/pkg/config"
	"github.com/itohio/gohx711/pkg/errcode"
	"github.com/itohio/gohx711/pkg/timing"
)

// Level is a digital pin level.
type Level int

const (
	Low  Level = 0
	High Level = 1
)

func (l Level) String() string {
	if l == Low {
		return "low"
	}
	return "high"
}

// Handle identifies an opened GPIO chip.
type Handle int

// Backend provides pin access. Every method may fail with an errcode.Gpio error.
type Backend interface {
	Open(chip int) (Handle, error)
	ClaimInput(h Handle, pin int) error
	ClaimOutput(h Handle, pin int) error
	Read(h Handle, pin int) (Level, error)
	Write(h Handle, pin int, l Level) error
	Free(h Handle, pin int) error
	Close(h Handle) error
}

var (
	_ Backend = (*Chip)(nil)
	_ Backend = (*Periph)(nil)
	_ Backend = (*Mock)(nil)
)

// Consumer is the label attached to requested lines.
const Consumer = "hx711"

// New creates the backend named in cfg.GPIO.Backend. The clock is only used
// by the mock.
func New(cfg *config.Config, clk timing.Clock) (Backend, error) {
	switch strings.ToLower(cfg.GPIO.Backend) {
	case "gpiod", "cdev", "":
		return NewChip(Consumer), nil
	case "periph":
		return NewPeriph(), nil
	case "mock":
		return NewMock(&cfg.Mock, clk), nil
	default:
		return nil, errcode.New(errcode.Unsupported, "gpio.new", fmt.Sprintf("unknown backend %q", cfg.GPIO.Backend))
	}
}

func gpioErr(op string, pin int, err error) error {
	return &errcode.E{C: errcode.Gpio, Op: op, Msg: fmt.Sprintf("pin %d", pin), Err: err}
}

func handleErr(op string, h Handle) error {
	return &errcode.E{C: errcode.Gpio, Op: op, Msg: fmt.Sprintf("unknown handle %d", h)}
}
