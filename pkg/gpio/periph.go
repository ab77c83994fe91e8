package gpio

import (
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/multierr"
	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Periph accesses pins through periph.io host drivers (sysfs or direct
// register access, whichever the host supports). Pins are looked up by their
// numeric name; the chip argument of Open is ignored.
type Periph struct {
	initOnce sync.Once
	initErr  error

	mu   sync.RWMutex
	next Handle
	pins map[Handle]map[int]pgpio.PinIO
}

// NewPeriph returns a periph.io backend. The host is initialised on first Open.
func NewPeriph() *Periph {
	return &Periph{pins: make(map[Handle]map[int]pgpio.PinIO)}
}

func (p *Periph) Open(chip int) (Handle, error) {
	p.initOnce.Do(func() {
		_, p.initErr = host.Init()
	})
	if p.initErr != nil {
		return 0, gpioErr("gpio.open", chip, p.initErr)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	p.pins[p.next] = make(map[int]pgpio.PinIO)
	return p.next, nil
}

func (p *Periph) claim(h Handle, pin int, op string, setup func(pgpio.PinIO) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pins, ok := p.pins[h]
	if !ok {
		return handleErr(op, h)
	}
	if _, busy := pins[pin]; busy {
		return gpioErr(op, pin, fmt.Errorf("already claimed"))
	}
	pio := gpioreg.ByName(strconv.Itoa(pin))
	if pio == nil {
		return gpioErr(op, pin, fmt.Errorf("no such pin"))
	}
	if err := setup(pio); err != nil {
		return gpioErr(op, pin, err)
	}
	pins[pin] = pio
	return nil
}

func (p *Periph) ClaimInput(h Handle, pin int) error {
	return p.claim(h, pin, "gpio.claim_input", func(pio pgpio.PinIO) error {
		return pio.In(pgpio.PullUp, pgpio.NoEdge)
	})
}

func (p *Periph) ClaimOutput(h Handle, pin int) error {
	return p.claim(h, pin, "gpio.claim_output", func(pio pgpio.PinIO) error {
		return pio.Out(pgpio.Low)
	})
}

func (p *Periph) pin(h Handle, pin int, op string) (pgpio.PinIO, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	pins, ok := p.pins[h]
	if !ok {
		return nil, handleErr(op, h)
	}
	pio, ok := pins[pin]
	if !ok {
		return nil, gpioErr(op, pin, fmt.Errorf("not claimed"))
	}
	return pio, nil
}

func (p *Periph) Read(h Handle, pin int) (Level, error) {
	pio, err := p.pin(h, pin, "gpio.read")
	if err != nil {
		return Low, err
	}
	if pio.Read() == pgpio.High {
		return High, nil
	}
	return Low, nil
}

func (p *Periph) Write(h Handle, pin int, lvl Level) error {
	pio, err := p.pin(h, pin, "gpio.write")
	if err != nil {
		return err
	}
	if err := pio.Out(pgpio.Level(lvl == High)); err != nil {
		return gpioErr("gpio.write", pin, err)
	}
	return nil
}

func (p *Periph) Free(h Handle, pin int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pins, ok := p.pins[h]
	if !ok {
		return handleErr("gpio.free", h)
	}
	pio, ok := pins[pin]
	if !ok {
		return nil
	}
	delete(pins, pin)
	if err := pio.Halt(); err != nil {
		return gpioErr("gpio.free", pin, err)
	}
	return nil
}

func (p *Periph) Close(h Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pins, ok := p.pins[h]
	if !ok {
		return handleErr("gpio.close", h)
	}
	var err error
	for pin, pio := range pins {
		if herr := pio.Halt(); herr != nil {
			err = multierr.Append(err, gpioErr("gpio.close", pin, herr))
		}
	}
	delete(p.pins, h)
	return err
}
