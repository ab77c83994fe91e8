//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/warthog618/gpiod"
	"go.uber.org/multierr"
)

// Chip accesses pins through the Linux GPIO character device.
type Chip struct {
	consumer string

	mu    sync.RWMutex
	next  Handle
	chips map[Handle]*gpiod.Chip
	lines map[Handle]map[int]*gpiod.Line
}

// NewChip returns a character device backend labelling lines with consumer.
func NewChip(consumer string) *Chip {
	return &Chip{
		consumer: consumer,
		chips:    make(map[Handle]*gpiod.Chip),
		lines:    make(map[Handle]map[int]*gpiod.Line),
	}
}

func (c *Chip) Open(chip int) (Handle, error) {
	gc, err := gpiod.NewChip(fmt.Sprintf("gpiochip%d", chip), gpiod.WithConsumer(c.consumer))
	if err != nil {
		return 0, gpioErr("gpio.open", chip, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	c.chips[c.next] = gc
	c.lines[c.next] = make(map[int]*gpiod.Line)
	return c.next, nil
}

func (c *Chip) ClaimInput(h Handle, pin int) error {
	return c.request(h, pin, "gpio.claim_input", gpiod.AsInput, gpiod.WithPullUp)
}

func (c *Chip) ClaimOutput(h Handle, pin int) error {
	return c.request(h, pin, "gpio.claim_output", gpiod.AsOutput(0))
}

func (c *Chip) request(h Handle, pin int, op string, opts ...gpiod.LineReqOption) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	gc, ok := c.chips[h]
	if !ok {
		return handleErr(op, h)
	}
	if _, busy := c.lines[h][pin]; busy {
		return gpioErr(op, pin, fmt.Errorf("already claimed"))
	}
	l, err := gc.RequestLine(pin, opts...)
	if err != nil {
		return gpioErr(op, pin, err)
	}
	c.lines[h][pin] = l
	return nil
}

func (c *Chip) line(h Handle, pin int, op string) (*gpiod.Line, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	lines, ok := c.lines[h]
	if !ok {
		return nil, handleErr(op, h)
	}
	l, ok := lines[pin]
	if !ok {
		return nil, gpioErr(op, pin, fmt.Errorf("not claimed"))
	}
	return l, nil
}

func (c *Chip) Read(h Handle, pin int) (Level, error) {
	l, err := c.line(h, pin, "gpio.read")
	if err != nil {
		return Low, err
	}
	v, err := l.Value()
	if err != nil {
		return Low, gpioErr("gpio.read", pin, err)
	}
	if v == 0 {
		return Low, nil
	}
	return High, nil
}

func (c *Chip) Write(h Handle, pin int, lvl Level) error {
	l, err := c.line(h, pin, "gpio.write")
	if err != nil {
		return err
	}
	if err := l.SetValue(int(lvl)); err != nil {
		return gpioErr("gpio.write", pin, err)
	}
	return nil
}

func (c *Chip) Free(h Handle, pin int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	lines, ok := c.lines[h]
	if !ok {
		return handleErr("gpio.free", h)
	}
	l, ok := lines[pin]
	if !ok {
		return nil
	}
	delete(lines, pin)
	if err := l.Close(); err != nil {
		return gpioErr("gpio.free", pin, err)
	}
	return nil
}

// Close releases every line still claimed through h and the chip itself.
func (c *Chip) Close(h Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	gc, ok := c.chips[h]
	if !ok {
		return handleErr("gpio.close", h)
	}

	var err error
	for pin, l := range c.lines[h] {
		if cerr := l.Close(); cerr != nil {
			err = multierr.Append(err, gpioErr("gpio.close", pin, cerr))
		}
	}
	if cerr := gc.Close(); cerr != nil {
		err = multierr.Append(err, gpioErr("gpio.close", -1, cerr))
	}
	delete(c.chips, h)
	delete(c.lines, h)
	return err
}
