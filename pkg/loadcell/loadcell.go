// Package loadcell assembles a GPIO backend, an HX711 driver, a background
// watcher and a scale engine from one configuration.
package loadcell

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/itohio/gohx711/pkg/config"
	"github.com/itohio/gohx711/pkg/errcode"
	"github.com/itohio/gohx711/pkg/gpio"
	"github.com/itohio/gohx711/pkg/hx711"
	"github.com/itohio/gohx711/pkg/logging"
	"github.com/itohio/gohx711/pkg/mass"
	"github.com/itohio/gohx711/pkg/scale"
	"github.com/itohio/gohx711/pkg/timing"
	"github.com/itohio/gohx711/pkg/watcher"
)

// Cell is a connected load cell.
type Cell struct {
	*scale.Engine

	driver  *hx711.Driver
	watcher *watcher.Watcher // nil when reading synchronously
	log     logging.Logger

	closeOnce sync.Once
	closeErr  error
}

type options struct {
	log     logging.Logger
	backend gpio.Backend
	clock   timing.Clock
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger. Without it a zap logger honoring cfg.Debug is
// created.
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithBackend overrides the backend named in the configuration.
func WithBackend(b gpio.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithClock replaces the clock of the driver and of a configured mock.
func WithClock(c timing.Clock) Option {
	return func(o *options) { o.clock = c }
}

// Open connects the chip and, when cfg.Scale.Async is set, starts the
// watcher. On failure everything acquired so far is released.
func Open(cfg *config.Config, opts ...Option) (*Cell, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errcode.Wrap(errcode.InvalidArgument, "loadcell.open", err)
	}

	o := options{clock: timing.System{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logging.NewDefault(cfg.Debug)
	}

	backend := o.backend
	if backend == nil {
		var err error
		if backend, err = gpio.New(cfg, o.clock); err != nil {
			return nil, err
		}
	}

	drvOpts, rate, err := driverOptions(cfg.Sensor)
	if err != nil {
		return nil, err
	}
	drvOpts = append(drvOpts,
		hx711.WithLogger(logging.Named(o.log, "hx711")),
		hx711.WithClock(o.clock),
	)
	drv, err := hx711.New(backend, cfg.GPIO.Chip, cfg.GPIO.DataPin, cfg.GPIO.ClockPin, rate, drvOpts...)
	if err != nil {
		return nil, err
	}

	scaleOpts, err := scale.FromConfig(cfg.Scale)
	if err != nil {
		return nil, err
	}
	scaleOpts = append(scaleOpts, scale.WithLogger(logging.Named(o.log, "scale")))

	if err := drv.Connect(); err != nil {
		return nil, err
	}

	c := &Cell{driver: drv, log: o.log}
	var src scale.Source = scale.NewDirect(drv, o.clock)
	if cfg.Scale.Async {
		c.watcher = watcher.New(drv,
			watcher.WithConfig(cfg.Watcher),
			watcher.WithLogger(logging.Named(o.log, "watcher")),
		)
		src = c.watcher
	}

	if c.Engine, err = scale.New(src, scaleOpts...); err != nil {
		return nil, multierr.Append(err, drv.Disconnect())
	}
	if c.watcher != nil {
		c.watcher.Start()
	}

	o.log.Infof("load cell on pins data=%d clock=%d, %v %v, %d Hz, async=%v",
		cfg.GPIO.DataPin, cfg.GPIO.ClockPin, drv.Channel(), drv.Gain(), int(rate), cfg.Scale.Async)
	return c, nil
}

func driverOptions(cfg config.SensorConfig) ([]hx711.Option, hx711.Rate, error) {
	rate, err := hx711.ParseRate(cfg.Rate)
	if err != nil {
		return nil, 0, err
	}
	ch, err := hx711.ParseChannel(cfg.Channel)
	if err != nil {
		return nil, 0, err
	}
	g, err := hx711.ParseGain(cfg.Gain)
	if err != nil {
		return nil, 0, err
	}
	if err := hx711.ValidateConfig(ch, g); err != nil {
		return nil, 0, err
	}
	bit, err := hx711.ParseFormat(cfg.BitFormat)
	if err != nil {
		return nil, 0, err
	}
	byteOrder, err := hx711.ParseFormat(cfg.ByteFormat)
	if err != nil {
		return nil, 0, err
	}

	return []hx711.Option{
		hx711.WithConfig(ch, g),
		hx711.WithFormat(bit, byteOrder),
		hx711.WithStrictTiming(cfg.StrictTiming),
		hx711.WithReadyTimeout(cfg.ReadyTimeout),
	}, rate, nil
}

// Driver exposes the protocol driver for channel and power control.
func (c *Cell) Driver() *hx711.Driver { return c.driver }

// Watcher returns the background sampler, nil in synchronous mode.
func (c *Cell) Watcher() *watcher.Watcher { return c.watcher }

// WeightNow reads one weight using the configured default options.
func (c *Cell) WeightNow(ctx context.Context) (mass.Mass, error) {
	return c.Weight(ctx, c.Defaults())
}

// Tare zeroes the scale using the configured default options.
func (c *Cell) Tare(ctx context.Context) error {
	return c.Zero(ctx, c.Defaults())
}

// Close stops the watcher before releasing the pins. It is safe to call more
// than once.
func (c *Cell) Close() error {
	c.closeOnce.Do(func() {
		if c.watcher != nil {
			c.watcher.Stop()
		}
		if err := c.driver.Disconnect(); err != nil {
			c.closeErr = fmt.Errorf("close load cell: %w", err)
		}
	})
	return c.closeErr
}
