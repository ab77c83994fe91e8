package scale

import (
	"github.com/itohio/gohx711/pkg/config"
	"github.com/itohio/gohx711/pkg/logging"
	"github.com/itohio/gohx711/pkg/mass"
	"github.com/itohio/gohx711/pkg/sample"
)

// DefaultSamples is the reading count of the default options.
const DefaultSamples = 3

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a logger
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithCalibration sets the initial calibration. A zero reference unit makes
// New fail.
func WithCalibration(c Calibration) Option {
	return func(e *Engine) {
		e.cal = c
	}
}

// WithDefaults sets the options returned by Defaults.
func WithDefaults(o sample.Options) Option {
	return func(e *Engine) {
		e.defaults = o
	}
}

// FromConfig converts the scale section into engine options.
func FromConfig(cfg config.ScaleConfig) ([]Option, error) {
	u, err := mass.ParseUnit(cfg.Unit)
	if err != nil {
		return nil, err
	}
	o, err := sample.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return []Option{
		WithCalibration(Calibration{ReferenceUnit: cfg.ReferenceUnit, Offset: cfg.Offset, Unit: u}),
		WithDefaults(o),
	}, nil
}
