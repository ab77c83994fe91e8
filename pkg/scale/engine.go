// Package scale turns raw HX711 readings into calibrated weights.
package scale

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/itohio/gohx711/pkg/errcode"
	"github.com/itohio/gohx711/pkg/hx711"
	"github.com/itohio/gohx711/pkg/logging"
	"github.com/itohio/gohx711/pkg/mass"
	"github.com/itohio/gohx711/pkg/sample"
)

// Calibration maps a reduced raw reading to the display unit:
// (reduced - Offset) / ReferenceUnit.
type Calibration struct {
	ReferenceUnit int32
	Offset        int32
	Unit          mass.Unit
}

// Engine reduces readings from a Source and applies a Calibration. All
// methods are safe for concurrent use.
type Engine struct {
	src      Source
	log      logging.Logger
	defaults sample.Options

	mu  sync.RWMutex
	cal Calibration
}

// New returns an engine with reference unit 1, offset 0 and grams.
func New(src Source, opts ...Option) (*Engine, error) {
	if src == nil {
		return nil, errcode.New(errcode.InvalidArgument, "scale.new", "nil source")
	}
	e := &Engine{
		src:      src,
		log:      logging.Null{},
		defaults: sample.BySamples(DefaultSamples, sample.Median),
		cal:      Calibration{ReferenceUnit: 1, Unit: mass.G},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cal.ReferenceUnit == 0 {
		return nil, errcode.New(errcode.InvalidArgument, "scale.new", "reference unit cannot be 0")
	}
	if err := e.defaults.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Defaults returns the sampling options used when none are given.
func (e *Engine) Defaults() sample.Options { return e.defaults }

// Read returns (reduced - offset) / reference unit.
func (e *Engine) Read(ctx context.Context, opts sample.Options) (float64, error) {
	cal := e.Calibration()
	return e.read(ctx, opts, cal.ReferenceUnit, cal.Offset)
}

// Weight is Read tagged with the display unit.
func (e *Engine) Weight(ctx context.Context, opts sample.Options) (mass.Mass, error) {
	cal := e.Calibration()
	v, err := e.read(ctx, opts, cal.ReferenceUnit, cal.Offset)
	if err != nil {
		return mass.Mass{}, err
	}
	return mass.New(v, cal.Unit), nil
}

// Zero tares the scale: the rounded raw reduction becomes the new offset.
// The reading is taken with reference unit 1 and offset 0; the calibration
// is only touched when it succeeds.
func (e *Engine) Zero(ctx context.Context, opts sample.Options) error {
	v, err := e.read(ctx, opts, 1, 0)
	if err != nil {
		e.log.Debugf("zero: %v", err)
		return err
	}
	offset, err := toInt32("scale.zero", v)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.cal.Offset = offset
	e.mu.Unlock()

	e.log.Infof("zeroed at offset %d (%v)", offset, opts)
	return nil
}

// Calibrate derives the reference unit from a known load already on the
// scale, expressed in the display unit: round((reduced - offset) / known).
func (e *Engine) Calibrate(ctx context.Context, opts sample.Options, known float64) error {
	const op = "scale.calibrate"
	if known == 0 || math.IsNaN(known) || math.IsInf(known, 0) {
		return errcode.New(errcode.InvalidArgument, op, fmt.Sprintf("known weight must be finite and non-zero, got %v", known))
	}

	offset := e.Offset()
	v, err := e.read(ctx, opts, 1, offset)
	if err != nil {
		return err
	}
	ref, err := toInt32(op, v/known)
	if err != nil {
		return err
	}
	if ref == 0 {
		return errcode.New(errcode.InvalidArgument, op, fmt.Sprintf("load of %v gives a zero reference unit", known))
	}

	e.mu.Lock()
	e.cal.ReferenceUnit = ref
	e.mu.Unlock()

	e.log.Infof("calibrated reference unit %d from %v", ref, known)
	return nil
}

func (e *Engine) read(ctx context.Context, opts sample.Options, ref, offset int32) (float64, error) {
	if err := opts.Validate(); err != nil {
		return 0, err
	}

	var (
		values []hx711.Value
		err    error
	)
	switch opts.Strategy {
	case sample.Timed:
		values, err = e.src.GetValuesFor(ctx, opts.Duration)
	default:
		values, err = e.src.GetValues(ctx, opts.Samples)
	}
	if err != nil {
		return 0, err
	}

	raw := make([]float64, 0, len(values))
	for _, v := range values {
		if v.IsValid() {
			raw = append(raw, float64(v.Raw()))
		}
	}
	if len(raw) == 0 {
		return 0, errcode.New(errcode.NoSamples, "scale.read", fmt.Sprintf("no readings (%v)", opts))
	}

	reduced, err := sample.Reduce(opts.Reducer, raw)
	if err != nil {
		return 0, err
	}
	return (reduced - float64(offset)) / float64(ref), nil
}

// SetReferenceUnit replaces the reference unit. Zero is rejected.
func (e *Engine) SetReferenceUnit(ref int32) error {
	if ref == 0 {
		return errcode.New(errcode.InvalidArgument, "scale.set_reference_unit", "reference unit cannot be 0")
	}
	e.mu.Lock()
	e.cal.ReferenceUnit = ref
	e.mu.Unlock()
	return nil
}

func (e *Engine) SetOffset(offset int32) {
	e.mu.Lock()
	e.cal.Offset = offset
	e.mu.Unlock()
}

func (e *Engine) SetUnit(u mass.Unit) {
	e.mu.Lock()
	e.cal.Unit = u
	e.mu.Unlock()
}

func (e *Engine) ReferenceUnit() int32 { return e.Calibration().ReferenceUnit }
func (e *Engine) Offset() int32        { return e.Calibration().Offset }
func (e *Engine) Unit() mass.Unit      { return e.Calibration().Unit }

// Calibration returns a snapshot of the calibration.
func (e *Engine) Calibration() Calibration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cal
}

// SetCalibration replaces the whole calibration at once.
func (e *Engine) SetCalibration(c Calibration) error {
	if c.ReferenceUnit == 0 {
		return errcode.New(errcode.InvalidArgument, "scale.set_calibration", "reference unit cannot be 0")
	}
	e.mu.Lock()
	e.cal = c
	e.mu.Unlock()
	return nil
}

func toInt32(op string, v float64) (int32, error) {
	r := math.Round(v)
	if math.IsNaN(r) || r < math.MinInt32 || r > math.MaxInt32 {
		return 0, errcode.New(errcode.InvalidArgument, op, fmt.Sprintf("%v out of range", v))
	}
	return int32(r), nil
}
