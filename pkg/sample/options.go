// Package sample describes how raw readings are collected and reduced to a
// single value, and provides streaming filters over reduced samples.
package sample

import (
	"fmt"
	"strings"
	"time"

	"github.com/itohio/gohx711/pkg/config"
	"github.com/itohio/gohx711/pkg/errcode"
)

// Reducer selects how a set of readings is collapsed into one value.
type Reducer int

const (
	Median Reducer = iota
	Average
	// OneStd, TwoStd and ThreeStd average the readings that lie within one,
	// two or three population standard deviations of the mean.
	OneStd
	TwoStd
	ThreeStd
)

func (r Reducer) String() string {
	switch r {
	case Median:
		return "median"
	case Average:
		return "average"
	case OneStd:
		return "1std"
	case TwoStd:
		return "2std"
	case ThreeStd:
		return "3std"
	default:
		return fmt.Sprintf("Reducer(%d)", int(r))
	}
}

// ParseReducer accepts the names printed by Reducer.String.
func ParseReducer(s string) (Reducer, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "median":
		return Median, nil
	case "average", "mean":
		return Average, nil
	case "1std":
		return OneStd, nil
	case "2std":
		return TwoStd, nil
	case "3std":
		return ThreeStd, nil
	}
	return 0, errcode.New(errcode.InvalidArgument, "sample.parse_reducer", fmt.Sprintf("unknown reducer %q", s))
}

// Strategy selects when collection stops.
type Strategy int

const (
	// Count collects an exact number of readings.
	Count Strategy = iota
	// Timed collects whatever arrives within a time budget.
	Timed
)

// Options describes one collect-and-reduce operation.
type Options struct {
	Strategy Strategy
	Samples  int
	Duration time.Duration
	Reducer  Reducer
}

// BySamples collects exactly n readings.
func BySamples(n int, r Reducer) Options {
	return Options{Strategy: Count, Samples: n, Reducer: r}
}

// ByDuration collects readings for d.
func ByDuration(d time.Duration, r Reducer) Options {
	return Options{Strategy: Timed, Duration: d, Reducer: r}
}

// FromConfig builds the default options of a scale. A positive duration takes
// precedence over the sample count.
func FromConfig(cfg config.ScaleConfig) (Options, error) {
	r, err := ParseReducer(cfg.Reducer)
	if err != nil {
		return Options{}, err
	}
	var o Options
	if cfg.Duration > 0 {
		o = ByDuration(cfg.Duration, r)
	} else {
		o = BySamples(cfg.Samples, r)
	}
	return o, o.Validate()
}

// Validate rejects a zero or negative sample count, a negative duration and
// unknown reducers.
func (o Options) Validate() error {
	switch o.Strategy {
	case Count:
		if o.Samples <= 0 {
			return errcode.New(errcode.InvalidArgument, "sample.options", fmt.Sprintf("sample count must be positive, got %d", o.Samples))
		}
	case Timed:
		if o.Duration < 0 {
			return errcode.New(errcode.InvalidArgument, "sample.options", fmt.Sprintf("negative duration %v", o.Duration))
		}
	default:
		return errcode.New(errcode.InvalidArgument, "sample.options", fmt.Sprintf("unknown strategy %d", int(o.Strategy)))
	}
	if o.Reducer < Median || o.Reducer > ThreeStd {
		return errcode.New(errcode.InvalidArgument, "sample.options", fmt.Sprintf("unknown reducer %d", int(o.Reducer)))
	}
	return nil
}

func (o Options) String() string {
	if o.Strategy == Timed {
		return fmt.Sprintf("%v of %v", o.Reducer, o.Duration)
	}
	return fmt.Sprintf("%v of %d", o.Reducer, o.Samples)
}
