package sample

import (
	"time"

	"github.com/itohio/gohx711/pkg/logging"
	"github.com/itohio/gohx711/pkg/mass"
)

// Sample is one reduced and calibrated measurement.
type Sample struct {
	Timestamp time.Time
	Value     float64 // (reduced - offset) / reference unit
	Mass      mass.Mass
}

// Converter transforms a stream of samples. The output closes when the input
// does.
type Converter func(in <-chan Sample) <-chan Sample

// NewSmoothingConverter emits, for every input sample, the reduction of the
// last windowSize samples. The emitted sample keeps the newest timestamp and
// display unit.
func NewSmoothingConverter(windowSize int, r Reducer, bufSize int, log logging.Logger) Converter {
	if windowSize <= 0 {
		windowSize = 1
	}
	if bufSize <= 0 {
		bufSize = 100
	}
	if log == nil {
		log = logging.Null{}
	}

	return func(in <-chan Sample) <-chan Sample {
		out := make(chan Sample, bufSize)

		go func() {
			defer close(out)

			window := make([]float64, 0, windowSize+1)
			for s := range in {
				window = append(window, s.Value)
				if len(window) > windowSize {
					window = append(window[:0], window[1:]...)
				}

				v, err := Reduce(r, window)
				if err != nil {
					log.Warnf("smoothing: %v", err)
					continue
				}
				s.Value = v
				s.Mass = mass.New(v, s.Mass.Unit())

				select {
				case out <- s:
				case <-time.After(time.Second):
					log.Warnf("smoothing converter output channel full, dropping sample")
				}
			}
		}()

		return out
	}
}
