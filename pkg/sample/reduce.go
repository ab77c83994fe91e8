package sample

import (
	"math"
	"slices"

	"github.com/itohio/gohx711/pkg/errcode"
)

// Reduce collapses values with r. It fails with errcode.NoSamples when values
// is empty.
func Reduce(r Reducer, values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, errcode.New(errcode.NoSamples, "sample.reduce", "no readings")
	}

	switch r {
	case Median:
		return MedianOf(values), nil
	case Average:
		return AverageOf(values), nil
	case OneStd:
		return TrimmedMean(values, 1), nil
	case TwoStd:
		return TrimmedMean(values, 2), nil
	case ThreeStd:
		return TrimmedMean(values, 3), nil
	default:
		return 0, errcode.New(errcode.InvalidArgument, "sample.reduce", r.String())
	}
}

// MedianOf returns the middle value, or the mean of the two middle values for
// an even count. values is not modified.
func MedianOf(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// AverageOf returns the arithmetic mean.
func AverageOf(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// TrimmedMean averages the values within k population standard deviations of
// the mean.
func TrimmedMean(values []float64, k float64) float64 {
	mean := AverageOf(values)
	if len(values) < 3 {
		return mean
	}

	var ss float64
	for _, v := range values {
		ss += (v - mean) * (v - mean)
	}
	limit := k * math.Sqrt(ss/float64(len(values)))

	var sum float64
	n := 0
	for _, v := range values {
		if math.Abs(v-mean) <= limit {
			sum += v
			n++
		}
	}
	if n == 0 {
		return mean
	}
	return sum / float64(n)
}
