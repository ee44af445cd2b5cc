package indicators

import (
	"errors"
	"fmt"
	"math"

	"github.com/markcheno/go-talib"
)

// ErrEmpty is returned by statistics over a series with no valid values.
var ErrEmpty = errors.New("empty series")

func valid(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// Mean is the arithmetic mean of the non-NaN values.
func Mean(values []float64) (float64, error) {
	vs := valid(values)
	if len(vs) == 0 {
		return 0, fmt.Errorf("mean: %w", ErrEmpty)
	}
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs)), nil
}

// Stdev is the sample standard deviation of the non-NaN values.
func Stdev(values []float64) (float64, error) {
	vs := valid(values)
	if len(vs) < 2 {
		return 0, insufficient("stdev", len(vs), 2)
	}
	mean, _ := Mean(vs)
	ss := 0.0
	for _, v := range vs {
		ss += (v - mean) * (v - mean)
	}
	return math.Sqrt(ss / float64(len(vs)-1)), nil
}

// Highest is the maximum of the last n values, or of all values when n <= 0.
func Highest(values []float64, n int) (float64, error) {
	return extreme("highest", values, n, math.Max)
}

// Lowest is the minimum of the last n values, or of all values when n <= 0.
func Lowest(values []float64, n int) (float64, error) {
	return extreme("lowest", values, n, math.Min)
}

func extreme(name string, values []float64, n int, pick func(a, b float64) float64) (float64, error) {
	if n > 0 {
		if len(values) < n {
			return 0, insufficient(name, len(values), n)
		}
		values = values[len(values)-n:]
	}
	vs := valid(values)
	if len(vs) == 0 {
		return 0, fmt.Errorf("%s: %w", name, ErrEmpty)
	}
	best := vs[0]
	for _, v := range vs[1:] {
		best = pick(best, v)
	}
	return best, nil
}

// PctChange is the fractional change against the value periods bars back.
func PctChange(values []float64, periods int) ([]float64, error) {
	in, start, err := series("pct_change", values, periods, periods+1)
	if err != nil {
		return nil, err
	}
	return realign(len(values), start, mask(talib.Rocp(in, periods), periods)), nil
}

// Last returns the value offset bars before the final one.
func Last(values []float64, offset int) (float64, error) {
	if offset < 0 {
		return 0, fmt.Errorf("last: negative offset %d", offset)
	}
	if len(values) <= offset {
		return 0, insufficient("last", len(values), offset+1)
	}
	return values[len(values)-1-offset], nil
}
