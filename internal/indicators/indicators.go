// Package indicators exposes the technical indicators and statistics
// available to scanner scripts, computed with go-talib.
//
// Every series function returns a slice aligned with its input. Bars that
// fall inside an indicator's warm-up window are NaN where TA-Lib leaves
// zeros. Single-series functions skip leading NaNs, so an indicator can be
// applied to another one's output. Inputs shorter than the indicator needs
// fail with ErrInsufficientData instead of reaching the library.
package indicators

import (
	"errors"
	"fmt"
	"math"

	"github.com/markcheno/go-talib"
)

// ErrInsufficientData is returned when a series is too short for the
// requested period.
var ErrInsufficientData = errors.New("insufficient data")

// ErrInvalidPeriod is returned for a period the indicator cannot use.
var ErrInvalidPeriod = errors.New("invalid period")

func insufficient(name string, have, need int) error {
	return fmt.Errorf("%s: %w (have %d bars, need %d)", name, ErrInsufficientData, have, need)
}

func checkPeriod(name string, period int) error {
	if period < 1 {
		return fmt.Errorf("%s: %w %d", name, ErrInvalidPeriod, period)
	}
	return nil
}

func checkLen(name string, n, need int) error {
	if n < need {
		return insufficient(name, n, need)
	}
	return nil
}

func checkSameLen(name string, series ...[]float64) error {
	for _, s := range series[1:] {
		if len(s) != len(series[0]) {
			return fmt.Errorf("%s: input series differ in length (%d vs %d)", name, len(series[0]), len(s))
		}
	}
	return nil
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func firstValid(values []float64) int {
	for i, v := range values {
		if !math.IsNaN(v) {
			return i
		}
	}
	return len(values)
}

// mask replaces the first lookback outputs with NaN.
func mask(out []float64, lookback int) []float64 {
	for i := 0; i < lookback && i < len(out); i++ {
		out[i] = math.NaN()
	}
	return out
}

// realign places s, computed from values[start:], back on an n-bar axis.
func realign(n, start int, s []float64) []float64 {
	out := nanSlice(n)
	copy(out[start:], s)
	return out
}

// series validates a single-input indicator and returns the input with
// leading NaNs dropped together with its offset.
func series(name string, values []float64, period, need int) ([]float64, int, error) {
	if err := checkPeriod(name, period); err != nil {
		return nil, 0, err
	}
	start := firstValid(values)
	if err := checkLen(name, len(values)-start, need); err != nil {
		return nil, 0, err
	}
	return values[start:], start, nil
}

// SMA is the simple moving average.
func SMA(values []float64, period int) ([]float64, error) {
	in, start, err := series("SMA", values, period, period)
	if err != nil {
		return nil, err
	}
	return realign(len(values), start, mask(talib.Sma(in, period), period-1)), nil
}

// EMA is the exponential moving average seeded with the SMA of the first
// period valid values.
func EMA(values []float64, period int) ([]float64, error) {
	in, start, err := series("EMA", values, period, period)
	if err != nil {
		return nil, err
	}
	return realign(len(values), start, mask(talib.Ema(in, period), period-1)), nil
}

// WMA is the linearly weighted moving average, newest bar weighted highest.
func WMA(values []float64, period int) ([]float64, error) {
	in, start, err := series("WMA", values, period, period)
	if err != nil {
		return nil, err
	}
	return realign(len(values), start, mask(talib.Wma(in, period), period-1)), nil
}

// STDDEV is the rolling population standard deviation multiplied by nbdev.
func STDDEV(values []float64, period int, nbdev float64) ([]float64, error) {
	in, start, err := series("STDDEV", values, period, period)
	if err != nil {
		return nil, err
	}
	return realign(len(values), start, mask(talib.StdDev(in, period, nbdev), period-1)), nil
}

// BBANDS returns the upper, middle and lower Bollinger bands around an SMA.
func BBANDS(values []float64, period int, nbdevUp, nbdevDn float64) (upper, middle, lower []float64, err error) {
	in, start, err := series("BBANDS", values, period, period)
	if err != nil {
		return nil, nil, nil, err
	}
	u, m, l := talib.BBands(in, period, nbdevUp, nbdevDn, talib.SMA)
	n := len(values)
	return realign(n, start, mask(u, period-1)),
		realign(n, start, mask(m, period-1)),
		realign(n, start, mask(l, period-1)), nil
}

// HHV is the rolling highest value over period bars.
func HHV(values []float64, period int) ([]float64, error) {
	return rollingExtreme("HHV", values, period, talib.Max)
}

// LLV is the rolling lowest value over period bars.
func LLV(values []float64, period int) ([]float64, error) {
	return rollingExtreme("LLV", values, period, talib.Min)
}

func rollingExtreme(name string, values []float64, period int, fn func([]float64, int) []float64) ([]float64, error) {
	in, start, err := series(name, values, period, period)
	if err != nil {
		return nil, err
	}
	if period == 1 {
		// TA-Lib rejects a one-bar window; the extreme of one bar is itself.
		return realign(len(values), start, in), nil
	}
	return realign(len(values), start, mask(fn(in, period), period-1)), nil
}
