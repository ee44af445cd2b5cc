package indicators

import (
	"fmt"

	"github.com/markcheno/go-talib"
)

// ATR is Wilder's average true range. The first value sits at index period.
func ATR(high, low, close []float64, period int) ([]float64, error) {
	if err := checkHLC("ATR", high, low, close, period, period+1); err != nil {
		return nil, err
	}
	return mask(talib.Atr(high, low, close, period), period), nil
}

// ADX is Wilder's average directional index.
func ADX(high, low, close []float64, period int) ([]float64, error) {
	if err := checkHLC("ADX", high, low, close, period, 2*period); err != nil {
		return nil, err
	}
	return mask(talib.Adx(high, low, close, period), 2*period-1), nil
}

// OBV is on-balance volume.
func OBV(close, volume []float64) ([]float64, error) {
	if err := checkSameLen("OBV", close, volume); err != nil {
		return nil, err
	}
	if err := checkLen("OBV", len(close), 1); err != nil {
		return nil, err
	}
	return talib.Obv(close, volume), nil
}

// SAR is the parabolic stop-and-reverse.
func SAR(high, low []float64, acceleration, maximum float64) ([]float64, error) {
	if err := checkSameLen("SAR", high, low); err != nil {
		return nil, err
	}
	if err := checkLen("SAR", len(high), 2); err != nil {
		return nil, err
	}
	if acceleration <= 0 || maximum < acceleration {
		return nil, fmt.Errorf("SAR: invalid acceleration %.4f / maximum %.4f", acceleration, maximum)
	}
	return mask(talib.Sar(high, low, acceleration, maximum), 1), nil
}

// CrossAbove reports whether a crossed above b on the last bar. The two
// series are aligned at their last element.
func CrossAbove(a, b []float64) (bool, error) {
	pa, ca, pb, cb, err := lastPairs("CROSS_ABOVE", a, b)
	if err != nil {
		return false, err
	}
	return pa <= pb && ca > cb, nil
}

// CrossBelow reports whether a crossed below b on the last bar.
func CrossBelow(a, b []float64) (bool, error) {
	pa, ca, pb, cb, err := lastPairs("CROSS_BELOW", a, b)
	if err != nil {
		return false, err
	}
	return pa >= pb && ca < cb, nil
}

// lastPairs returns the previous and current values of both series. NaN
// compares false, so a cross inside the warm-up window never fires.
func lastPairs(name string, a, b []float64) (pa, ca, pb, cb float64, err error) {
	if len(a) < 2 || len(b) < 2 {
		return 0, 0, 0, 0, insufficient(name, min(len(a), len(b)), 2)
	}
	return a[len(a)-2], a[len(a)-1], b[len(b)-2], b[len(b)-1], nil
}
