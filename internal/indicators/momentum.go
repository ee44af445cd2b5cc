package indicators

import (
	"fmt"

	"github.com/markcheno/go-talib"
)

// RSI is Wilder's relative strength index. A series with no movement reads
// 0, as in TA-Lib.
func RSI(values []float64, period int) ([]float64, error) {
	if period < 2 {
		return nil, fmt.Errorf("RSI: %w %d", ErrInvalidPeriod, period)
	}
	in, start, err := series("RSI", values, period, period+1)
	if err != nil {
		return nil, err
	}
	return realign(len(values), start, mask(talib.Rsi(in, period), period)), nil
}

// MACD returns the MACD line, its signal line and the histogram. The signal
// EMA is seeded from the first valid MACD values.
func MACD(values []float64, fast, slow, signal int) (macd, sig, hist []float64, err error) {
	if fast >= slow {
		return nil, nil, nil, fmt.Errorf("MACD: fast period %d must be below slow period %d", fast, slow)
	}
	if err := checkPeriod("MACD", fast); err != nil {
		return nil, nil, nil, err
	}
	if err := checkPeriod("MACD", signal); err != nil {
		return nil, nil, nil, err
	}
	in, start, err := series("MACD", values, slow, slow+signal-1)
	if err != nil {
		return nil, nil, nil, err
	}

	fastEMA := talib.Ema(in, fast)
	slowEMA := talib.Ema(in, slow)
	line := make([]float64, len(in))
	for i := range in {
		line[i] = fastEMA[i] - slowEMA[i]
	}
	macd = realign(len(values), start, mask(line, slow-1))

	sig, err = EMA(macd, signal)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("MACD: %w", err)
	}
	hist = nanSlice(len(values))
	for i := range values {
		hist[i] = macd[i] - sig[i]
	}
	return macd, sig, hist, nil
}

// STOCH returns the slow %K and %D lines of the stochastic oscillator. Both
// start once %D has a full window, as in TA-Lib.
func STOCH(high, low, close []float64, fastK, slowK, slowD int) (k, d []float64, err error) {
	if err := checkSameLen("STOCH", high, low, close); err != nil {
		return nil, nil, err
	}
	for _, p := range []int{fastK, slowK, slowD} {
		if err := checkPeriod("STOCH", p); err != nil {
			return nil, nil, err
		}
	}
	lookback := fastK + slowK + slowD - 3
	if err := checkLen("STOCH", len(close), lookback+1); err != nil {
		return nil, nil, err
	}

	k, d = talib.Stoch(high, low, close, fastK, slowK, talib.SMA, slowD, talib.SMA)
	return mask(k, lookback), mask(d, lookback), nil
}

// CCI is the commodity channel index.
func CCI(high, low, close []float64, period int) ([]float64, error) {
	if err := checkHLC("CCI", high, low, close, period, period); err != nil {
		return nil, err
	}
	return mask(talib.Cci(high, low, close, period), period-1), nil
}

// MFI is the money flow index.
func MFI(high, low, close, volume []float64, period int) ([]float64, error) {
	if err := checkSameLen("MFI", high, low, close, volume); err != nil {
		return nil, err
	}
	if err := checkHLC("MFI", high, low, close, period, period+1); err != nil {
		return nil, err
	}
	return mask(talib.Mfi(high, low, close, volume, period), period), nil
}

// WILLR is Williams' %R.
func WILLR(high, low, close []float64, period int) ([]float64, error) {
	if err := checkHLC("WILLR", high, low, close, period, period); err != nil {
		return nil, err
	}
	return mask(talib.WillR(high, low, close, period), period-1), nil
}

// ROC is the percentage rate of change over period bars.
func ROC(values []float64, period int) ([]float64, error) {
	in, start, err := series("ROC", values, period, period+1)
	if err != nil {
		return nil, err
	}
	return realign(len(values), start, mask(talib.Roc(in, period), period)), nil
}

// MOM is the raw momentum over period bars.
func MOM(values []float64, period int) ([]float64, error) {
	in, start, err := series("MOM", values, period, period+1)
	if err != nil {
		return nil, err
	}
	return realign(len(values), start, mask(talib.Mom(in, period), period)), nil
}

func checkHLC(name string, high, low, close []float64, period, need int) error {
	if err := checkSameLen(name, high, low, close); err != nil {
		return err
	}
	if err := checkPeriod(name, period); err != nil {
		return err
	}
	return checkLen(name, len(close), need)
}
