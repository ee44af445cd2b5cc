package scanner

import "sort"

// Template is a ready-made scanner body with its parameter schema.
type Template struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Code        string                 `json:"code"`
	Parameters  map[string]interface{} `json:"parameters"`
}

const starterCode = `# Scanner template
#
# Names available to every scanner:
#   open, high, low, close, volume   price columns, oldest bar first
#   timestamps, bars                 bar times (RFC3339) and bar count
#   symbol, exchange, params         current symbol and scanner parameters
#   SMA, EMA, RSI, MACD, BBANDS ...  indicators (also ta.SMA, talib.SMA)
#   mean, stdev, highest, lowest     statistics (also stats.mean)
#
# Indicator output is aligned with the input; warm-up bars are None.
#
# Report a signal with signal / signal_type / metrics, or build an
# exploration row with Filter = True and AddColumn(name, value).

fast_period = params.get("fast_period", 10)
slow_period = params.get("slow_period", 20)
min_volume = params.get("min_volume", 0)

fast_ma = SMA(close, timeperiod = fast_period)
slow_ma = SMA(close, timeperiod = slow_period)

if CROSS_ABOVE(fast_ma, slow_ma) and volume[-1] > min_volume:
    signal = True
    signal_type = "BUY"
    metrics = {
        "fast_ma": fast_ma[-1],
        "slow_ma": slow_ma[-1],
        "price": close[-1],
        "volume": volume[-1],
    }
else:
    signal = False
`

// StarterTemplate returns the code offered for a new scanner.
func StarterTemplate() Template {
	return Template{
		Name:        "sma_crossover",
		Description: "Fast SMA crossing above slow SMA with a volume filter",
		Code:        starterCode,
		Parameters: map[string]interface{}{
			"fast_period": map[string]interface{}{"default": 10, "type": "int", "min": 1, "max": 200},
			"slow_period": map[string]interface{}{"default": 20, "type": "int", "min": 2, "max": 400},
			"min_volume":  map[string]interface{}{"default": 1000000, "type": "int", "min": 0},
		},
	}
}

var examples = []Template{
	StarterTemplate(),
	{
		Name:        "rsi_oversold",
		Description: "RSI below the oversold level, or above the overbought level",
		Code: `rsi_period = params.get("rsi_period", 14)
oversold_level = params.get("oversold_level", 30)
overbought_level = params.get("overbought_level", 70)
min_volume = params.get("min_volume", 100000)

rsi = RSI(close, timeperiod = rsi_period)
current_rsi = rsi[-1]
price_change = (close[-1] - close[-2]) / close[-2] * 100

if volume[-1] > min_volume and current_rsi < oversold_level:
    signal = True
    signal_type = "BUY"
    signal_strength = max(0, (oversold_level - current_rsi) * 3)
    metrics = {
        "rsi": current_rsi,
        "price": close[-1],
        "price_change": price_change,
        "condition": "oversold",
    }
elif volume[-1] > min_volume and current_rsi > overbought_level:
    signal = True
    signal_type = "SELL"
    signal_strength = max(0, (current_rsi - overbought_level) * 3)
    metrics = {
        "rsi": current_rsi,
        "price": close[-1],
        "price_change": price_change,
        "condition": "overbought",
    }
else:
    signal = False
`,
		Parameters: map[string]interface{}{
			"rsi_period":       14,
			"oversold_level":   30,
			"overbought_level": 70,
			"min_volume":       100000,
		},
	},
	{
		Name:        "macd_crossover",
		Description: "MACD line crossing above its signal line",
		Code: `fast = params.get("fast_period", 12)
slow = params.get("slow_period", 26)
signal_period = params.get("signal_period", 9)

macd, macd_signal, macd_hist = MACD(close, fastperiod = fast, slowperiod = slow, signalperiod = signal_period)

if CROSS_ABOVE(macd, macd_signal):
    signal = True
    signal_type = "BUY"
    metrics = {
        "macd": macd[-1],
        "signal_line": macd_signal[-1],
        "histogram": macd_hist[-1],
        "price": close[-1],
    }
else:
    signal = False
`,
		Parameters: map[string]interface{}{
			"fast_period":   12,
			"slow_period":   26,
			"signal_period": 9,
		},
	},
	{
		Name:        "bollinger_squeeze",
		Description: "Bollinger band width below a threshold",
		Code: `bb_period = params.get("bb_period", 20)
bb_std = params.get("bb_std", 2)
threshold = params.get("squeeze_threshold", 2)

upper, middle, lower = BBANDS(close, timeperiod = bb_period, nbdevup = bb_std, nbdevdn = bb_std)
bandwidth = (upper[-1] - lower[-1]) / middle[-1] * 100

if bandwidth < threshold:
    signal = True
    signal_type = "WATCH"
    metrics = {
        "bandwidth": bandwidth,
        "upper_band": upper[-1],
        "lower_band": lower[-1],
        "price": close[-1],
    }
else:
    signal = False
`,
		Parameters: map[string]interface{}{
			"bb_period":         20,
			"bb_std":            2,
			"squeeze_threshold": 2,
		},
	},
	{
		Name:        "basic_exploration",
		Description: "One row per symbol with price, change, RSI and volume ratio",
		Code: `rsi_period = params.get("rsi_period", 14)

avg_volume = mean(volume[-20:])

Filter = True
AddColumn("close", close[-1], "1.2")
AddColumn("change_pct", (close[-1] / close[-2] - 1) * 100, "1.2")
AddColumn("rsi", RSI(close, rsi_period)[-1], "1.1")
AddColumn("volume_ratio", volume[-1] / avg_volume if avg_volume else 0, "1.2")
`,
		Parameters: map[string]interface{}{
			"rsi_period": 14,
		},
	},
}

// Examples returns the bundled example scanners ordered by name.
func Examples() []Template {
	out := make([]Template, len(examples))
	copy(out, examples)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Example looks up a bundled example by name.
func Example(name string) (Template, bool) {
	for _, t := range examples {
		if t.Name == name {
			return t, true
		}
	}
	return Template{}, false
}
