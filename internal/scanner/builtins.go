package scanner

import (
	"fmt"
	"math"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/wonny/fluxscan/internal/indicators"
)

type builtinFunc = func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)

// floatSeries unpacks a list or tuple of numbers. None becomes NaN so that
// indicator output can be fed back into another indicator.
type floatSeries []float64

func (s *floatSeries) Unpack(v starlark.Value) error {
	vals, err := toFloats(v)
	if err != nil {
		return err
	}
	*s = vals
	return nil
}

func toFloats(v starlark.Value) ([]float64, error) {
	if _, ok := v.(starlark.String); ok {
		return nil, fmt.Errorf("got string, want list of numbers")
	}
	seq, ok := v.(starlark.Indexable)
	if !ok {
		return nil, fmt.Errorf("got %s, want list of numbers", v.Type())
	}
	out := make([]float64, seq.Len())
	for i := range out {
		f, err := toFloat(seq.Index(i))
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = f
	}
	return out, nil
}

func toFloat(v starlark.Value) (float64, error) {
	if v == starlark.None {
		return math.NaN(), nil
	}
	if _, ok := v.(starlark.Bool); ok {
		return 0, fmt.Errorf("got bool, want number")
	}
	f, ok := starlark.AsFloat(v)
	if !ok {
		return 0, fmt.Errorf("got %s, want number", v.Type())
	}
	return f, nil
}

// number unpacks an int or float.
type number float64

func (n *number) Unpack(v starlark.Value) error {
	f, ok := starlark.AsFloat(v)
	if !ok {
		return fmt.Errorf("got %s, want number", v.Type())
	}
	*n = number(f)
	return nil
}

// period unpacks an int or an integral float.
type period int

func (p *period) Unpack(v starlark.Value) error {
	switch x := v.(type) {
	case starlark.Int:
		i, ok := x.Int64()
		if !ok {
			return fmt.Errorf("period %s out of range", x)
		}
		*p = period(i)
		return nil
	case starlark.Float:
		if float64(x) != math.Trunc(float64(x)) {
			return fmt.Errorf("got float %s, want whole number", x)
		}
		*p = period(x)
		return nil
	}
	return fmt.Errorf("got %s, want int", v.Type())
}

// seriesOrScalar accepts a list or a single number, broadcasting the latter.
type seriesOrScalar []float64

func (s *seriesOrScalar) Unpack(v starlark.Value) error {
	if f, ok := starlark.AsFloat(v); ok {
		*s = []float64{f, f}
		return nil
	}
	vals, err := toFloats(v)
	if err != nil {
		return err
	}
	*s = vals
	return nil
}

func toList(vals []float64) *starlark.List {
	elems := make([]starlark.Value, len(vals))
	for i, v := range vals {
		elems[i] = floatValue(v)
	}
	return starlark.NewList(elems)
}

func floatValue(v float64) starlark.Value {
	if math.IsNaN(v) {
		return starlark.None
	}
	return starlark.Float(v)
}

func periodIndicator(fn func([]float64, int) ([]float64, error), def int) builtinFunc {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var in floatSeries
		p := period(def)
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "real", &in, "timeperiod?", &p); err != nil {
			return nil, err
		}
		out, err := fn(in, int(p))
		if err != nil {
			return nil, err
		}
		return toList(out), nil
	}
}

func hlcIndicator(fn func(high, low, close []float64, period int) ([]float64, error), def int) builtinFunc {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var high, low, close floatSeries
		p := period(def)
		if err := starlark.UnpackArgs(b.Name(), args, kwargs,
			"high", &high, "low", &low, "close", &close, "timeperiod?", &p); err != nil {
			return nil, err
		}
		out, err := fn(high, low, close, int(p))
		if err != nil {
			return nil, err
		}
		return toList(out), nil
	}
}

func stddev(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var in floatSeries
	p := period(5)
	nbdev := number(1)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "real", &in, "timeperiod?", &p, "nbdev?", &nbdev); err != nil {
		return nil, err
	}
	out, err := indicators.STDDEV(in, int(p), float64(nbdev))
	if err != nil {
		return nil, err
	}
	return toList(out), nil
}

func macd(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var in floatSeries
	fast, slow, signal := period(12), period(26), period(9)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"real", &in, "fastperiod?", &fast, "slowperiod?", &slow, "signalperiod?", &signal); err != nil {
		return nil, err
	}
	line, sig, hist, err := indicators.MACD(in, int(fast), int(slow), int(signal))
	if err != nil {
		return nil, err
	}
	return starlark.Tuple{toList(line), toList(sig), toList(hist)}, nil
}

func bbands(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var in floatSeries
	p := period(5)
	up, dn := number(2), number(2)
	var matype period
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"real", &in, "timeperiod?", &p, "nbdevup?", &up, "nbdevdn?", &dn, "matype?", &matype); err != nil {
		return nil, err
	}
	upper, middle, lower, err := indicators.BBANDS(in, int(p), float64(up), float64(dn))
	if err != nil {
		return nil, err
	}
	return starlark.Tuple{toList(upper), toList(middle), toList(lower)}, nil
}

func stoch(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var high, low, close floatSeries
	fastK, slowK, slowD := period(5), period(3), period(3)
	var slowKMA, slowDMA period
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"high", &high, "low", &low, "close", &close,
		"fastk_period?", &fastK, "slowk_period?", &slowK, "slowk_matype?", &slowKMA,
		"slowd_period?", &slowD, "slowd_matype?", &slowDMA); err != nil {
		return nil, err
	}
	k, d, err := indicators.STOCH(high, low, close, int(fastK), int(slowK), int(slowD))
	if err != nil {
		return nil, err
	}
	return starlark.Tuple{toList(k), toList(d)}, nil
}

func mfi(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var high, low, close, volume floatSeries
	p := period(14)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"high", &high, "low", &low, "close", &close, "volume", &volume, "timeperiod?", &p); err != nil {
		return nil, err
	}
	out, err := indicators.MFI(high, low, close, volume, int(p))
	if err != nil {
		return nil, err
	}
	return toList(out), nil
}

func obv(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var close, volume floatSeries
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "close", &close, "volume", &volume); err != nil {
		return nil, err
	}
	out, err := indicators.OBV(close, volume)
	if err != nil {
		return nil, err
	}
	return toList(out), nil
}

func sar(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var high, low floatSeries
	accel, maximum := number(0.02), number(0.2)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"high", &high, "low", &low, "acceleration?", &accel, "maximum?", &maximum); err != nil {
		return nil, err
	}
	out, err := indicators.SAR(high, low, float64(accel), float64(maximum))
	if err != nil {
		return nil, err
	}
	return toList(out), nil
}

func cross(fn func(a, b []float64) (bool, error)) builtinFunc {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var x, y seriesOrScalar
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "a", &x, "b", &y); err != nil {
			return nil, err
		}
		ok, err := fn(x, y)
		if err != nil {
			return nil, err
		}
		return starlark.Bool(ok), nil
	}
}

func indicatorBuiltins() starlark.StringDict {
	defs := map[string]builtinFunc{
		"SMA":         periodIndicator(indicators.SMA, 30),
		"EMA":         periodIndicator(indicators.EMA, 30),
		"WMA":         periodIndicator(indicators.WMA, 30),
		"RSI":         periodIndicator(indicators.RSI, 14),
		"ROC":         periodIndicator(indicators.ROC, 10),
		"MOM":         periodIndicator(indicators.MOM, 10),
		"HHV":         periodIndicator(indicators.HHV, 30),
		"LLV":         periodIndicator(indicators.LLV, 30),
		"ATR":         hlcIndicator(indicators.ATR, 14),
		"ADX":         hlcIndicator(indicators.ADX, 14),
		"CCI":         hlcIndicator(indicators.CCI, 14),
		"WILLR":       hlcIndicator(indicators.WILLR, 14),
		"STDDEV":      stddev,
		"MACD":        macd,
		"BBANDS":      bbands,
		"STOCH":       stoch,
		"MFI":         mfi,
		"OBV":         obv,
		"SAR":         sar,
		"CROSS_ABOVE": cross(indicators.CrossAbove),
		"CROSS_BELOW": cross(indicators.CrossBelow),
	}
	out := make(starlark.StringDict, len(defs))
	for name, fn := range defs {
		out[name] = starlark.NewBuiltin(name, fn)
	}
	return out
}

func statsMean(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var in floatSeries
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &in); err != nil {
		return nil, err
	}
	v, err := indicators.Mean(in)
	if err != nil {
		return nil, err
	}
	return starlark.Float(v), nil
}

func statsStdev(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var in floatSeries
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &in); err != nil {
		return nil, err
	}
	v, err := indicators.Stdev(in)
	if err != nil {
		return nil, err
	}
	return starlark.Float(v), nil
}

func statsExtreme(fn func([]float64, int) (float64, error)) builtinFunc {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var in floatSeries
		var n period
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "values", &in, "n?", &n); err != nil {
			return nil, err
		}
		v, err := fn(in, int(n))
		if err != nil {
			return nil, err
		}
		return starlark.Float(v), nil
	}
}

func statsPctChange(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var in floatSeries
	periods := period(1)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "values", &in, "periods?", &periods); err != nil {
		return nil, err
	}
	out, err := indicators.PctChange(in, int(periods))
	if err != nil {
		return nil, err
	}
	return toList(out), nil
}

func statsLast(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var in floatSeries
	var offset period
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "values", &in, "offset?", &offset); err != nil {
		return nil, err
	}
	v, err := indicators.Last(in, int(offset))
	if err != nil {
		return nil, err
	}
	return floatValue(v), nil
}

func statsIsNone(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
		return nil, err
	}
	return starlark.Bool(v == starlark.None), nil
}

func statsBuiltins() starlark.StringDict {
	return starlark.StringDict{
		"mean":       starlark.NewBuiltin("mean", statsMean),
		"stdev":      starlark.NewBuiltin("stdev", statsStdev),
		"highest":    starlark.NewBuiltin("highest", statsExtreme(indicators.Highest)),
		"lowest":     starlark.NewBuiltin("lowest", statsExtreme(indicators.Lowest)),
		"pct_change": starlark.NewBuiltin("pct_change", statsPctChange),
		"last":       starlark.NewBuiltin("last", statsLast),
		"is_none":    starlark.NewBuiltin("is_none", statsIsNone),
	}
}

var (
	taModule    = &starlarkstruct.Module{Name: "ta", Members: indicatorBuiltins()}
	statsModule = &starlarkstruct.Module{Name: "stats", Members: statsBuiltins()}
)
