package scanner

import (
	"math"
	"time"

	"go.starlark.net/starlark"
)

// legacyExtras are optional top-level names copied into a legacy signal's
// metrics when a script sets them.
var legacyExtras = []string{"signal_strength", "entry_price", "target", "stop_loss"}

// extract resolves the two reporting conventions into one result:
//
//  1. Filter truthy with at least one column: exploration row.
//  2. signal truthy: legacy signal.
//  3. otherwise nothing.
//
// A truthy Filter without columns falls through to the legacy check.
func extract(task SymbolTask, globals starlark.StringDict, cols *columnSet, now time.Time) *ScanResult {
	if truthy(globals["Filter"]) && cols.Len() > 0 {
		return &ScanResult{
			Symbol:    task.Symbol,
			Exchange:  task.Exchange,
			Kind:      KindExplore,
			Signal:    SignalExplore,
			Metrics:   cols.metrics(),
			Columns:   cols.columns(),
			Timestamp: now,
		}
	}

	if !truthy(globals["signal"]) {
		return nil
	}

	metrics := make(map[string]interface{})
	if d, ok := globals["metrics"].(*starlark.Dict); ok {
		for _, item := range d.Items() {
			metrics[keyString(item[0])] = toGo(item[1])
		}
	}
	for _, name := range legacyExtras {
		if v, ok := globals[name]; ok {
			metrics[name] = toGo(v)
		}
	}

	return &ScanResult{
		Symbol:    task.Symbol,
		Exchange:  task.Exchange,
		Kind:      KindSignal,
		Signal:    signalType(globals["signal_type"]),
		Metrics:   metrics,
		Timestamp: now,
	}
}

func truthy(v starlark.Value) bool {
	return v != nil && bool(v.Truth())
}

func signalType(v starlark.Value) string {
	if v == nil || v == starlark.None {
		return DefaultSignalType
	}
	s, ok := starlark.AsString(v)
	if !ok {
		s = v.String()
	}
	if s == "" {
		return DefaultSignalType
	}
	return s
}

func keyString(k starlark.Value) string {
	if s, ok := starlark.AsString(k); ok {
		return s
	}
	return k.String()
}

// toGo converts a script value into plain Go data. NaN and infinities
// become nil.
func toGo(v starlark.Value) interface{} {
	switch x := v.(type) {
	case nil, starlark.NoneType:
		return nil
	case starlark.Bool:
		return bool(x)
	case starlark.Int:
		if i, ok := x.Int64(); ok {
			return i
		}
		f, _ := starlark.AsFloat(x)
		return f
	case starlark.Float:
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return f
	case starlark.String:
		return string(x)
	case *starlark.List:
		out := make([]interface{}, x.Len())
		for i := range out {
			out[i] = toGo(x.Index(i))
		}
		return out
	case starlark.Tuple:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = toGo(e)
		}
		return out
	case *starlark.Dict:
		out := make(map[string]interface{}, x.Len())
		for _, item := range x.Items() {
			out[keyString(item[0])] = toGo(item[1])
		}
		return out
	}
	return v.String()
}
