package scanner

import (
	"fmt"
	"time"

	starlarkmath "go.starlark.net/lib/math"
	starlarktime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
)

var ohlcvColumns = []string{"open", "high", "low", "close", "volume"}

// Namespace holds the bindings shared by every symbol of a batch: the
// parameter dict and the helper library. It is frozen on construction, so
// scripts cannot mutate it and goroutines may share it.
type Namespace struct {
	base starlark.StringDict
}

// NewNamespace builds the frozen base namespace for a parameter set.
func NewNamespace(params Params) (*Namespace, error) {
	dict, err := params.toDict()
	if err != nil {
		return nil, fmt.Errorf("convert parameters: %w", err)
	}

	base := starlark.StringDict{
		"params":     dict,
		"parameters": dict,
		"math":       starlarkmath.Module,
		"time":       starlarktime.Module,
		"ta":         taModule,
		"talib":      taModule,
		"stats":      statsModule,
	}
	for name, fn := range taModule.Members {
		base[name] = fn
	}
	for name, fn := range statsModule.Members {
		base[name] = fn
	}
	base.Freeze()

	return &Namespace{base: base}, nil
}

func loadModule(_ *starlark.Thread, module string) (starlark.StringDict, error) {
	switch module {
	case "math":
		return starlarkmath.Module.Members, nil
	case "time":
		return starlarktime.Module.Members, nil
	case "ta":
		return taModule.Members, nil
	case "stats":
		return statsModule.Members, nil
	}
	return nil, fmt.Errorf("module %q is not available", module)
}

// Env is the evaluation environment of one execution against one symbol.
// It must not be reused.
type Env struct {
	predeclared starlark.StringDict
	columns     *columnSet
}

// Enrich returns a fresh environment for one symbol. Series columns are
// copied into new lists and AddColumn writes into a private column set.
func (n *Namespace) Enrich(symbol, exchange string, series *Series) *Env {
	cols := newColumnSet()

	env := make(starlark.StringDict, len(n.base)+len(ohlcvColumns)+6)
	for k, v := range n.base {
		env[k] = v
	}
	for _, name := range ohlcvColumns {
		env[name] = toList(series.Column(name))
	}

	stamps := make([]starlark.Value, series.Len())
	for i, b := range series.Bars {
		stamps[i] = starlark.String(b.Time.Format(time.RFC3339))
	}
	env["timestamps"] = starlark.NewList(stamps)
	env["bars"] = starlark.MakeInt(series.Len())
	env["symbol"] = starlark.String(symbol)
	env["exchange"] = starlark.String(exchange)
	env["AddColumn"] = starlark.NewBuiltin("AddColumn", cols.add)

	return &Env{predeclared: env, columns: cols}
}

// predeclaredNames is every name a compiled program may resolve against the
// per-symbol environment.
var predeclaredNames = func() map[string]bool {
	ns, err := NewNamespace(nil)
	if err != nil {
		panic(err)
	}
	names := make(map[string]bool)
	for name := range ns.Enrich("", "", &Series{}).predeclared {
		names[name] = true
	}
	return names
}()

func isPredeclared(name string) bool {
	return predeclaredNames[name]
}

// columnSet is the ordered backing store of AddColumn. Re-adding a name
// replaces its value in place.
type columnSet struct {
	cols  []Column
	index map[string]int
}

func newColumnSet() *columnSet {
	return &columnSet{index: make(map[string]int)}
}

func (c *columnSet) Len() int {
	return len(c.cols)
}

func (c *columnSet) set(col Column) {
	if i, ok := c.index[col.Name]; ok {
		c.cols[i] = col
		return
	}
	c.index[col.Name] = len(c.cols)
	c.cols = append(c.cols, col)
}

// add implements AddColumn(name, value, format="1.2"). The AmiBroker order
// AddColumn(value, name) is accepted too, and a list value contributes its
// last element.
func (c *columnSet) add(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var first, second starlark.Value
	var format starlark.Value = starlark.String("1.2")
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &first, "value", &second, "format?", &format); err != nil {
		return nil, err
	}

	name, value := first, second
	if _, ok := first.(starlark.String); !ok {
		name, value = second, first
	}
	label, ok := starlark.AsString(name)
	if !ok {
		return nil, fmt.Errorf("%s: column name must be a string, got %s", b.Name(), name.Type())
	}

	if seq, ok := value.(starlark.Indexable); ok {
		if _, isStr := value.(starlark.String); !isStr {
			if seq.Len() == 0 {
				value = starlark.None
			} else {
				value = seq.Index(seq.Len() - 1)
			}
		}
	}

	fmtSpec, ok := starlark.AsString(format)
	if !ok {
		fmtSpec = format.String()
	}

	c.set(Column{Name: label, Value: toGo(value), Format: fmtSpec})
	return starlark.None, nil
}

func (c *columnSet) metrics() map[string]interface{} {
	out := make(map[string]interface{}, len(c.cols))
	for _, col := range c.cols {
		out[col.Name] = col.Value
	}
	return out
}

func (c *columnSet) columns() []Column {
	out := make([]Column, len(c.cols))
	copy(out, c.cols)
	return out
}
