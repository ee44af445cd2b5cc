package scanner

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"go.starlark.net/starlark"
)

// Params is a merged parameter set. It is shared read-only by every symbol
// of a batch.
type Params map[string]interface{}

// Batch-wide settings merged into every parameter set.
const (
	DefaultExchange     = "NSE"
	DefaultInterval     = "D"
	DefaultLookbackDays = 100
)

// ParamSpec describes one scanner parameter.
type ParamSpec struct {
	Default     interface{} `json:"default" yaml:"default" toml:"default"`
	Type        string      `json:"type,omitempty" yaml:"type,omitempty" toml:"type,omitempty"`
	Min         *float64    `json:"min,omitempty" yaml:"min,omitempty" toml:"min,omitempty"`
	Max         *float64    `json:"max,omitempty" yaml:"max,omitempty" toml:"max,omitempty"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
}

// ParamSchema maps parameter names to their specs.
type ParamSchema map[string]ParamSpec

// ParseSchema accepts either full specs ({"default": 10, "type": "int"}) or
// plain values as shorthand for {"default": value}.
func ParseSchema(raw map[string]interface{}) (ParamSchema, error) {
	schema := make(ParamSchema, len(raw))
	for name, v := range raw {
		m, ok := v.(map[string]interface{})
		if !ok {
			schema[name] = ParamSpec{Default: v}
			continue
		}
		if _, hasDefault := m["default"]; !hasDefault {
			schema[name] = ParamSpec{Default: v}
			continue
		}
		spec := ParamSpec{Default: m["default"]}
		if t, ok := m["type"].(string); ok {
			spec.Type = t
		}
		if d, ok := m["description"].(string); ok {
			spec.Description = d
		}
		var err error
		if spec.Min, err = optionalBound(m["min"]); err != nil {
			return nil, fmt.Errorf("parameter %s: min: %w", name, err)
		}
		if spec.Max, err = optionalBound(m["max"]); err != nil {
			return nil, fmt.Errorf("parameter %s: max: %w", name, err)
		}
		schema[name] = spec
	}
	return schema, nil
}

func optionalBound(v interface{}) (*float64, error) {
	if v == nil {
		return nil, nil
	}
	f, ok := asFloat(v)
	if !ok {
		return nil, fmt.Errorf("not a number: %v", v)
	}
	return &f, nil
}

// Defaults returns the default value of every parameter.
func (s ParamSchema) Defaults() Params {
	out := make(Params, len(s))
	for name, spec := range s {
		out[name] = normalize(spec.Default)
	}
	return out
}

// kind is the declared type, or "number" when a numeric default implies one.
func (s ParamSpec) kind() string {
	if s.Type != "" {
		return strings.ToLower(s.Type)
	}
	switch s.Default.(type) {
	case bool:
		return "bool"
	case string:
		return "string"
	case int, int32, int64, float32, float64:
		return "number"
	}
	return ""
}

// BatchSettings are the batch-wide values merged last.
type BatchSettings struct {
	Exchange     string
	Interval     string
	LookbackDays int
}

func (b BatchSettings) withDefaults() BatchSettings {
	if b.Exchange == "" {
		b.Exchange = DefaultExchange
	}
	if b.Interval == "" {
		b.Interval = DefaultInterval
	}
	if b.LookbackDays <= 0 {
		b.LookbackDays = DefaultLookbackDays
	}
	return b
}

// MergeParams merges schema defaults, caller overrides and batch settings,
// later layers winning. Overrides of declared parameters are checked against
// the declared type and bounds; all violations are returned together as a
// *ValidationError.
func MergeParams(schema ParamSchema, overrides map[string]interface{}, settings BatchSettings) (Params, error) {
	out := schema.Defaults()

	var problems []string
	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		v := overrides[name]
		spec, declared := schema[name]
		if !declared {
			out[name] = normalize(v)
			continue
		}
		coerced, err := spec.coerce(v)
		if err != nil {
			problems = append(problems, fmt.Sprintf("parameter '%s': %v", name, err))
			continue
		}
		out[name] = coerced
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Errors: problems}
	}

	settings = settings.withDefaults()
	out["exchange"] = settings.Exchange
	out["interval"] = settings.Interval
	out["lookback_days"] = int64(settings.LookbackDays)
	return out, nil
}

func (s ParamSpec) coerce(v interface{}) (interface{}, error) {
	switch s.kind() {
	case "int", "integer":
		i, err := asInt(v)
		if err != nil {
			return nil, err
		}
		return i, s.checkBounds(float64(i))
	case "float":
		f, ok := asFloat(v)
		if !ok {
			return nil, fmt.Errorf("expected float, got %v", v)
		}
		return f, s.checkBounds(f)
	case "number":
		f, ok := asFloat(v)
		if !ok {
			return nil, fmt.Errorf("expected number, got %v", v)
		}
		return normalize(f), s.checkBounds(f)
	case "bool", "boolean":
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			parsed, err := strconv.ParseBool(b)
			if err != nil {
				return nil, fmt.Errorf("expected bool, got %q", b)
			}
			return parsed, nil
		}
		return nil, fmt.Errorf("expected bool, got %v", v)
	case "string", "str":
		if str, ok := v.(string); ok {
			return str, nil
		}
		return fmt.Sprint(v), nil
	}
	return normalize(v), nil
}

func (s ParamSpec) checkBounds(f float64) error {
	if s.Min != nil && f < *s.Min {
		return fmt.Errorf("value %v below minimum %v", f, *s.Min)
	}
	if s.Max != nil && f > *s.Max {
		return fmt.Errorf("value %v above maximum %v", f, *s.Max)
	}
	return nil
}

func asInt(v interface{}) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("expected int, got %v", x)
		}
		return int64(x), nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("expected int, got %q", x)
		}
		return i, nil
	}
	return 0, fmt.Errorf("expected int, got %v", v)
}

func asFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

// normalize maps decoded JSON numbers onto int64 when they are whole, so
// scripts can use them with range() and as indicator periods.
func normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return int64(x)
		}
	}
	return v
}

func (p Params) toDict() (*starlark.Dict, error) {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)

	dict := starlark.NewDict(len(p))
	for _, name := range names {
		v, err := toStarlark(p[name])
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", name, err)
		}
		if err := dict.SetKey(starlark.String(name), v); err != nil {
			return nil, err
		}
	}
	return dict, nil
}

func toStarlark(v interface{}) (starlark.Value, error) {
	switch x := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(x), nil
	case int:
		return starlark.MakeInt(x), nil
	case int32:
		return starlark.MakeInt64(int64(x)), nil
	case int64:
		return starlark.MakeInt64(x), nil
	case float32:
		return starlark.Float(x), nil
	case float64:
		return starlark.Float(x), nil
	case string:
		return starlark.String(x), nil
	case []interface{}:
		elems := make([]starlark.Value, len(x))
		for i, e := range x {
			sv, err := toStarlark(e)
			if err != nil {
				return nil, err
			}
			elems[i] = sv
		}
		return starlark.NewList(elems), nil
	case []string:
		elems := make([]starlark.Value, len(x))
		for i, e := range x {
			elems[i] = starlark.String(e)
		}
		return starlark.NewList(elems), nil
	case map[string]interface{}:
		d := starlark.NewDict(len(x))
		for k, e := range x {
			sv, err := toStarlark(e)
			if err != nil {
				return nil, err
			}
			if err := d.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return d, nil
	}
	return nil, fmt.Errorf("unsupported parameter type %T", v)
}
