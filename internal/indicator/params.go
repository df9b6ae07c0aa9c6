package indicator

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"ta-engine/internal/model"
)

// ParamType is the value kind a parameter accepts.
type ParamType string

const (
	ParamInt    ParamType = "int"
	ParamFloat  ParamType = "float"
	ParamSource ParamType = "source"
)

// ParamSpec describes one tunable parameter of an indicator.
type ParamSpec struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Default     any       `json:"default"`
	Min         *float64  `json:"min,omitempty"`
	Max         *float64  `json:"max,omitempty"`
	Description string    `json:"description,omitempty"`
}

func intParam(name string, def, lo, hi int, desc string) ParamSpec {
	l, h := float64(lo), float64(hi)
	return ParamSpec{Name: name, Type: ParamInt, Default: def, Min: &l, Max: &h, Description: desc}
}

func floatParam(name string, def, lo, hi float64, desc string) ParamSpec {
	return ParamSpec{Name: name, Type: ParamFloat, Default: def, Min: &lo, Max: &hi, Description: desc}
}

func sourceParam(def model.Field) ParamSpec {
	return ParamSpec{Name: "source", Type: ParamSource, Default: string(def), Description: "bar field the indicator reads"}
}

// Params is a fully resolved parameter set: every declared parameter is
// present and has been checked against its spec.
type Params struct {
	ints    map[string]int
	floats  map[string]float64
	sources map[string]model.Field
}

// Int returns an int parameter (0 if absent).
func (p Params) Int(name string) int { return p.ints[name] }

// Float returns a float parameter (0 if absent).
func (p Params) Float(name string) float64 { return p.floats[name] }

// Source returns a source parameter, defaulting to close.
func (p Params) Source(name string) model.Field {
	if f, ok := p.sources[name]; ok {
		return f
	}
	return model.FieldClose
}

// Map returns the resolved values keyed by parameter name.
func (p Params) Map() map[string]any {
	out := make(map[string]any, len(p.ints)+len(p.floats)+len(p.sources))
	for k, v := range p.ints {
		out[k] = v
	}
	for k, v := range p.floats {
		out[k] = v
	}
	for k, v := range p.sources {
		out[k] = string(v)
	}
	return out
}

// paramAliases maps accepted alternative names onto declared ones.
var paramAliases = map[string]string{"period": "length"}

// DefaultParams resolves an indicator's parameters with no overrides.
func DefaultParams(ind Indicator) Params {
	p, err := Resolve(ind, nil)
	if err != nil {
		// catalog defaults are always valid
		panic(err)
	}
	return p
}

// Resolve merges raw values over the indicator defaults and validates them.
func Resolve(ind Indicator, raw map[string]any) (Params, error) {
	p := Params{
		ints:    make(map[string]int),
		floats:  make(map[string]float64),
		sources: make(map[string]model.Field),
	}
	specs := make(map[string]ParamSpec, len(ind.Params()))
	for _, ps := range ind.Params() {
		specs[ps.Name] = ps
		if err := p.set(ind.Name(), ps, ps.Default); err != nil {
			return Params{}, err
		}
	}

	seen := make(map[string]string, len(raw))
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		name := k
		if alias, ok := paramAliases[k]; ok {
			name = alias
		}
		ps, ok := specs[name]
		if !ok {
			return Params{}, &model.InvalidParameterError{Indicator: ind.Name(), Param: k, Reason: "unknown parameter"}
		}
		if prev, dup := seen[name]; dup {
			return Params{}, &model.InvalidParameterError{Indicator: ind.Name(), Param: k,
				Reason: fmt.Sprintf("conflicts with %q", prev)}
		}
		seen[name] = k
		if err := p.set(ind.Name(), ps, raw[k]); err != nil {
			return Params{}, err
		}
	}
	return p, nil
}

func (p Params) set(indicator string, ps ParamSpec, v any) error {
	bad := func(reason string) error {
		return &model.InvalidParameterError{Indicator: indicator, Param: ps.Name, Reason: reason}
	}

	if ps.Type == ParamSource {
		s, ok := v.(string)
		if !ok {
			return bad("expected a bar field name")
		}
		f := model.Field(strings.ToLower(s))
		if !f.Valid() {
			return bad(fmt.Sprintf("unknown bar field %q", s))
		}
		p.sources[ps.Name] = f
		return nil
	}

	f, ok := toFloat(v)
	if !ok {
		return bad(fmt.Sprintf("expected a number, got %T", v))
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return bad("must be finite")
	}
	if ps.Min != nil && f < *ps.Min {
		return bad(fmt.Sprintf("must be >= %g", *ps.Min))
	}
	if ps.Max != nil && f > *ps.Max {
		return bad(fmt.Sprintf("must be <= %g", *ps.Max))
	}
	switch ps.Type {
	case ParamInt:
		if f != math.Trunc(f) {
			return bad("must be an integer")
		}
		p.ints[ps.Name] = int(f)
	default:
		p.floats[ps.Name] = f
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
