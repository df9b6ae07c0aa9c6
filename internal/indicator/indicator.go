// Package indicator provides technical indicator calculations over bar series.
//
// Every indicator implements the Indicator interface and is computed as a pure
// function of a BarSeries and its resolved parameters. Internally each one is
// driven bar by bar through a fresh accumulator, so a value at index i never
// depends on bars after i.
package indicator

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"

	"ta-engine/internal/model"
)

// Category groups indicators by the numeric shape of their output.
type Category string

const (
	CategoryTrend      Category = "trend"
	CategoryMomentum   Category = "momentum"
	CategoryVolatility Category = "volatility"
	CategoryVolume     Category = "volume"
)

// Indicator is the interface for all technical indicators.
type Indicator interface {
	// Name returns the registry key (e.g. "rsi", "sma").
	Name() string

	// Category returns the indicator family.
	Category() Category

	// Description returns a one-line human readable summary.
	Description() string

	// Params returns the parameter schema.
	Params() []ParamSpec

	// Lookback returns the minimum number of bars needed for the first defined value.
	Lookback(p Params) int

	// Compute returns one value per bar; the first Lookback(p)-1 values are NaN.
	Compute(s *model.BarSeries, p Params) Values
}

// Values holds an indicator output aligned with the series. Undefined
// (warm-up) positions are NaN and encode as JSON null.
type Values []float64

// Last returns the newest value and whether it is defined.
func (v Values) Last() (float64, bool) {
	if len(v) == 0 || math.IsNaN(v[len(v)-1]) {
		return math.NaN(), false
	}
	return v[len(v)-1], true
}

// MarshalJSON encodes NaN as null.
func (v Values) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(v) * 8)
	buf.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			buf.WriteByte(',')
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			buf.WriteString("null")
			continue
		}
		buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes null entries back to NaN.
func (v *Values) UnmarshalJSON(data []byte) error {
	var raw []*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Values, len(raw))
	for i, f := range raw {
		if f == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = *f
	}
	*v = out
	return nil
}

// accumulator is the per-call streaming state behind an indicator.
// Update feeds the next bar; Value is meaningful only once Ready.
type accumulator interface {
	Update(b model.Bar)
	Value() float64
	Ready() bool
}

// definition is the catalog entry type: one per indicator in the closed set.
type definition struct {
	name        string
	category    Category
	description string
	params      []ParamSpec
	lookback    func(Params) int
	build       func(Params) accumulator

	// bounded oscillators clamp into [lo, hi]
	bounded bool
	lo, hi  float64
}

func (d *definition) Name() string          { return d.name }
func (d *definition) Category() Category    { return d.category }
func (d *definition) Description() string   { return d.description }
func (d *definition) Params() []ParamSpec   { return d.params }
func (d *definition) Lookback(p Params) int { return d.lookback(p) }

// Compute drives a fresh accumulator across the series.
func (d *definition) Compute(s *model.BarSeries, p Params) Values {
	acc := d.build(p)
	out := make(Values, s.Len())
	for i := range out {
		acc.Update(s.At(i))
		if !acc.Ready() {
			out[i] = math.NaN()
			continue
		}
		v := acc.Value()
		if d.bounded {
			v = math.Max(d.lo, math.Min(d.hi, v))
		}
		out[i] = v
	}
	return out
}

// lengthLookback is the lookback of every windowed indicator.
func lengthLookback(p Params) int { return p.Int("length") }

// unitLookback is the lookback of cumulative indicators.
func unitLookback(Params) int { return 1 }
