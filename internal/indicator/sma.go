package indicator

import (
	"math"

	"ta-engine/internal/model"
)

// ring is a fixed-size circular buffer of the latest n values with a running
// sum. The sum is compensated so a large value leaving the window does not
// swallow the small ones that remain.
type ring struct {
	buf   []float64
	idx   int // next write position
	count int // total values received
	sum   float64
	comp  float64 // Neumaier correction term
}

func newRing(n int) *ring { return &ring{buf: make([]float64, n)} }

func (r *ring) push(x float64) {
	if r.count >= len(r.buf) {
		r.add(-r.buf[r.idx])
	}
	r.buf[r.idx] = x
	r.add(x)
	r.idx = (r.idx + 1) % len(r.buf)
	r.count++
	if r.idx == 0 {
		r.resum()
	}
}

func (r *ring) add(x float64) {
	t := r.sum + x
	if math.Abs(r.sum) >= math.Abs(x) {
		r.comp += (r.sum - t) + x
	} else {
		r.comp += (x - t) + r.sum
	}
	r.sum = t
}

// resum rebuilds the sum from the buffer once per lap so rounding cannot
// accumulate over long series.
func (r *ring) resum() {
	r.sum, r.comp = 0, 0
	for _, v := range r.buf {
		r.add(v)
	}
}

func (r *ring) full() bool        { return r.count >= len(r.buf) }
func (r *ring) mean() float64     { return (r.sum + r.comp) / float64(len(r.buf)) }
func (r *ring) values() []float64 { return r.buf }

// at returns the k-th value of the window, oldest first.
func (r *ring) at(k int) float64 { return r.buf[(r.idx+k)%len(r.buf)] }

// smaAcc is a simple moving average over one bar field.
type smaAcc struct {
	field model.Field
	win   *ring
}

func newSMA(period int, field model.Field) *smaAcc {
	return &smaAcc{field: field, win: newRing(period)}
}

func (s *smaAcc) Update(b model.Bar) { s.win.push(s.field.Of(b)) }
func (s *smaAcc) Value() float64     { return s.win.mean() }
func (s *smaAcc) Ready() bool        { return s.win.full() }

var smaDef = &definition{
	name:        "sma",
	category:    CategoryTrend,
	description: "Simple moving average of a bar field over length bars",
	params: []ParamSpec{
		intParam("length", 20, 1, 5000, "window length in bars"),
		sourceParam(model.FieldClose),
	},
	lookback: lengthLookback,
	build: func(p Params) accumulator {
		return newSMA(p.Int("length"), p.Source("source"))
	},
}

var volumeSMADef = &definition{
	name:        "volume_sma",
	category:    CategoryVolume,
	description: "Simple moving average of volume over length bars",
	params:      []ParamSpec{intParam("length", 20, 1, 5000, "window length in bars")},
	lookback:    lengthLookback,
	build: func(p Params) accumulator {
		return newSMA(p.Int("length"), model.FieldVolume)
	},
}
