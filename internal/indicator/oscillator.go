package indicator

import (
	"math"

	"ta-engine/internal/model"
)

// rangeWindow tracks the highs and lows of the latest period bars.
type rangeWindow struct {
	highs *ring
	lows  *ring
	close float64
}

func newRangeWindow(period int) *rangeWindow {
	return &rangeWindow{highs: newRing(period), lows: newRing(period)}
}

func (w *rangeWindow) Update(b model.Bar) {
	w.highs.push(b.High)
	w.lows.push(b.Low)
	w.close = b.Close
}

func (w *rangeWindow) Ready() bool { return w.highs.full() }

func (w *rangeWindow) extremes() (hi, lo float64) {
	hi, lo = math.Inf(-1), math.Inf(1)
	for _, h := range w.highs.values() {
		hi = math.Max(hi, h)
	}
	for _, l := range w.lows.values() {
		lo = math.Min(lo, l)
	}
	return hi, lo
}

// stochAcc is the fast stochastic %K.
type stochAcc struct{ *rangeWindow }

func (s stochAcc) Value() float64 {
	hi, lo := s.extremes()
	if hi == lo {
		return 50
	}
	return 100 * (s.close - lo) / (hi - lo)
}

// willrAcc is Williams %R.
type willrAcc struct{ *rangeWindow }

func (w willrAcc) Value() float64 {
	hi, lo := w.extremes()
	if hi == lo {
		return -50
	}
	return -100 * (hi - w.close) / (hi - lo)
}

var stochDef = &definition{
	name:        "stoch",
	category:    CategoryMomentum,
	description: "Stochastic oscillator %K, bounded to [0, 100]",
	params:      []ParamSpec{intParam("length", 14, 1, 1000, "lookback window in bars")},
	lookback:    lengthLookback,
	build:       func(p Params) accumulator { return stochAcc{newRangeWindow(p.Int("length"))} },
	bounded:     true,
	lo:          0,
	hi:          100,
}

var willrDef = &definition{
	name:        "willr",
	category:    CategoryMomentum,
	description: "Williams %R, bounded to [-100, 0]",
	params:      []ParamSpec{intParam("length", 14, 1, 1000, "lookback window in bars")},
	lookback:    lengthLookback,
	build:       func(p Params) accumulator { return willrAcc{newRangeWindow(p.Int("length"))} },
	bounded:     true,
	lo:          -100,
	hi:          0,
}
