package indicator

import "ta-engine/internal/model"

// wmaAcc is a linearly weighted moving average of closes; the newest bar
// weighs period, the oldest 1.
type wmaAcc struct {
	win     *ring
	divisor float64
}

func newWMA(period int) *wmaAcc {
	return &wmaAcc{win: newRing(period), divisor: float64(period*(period+1)) / 2}
}

func (w *wmaAcc) Update(b model.Bar) { w.win.push(b.Close) }

func (w *wmaAcc) Value() float64 {
	n := len(w.win.values())
	num := 0.0
	for k := 0; k < n; k++ {
		num += float64(k+1) * w.win.at(k)
	}
	return num / w.divisor
}

func (w *wmaAcc) Ready() bool { return w.win.full() }

var wmaDef = &definition{
	name:        "wma",
	category:    CategoryTrend,
	description: "Linearly weighted moving average of closes",
	params:      []ParamSpec{intParam("length", 20, 1, 5000, "window length in bars")},
	lookback:    lengthLookback,
	build:       func(p Params) accumulator { return newWMA(p.Int("length")) },
}
