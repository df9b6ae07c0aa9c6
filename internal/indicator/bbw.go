package indicator

import (
	"gonum.org/v1/gonum/stat"

	"ta-engine/internal/model"
)

// bbwAcc is the Bollinger band width: upper minus lower band, i.e.
// 2 * mult * sample standard deviation of closes over the window.
type bbwAcc struct {
	win  *ring
	mult float64
}

func newBBW(period int, mult float64) *bbwAcc {
	return &bbwAcc{win: newRing(period), mult: mult}
}

func (b *bbwAcc) Update(bar model.Bar) { b.win.push(bar.Close) }

func (b *bbwAcc) Value() float64 {
	return 2 * b.mult * stat.StdDev(b.win.values(), nil)
}

func (b *bbwAcc) Ready() bool { return b.win.full() }

var bbwDef = &definition{
	name:        "bbw",
	category:    CategoryVolatility,
	description: "Bollinger band width (upper minus lower band)",
	params: []ParamSpec{
		intParam("length", 20, 2, 1000, "window length in bars"),
		floatParam("mult", 2.0, 0.1, 10, "standard deviation multiplier"),
	},
	lookback: lengthLookback,
	build:    func(p Params) accumulator { return newBBW(p.Int("length"), p.Float("mult")) },
}
