package indicator

import "ta-engine/internal/model"

// rsiAcc calculates the Relative Strength Index with Wilder's smoothing.
// The first bar contributes a zero change, so the first value lands on
// bar index period-1.
type rsiAcc struct {
	gains  *smmaAcc
	losses *smmaAcc

	started   bool
	prevClose float64
}

func newRSI(period int) *rsiAcc {
	return &rsiAcc{gains: newSMMA(period), losses: newSMMA(period)}
}

func (r *rsiAcc) Update(b model.Bar) {
	delta := 0.0
	if r.started {
		delta = b.Close - r.prevClose
	}
	r.started = true
	r.prevClose = b.Close

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}
	r.gains.add(gain)
	r.losses.add(loss)
}

func (r *rsiAcc) Value() float64 {
	avgGain, avgLoss := r.gains.Value(), r.losses.Value()
	switch {
	case avgLoss == 0 && avgGain == 0:
		return 50
	case avgLoss == 0:
		return 100
	}
	rs := avgGain / avgLoss
	return 100.0 - 100.0/(1.0+rs)
}

func (r *rsiAcc) Ready() bool { return r.gains.Ready() }

var rsiDef = &definition{
	name:        "rsi",
	category:    CategoryMomentum,
	description: "Relative Strength Index (Wilder), bounded to [0, 100]",
	params:      []ParamSpec{intParam("length", 14, 2, 1000, "smoothing length in bars")},
	lookback:    lengthLookback,
	build:       func(p Params) accumulator { return newRSI(p.Int("length")) },
	bounded:     true,
	lo:          0,
	hi:          100,
}
