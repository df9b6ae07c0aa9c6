package indicator

import "ta-engine/internal/model"

// emaAcc calculates an exponential moving average of closes.
// O(1) per update; no window storage needed.
type emaAcc struct {
	period     int
	multiplier float64
	current    float64
	count      int
	sum        float64
}

func newEMA(period int) *emaAcc {
	return &emaAcc{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *emaAcc) Update(b model.Bar) {
	e.count++

	if e.count <= e.period {
		// accumulate for the SMA seed
		e.sum += b.Close
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
		}
		return
	}

	e.current = b.Close*e.multiplier + e.current*(1-e.multiplier)
}

func (e *emaAcc) Value() float64 { return e.current }
func (e *emaAcc) Ready() bool    { return e.count >= e.period }

var emaDef = &definition{
	name:        "ema",
	category:    CategoryTrend,
	description: "Exponential moving average of closes, seeded with the SMA of the first length bars",
	params:      []ParamSpec{intParam("length", 20, 1, 5000, "smoothing length in bars")},
	lookback:    lengthLookback,
	build:       func(p Params) accumulator { return newEMA(p.Int("length")) },
}
