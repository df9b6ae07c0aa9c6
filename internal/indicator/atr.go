package indicator

import (
	"math"

	"ta-engine/internal/model"
)

// atrAcc is the Average True Range with Wilder smoothing.
// The first bar's true range is its high-low span.
type atrAcc struct {
	smma      *smmaAcc
	started   bool
	prevClose float64
}

func newATR(period int) *atrAcc { return &atrAcc{smma: newSMMA(period)} }

func (a *atrAcc) Update(b model.Bar) {
	tr := b.High - b.Low
	if a.started {
		tr = math.Max(tr, math.Max(math.Abs(b.High-a.prevClose), math.Abs(b.Low-a.prevClose)))
	}
	a.started = true
	a.prevClose = b.Close
	a.smma.add(tr)
}

func (a *atrAcc) Value() float64 { return a.smma.Value() }
func (a *atrAcc) Ready() bool    { return a.smma.Ready() }

var atrDef = &definition{
	name:        "atr",
	category:    CategoryVolatility,
	description: "Average True Range (Wilder)",
	params:      []ParamSpec{intParam("length", 14, 1, 1000, "smoothing length in bars")},
	lookback:    lengthLookback,
	build:       func(p Params) accumulator { return newATR(p.Int("length")) },
}
