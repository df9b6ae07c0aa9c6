package indicator

import "ta-engine/internal/model"

// cvdAcc is cumulative volume delta: volume counts as buying when the bar
// closes at or above its open, selling otherwise.
type cvdAcc struct {
	total float64
	count int
}

func (c *cvdAcc) Update(b model.Bar) {
	c.count++
	if b.Close >= b.Open {
		c.total += b.Volume
	} else {
		c.total -= b.Volume
	}
}

func (c *cvdAcc) Value() float64 { return c.total }
func (c *cvdAcc) Ready() bool    { return c.count > 0 }

// obvAcc is on-balance volume, starting at zero on the first bar.
type obvAcc struct {
	total     float64
	count     int
	prevClose float64
}

func (o *obvAcc) Update(b model.Bar) {
	if o.count > 0 {
		switch {
		case b.Close > o.prevClose:
			o.total += b.Volume
		case b.Close < o.prevClose:
			o.total -= b.Volume
		}
	}
	o.count++
	o.prevClose = b.Close
}

func (o *obvAcc) Value() float64 { return o.total }
func (o *obvAcc) Ready() bool    { return o.count > 0 }

// vwapAcc is the cumulative volume-weighted average typical price.
// Until any volume has traded it reports the latest typical price.
type vwapAcc struct {
	pv, vol float64
	typical float64
	count   int
}

func (v *vwapAcc) Update(b model.Bar) {
	v.count++
	v.typical = b.Typical()
	v.pv += v.typical * b.Volume
	v.vol += b.Volume
}

func (v *vwapAcc) Value() float64 {
	if v.vol == 0 {
		return v.typical
	}
	return v.pv / v.vol
}

func (v *vwapAcc) Ready() bool { return v.count > 0 }

var cvdDef = &definition{
	name:        "cvd",
	category:    CategoryVolume,
	description: "Cumulative volume delta (volume signed by bar direction)",
	lookback:    unitLookback,
	build:       func(Params) accumulator { return &cvdAcc{} },
}

var obvDef = &definition{
	name:        "obv",
	category:    CategoryVolume,
	description: "On-balance volume",
	lookback:    unitLookback,
	build:       func(Params) accumulator { return &obvAcc{} },
}

var vwapDef = &definition{
	name:        "vwap",
	category:    CategoryVolume,
	description: "Cumulative volume-weighted average price over the series",
	lookback:    unitLookback,
	build:       func(Params) accumulator { return &vwapAcc{} },
}
