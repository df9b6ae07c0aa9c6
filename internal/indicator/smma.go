package indicator

import "ta-engine/internal/model"

// smmaAcc is Wilder's smoothed moving average.
// First value is SMA(period), then SMMA = (prev*(period-1) + x) / period.
// RSI and ATR feed it derived series through add.
type smmaAcc struct {
	period  int
	count   int
	sum     float64
	current float64
}

func newSMMA(period int) *smmaAcc {
	return &smmaAcc{period: period}
}

func (s *smmaAcc) add(x float64) {
	s.count++

	if s.count <= s.period {
		s.sum += x
		if s.count == s.period {
			s.current = s.sum / float64(s.period)
		}
		return
	}

	s.current = (s.current*float64(s.period-1) + x) / float64(s.period)
}

func (s *smmaAcc) Update(b model.Bar) { s.add(b.Close) }
func (s *smmaAcc) Value() float64     { return s.current }
func (s *smmaAcc) Ready() bool        { return s.count >= s.period }

var smmaDef = &definition{
	name:        "smma",
	category:    CategoryTrend,
	description: "Wilder smoothed moving average of closes",
	params:      []ParamSpec{intParam("length", 14, 1, 5000, "smoothing length in bars")},
	lookback:    lengthLookback,
	build:       func(p Params) accumulator { return newSMMA(p.Int("length")) },
}
