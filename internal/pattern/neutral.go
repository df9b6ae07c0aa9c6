package pattern

import (
	"math"

	"ta-engine/internal/model"
)

// dojiMaxRatio is the largest body/range a doji may have.
const dojiMaxRatio = 0.3

var doji = &matcher{
	name:           "doji",
	classification: Neutral,
	description:    "Indecision candle whose body is small against its range",
	window:         1,
	match: func(w []model.Bar) (float64, bool) {
		b := w[0]
		if Range(b) == 0 {
			return 0, false
		}
		ratio := BodyRatio(b)
		if ratio > dojiMaxRatio {
			return 0, false
		}
		upper, lower := UpperShadow(b), LowerShadow(b)
		balance := 0.0
		if m := math.Max(upper, lower); m > 0 {
			balance = math.Min(upper, lower) / m
		}
		return 0.5*(1-ratio/dojiMaxRatio) + 0.5*balance, true
	},
}

var spinningTop = &matcher{
	name:           "spinning_top",
	classification: Neutral,
	description:    "Indecision candle with small body and long upper and lower shadows",
	window:         1,
	match: func(w []model.Bar) (float64, bool) {
		b := w[0]
		body, upper, lower, rng := Body(b), UpperShadow(b), LowerShadow(b), Range(b)
		if rng == 0 || body == 0 {
			return 0, false
		}
		ratio := body / rng
		imbalance := math.Abs(upper-lower) / math.Max(math.Max(upper, lower), 0.001)
		if ratio >= 0.3 || lower <= body || upper <= body || imbalance >= 0.5 {
			return 0, false
		}
		return ((1 - imbalance) + (1 - ratio/0.3)) / 2, true
	},
}
