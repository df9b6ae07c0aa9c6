package pattern

import (
	"math"

	"ta-engine/internal/model"
)

// hammerShape is the shared single-bar geometry of hammer and hanging man:
// small body near the high, lower shadow at least twice the body and at
// least half the range, upper shadow no more than half the lower one.
// It returns lower shadow / body.
func hammerShape(b model.Bar) (float64, bool) {
	body, lower, upper, rng := Body(b), LowerShadow(b), UpperShadow(b), Range(b)
	if rng == 0 || body == 0 {
		return 0, false
	}
	if lower < 2*body || upper > 0.5*lower || lower < 0.5*rng {
		return 0, false
	}
	return lower / body, true
}

var hammer = &matcher{
	name:           "hammer",
	classification: Bullish,
	description:    "Bullish reversal with small body at top and long lower shadow (2x+ body length)",
	window:         1,
	match: func(w []model.Bar) (float64, bool) {
		ratio, ok := hammerShape(w[0])
		if !ok {
			return 0, false
		}
		return math.Min(1, 0.6+0.1*ratio), true
	},
}

var invertedHammer = &matcher{
	name:           "inverted_hammer",
	classification: Bullish,
	description:    "Small body at bottom of range with long upper shadow",
	window:         1,
	match: func(w []model.Bar) (float64, bool) {
		b := w[0]
		body, upper, lower := Body(b), UpperShadow(b), LowerShadow(b)
		if body == 0 || upper < 2*body || lower > 0.5*body {
			return 0, false
		}
		return math.Min(1, 0.5+0.1*upper/body), true
	},
}

// marubozu matches a bar whose body covers more than 90% of its range in
// direction d; the score is the body ratio itself.
func marubozu(d Direction) func(w []model.Bar) (float64, bool) {
	return func(w []model.Bar) (float64, bool) {
		b := w[0]
		if BarDirection(b) != d {
			return 0, false
		}
		ratio := BodyRatio(b)
		if ratio <= 0.9 {
			return 0, false
		}
		return ratio, true
	}
}

var bullishMarubozu = &matcher{
	name:           "bullish_marubozu",
	classification: Bullish,
	description:    "Long bullish candle with little or no shadow",
	window:         1,
	match:          marubozu(Up),
}

// engulfing matches a bar of direction d whose body fully engulfs the prior
// opposite bar's body. The score grows with the body size ratio.
func engulfing(d Direction) func(w []model.Bar) (float64, bool) {
	return func(w []model.Bar) (float64, bool) {
		first, second := w[0], w[1]
		if BarDirection(first) != -d || BarDirection(second) != d {
			return 0, false
		}
		if BodyBottom(second) >= BodyBottom(first) || BodyTop(second) <= BodyTop(first) {
			return 0, false
		}
		conf := math.Min(1, 0.6+0.4*(Body(second)/Body(first)-1))
		return math.Max(0.6, conf), true
	}
}

var bullishEngulfing = &matcher{
	name:           "bullish_engulfing",
	classification: Bullish,
	description:    "Two-bar reversal where a bullish bar completely engulfs the prior bearish bar",
	window:         2,
	match:          engulfing(Up),
}

// harami matches a small bar (at most half the body) contained strictly
// inside the body of a prior bar of direction d. Smaller inner bodies score higher.
func harami(d Direction) func(w []model.Bar) (float64, bool) {
	return func(w []model.Bar) (float64, bool) {
		first, second := w[0], w[1]
		if BarDirection(first) != d {
			return 0, false
		}
		b1, b2 := Body(first), Body(second)
		if b2 > 0.5*b1 {
			return 0, false
		}
		if BodyTop(second) >= BodyTop(first) || BodyBottom(second) <= BodyBottom(first) {
			return 0, false
		}
		return 0.6 + 0.4*(1-2*b2/b1), true
	}
}

var bullishHarami = &matcher{
	name:           "bullish_harami",
	classification: Bullish,
	description:    "Small candle contained within the prior large bearish candle body",
	window:         2,
	match:          harami(Down),
}

var piercingLine = &matcher{
	name:           "piercing_line",
	classification: Bullish,
	description:    "Bullish candle opens below the prior close and closes above the prior body midpoint",
	window:         2,
	match: func(w []model.Bar) (float64, bool) {
		first, second := w[0], w[1]
		if BarDirection(first) != Down || BarDirection(second) != Up {
			return 0, false
		}
		if second.Open >= first.Close {
			return 0, false
		}
		mid := Midpoint(first)
		if second.Close <= mid || second.Close >= first.Open {
			return 0, false
		}
		// penetration beyond the midpoint, 0 at the midpoint and 1 at the prior open
		pen := (second.Close - mid) / (first.Open - mid)
		return 0.6 + 0.4*pen, true
	},
}

// tweezer matches two bars whose extreme (low or high, via pick) agrees
// within 0.1%. Exact agreement scores 0.9.
func tweezer(pick func(model.Bar) float64) func(w []model.Bar) (float64, bool) {
	return func(w []model.Bar) (float64, bool) {
		ref := pick(w[0])
		if ref <= 0 {
			return 0, false
		}
		diff := math.Abs(ref-pick(w[1])) / ref
		if diff >= 0.001 {
			return 0, false
		}
		return 0.6 + 0.3*(1-diff/0.001), true
	}
}

var tweezerBottom = &matcher{
	name:           "tweezer_bottom",
	classification: Bullish,
	description:    "Two candles with matching lows",
	window:         2,
	match:          tweezer(func(b model.Bar) float64 { return b.Low }),
}

// star matches the three-bar morning (d=Up) or evening (d=Down) star: a large
// body against d, a small middle body, and a large body in direction d closing
// beyond the first bar's midpoint.
func star(d Direction) func(w []model.Bar) (float64, bool) {
	return func(w []model.Bar) (float64, bool) {
		first, second, third := w[0], w[1], w[2]
		if BarDirection(first) != -d || BarDirection(third) != d {
			return 0, false
		}
		b1, b2, b3 := Body(first), Body(second), Body(third)
		if b1 <= 1.5*b2 || b3 <= 1.5*b2 {
			return 0, false
		}
		// distance of the third close past the first midpoint, in the pattern direction
		beyond := float64(d) * (third.Close - Midpoint(first))
		if beyond <= 0 {
			return 0, false
		}
		return math.Min(1, 0.7+0.3*beyond/b1), true
	}
}

var morningStar = &matcher{
	name:           "morning_star",
	classification: Bullish,
	description:    "Three-bar bullish reversal: large bearish, small body, large bullish",
	window:         3,
	match:          star(Up),
}

// advance matches three consecutive bars of direction d with strictly
// progressing closes, each opening beyond the prior open but inside the prior
// body, and no body smaller than half the mean body. The score reflects how
// uniform the three bodies are.
func advance(d Direction) func(w []model.Bar) (float64, bool) {
	return func(w []model.Bar) (float64, bool) {
		var bodies [3]float64
		for i, b := range w {
			if BarDirection(b) != d {
				return 0, false
			}
			bodies[i] = Body(b)
			if i == 0 {
				continue
			}
			prev := w[i-1]
			if float64(d)*(b.Close-prev.Close) <= 0 {
				return 0, false
			}
			if float64(d)*(b.Open-prev.Open) <= 0 {
				return 0, false
			}
			// open within the prior body, at or short of the prior close
			if float64(d)*(b.Open-prev.Close) > 0 {
				return 0, false
			}
		}
		mean := (bodies[0] + bodies[1] + bodies[2]) / 3
		lo, hi := bodies[0], bodies[0]
		for _, x := range bodies {
			if x < 0.5*mean {
				return 0, false
			}
			lo, hi = math.Min(lo, x), math.Max(hi, x)
		}
		return 0.6 + 0.4*lo/hi, true
	}
}

var threeWhiteSoldiers = &matcher{
	name:           "three_white_soldiers",
	classification: Bullish,
	description:    "Three consecutive long bullish candles closing progressively higher after a decline",
	window:         3,
	context:        true,
	match:          advance(Up),
}
