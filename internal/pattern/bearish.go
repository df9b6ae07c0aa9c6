package pattern

import (
	"math"

	"ta-engine/internal/model"
)

var shootingStar = &matcher{
	name:           "shooting_star",
	classification: Bearish,
	description:    "Bearish reversal with small body at bottom and long upper shadow (2x+ body length)",
	window:         1,
	match: func(w []model.Bar) (float64, bool) {
		b := w[0]
		body, upper, lower := Body(b), UpperShadow(b), LowerShadow(b)
		if body == 0 || upper < 2*body || lower > 0.3*body {
			return 0, false
		}
		return math.Min(1, upper/(3*body)), true
	},
}

var hangingMan = &matcher{
	name:           "hanging_man",
	classification: Bearish,
	description:    "Small body at top of range with long lower shadow",
	window:         1,
	match: func(w []model.Bar) (float64, bool) {
		ratio, ok := hammerShape(w[0])
		if !ok {
			return 0, false
		}
		return math.Min(1, 0.5+0.1*ratio), true
	},
}

var bearishMarubozu = &matcher{
	name:           "bearish_marubozu",
	classification: Bearish,
	description:    "Long bearish candle with little or no shadow",
	window:         1,
	match:          marubozu(Down),
}

var bearishEngulfing = &matcher{
	name:           "bearish_engulfing",
	classification: Bearish,
	description:    "Two-bar reversal where a bearish bar completely engulfs the prior bullish bar",
	window:         2,
	match:          engulfing(Down),
}

var bearishHarami = &matcher{
	name:           "bearish_harami",
	classification: Bearish,
	description:    "Small candle contained within the prior large bullish candle body",
	window:         2,
	match:          harami(Up),
}

var darkCloudCover = &matcher{
	name:           "dark_cloud_cover",
	classification: Bearish,
	description:    "Bearish candle opens above the prior close and closes below the prior body midpoint",
	window:         2,
	match: func(w []model.Bar) (float64, bool) {
		first, second := w[0], w[1]
		if BarDirection(first) != Up || BarDirection(second) != Down {
			return 0, false
		}
		if second.Open <= first.Close {
			return 0, false
		}
		mid := Midpoint(first)
		if second.Close >= mid || second.Close <= first.Open {
			return 0, false
		}
		pen := (mid - second.Close) / (mid - first.Open)
		return 0.6 + 0.4*pen, true
	},
}

var tweezerTop = &matcher{
	name:           "tweezer_top",
	classification: Bearish,
	description:    "Two candles with matching highs",
	window:         2,
	match:          tweezer(func(b model.Bar) float64 { return b.High }),
}

var eveningStar = &matcher{
	name:           "evening_star",
	classification: Bearish,
	description:    "Three-bar bearish reversal: large bullish, small body, large bearish",
	window:         3,
	match:          star(Down),
}

var threeBlackCrows = &matcher{
	name:           "three_black_crows",
	classification: Bearish,
	description:    "Three consecutive long bearish candles closing progressively lower after an advance",
	window:         3,
	context:        true,
	match:          advance(Down),
}
