package pattern

import (
	"math"

	"ta-engine/internal/model"
)

// Direction is the sign of a price move: Up, Down or Flat.
type Direction int

const (
	Down Direction = -1
	Flat Direction = 0
	Up   Direction = 1
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "bullish"
	case Down:
		return "bearish"
	default:
		return "neutral"
	}
}

// Body is |close - open|.
func Body(b model.Bar) float64 { return math.Abs(b.Close - b.Open) }

// UpperShadow is the distance from the top of the body to the high.
func UpperShadow(b model.Bar) float64 { return b.High - math.Max(b.Open, b.Close) }

// LowerShadow is the distance from the bottom of the body to the low.
func LowerShadow(b model.Bar) float64 { return math.Min(b.Open, b.Close) - b.Low }

// Range is high - low.
func Range(b model.Bar) float64 { return b.High - b.Low }

// Midpoint is the middle of the body.
func Midpoint(b model.Bar) float64 { return (b.Open + b.Close) / 2 }

// BodyTop and BodyBottom are the upper and lower edges of the body.
func BodyTop(b model.Bar) float64    { return math.Max(b.Open, b.Close) }
func BodyBottom(b model.Bar) float64 { return math.Min(b.Open, b.Close) }

// BarDirection classifies a single bar by close versus open.
func BarDirection(b model.Bar) Direction {
	switch {
	case b.Close > b.Open:
		return Up
	case b.Close < b.Open:
		return Down
	default:
		return Flat
	}
}

// BodyRatio is body / range, 0 for a bar with no range.
func BodyRatio(b model.Bar) float64 {
	r := Range(b)
	if r == 0 {
		return 0
	}
	return Body(b) / r
}

// clip01 bounds a confidence score to [0, 1].
func clip01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
