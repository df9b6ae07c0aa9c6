package pattern

import "ta-engine/internal/model"

// DefaultContextSpan is the number of close-to-close moves inspected before a
// reversal window.
const DefaultContextSpan = 1

// strongBodyRatio is the share of the mean window body at which a lone
// context bar moving the pattern's way counts as a continuation.
const strongBodyRatio = 0.7

// ContextValidator confirms that a reversal pattern follows a trend in the
// opposite direction.
type ContextValidator struct {
	// Span is how many close-to-close moves before the window are inspected.
	Span int
}

func (v ContextValidator) span() int {
	if v.Span < 1 {
		return DefaultContextSpan
	}
	return v.Span
}

// PriorTrend returns the sign of close[start-1] - close[start-1-Span]. ok is
// false when fewer than Span+1 bars precede start.
func (v ContextValidator) PriorTrend(s *model.BarSeries, start int) (Direction, bool) {
	first := start - 1 - v.span()
	if first < 0 || start > s.Len() {
		return Flat, false
	}
	return sign(s.At(start-1).Close - s.At(first).Close), true
}

// Confirm reports whether the bars before the window [start, end) run against
// the direction implied by c. Neutral patterns are never confirmed.
//
// When the series holds too few bars for PriorTrend but at least one bar
// precedes the window, that bar alone decides: the window is rejected only if
// the bar moves the pattern's way with a body of at least 0.7 times the mean
// window body.
func (v ContextValidator) Confirm(s *model.BarSeries, start, end int, c Classification) bool {
	want := c.Direction()
	if want == Flat || start < 1 || end <= start || end > s.Len() {
		return false
	}
	if trend, ok := v.PriorTrend(s, start); ok {
		return trend == -want
	}
	prev := s.At(start - 1)
	if BarDirection(prev) != want {
		return true
	}
	var total float64
	for i := start; i < end; i++ {
		total += Body(s.At(i))
	}
	mean := total / float64(end-start)
	return Body(prev) < strongBodyRatio*mean
}

func sign(x float64) Direction {
	switch {
	case x > 0:
		return Up
	case x < 0:
		return Down
	default:
		return Flat
	}
}
