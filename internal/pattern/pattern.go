// Package pattern detects candlestick patterns over a bar series.
//
// Patterns are a closed catalog held in a Registry. Detect scans every index
// of a series, runs each pattern's matcher on the window ending there and
// reports scored matches in a deterministic order. Reversal patterns flagged
// RequiresContext are additionally confirmed against the bars preceding
// their window.
package pattern

import (
	"time"

	"ta-engine/internal/model"
)

// Classification is the directional bias a pattern signals.
type Classification string

const (
	Bullish Classification = "bullish"
	Bearish Classification = "bearish"
	Neutral Classification = "neutral"
)

// Direction is the price move the classification implies.
func (c Classification) Direction() Direction {
	switch c {
	case Bullish:
		return Up
	case Bearish:
		return Down
	default:
		return Flat
	}
}

// Pattern is the capability every catalog entry implements.
type Pattern interface {
	Name() string
	Classification() Classification
	Description() string

	// WindowSize is the number of consecutive bars Match receives (1..4).
	WindowSize() int

	// RequiresContext marks reversal patterns that need a confirmed prior trend.
	RequiresContext() bool

	// Match inspects exactly WindowSize bars, oldest first, and returns a raw
	// confidence score when the shape matches.
	Match(window []model.Bar) (score float64, ok bool)
}

// Match is one detected pattern occurrence.
type Match struct {
	Name             string         `json:"name"`
	Classification   Classification `json:"classification"`
	EndIndex         int            `json:"end_index"`
	WindowSize       int            `json:"window_size"`
	Confidence       float64        `json:"confidence"`
	ContextValidated bool           `json:"context_validated"`
	Timestamp        time.Time      `json:"timestamp"`
}

// matcher is the catalog entry type.
type matcher struct {
	name           string
	classification Classification
	description    string
	window         int
	context        bool
	match          func(w []model.Bar) (float64, bool)
}

func (m *matcher) Name() string                   { return m.name }
func (m *matcher) Classification() Classification { return m.classification }
func (m *matcher) Description() string            { return m.description }
func (m *matcher) WindowSize() int                { return m.window }
func (m *matcher) RequiresContext() bool          { return m.context }

func (m *matcher) Match(w []model.Bar) (float64, bool) {
	if len(w) != m.window {
		return 0, false
	}
	return m.match(w)
}
