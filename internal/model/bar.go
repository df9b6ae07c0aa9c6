package model

import (
	"math"
	"time"
)

// Bar represents one period's OHLCV snapshot for a single instrument.
// Prices are float64: the core computes ratios and averages, never ledger amounts.
type Bar struct {
	TS     time.Time `json:"timestamp"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Typical returns (high + low + close) / 3.
func (b Bar) Typical() float64 {
	return (b.High + b.Low + b.Close) / 3
}

// check returns a non-empty reason when the bar violates its geometric invariant.
func (b Bar) check() string {
	for _, v := range [...]float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "non-finite value"
		}
	}
	switch {
	case b.Volume < 0:
		return "negative volume"
	case b.High < b.Low:
		return "high below low"
	case b.High < b.Open || b.High < b.Close:
		return "high below open/close"
	case b.Low > b.Open || b.Low > b.Close:
		return "low above open/close"
	}
	return ""
}
