package model

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
)

// BarSeries is an immutable, validated sequence of bars ordered oldest first.
// The zero value is an empty series.
type BarSeries struct {
	bars []Bar
}

// NewBarSeries validates bars and returns a series holding its own copy of them.
// The first bar that breaks the geometric or timestamp-ordering invariant fails
// construction with a *MalformedBarError; no partial series is returned.
func NewBarSeries(bars []Bar) (*BarSeries, error) {
	for i, b := range bars {
		if reason := b.check(); reason != "" {
			return nil, &MalformedBarError{Index: i, Reason: reason}
		}
		if i > 0 && !b.TS.After(bars[i-1].TS) {
			return nil, &MalformedBarError{
				Index:  i,
				Reason: fmt.Sprintf("timestamp %s not after previous %s", b.TS.Format("2006-01-02T15:04:05Z07:00"), bars[i-1].TS.Format("2006-01-02T15:04:05Z07:00")),
			}
		}
	}
	own := make([]Bar, len(bars))
	copy(own, bars)
	return &BarSeries{bars: own}, nil
}

// MustBarSeries is NewBarSeries for fixtures and tests; it panics on invalid input.
func MustBarSeries(bars []Bar) *BarSeries {
	s, err := NewBarSeries(bars)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of bars.
func (s *BarSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.bars)
}

// At returns the bar at index i.
func (s *BarSeries) At(i int) Bar { return s.bars[i] }

// Last returns the newest bar and false when the series is empty.
func (s *BarSeries) Last() (Bar, bool) {
	if s.Len() == 0 {
		return Bar{}, false
	}
	return s.bars[len(s.bars)-1], true
}

// Window returns bars [from, to) as a read-only view. Callers must not modify it.
func (s *BarSeries) Window(from, to int) []Bar {
	return s.bars[from:to:to]
}

// Truncate returns the prefix of the first k bars. k is clamped to [0, Len()].
// The prefix shares storage with s, which is safe because neither is mutated.
func (s *BarSeries) Truncate(k int) *BarSeries {
	if k < 0 {
		k = 0
	}
	if k > s.Len() {
		k = s.Len()
	}
	return &BarSeries{bars: s.bars[:k:k]}
}

// Bars returns a copy of the underlying bars.
func (s *BarSeries) Bars() []Bar {
	out := make([]Bar, s.Len())
	copy(out, s.bars)
	return out
}

// Digest identifies the exact contents of the series: timestamps and every
// OHLCV value. A bar revised in place changes the digest.
func (s *BarSeries) Digest() string {
	h := fnv.New64a()
	var buf [48]byte
	for _, b := range s.bars {
		binary.LittleEndian.PutUint64(buf[0:], uint64(b.TS.UnixNano()))
		binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(b.Open))
		binary.LittleEndian.PutUint64(buf[16:], math.Float64bits(b.High))
		binary.LittleEndian.PutUint64(buf[24:], math.Float64bits(b.Low))
		binary.LittleEndian.PutUint64(buf[32:], math.Float64bits(b.Close))
		binary.LittleEndian.PutUint64(buf[40:], math.Float64bits(b.Volume))
		h.Write(buf[:])
	}
	return strconv.Itoa(s.Len()) + "-" + strconv.FormatUint(h.Sum64(), 16)
}

// Field extracts one price field as a new slice.
func (s *BarSeries) Field(f Field) []float64 {
	out := make([]float64, s.Len())
	for i, b := range s.bars {
		out[i] = f.Of(b)
	}
	return out
}

// Field selects one numeric column of a bar.
type Field string

const (
	FieldOpen   Field = "open"
	FieldHigh   Field = "high"
	FieldLow    Field = "low"
	FieldClose  Field = "close"
	FieldVolume Field = "volume"
)

// Valid reports whether f names a known column.
func (f Field) Valid() bool {
	switch f {
	case FieldOpen, FieldHigh, FieldLow, FieldClose, FieldVolume:
		return true
	}
	return false
}

// Of returns the column value of b.
func (f Field) Of(b Bar) float64 {
	switch f {
	case FieldOpen:
		return b.Open
	case FieldHigh:
		return b.High
	case FieldLow:
		return b.Low
	case FieldVolume:
		return b.Volume
	default:
		return b.Close
	}
}
