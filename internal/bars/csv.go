package bars

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"ta-engine/internal/model"
)

var csvColumns = []string{"timestamp", "open", "high", "low", "close", "volume"}

// ReadCSV parses bars from a CSV with a header row naming at least
// timestamp, open, high, low and close. volume defaults to 0 when absent.
// Column order is free and names are case-insensitive.
func ReadCSV(r io.Reader) ([]model.Bar, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("csv: missing header")
		}
		return nil, fmt.Errorf("csv header: %w", err)
	}
	idx := map[string]int{}
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range csvColumns[:5] {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("csv: missing column %q", col)
		}
	}

	var out []model.Bar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		b, err := parseRecord(rec, idx)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		out = append(out, b)
	}
	return out, nil
}

func parseRecord(rec []string, idx map[string]int) (model.Bar, error) {
	var b model.Bar
	ts, err := ParseTimestamp(rec[idx["timestamp"]])
	if err != nil {
		return b, err
	}
	b.TS = ts

	fields := []struct {
		name string
		dst  *float64
	}{
		{"open", &b.Open}, {"high", &b.High}, {"low", &b.Low}, {"close", &b.Close}, {"volume", &b.Volume},
	}
	for _, f := range fields {
		i, ok := idx[f.name]
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
		if err != nil {
			return b, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = v
	}
	return b, nil
}
