// Package bars provides bar sources outside the database stores: an HTTP
// client for the market-data service and a CSV reader used for imports.
package bars

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned when a source has no bars for the requested symbol.
var ErrNotFound = errors.New("bars not found")

// ParseTimestamp accepts RFC 3339 strings, "2006-01-02 15:04:05" strings and
// unix epochs in seconds or milliseconds.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(strings.Trim(raw, `"`))
	if raw == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(int64(n)).UTC(), nil
		}
		return time.Unix(int64(n), 0).UTC(), nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}
