package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	db := filepath.Join(dir, "bars.db")
	t.Setenv("TA_CONFIG_FILE", "")
	t.Setenv("BAR_SOURCE", "sqlite")
	t.Setenv("SQLITE_PATH", db)
	t.Setenv("CACHE_ENABLED", "false")
	return dir
}

// writeCSV writes n one-minute bars, newest first, ending in three white
// soldiers after a decline.
func writeCSV(t *testing.T, dir string, n int) string {
	t.Helper()
	t0 := time.Date(2024, 5, 6, 14, 30, 0, 0, time.UTC)
	var lines []string
	for i := 0; i < n; i++ {
		o := 200 - float64(i)
		c := o - 0.8
		if i >= n-3 {
			o = 200 - float64(n-3) + float64(i-(n-3))*1.0 - 0.5
			c = o + 1.2
		}
		hi, lo := max(o, c)+0.1, min(o, c)-0.1
		lines = append(lines, fmt.Sprintf("%s,%g,%g,%g,%g,1000", t0.Add(time.Duration(i)*time.Minute).Format(time.RFC3339), o, hi, lo, c))
	}
	// reverse to exercise sorting on import
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	path := filepath.Join(dir, "bars.csv")
	body := "timestamp,open,high,low,close,volume\n" + strings.Join(lines, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestImportThenAnalyze(t *testing.T) {
	dir := isolate(t)
	csvPath := writeCSV(t, dir, 30)

	out, err := run(t, "import", "--csv", csvPath, "--symbol", "spy")
	require.NoError(t, err)
	assert.Contains(t, out, "imported 30 bars for SPY/1")

	out, err = run(t, "analyze", "--symbol", "SPY", "--limit", "30",
		"--indicator", "rsi:length=14", "--indicator", "fast=ema:length=5", "--indicator", "nope",
		"--pattern", "three_white_soldiers")
	require.NoError(t, err)

	var got struct {
		Indicators struct {
			Bars    int                        `json:"bars"`
			Results map[string]json.RawMessage `json:"results"`
		} `json:"indicators"`
		Patterns struct {
			Patterns []struct {
				Name             string `json:"name"`
				EndIndex         int    `json:"end_index"`
				ContextValidated bool   `json:"context_validated"`
			} `json:"patterns"`
		} `json:"patterns"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 30, got.Indicators.Bars)
	assert.Contains(t, got.Indicators.Results, "rsi")
	assert.Contains(t, got.Indicators.Results, "fast")
	assert.Contains(t, string(got.Indicators.Results["nope"]), "unknown_indicator")

	require.NotEmpty(t, got.Patterns.Patterns)
	last := got.Patterns.Patterns[len(got.Patterns.Patterns)-1]
	assert.Equal(t, "three_white_soldiers", last.Name)
	assert.Equal(t, 29, last.EndIndex)
	assert.True(t, last.ContextValidated)
}

func TestImport_RejectsBadInput(t *testing.T) {
	dir := isolate(t)

	_, err := run(t, "import", "--symbol", "SPY")
	assert.Error(t, err)

	path := filepath.Join(dir, "dup.csv")
	require.NoError(t, os.WriteFile(path, []byte("timestamp,open,high,low,close\n1715005800,1,2,0,1\n1715005800,1,2,0,1\n"), 0o644))
	_, err = run(t, "import", "--csv", path, "--symbol", "SPY")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed bar")
}

func TestAnalyze_RequiresWork(t *testing.T) {
	isolate(t)
	_, err := run(t, "analyze", "--symbol", "SPY")
	assert.Error(t, err)
	_, err = run(t, "analyze", "--indicator", "rsi")
	assert.Error(t, err)
}

func TestCatalogCommands(t *testing.T) {
	isolate(t)

	out, err := run(t, "indicators")
	require.NoError(t, err)
	var inds []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &inds))
	assert.Len(t, inds, 13)

	out, err = run(t, "patterns")
	require.NoError(t, err)
	var pats []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &pats))
	assert.Len(t, pats, 20)
}

func TestImportNewOnlyAndSymbols(t *testing.T) {
	dir := isolate(t)
	csvPath := writeCSV(t, dir, 30)

	_, err := run(t, "import", "--csv", csvPath, "--symbol", "spy")
	require.NoError(t, err)
	out, err := run(t, "import", "--csv", csvPath, "--symbol", "spy", "--new-only")
	require.NoError(t, err)
	assert.Contains(t, out, "imported 0 bars for SPY/1")

	out, err = run(t, "symbols")
	require.NoError(t, err)
	var syms []string
	require.NoError(t, json.Unmarshal([]byte(out), &syms))
	assert.Equal(t, []string{"SPY"}, syms)
}

func TestAnalyze_AsOf(t *testing.T) {
	dir := isolate(t)
	csvPath := writeCSV(t, dir, 30)
	_, err := run(t, "import", "--csv", csvPath, "--symbol", "SPY")
	require.NoError(t, err)

	out, err := run(t, "analyze", "--symbol", "SPY", "--day", "20240506", "--minute", "1444", "--indicator", "sma:length=3")
	require.NoError(t, err)
	var got struct {
		Indicators struct {
			Bars          int       `json:"bars"`
			LastTimestamp time.Time `json:"last_timestamp"`
		} `json:"indicators"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 15, got.Indicators.Bars)
	assert.Equal(t, time.Date(2024, 5, 6, 14, 44, 0, 0, time.UTC), got.Indicators.LastTimestamp.UTC())

	_, err = run(t, "analyze", "--symbol", "SPY", "--minute", "1444", "--indicator", "sma")
	assert.Error(t, err)
}
