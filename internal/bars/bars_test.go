package bars

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ta-engine/internal/model"
)

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 5, 6, 14, 30, 0, 0, time.UTC)
	for _, raw := range []string{
		"2024-05-06T14:30:00Z",
		"2024-05-06T16:30:00+02:00",
		"2024-05-06 14:30:00",
		"1715005800",
		"1715005800000",
		`"2024-05-06T14:30:00Z"`,
	} {
		got, err := ParseTimestamp(raw)
		require.NoError(t, err, raw)
		assert.True(t, want.Equal(got), "%s -> %v", raw, got)
	}

	_, err := ParseTimestamp("yesterday")
	assert.Error(t, err)
	_, err = ParseTimestamp("")
	assert.Error(t, err)
}

func TestHTTPSource_FetchBars(t *testing.T) {
	var gotPath, gotLimit, gotTF string
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/health":
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/bars/MISSING":
			http.NotFound(w, r)
		case strings.HasPrefix(r.URL.Path, "/bars/"):
			gotPath = r.URL.Path
			gotLimit = r.URL.Query().Get("limit")
			gotTF = r.URL.Query().Get("timeframe")
			gotQuery = r.URL.Query()
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`[
				{"timestamp":"2024-05-06T14:30:00Z","open":100,"high":101,"low":99,"close":100.5,"volume":1200},
				{"timestamp":1715006100,"open":100.5,"high":102,"low":100,"close":101.5,"volume":900}
			]`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL+"/", time.Second)
	defer src.Close()
	ctx := context.Background()

	got, err := src.FetchBars(ctx, model.BarQuery{Symbol: "AAPL", Limit: 2, Timeframe: 5})
	require.NoError(t, err)
	assert.Equal(t, "/bars/AAPL", gotPath)
	assert.Equal(t, "2", gotLimit)
	assert.Equal(t, "5", gotTF)
	assert.False(t, gotQuery.Has("day"))
	assert.False(t, gotQuery.Has("minute"))
	require.Len(t, got, 2)
	assert.Equal(t, 100.5, got[0].Close)
	assert.Equal(t, time.Date(2024, 5, 6, 14, 35, 0, 0, time.UTC), got[1].TS)

	_, err = model.NewBarSeries(got)
	assert.NoError(t, err)

	at := 930
	_, err = src.FetchBars(ctx, model.BarQuery{Symbol: "AAPL", Limit: 2, Timeframe: 5, Day: 20240506, Minute: &at})
	require.NoError(t, err)
	assert.Equal(t, "20240506", gotQuery.Get("day"))
	assert.Equal(t, "930", gotQuery.Get("minute"))

	_, err = src.FetchBars(ctx, model.BarQuery{Symbol: "MISSING", Limit: 2, Timeframe: 5})
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.NoError(t, src.Ping(ctx))
}

func TestHTTPSource_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL, time.Second)
	_, err := src.FetchBars(context.Background(), model.BarQuery{Symbol: "AAPL", Limit: 1, Timeframe: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Error(t, src.Ping(context.Background()))
}

func TestReadCSV(t *testing.T) {
	in := "Timestamp,Open,High,Low,Close,Volume\n" +
		"2024-05-06T14:30:00Z,100,101,99,100.5,1200\n" +
		"2024-05-06T14:35:00Z, 100.5, 102, 100, 101.5, 900\n"
	got, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.Bar{
		TS:   time.Date(2024, 5, 6, 14, 35, 0, 0, time.UTC),
		Open: 100.5, High: 102, Low: 100, Close: 101.5, Volume: 900,
	}, got[1])
}

func TestReadCSV_Errors(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"missing column": "timestamp,open,high,low\n",
		"bad number":     "timestamp,open,high,low,close\n2024-05-06,1,2,x,1\n",
		"bad timestamp":  "timestamp,open,high,low,close\nnope,1,2,0,1\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(in))
			assert.Error(t, err)
		})
	}
}

func TestReadCSV_VolumeOptional(t *testing.T) {
	got, err := ReadCSV(strings.NewReader("close,low,high,open,timestamp\n10,9,11,10,1715005800\n"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0.0, got[0].Volume)
	assert.Equal(t, 11.0, got[0].High)
}
