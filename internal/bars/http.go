package bars

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ta-engine/internal/model"
)

// HTTPSource fetches bars from the market-data service:
// GET {base}/bars/{symbol}?limit=N&timeframe=M[&day=YYYYMMDD[&minute=HHMM]]
// returning a JSON array.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource builds a source for baseURL with a per-request timeout.
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	tr := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Transport: tr, Timeout: timeout},
	}
}

// wireBar accepts numeric or string timestamps.
type wireBar struct {
	Timestamp json.RawMessage `json:"timestamp"`
	Open      float64         `json:"open"`
	High      float64         `json:"high"`
	Low       float64         `json:"low"`
	Close     float64         `json:"close"`
	Volume    float64         `json:"volume"`
}

// FetchBars implements model.BarSource.
func (s *HTTPSource) FetchBars(ctx context.Context, q model.BarQuery) ([]model.Bar, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(q.Limit))
	params.Set("timeframe", strconv.Itoa(q.Timeframe))
	if q.Day != 0 {
		params.Set("day", strconv.Itoa(q.Day))
	}
	if q.Minute != nil {
		params.Set("minute", strconv.Itoa(*q.Minute))
	}
	reqURL := fmt.Sprintf("%s/bars/%s?%s", s.baseURL, url.PathEscape(q.Symbol), params.Encode())

	raw, status, err := s.get(ctx, reqURL)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", q.Symbol, ErrNotFound)
	case status >= 300:
		return nil, fmt.Errorf("bars service %s: status %d: %s", q.Symbol, status, truncate(raw, 200))
	}

	var wire []wireBar
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decode bars: %w", err)
	}
	out := make([]model.Bar, 0, len(wire))
	for i, w := range wire {
		ts, err := ParseTimestamp(string(w.Timestamp))
		if err != nil {
			return nil, fmt.Errorf("bar %d: %w", i, err)
		}
		out = append(out, model.Bar{TS: ts, Open: w.Open, High: w.High, Low: w.Low, Close: w.Close, Volume: w.Volume})
	}
	return out, nil
}

// Ping checks {base}/health.
func (s *HTTPSource) Ping(ctx context.Context) error {
	_, status, err := s.get(ctx, s.baseURL+"/health")
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("bars service health: status %d", status)
	}
	return nil
}

// Close releases idle connections.
func (s *HTTPSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *HTTPSource) get(ctx context.Context, reqURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("bars service request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read bars response: %w", err)
	}
	return raw, resp.StatusCode, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
