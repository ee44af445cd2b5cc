// Package marketdata fetches OHLCV history from an OpenAlgo server and
// serves it to the scanner engine through a two-layer cache.
package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/fluxscan/internal/scanner"
	"github.com/wonny/fluxscan/pkg/httputil"
	"github.com/wonny/fluxscan/pkg/logger"
)

// ErrInvalidAPIKey is returned when OpenAlgo rejects the configured key.
var ErrInvalidAPIKey = errors.New("invalid openalgo api key")

// APIError is an error reported by the OpenAlgo server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openalgo error (status %d): %s", e.StatusCode, e.Message)
}

// Client talks to the OpenAlgo REST API.
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	apiKey     string
}

// NewClient creates an OpenAlgo client.
func NewClient(httpClient *httputil.Client, host, apiKey string, log *logger.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log.WithField("module", "openalgo"),
		baseURL:    strings.TrimRight(host, "/"),
		apiKey:     apiKey,
	}
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// post sends body to an /api/v1 endpoint and decodes the data field into dest.
func (c *Client) post(ctx context.Context, endpoint string, body map[string]interface{}, dest interface{}) error {
	body["apikey"] = c.apiKey

	resp, err := c.httpClient.PostJSON(ctx, c.baseURL+"/api/v1/"+endpoint, body)
	if err != nil {
		return fmt.Errorf("openalgo %s request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}

	if resp.StatusCode == http.StatusForbidden || strings.Contains(strings.ToLower(env.Message), "invalid openalgo apikey") {
		return ErrInvalidAPIKey
	}
	if resp.StatusCode != http.StatusOK || env.Status != "success" {
		msg := env.Message
		if msg == "" {
			msg = "unknown error"
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if dest == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		return fmt.Errorf("decode openalgo %s data: %w", endpoint, err)
	}
	return nil
}

// Candle is one row of the history endpoint.
type Candle struct {
	Timestamp Timestamp `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// History fetches candles between start and end, both inclusive dates.
func (c *Client) History(ctx context.Context, symbol, exchange, interval string, start, end time.Time) ([]scanner.Bar, error) {
	var candles []Candle
	err := c.post(ctx, "history", map[string]interface{}{
		"symbol":     symbol,
		"exchange":   exchange,
		"interval":   interval,
		"start_date": start.Format("2006-01-02"),
		"end_date":   end.Format("2006-01-02"),
	}, &candles)
	if err != nil {
		return nil, err
	}

	bars := make([]scanner.Bar, len(candles))
	for i, cd := range candles {
		bars[i] = scanner.Bar{
			Time:   cd.Timestamp.Time,
			Open:   cd.Open,
			High:   cd.High,
			Low:    cd.Low,
			Close:  cd.Close,
			Volume: cd.Volume,
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"symbol":   symbol,
		"exchange": exchange,
		"interval": interval,
		"bars":     len(bars),
	}).Debug("Fetched history")
	return bars, nil
}

// Quote is a last-traded snapshot.
type Quote struct {
	LTP       float64 `json:"ltp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	PrevClose float64 `json:"prev_close"`
	Volume    float64 `json:"volume"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
}

// Quote fetches the latest quote for a symbol.
func (c *Client) Quote(ctx context.Context, symbol, exchange string) (*Quote, error) {
	var q Quote
	if err := c.post(ctx, "quotes", map[string]interface{}{"symbol": symbol, "exchange": exchange}, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// Intervals lists the intervals the connected broker supports, grouped by unit.
func (c *Client) Intervals(ctx context.Context) (map[string][]string, error) {
	out := make(map[string][]string)
	if err := c.post(ctx, "intervals", map[string]interface{}{}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Timestamp accepts epoch seconds or a date/time string.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		return nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		// Millisecond epochs are larger than any plausible second epoch.
		if secs > 1e12 {
			secs /= 1000
		}
		t.Time = time.Unix(int64(secs), 0).UTC()
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognised timestamp %q", s)
}
