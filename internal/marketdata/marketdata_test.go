package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/fluxscan/internal/scanner"
	"github.com/wonny/fluxscan/pkg/config"
	"github.com/wonny/fluxscan/pkg/httputil"
	"github.com/wonny/fluxscan/pkg/logger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	httpClient := httputil.New(&config.Config{}, logger.Nop()).DisableRetry()
	return NewClient(httpClient, server.URL+"/", "secret", logger.Nop())
}

func TestClientHistory(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/history", r.URL.Path)

		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "secret", body["apikey"])
		assert.Equal(t, "RELIANCE", body["symbol"])
		assert.Equal(t, "NSE", body["exchange"])
		assert.Equal(t, "D", body["interval"])
		assert.Equal(t, "2024-01-01", body["start_date"])
		assert.Equal(t, "2024-04-10", body["end_date"])

		_, _ = w.Write([]byte(`{"status":"success","data":[
			{"timestamp":1704067200,"open":10,"high":12,"low":9,"close":11,"volume":1000},
			{"timestamp":"2024-01-02","open":11,"high":13,"low":10,"close":12,"volume":2000}
		]}`))
	})

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars, err := client.History(context.Background(), "RELIANCE", "NSE", "D", start, start.AddDate(0, 0, 100))
	require.NoError(t, err)
	require.Len(t, bars, 2)

	assert.Equal(t, start, bars[0].Time)
	assert.Equal(t, 11.0, bars[0].Close)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), bars[1].Time)
	assert.Equal(t, 2000.0, bars[1].Volume)
}

func TestClientErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "invalid key",
			status: http.StatusForbidden,
			body:   `{"status":"error","message":"Invalid openalgo apikey"}`,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrInvalidAPIKey)
			},
		},
		{
			name:   "api error",
			status: http.StatusBadRequest,
			body:   `{"status":"error","message":"symbol not found"}`,
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.True(t, errors.As(err, &apiErr))
				assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
				assert.Equal(t, "symbol not found", apiErr.Message)
			},
		},
		{
			name:   "not json",
			status: http.StatusBadGateway,
			body:   "upstream down",
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "upstream down")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := client.History(context.Background(), "X", "NSE", "D", time.Now(), time.Now())
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestClientQuoteAndIntervals(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/quotes":
			_, _ = w.Write([]byte(`{"status":"success","data":{"ltp":101.5,"prev_close":100,"volume":5000}}`))
		case "/api/v1/intervals":
			_, _ = w.Write([]byte(`{"status":"success","data":{"minutes":["1m","5m"],"days":["D"]}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	q, err := client.Quote(context.Background(), "TCS", "NSE")
	require.NoError(t, err)
	assert.Equal(t, 101.5, q.LTP)
	assert.Equal(t, 100.0, q.PrevClose)

	iv, err := client.Intervals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"1m", "5m"}, iv["minutes"])
}

func TestConvertInterval(t *testing.T) {
	for _, in := range []string{"1m", "3m", "5m", "10m", "15m", "30m", "1h", "D", "W", "M"} {
		assert.Equal(t, in, ConvertInterval(in))
	}
	assert.Equal(t, "D", ConvertInterval("2h"))
	assert.Equal(t, "D", ConvertInterval(""))
	assert.Contains(t, DefaultIntervals()["hours"], "1h")
}

type countingFetcher struct {
	calls atomic.Int32
	bars  []scanner.Bar
	err   error
	last  struct {
		interval   string
		start, end time.Time
	}
}

func (f *countingFetcher) History(_ context.Context, _, _, interval string, start, end time.Time) ([]scanner.Bar, error) {
	f.calls.Add(1)
	f.last.interval = interval
	f.last.start, f.last.end = start, end
	if f.err != nil {
		return nil, f.err
	}
	out := make([]scanner.Bar, len(f.bars))
	copy(out, f.bars)
	return out, nil
}

func testBars(n int) []scanner.Bar {
	bars := make([]scanner.Bar, n)
	for i := range bars {
		bars[i] = scanner.Bar{Close: float64(100 + i), Volume: 1000}
	}
	return bars
}

func TestProviderCachesAndCopies(t *testing.T) {
	fetcher := &countingFetcher{bars: testBars(3)}
	provider := NewProvider(fetcher, NewSeriesCache(5*time.Minute, logger.Nop()), nil, 5*time.Minute, logger.Nop())
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	provider.now = func() time.Time { return now }

	first, err := provider.History(context.Background(), "INFY", "NSE", "2h", 30)
	require.NoError(t, err)
	assert.Equal(t, "D", first.Interval)
	assert.Equal(t, "D", fetcher.last.interval)
	assert.Equal(t, now.AddDate(0, 0, -30), fetcher.last.start)
	assert.Equal(t, now, fetcher.last.end)

	first.Bars[0].Close = -1

	second, err := provider.History(context.Background(), "INFY", "NSE", "D", 30)
	require.NoError(t, err)
	assert.Equal(t, int32(1), fetcher.calls.Load())
	assert.Equal(t, 100.0, second.Bars[0].Close)

	// A different lookback is a different key.
	_, err = provider.History(context.Background(), "INFY", "NSE", "D", 60)
	require.NoError(t, err)
	assert.Equal(t, int32(2), fetcher.calls.Load())
	assert.Equal(t, 2, provider.Stats().TotalCount)
}

func TestProviderEmptyAndErrors(t *testing.T) {
	fetcher := &countingFetcher{}
	provider := NewProvider(fetcher, NewSeriesCache(time.Minute, logger.Nop()), nil, time.Minute, logger.Nop())

	series, err := provider.History(context.Background(), "NONE", "NSE", "D", 10)
	require.NoError(t, err)
	assert.True(t, series.Empty())

	// Empty responses are not cached.
	_, _ = provider.History(context.Background(), "NONE", "NSE", "D", 10)
	assert.Equal(t, int32(2), fetcher.calls.Load())

	fetcher.err = ErrInvalidAPIKey
	_, err = provider.History(context.Background(), "BAD", "NSE", "D", 10)
	assert.ErrorIs(t, err, ErrInvalidAPIKey)
}

func TestSeriesCacheExpiry(t *testing.T) {
	cache := NewSeriesCache(time.Minute, logger.Nop())
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cache.Put("a", &scanner.Series{Symbol: "A", Bars: testBars(2)})
	cache.Put("b", &scanner.Series{Symbol: "B", Bars: testBars(3)})

	got, ok := cache.Get("a")
	require.True(t, ok)
	assert.Equal(t, "A", got.Symbol)
	assert.Equal(t, CacheStats{TotalCount: 2, FreshCount: 2, TotalBars: 5}, cache.Stats())

	now = now.Add(2 * time.Minute)
	_, ok = cache.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 2, cache.Stats().StaleCount)

	assert.Equal(t, 2, cache.CleanStale())
	assert.Zero(t, cache.Len())

	cache.Put("c", &scanner.Series{})
	cache.Delete("c")
	assert.Zero(t, cache.Len())
	cache.Put("d", &scanner.Series{})
	cache.Clear()
	assert.Zero(t, cache.Len())
}
