package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/wonny/fluxscan/internal/metrics"
	"github.com/wonny/fluxscan/internal/scanner"
	"github.com/wonny/fluxscan/pkg/logger"
	"github.com/wonny/fluxscan/pkg/redis"
)

// Fetcher loads raw bars for a date window.
type Fetcher interface {
	History(ctx context.Context, symbol, exchange, interval string, start, end time.Time) ([]scanner.Bar, error)
}

// Provider implements scanner.SeriesProvider on top of a Fetcher, checking
// the in-process cache first and the shared Redis cache second.
type Provider struct {
	fetcher Fetcher
	memory  *SeriesCache
	remote  *redis.Cache
	ttl     time.Duration
	logger  *logger.Logger
	now     func() time.Time
}

// NewProvider creates a Provider. remote may be nil.
func NewProvider(fetcher Fetcher, memory *SeriesCache, remote *redis.Cache, ttl time.Duration, log *logger.Logger) *Provider {
	return &Provider{
		fetcher: fetcher,
		memory:  memory,
		remote:  remote,
		ttl:     ttl,
		logger:  log.WithField("module", "marketdata"),
		now:     time.Now,
	}
}

// History returns the series for a symbol. An empty response yields an empty
// series, which the engine skips. Every returned series is a private copy.
func (p *Provider) History(ctx context.Context, symbol, exchange, interval string, lookbackDays int) (*scanner.Series, error) {
	interval = ConvertInterval(interval)
	key := redis.SeriesKey(symbol, exchange, interval, lookbackDays)

	if series, ok := p.memory.Get(key); ok {
		metrics.SeriesCacheTotal.WithLabelValues("memory", "hit").Inc()
		return series, nil
	}
	metrics.SeriesCacheTotal.WithLabelValues("memory", "miss").Inc()

	if p.remote != nil {
		var cached scanner.Series
		found, err := p.remote.Get(ctx, key, &cached)
		if err != nil {
			p.logger.WithError(err).WithField("key", key).Warn("Redis series lookup failed")
		}
		if found && !cached.Empty() {
			metrics.SeriesCacheTotal.WithLabelValues("redis", "hit").Inc()
			p.memory.Put(key, &cached)
			return cached.Clone(), nil
		}
		metrics.SeriesCacheTotal.WithLabelValues("redis", "miss").Inc()
	}

	start, end := dateRange(p.now(), lookbackDays)
	bars, err := p.fetcher.History(ctx, symbol, exchange, interval, start, end)
	if err != nil {
		if errors.Is(err, ErrInvalidAPIKey) {
			p.logger.Error("OpenAlgo rejected the API key, check OPENALGO_API_KEY")
		}
		return nil, err
	}

	series := &scanner.Series{Symbol: symbol, Exchange: exchange, Interval: interval, Bars: bars}
	if series.Empty() {
		return series, nil
	}

	p.memory.Put(key, series)
	if p.remote != nil {
		if err := p.remote.Set(ctx, key, series, p.ttl); err != nil {
			p.logger.WithError(err).WithField("key", key).Warn("Redis series store failed")
		}
	}
	return series.Clone(), nil
}

// Sweep drops expired in-process entries.
func (p *Provider) Sweep() int {
	return p.memory.CleanStale()
}

// Stats reports the in-process cache contents.
func (p *Provider) Stats() CacheStats {
	return p.memory.Stats()
}
