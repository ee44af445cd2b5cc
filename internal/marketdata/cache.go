package marketdata

import (
	"sync"
	"time"

	"github.com/wonny/fluxscan/internal/scanner"
	"github.com/wonny/fluxscan/pkg/logger"
)

type cacheEntry struct {
	series   *scanner.Series
	storedAt time.Time
}

// SeriesCache is the in-process TTL layer in front of the provider. It
// stores private copies and hands out copies, so callers never share bars.
type SeriesCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	logger  *logger.Logger
	now     func() time.Time
}

// NewSeriesCache creates a cache whose entries expire after ttl.
func NewSeriesCache(ttl time.Duration, log *logger.Logger) *SeriesCache {
	return &SeriesCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		logger:  log.WithField("module", "series_cache"),
		now:     time.Now,
	}
}

// Put stores a copy of series under key.
func (c *SeriesCache) Put(key string, series *scanner.Series) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{series: series.Clone(), storedAt: c.now()}
}

// Get returns a copy of the cached series when it is still fresh.
func (c *SeriesCache) Get(key string) (*scanner.Series, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || c.now().Sub(entry.storedAt) > c.ttl {
		return nil, false
	}
	return entry.series.Clone(), true
}

// Delete removes one entry.
func (c *SeriesCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// Clear drops every entry.
func (c *SeriesCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]cacheEntry)
	c.logger.Info("Cleared series cache")
}

// Len returns the number of entries, fresh or not.
func (c *SeriesCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// CleanStale removes expired entries and returns how many were dropped.
func (c *SeriesCache) CleanStale() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	count := 0
	for key, entry := range c.entries {
		if now.Sub(entry.storedAt) > c.ttl {
			delete(c.entries, key)
			count++
		}
	}

	if count > 0 {
		c.logger.WithField("count", count).Debug("Cleaned stale series")
	}
	return count
}

// CacheStats describes the cache contents.
type CacheStats struct {
	TotalCount int `json:"total_count"`
	FreshCount int `json:"fresh_count"`
	StaleCount int `json:"stale_count"`
	TotalBars  int `json:"total_bars"`
}

// Stats returns cache statistics
func (c *SeriesCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := CacheStats{TotalCount: len(c.entries)}
	now := c.now()
	for _, entry := range c.entries {
		if now.Sub(entry.storedAt) > c.ttl {
			stats.StaleCount++
		}
		stats.TotalBars += entry.series.Len()
	}
	stats.FreshCount = stats.TotalCount - stats.StaleCount
	return stats
}
