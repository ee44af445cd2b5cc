package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/fluxscan/pkg/logger"
)

// Sweeper drops expired cache entries and returns how many went.
type Sweeper interface {
	Sweep() int
}

// CacheCleanupJob evicts stale market series from the in-memory cache.
type CacheCleanupJob struct {
	cache  Sweeper
	logger *logger.Logger
}

// NewCacheCleanupJob creates a new cache cleanup job
func NewCacheCleanupJob(cache Sweeper, log *logger.Logger) *CacheCleanupJob {
	return &CacheCleanupJob{
		cache:  cache,
		logger: log.WithField("job", "cache_cleanup"),
	}
}

// Name returns the job name
func (j *CacheCleanupJob) Name() string {
	return "cache_cleanup"
}

// Schedule returns the cron schedule (every 5 minutes)
func (j *CacheCleanupJob) Schedule() string {
	return "0 */5 * * * *"
}

// Run executes the cache cleanup
func (j *CacheCleanupJob) Run(ctx context.Context) error {
	if count := j.cache.Sweep(); count > 0 {
		j.logger.WithField("removed", count).Info("Cache cleanup completed")
	}
	return nil
}

// ResultPruner deletes scan results older than a number of days.
type ResultPruner interface {
	CleanupOlderThan(ctx context.Context, days int) (int64, error)
}

// ResultCleanupJob enforces the scan result retention window.
type ResultCleanupJob struct {
	results       ResultPruner
	retentionDays int
	logger        *logger.Logger
}

// NewResultCleanupJob creates a ResultCleanupJob. Retention below one day
// is raised to one.
func NewResultCleanupJob(results ResultPruner, retentionDays int, log *logger.Logger) *ResultCleanupJob {
	if retentionDays < 1 {
		retentionDays = 1
	}
	return &ResultCleanupJob{
		results:       results,
		retentionDays: retentionDays,
		logger:        log.WithField("job", "result_cleanup"),
	}
}

// Name returns the job name
func (j *ResultCleanupJob) Name() string {
	return "result_cleanup"
}

// Schedule returns the cron schedule (daily at 02:00)
func (j *ResultCleanupJob) Schedule() string {
	return "0 0 2 * * *"
}

// Run deletes expired results.
func (j *ResultCleanupJob) Run(ctx context.Context) error {
	n, err := j.results.CleanupOlderThan(ctx, j.retentionDays)
	if err != nil {
		return fmt.Errorf("cleanup results: %w", err)
	}
	j.logger.WithFields(map[string]interface{}{
		"removed":        n,
		"retention_days": j.retentionDays,
	}).Info("Result cleanup completed")
	return nil
}
