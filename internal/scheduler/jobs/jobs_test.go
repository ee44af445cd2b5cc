package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/fluxscan/internal/service"
	"github.com/wonny/fluxscan/internal/storage"
	"github.com/wonny/fluxscan/pkg/logger"
)

var ist = time.FixedZone("IST", 5*3600+1800)

type fakeSchedules struct {
	mu          sync.Mutex
	list        []*storage.Schedule
	executed    map[int64]*time.Time
	rescheduled map[int64]*time.Time
}

func newFakeSchedules(list ...*storage.Schedule) *fakeSchedules {
	return &fakeSchedules{
		list:        list,
		executed:    make(map[int64]*time.Time),
		rescheduled: make(map[int64]*time.Time),
	}
}

func (f *fakeSchedules) List(_ context.Context, _ bool) ([]*storage.Schedule, error) {
	return f.list, nil
}

func (f *fakeSchedules) MarkExecuted(_ context.Context, id int64, _ time.Time, next *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed[id] = next
	return nil
}

func (f *fakeSchedules) Reschedule(_ context.Context, id int64, next *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rescheduled[id] = next
	return nil
}

type fakeRunner struct {
	requests []service.StartRequest
	err      error
}

func (r *fakeRunner) Run(_ context.Context, req service.StartRequest) (service.RunStatus, error) {
	r.requests = append(r.requests, req)
	if r.err != nil {
		return service.RunStatus{}, r.err
	}
	return service.RunStatus{ScanID: "scan_1", Status: storage.HistoryCompleted}, nil
}

func at(hour, minute int) *time.Time {
	t := time.Date(2024, 5, 15, hour, minute, 0, 0, ist) // Wednesday
	return &t
}

func TestScheduledScanJob(t *testing.T) {
	now := *at(11, 0)

	due := &storage.Schedule{ID: 1, ScannerID: 10, WatchlistID: 20, ScheduleType: storage.ScheduleInterval,
		IntervalMinutes: 15, MarketHoursOnly: true, NextRun: at(10, 59),
		Parameters: map[string]interface{}{"period": 14}}
	future := &storage.Schedule{ID: 2, ScannerID: 11, WatchlistID: 20, ScheduleType: storage.ScheduleDaily,
		RunTime: "15:00", NextRun: at(15, 0)}
	unplanned := &storage.Schedule{ID: 3, ScannerID: 12, WatchlistID: 20, ScheduleType: storage.ScheduleDaily,
		RunTime: "15:00"}
	once := &storage.Schedule{ID: 4, ScannerID: 13, WatchlistID: 21, ScheduleType: storage.ScheduleOnce,
		RunTime: "10:30", NextRun: at(10, 30)}

	store := newFakeSchedules(due, future, unplanned, once)
	runner := &fakeRunner{}
	job := NewScheduledScanJob(store, runner, ist, logger.Nop())
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))

	require.Len(t, runner.requests, 2)
	assert.Equal(t, service.StartRequest{ScannerID: 10, WatchlistID: 20,
		Parameters: map[string]interface{}{"period": 14}}, runner.requests[0])
	assert.Equal(t, int64(13), runner.requests[1].ScannerID)

	assert.Equal(t, now.Add(15*time.Minute), *store.executed[1])
	assert.Contains(t, store.executed, int64(4))
	assert.Nil(t, store.executed[4], "one-shot schedules retire")
	assert.NotContains(t, store.executed, int64(2))

	require.Contains(t, store.rescheduled, int64(3))
	assert.Equal(t, at(15, 0).Unix(), store.rescheduled[3].Unix())
}

func TestScheduledScanJobMarketHours(t *testing.T) {
	evening := *at(18, 0)
	s := &storage.Schedule{ID: 1, ScheduleType: storage.ScheduleInterval, IntervalMinutes: 60,
		MarketHoursOnly: true, NextRun: at(17, 59)}
	store := newFakeSchedules(s)
	runner := &fakeRunner{}
	job := NewScheduledScanJob(store, runner, ist, logger.Nop())
	job.now = func() time.Time { return evening }

	require.NoError(t, job.Run(context.Background()))
	assert.Empty(t, runner.requests)
	assert.Equal(t, evening.Add(time.Hour), *store.rescheduled[1])
	assert.Empty(t, store.executed)
}

func TestScheduledScanJobErrors(t *testing.T) {
	now := *at(11, 0)
	store := newFakeSchedules(
		&storage.Schedule{ID: 1, ScheduleType: storage.ScheduleInterval, NextRun: at(10, 0)},
		&storage.Schedule{ID: 2, ScheduleType: "bogus", NextRun: at(10, 0)},
	)
	runner := &fakeRunner{err: storage.ErrNotFound}
	job := NewScheduledScanJob(store, runner, ist, logger.Nop())
	job.now = func() time.Time { return now }

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorContains(t, err, "schedule 2")
	assert.Len(t, runner.requests, 1, "invalid schedules never run")
	assert.Contains(t, store.executed, int64(1), "failed runs still advance the schedule")
}

type countingSweeper struct{ n int }

func (s *countingSweeper) Sweep() int { return s.n }

type fakePruner struct {
	days int
	err  error
}

func (p *fakePruner) CleanupOlderThan(_ context.Context, days int) (int64, error) {
	p.days = days
	return 7, p.err
}

func TestMaintenanceJobs(t *testing.T) {
	cache := NewCacheCleanupJob(&countingSweeper{n: 3}, logger.Nop())
	assert.Equal(t, "cache_cleanup", cache.Name())
	assert.NoError(t, cache.Run(context.Background()))

	pruner := &fakePruner{}
	cleanup := NewResultCleanupJob(pruner, 0, logger.Nop())
	require.NoError(t, cleanup.Run(context.Background()))
	assert.Equal(t, 1, pruner.days)

	pruner.err = errors.New("db down")
	assert.ErrorContains(t, NewResultCleanupJob(pruner, 30, logger.Nop()).Run(context.Background()), "db down")
	assert.Equal(t, 30, pruner.days)
}
