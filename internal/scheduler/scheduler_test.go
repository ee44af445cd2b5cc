package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/fluxscan/internal/storage"
	"github.com/wonny/fluxscan/pkg/logger"
)

type testJob struct {
	name     string
	schedule string
	fails    int32 // failures before succeeding
	calls    atomic.Int32
	block    chan struct{}
}

func (j *testJob) Name() string     { return j.name }
func (j *testJob) Schedule() string { return j.schedule }
func (j *testJob) Run(ctx context.Context) error {
	n := j.calls.Add(1)
	if j.block != nil {
		<-j.block
	}
	if n <= j.fails {
		return errors.New("boom")
	}
	return nil
}

func TestAddAndRemoveJob(t *testing.T) {
	s := New(logger.Nop())

	require.NoError(t, s.AddJob(&testJob{name: "b", schedule: "0 */5 * * * *"}))
	require.NoError(t, s.AddJob(&testJob{name: "a", schedule: "@hourly"}))
	assert.Error(t, s.AddJob(&testJob{name: "a", schedule: "@hourly"}), "duplicate name")
	assert.Error(t, s.AddJob(&testJob{name: "c", schedule: "not a schedule"}))

	assert.Equal(t, []string{"a", "b"}, s.GetAllJobs())

	require.NoError(t, s.RemoveJob("a"))
	assert.Error(t, s.RemoveJob("a"))
	assert.Equal(t, []string{"b"}, s.GetAllJobs())
}

func TestRunJobRetries(t *testing.T) {
	s := New(logger.Nop(), WithRetry(2, time.Millisecond))
	job := &testJob{name: "flaky", schedule: "@daily", fails: 2}
	require.NoError(t, s.AddJob(job))

	res, err := s.RunJob("flaky")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int32(3), job.calls.Load())

	job.calls.Store(0)
	job.fails = 10
	res, err = s.RunJob("flaky")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "boom", res.Error)

	h, err := s.GetJobHistory("flaky")
	require.NoError(t, err)
	assert.Len(t, h.Results, 2)
	assert.InDelta(t, 0.5, h.GetSuccessRate(), 1e-9)

	stats := s.GetJobStats()["flaky"]
	assert.Equal(t, 2, stats.TotalRuns)
	assert.Equal(t, 1, stats.FailureCount)
	assert.NotNil(t, stats.LastFailure)
	assert.Nil(t, stats.LastSuccess)

	_, err = s.RunJob("missing")
	assert.Error(t, err)
	_, err = s.GetJobHistory("missing")
	assert.Error(t, err)
}

func TestRunJobSkipsOverlap(t *testing.T) {
	s := New(logger.Nop(), WithRetry(0, 0))
	job := &testJob{name: "slow", schedule: "@daily", block: make(chan struct{})}
	require.NoError(t, s.AddJob(job))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.RunJob("slow")
	}()
	require.Eventually(t, func() bool { return job.calls.Load() == 1 }, time.Second, time.Millisecond)

	_, err := s.RunJob("slow")
	assert.ErrorContains(t, err, "already running")

	close(job.block)
	<-done
}

func TestStartStop(t *testing.T) {
	s := New(logger.Nop(), WithLocation(time.UTC))
	require.NoError(t, s.AddJob(&testJob{name: "tick", schedule: "@every 1h"}))
	s.Start()

	stats := s.GetJobStats()["tick"]
	require.NotNil(t, stats.NextRun)
	assert.True(t, stats.NextRun.After(time.Now()))
	s.Stop()
}

func TestJobHistoryBounded(t *testing.T) {
	h := &JobHistory{}
	for i := 0; i < maxHistory+10; i++ {
		h.AddResult(JobResult{Success: i%2 == 0})
	}
	assert.Len(t, h.Results, maxHistory)
	assert.Len(t, h.GetLatestResults(5), 5)
	assert.Empty(t, (&JobHistory{}).GetLatestResults(3))
	assert.Len(t, h.GetFailedResults(), maxHistory/2)
}

func TestCronSpec(t *testing.T) {
	tests := []struct {
		name    string
		in      storage.Schedule
		want    string
		wantErr bool
	}{
		{"interval", storage.Schedule{ScheduleType: storage.ScheduleInterval, IntervalMinutes: 15}, "@every 15m", false},
		{"interval default", storage.Schedule{ScheduleType: storage.ScheduleInterval}, "@every 60m", false},
		{"daily", storage.Schedule{ScheduleType: storage.ScheduleDaily, RunTime: "09:20"}, "20 9 * * *", false},
		{"once", storage.Schedule{ScheduleType: storage.ScheduleOnce, RunTime: "15:00"}, "0 15 * * *", false},
		{"weekly", storage.Schedule{ScheduleType: storage.ScheduleWeekly, RunTime: "10:05", DaysOfWeek: []int{1, 3, 5}}, "5 10 * * 1,3,5", false},
		{"weekly no days", storage.Schedule{ScheduleType: storage.ScheduleWeekly, RunTime: "10:05"}, "", true},
		{"weekly bad day", storage.Schedule{ScheduleType: storage.ScheduleWeekly, RunTime: "10:05", DaysOfWeek: []int{7}}, "", true},
		{"bad time", storage.Schedule{ScheduleType: storage.ScheduleDaily, RunTime: "25:00"}, "", true},
		{"bad format", storage.Schedule{ScheduleType: storage.ScheduleDaily, RunTime: "0930"}, "", true},
		{"unknown type", storage.Schedule{ScheduleType: "hourly"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CronSpec(&tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Error(t, ValidateSchedule(&tt.in))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextRun(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	// Wednesday 2024-05-15 10:00 IST
	now := time.Date(2024, 5, 15, 10, 0, 0, 0, ist)

	daily := &storage.Schedule{ScheduleType: storage.ScheduleDaily, RunTime: "09:30"}
	next, err := NextRun(daily, now, ist)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 16, 9, 30, 0, 0, ist), next.In(ist))

	weekly := &storage.Schedule{ScheduleType: storage.ScheduleWeekly, RunTime: "11:00", DaysOfWeek: []int{1}}
	next, err = NextRun(weekly, now, ist)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 20, 11, 0, 0, 0, ist), next.In(ist))

	interval := &storage.Schedule{ScheduleType: storage.ScheduleInterval, IntervalMinutes: 30}
	next, err = NextRun(interval, now, ist)
	require.NoError(t, err)
	assert.Equal(t, now.Add(30*time.Minute), *next)

	once := &storage.Schedule{ScheduleType: storage.ScheduleOnce, RunTime: "14:00"}
	next, err = NextRun(once, now, ist)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 15, 14, 0, 0, 0, ist), next.In(ist))

	once.LastRun = &now
	next, err = NextRun(once, now, ist)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestMarketHours(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	m := IndianMarketHours(ist)

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"before open", time.Date(2024, 5, 15, 9, 14, 0, 0, ist), false},
		{"at open", time.Date(2024, 5, 15, 9, 15, 0, 0, ist), true},
		{"midday", time.Date(2024, 5, 15, 12, 0, 0, 0, ist), true},
		{"at close", time.Date(2024, 5, 15, 15, 30, 0, 0, ist), true},
		{"after close", time.Date(2024, 5, 15, 15, 31, 0, 0, ist), false},
		{"saturday", time.Date(2024, 5, 18, 11, 0, 0, 0, ist), false},
		{"utc input", time.Date(2024, 5, 15, 5, 0, 0, 0, time.UTC), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.IsOpen(tt.at))
		})
	}
}
