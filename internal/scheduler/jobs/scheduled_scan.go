package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/fluxscan/internal/scheduler"
	"github.com/wonny/fluxscan/internal/service"
	"github.com/wonny/fluxscan/internal/storage"
	"github.com/wonny/fluxscan/pkg/logger"
)

// ScheduleStore is the slice of schedule persistence the dispatcher needs.
type ScheduleStore interface {
	List(ctx context.Context, activeOnly bool) ([]*storage.Schedule, error)
	MarkExecuted(ctx context.Context, id int64, ranAt time.Time, next *time.Time) error
	Reschedule(ctx context.Context, id int64, next *time.Time) error
}

// ScanRunner runs a scan to completion.
type ScanRunner interface {
	Run(ctx context.Context, req service.StartRequest) (service.RunStatus, error)
}

// ScheduledScanJob checks stored schedules every minute and runs the due ones.
type ScheduledScanJob struct {
	schedules ScheduleStore
	runner    ScanRunner
	market    scheduler.MarketHours
	location  *time.Location
	logger    *logger.Logger
	now       func() time.Time
}

// NewScheduledScanJob creates a ScheduledScanJob evaluating run times in loc.
func NewScheduledScanJob(schedules ScheduleStore, runner ScanRunner, loc *time.Location, log *logger.Logger) *ScheduledScanJob {
	return &ScheduledScanJob{
		schedules: schedules,
		runner:    runner,
		market:    scheduler.IndianMarketHours(loc),
		location:  loc,
		logger:    log.WithField("job", "scheduled_scans"),
		now:       time.Now,
	}
}

// Name returns the job name
func (j *ScheduledScanJob) Name() string {
	return "scheduled_scans"
}

// Schedule returns the cron schedule (top of every minute)
func (j *ScheduledScanJob) Schedule() string {
	return "0 * * * * *"
}

// Run executes every due schedule. One failing schedule does not stop the
// others; their errors are joined.
func (j *ScheduledScanJob) Run(ctx context.Context) error {
	list, err := j.schedules.List(ctx, true)
	if err != nil {
		return fmt.Errorf("list schedules: %w", err)
	}

	now := j.now()
	var errs []error
	for _, s := range list {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if err := j.dispatch(ctx, s, now); err != nil {
			errs = append(errs, fmt.Errorf("schedule %d: %w", s.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (j *ScheduledScanJob) dispatch(ctx context.Context, s *storage.Schedule, now time.Time) error {
	log := j.logger.WithField("schedule_id", s.ID)
	if err := scheduler.ValidateSchedule(s); err != nil {
		return err
	}

	// First sighting: plan the first run.
	if s.NextRun == nil {
		next, err := scheduler.NextRun(s, now, j.location)
		if err != nil {
			return err
		}
		return j.schedules.Reschedule(ctx, s.ID, next)
	}
	if s.NextRun.After(now) {
		return nil
	}

	if s.MarketHoursOnly && !j.market.IsOpen(now) {
		next, err := scheduler.NextRun(s, now, j.location)
		if err != nil {
			return err
		}
		log.Debug("Outside market hours, skipping scheduled scan")
		return j.schedules.Reschedule(ctx, s.ID, next)
	}

	st, runErr := j.runner.Run(ctx, service.StartRequest{
		ScannerID:   s.ScannerID,
		WatchlistID: s.WatchlistID,
		Parameters:  s.Parameters,
	})

	ranAt := now
	s.LastRun = &ranAt
	next, err := scheduler.NextRun(s, now, j.location)
	if err != nil {
		return err
	}
	if err := j.schedules.MarkExecuted(ctx, s.ID, ranAt, next); err != nil {
		return err
	}

	if runErr != nil {
		return fmt.Errorf("run scan: %w", runErr)
	}
	log.WithFields(map[string]interface{}{
		"scan_id":       st.ScanID,
		"status":        st.Status,
		"signals_found": st.SignalsFound,
	}).Info("Scheduled scan finished")
	return nil
}
