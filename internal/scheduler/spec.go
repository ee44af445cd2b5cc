package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wonny/fluxscan/internal/storage"
)

// DefaultIntervalMinutes applies to interval schedules without a period.
const DefaultIntervalMinutes = 60

// specParser reads the five-field expressions produced by CronSpec.
var specParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// parseRunTime parses HH:MM.
func parseRunTime(v string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(v), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("run time %q: want HH:MM", v)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("run time %q: bad hour", v)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("run time %q: bad minute", v)
	}
	return hour, minute, nil
}

// CronSpec maps a stored schedule onto a five-field cron expression.
// Once schedules use the daily form; NextRun retires them after one run.
func CronSpec(s *storage.Schedule) (string, error) {
	switch s.ScheduleType {
	case storage.ScheduleInterval:
		minutes := s.IntervalMinutes
		if minutes <= 0 {
			minutes = DefaultIntervalMinutes
		}
		return fmt.Sprintf("@every %dm", minutes), nil

	case storage.ScheduleDaily, storage.ScheduleOnce:
		hour, minute, err := parseRunTime(s.RunTime)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d %d * * *", minute, hour), nil

	case storage.ScheduleWeekly:
		hour, minute, err := parseRunTime(s.RunTime)
		if err != nil {
			return "", err
		}
		if len(s.DaysOfWeek) == 0 {
			return "", fmt.Errorf("weekly schedule needs at least one day")
		}
		days := make([]string, len(s.DaysOfWeek))
		for i, d := range s.DaysOfWeek {
			if d < 0 || d > 6 {
				return "", fmt.Errorf("day of week %d out of range 0-6", d)
			}
			days[i] = strconv.Itoa(d)
		}
		return fmt.Sprintf("%d %d * * %s", minute, hour, strings.Join(days, ",")), nil
	}
	return "", fmt.Errorf("unknown schedule type %q", s.ScheduleType)
}

// NextRun returns the first run strictly after 'after', evaluated in loc.
// A once schedule that has already run yields nil.
func NextRun(s *storage.Schedule, after time.Time, loc *time.Location) (*time.Time, error) {
	if s.ScheduleType == storage.ScheduleOnce && s.LastRun != nil {
		return nil, nil
	}
	spec, err := CronSpec(s)
	if err != nil {
		return nil, err
	}
	sched, err := specParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", spec, err)
	}
	if loc == nil {
		loc = time.Local
	}
	next := sched.Next(after.In(loc))
	if next.IsZero() {
		return nil, nil
	}
	return &next, nil
}

// ValidateSchedule checks a schedule can be turned into a cron spec.
func ValidateSchedule(s *storage.Schedule) error {
	_, err := CronSpec(s)
	return err
}
