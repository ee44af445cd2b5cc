package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/wonny/fluxscan/internal/scheduler"
	"github.com/wonny/fluxscan/internal/storage"
	"github.com/wonny/fluxscan/pkg/logger"
)

// ScheduleStore persists scan schedules.
type ScheduleStore interface {
	Create(ctx context.Context, s *storage.Schedule) error
	Get(ctx context.Context, id int64) (*storage.Schedule, error)
	List(ctx context.Context, activeOnly bool) ([]*storage.Schedule, error)
	SetActive(ctx context.Context, id int64, active bool) error
	Reschedule(ctx context.Context, id int64, next *time.Time) error
}

// ScheduleHandler serves scan schedules.
type ScheduleHandler struct {
	store    ScheduleStore
	location *time.Location
	logger   *logger.Logger
	now      func() time.Time
}

// NewScheduleHandler creates a new schedule handler. Run times are read in loc.
func NewScheduleHandler(store ScheduleStore, loc *time.Location, log *logger.Logger) *ScheduleHandler {
	return &ScheduleHandler{
		store:    store,
		location: loc,
		logger:   log.WithField("handler", "schedule"),
		now:      time.Now,
	}
}

// ScheduleRequest is the body of a create call.
type ScheduleRequest struct {
	ScannerID       int64                  `json:"scanner_id"`
	WatchlistID     int64                  `json:"watchlist_id"`
	ScheduleType    string                 `json:"schedule_type"`
	IntervalMinutes int                    `json:"interval_minutes"`
	RunTime         string                 `json:"run_time"`
	DaysOfWeek      []int                  `json:"days_of_week"`
	Parameters      map[string]interface{} `json:"parameters"`
	MarketHoursOnly *bool                  `json:"market_hours_only"`
}

// List returns schedules. ?active=true limits to active ones.
// GET /api/schedules
func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.List(r.Context(), r.URL.Query().Get("active") == "true")
	if err != nil {
		h.logger.WithError(err).Error("Failed to list schedules")
		respondErr(w, err)
		return
	}
	if list == nil {
		list = []*storage.Schedule{}
	}
	respondData(w, http.StatusOK, list)
}

// Create stores a schedule with its first run planned.
// POST /api/schedules
func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ScannerID <= 0 || req.WatchlistID <= 0 {
		respondError(w, http.StatusBadRequest, "scanner_id and watchlist_id are required")
		return
	}

	s := &storage.Schedule{
		ScannerID:       req.ScannerID,
		WatchlistID:     req.WatchlistID,
		ScheduleType:    req.ScheduleType,
		IntervalMinutes: req.IntervalMinutes,
		RunTime:         req.RunTime,
		DaysOfWeek:      req.DaysOfWeek,
		Parameters:      req.Parameters,
		IsActive:        true,
		MarketHoursOnly: req.MarketHoursOnly == nil || *req.MarketHoursOnly,
	}
	next, err := scheduler.NextRun(s, h.now(), h.location)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.NextRun = next

	if err := h.store.Create(r.Context(), s); err != nil {
		h.logger.WithError(err).Error("Failed to create schedule")
		respondErr(w, err)
		return
	}
	respondData(w, http.StatusCreated, s)
}

// Toggle flips a schedule between active and paused. Re-activating plans
// the next run from now.
// POST /api/schedules/{id}/toggle
func (h *ScheduleHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid schedule id")
		return
	}
	ctx := r.Context()
	s, err := h.store.Get(ctx, id)
	if err != nil {
		respondErr(w, err)
		return
	}

	s.IsActive = !s.IsActive
	if err := h.store.SetActive(ctx, id, s.IsActive); err != nil {
		respondErr(w, err)
		return
	}
	if s.IsActive {
		next, err := scheduler.NextRun(s, h.now(), h.location)
		if err == nil {
			if err := h.store.Reschedule(ctx, id, next); err != nil {
				respondErr(w, err)
				return
			}
			s.NextRun = next
		}
	}
	respondData(w, http.StatusOK, s)
}
