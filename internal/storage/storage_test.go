package storage

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/fluxscan/internal/watchlist"
	"github.com/wonny/fluxscan/pkg/config"
	"github.com/wonny/fluxscan/pkg/database"
)

func TestStatisticsDerive(t *testing.T) {
	tests := []struct {
		name        string
		in          Statistics
		wantRate    float64
		wantAverage float64
	}{
		{"empty", Statistics{}, 0, 0},
		{"all successful", Statistics{TotalScans: 4, SuccessfulScans: 4, TotalSignals: 10}, 100, 2.5},
		{"half failed", Statistics{TotalScans: 4, SuccessfulScans: 2, TotalSignals: 3}, 50, 1.5},
		{"only failures", Statistics{TotalScans: 3}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := tt.in
			st.Derive()
			assert.InDelta(t, tt.wantRate, st.SuccessRate, 1e-9)
			assert.InDelta(t, tt.wantAverage, st.AvgSignalsPerScan, 1e-9)
		})
	}
}

// connect returns a migrated database, skipping when DATABASE_URL is unset.
func connect(t *testing.T) *database.DB {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	db, err := database.New(&config.Config{Database: config.DatabaseConfig{URL: url}})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, Migrate(context.Background(), db))
	return db
}

func uniqueName(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func TestRepositoriesRoundTrip(t *testing.T) {
	db := connect(t)
	ctx := context.Background()

	scanners := NewScannerRepository(db.Pool)
	watchlists := NewWatchlistRepository(db.Pool)
	schedules := NewScheduleRepository(db.Pool)
	history := NewHistoryRepository(db.Pool)
	results := NewResultRepository(db.Pool)

	sc := &Scanner{
		Name:       uniqueName("scanner"),
		Code:       "signal = True",
		Parameters: map[string]interface{}{"period": map[string]interface{}{"type": "int", "default": float64(14)}},
		IsActive:   true,
	}
	require.NoError(t, scanners.Create(ctx, sc))
	t.Cleanup(func() { _ = scanners.Delete(ctx, sc.ID) })
	assert.NotZero(t, sc.ID)
	assert.Equal(t, "custom", sc.Category)

	got, err := scanners.GetByName(ctx, sc.Name)
	require.NoError(t, err)
	assert.Equal(t, sc.Parameters, got.Parameters)

	got.Description = "updated"
	require.NoError(t, scanners.Update(ctx, got))
	again, err := scanners.Get(ctx, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, "updated", again.Description)

	wl := watchlist.New(uniqueName("watchlist"), "", "NSE")
	wl.Add("RELIANCE", "")
	wl.Add("INFY", "BSE")
	require.NoError(t, watchlists.Create(ctx, wl))
	t.Cleanup(func() { _ = watchlists.Delete(ctx, wl.ID) })

	gotWL, err := watchlists.Get(ctx, wl.ID)
	require.NoError(t, err)
	assert.Equal(t, wl.Symbols, gotWL.Symbols)

	sched := &Schedule{
		ScannerID: sc.ID, WatchlistID: wl.ID, ScheduleType: ScheduleWeekly,
		RunTime: "09:30", DaysOfWeek: []int{1, 3, 5}, IsActive: true, MarketHoursOnly: true,
	}
	require.NoError(t, schedules.Create(ctx, sched))
	require.NoError(t, schedules.MarkExecuted(ctx, sched.ID, time.Now(), nil))
	gotSched, err := schedules.Get(ctx, sched.ID)
	require.NoError(t, err)
	assert.False(t, gotSched.IsActive, "nil next run retires the schedule")
	assert.Equal(t, []int{1, 3, 5}, gotSched.DaysOfWeek)
	assert.NotNil(t, gotSched.LastRun)

	hid, err := history.Start(ctx, sc.ID, &wl.ID)
	require.NoError(t, err)
	require.NoError(t, results.SaveBatch(ctx, []Result{
		{ScannerID: sc.ID, HistoryID: &hid, Symbol: "RELIANCE", Exchange: "NSE", Signal: "BUY",
			Metrics: map[string]interface{}{"rsi": 28.5}},
		{ScannerID: sc.ID, HistoryID: &hid, Symbol: "INFY", Exchange: "BSE", Signal: "SELL"},
	}))
	require.NoError(t, history.Finish(ctx, hid, HistoryCompleted, 2, 2, 1500*time.Millisecond, ""))

	h, err := history.Get(ctx, hid)
	require.NoError(t, err)
	assert.Equal(t, HistoryCompleted, h.Status)
	assert.Equal(t, int64(1500), h.ExecutionTimeMs)
	assert.NotNil(t, h.CompletedAt)

	saved, err := results.Recent(ctx, ResultFilter{HistoryID: hid, Signal: "BUY"})
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, 28.5, saved[0].Metrics["rsi"])

	st, err := history.Statistics(ctx, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalScans)
	assert.Equal(t, 2, st.TotalSignals)
	assert.InDelta(t, 100.0, st.SuccessRate, 1e-9)

	_, err = scanners.Get(ctx, -1)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, history.Finish(ctx, -1, HistoryFailed, 0, 0, 0, "x"), ErrNotFound)

	n, err := results.CleanupOlderThan(ctx, 3650)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(0))
}
