package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/fluxscan/internal/scanner"
	"github.com/wonny/fluxscan/internal/storage"
	"github.com/wonny/fluxscan/internal/watchlist"
	"github.com/wonny/fluxscan/pkg/logger"
)

const thresholdCode = `
signal = close[-1] > params["threshold"]
metrics = {"close": close[-1]}
`

var thresholdSchema = map[string]interface{}{
	"threshold": map[string]interface{}{"type": "int", "default": float64(120), "min": float64(0)},
}

func TestScannerServiceCreateValidates(t *testing.T) {
	f := newFixture(risingProvider(30))
	ctx := context.Background()

	bad := &storage.Scanner{Name: "bad", Code: "import os\nsignal = True"}
	err := f.service.Create(ctx, bad)
	var verr *scanner.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), "scanner validation failed")
	assert.Zero(t, bad.ID)

	noName := &storage.Scanner{Code: "signal = True"}
	require.ErrorAs(t, f.service.Create(ctx, noName), &verr)
	assert.Contains(t, verr.Errors, "name is required")

	badSchema := &storage.Scanner{Name: "schema", Code: "signal = True",
		Parameters: map[string]interface{}{"p": map[string]interface{}{"default": 1, "min": "low"}}}
	assert.ErrorAs(t, f.service.Create(ctx, badSchema), &verr)

	good := &storage.Scanner{Name: " threshold ", Code: thresholdCode, Parameters: thresholdSchema}
	require.NoError(t, f.service.Create(ctx, good))
	assert.Equal(t, "threshold", good.Name)
	assert.NotZero(t, good.ID)

	dup := &storage.Scanner{Name: "threshold", Code: "signal = False"}
	assert.ErrorIs(t, f.service.Create(ctx, dup), ErrNameTaken)
}

func TestScannerServiceUpdate(t *testing.T) {
	f := newFixture(risingProvider(30))
	ctx := context.Background()

	a := &storage.Scanner{Name: "a", Code: "signal = True"}
	b := &storage.Scanner{Name: "b", Code: "signal = True"}
	require.NoError(t, f.service.Create(ctx, a))
	require.NoError(t, f.service.Create(ctx, b))

	a.Code = "signal = eval('1')"
	var verr *scanner.ValidationError
	assert.ErrorAs(t, f.service.Update(ctx, a), &verr)

	a.Code = "signal = False"
	a.Name = "b"
	assert.ErrorIs(t, f.service.Update(ctx, a), ErrNameTaken)

	a.Name = "a"
	require.NoError(t, f.service.Update(ctx, a))
	got, err := f.service.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "signal = False", got.Code)
}

func TestScannerServiceClone(t *testing.T) {
	f := newFixture(risingProvider(30))
	ctx := context.Background()

	src := &storage.Scanner{Name: "breakout", Code: thresholdCode, Parameters: thresholdSchema, Category: "momentum"}
	require.NoError(t, f.service.Create(ctx, src))

	clone, err := f.service.Clone(ctx, src.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "breakout (Copy)", clone.Name)
	assert.Equal(t, "Clone of breakout", clone.Description)
	assert.Equal(t, src.Code, clone.Code)
	assert.Equal(t, "momentum", clone.Category)
	assert.Equal(t, src.Parameters, clone.Parameters)
	assert.NotEqual(t, src.ID, clone.ID)

	_, err = f.service.Clone(ctx, src.ID, "breakout (Copy)")
	assert.ErrorIs(t, err, ErrNameTaken)

	_, err = f.service.Clone(ctx, 999, "")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestScannerServiceTest(t *testing.T) {
	f := newFixture(risingProvider(30, "TCS"))

	res, err := f.service.Test(context.Background(), TestRequest{Code: thresholdCode, Parameters: thresholdSchema})
	require.NoError(t, err)
	assert.Equal(t, scanner.StatusCompleted, res.Status)
	assert.Equal(t, 3, res.TotalScanned)
	assert.Equal(t, 2, res.SignalsFound)
	assert.Equal(t, []string{"RELIANCE", "INFY"}, []string{res.Results[0].Symbol, res.Results[1].Symbol})
	assert.Equal(t, "NSE", res.Results[0].Exchange)
	assert.Equal(t, 129.0, res.Results[0].Metrics["close"])

	res, err = f.service.Test(context.Background(), TestRequest{
		Code:       thresholdCode,
		Parameters: thresholdSchema,
		Overrides:  map[string]interface{}{"threshold": 500},
		Symbols:    []string{"sbin"},
		Exchange:   "BSE",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalScanned)
	assert.Empty(t, res.Results)

	_, err = f.service.Test(context.Background(), TestRequest{
		Code:       thresholdCode,
		Parameters: thresholdSchema,
		Overrides:  map[string]interface{}{"threshold": -5},
	})
	var verr *scanner.ValidationError
	assert.ErrorAs(t, err, &verr)

	res, err = f.service.Test(context.Background(), TestRequest{Code: "import os"})
	require.NoError(t, err)
	assert.Equal(t, scanner.StatusValidationError, res.Status)
	assert.Zero(t, res.TotalScanned)
}

func TestScannerServiceStatistics(t *testing.T) {
	f := newFixture(risingProvider(30))
	ctx := context.Background()

	sc := &storage.Scanner{Name: "s", Code: "signal = True"}
	require.NoError(t, f.service.Create(ctx, sc))

	for _, tc := range []struct {
		status  string
		signals int
	}{{storage.HistoryCompleted, 4}, {storage.HistoryCompleted, 2}, {storage.HistoryFailed, 0}} {
		id, err := f.history.Start(ctx, sc.ID, nil)
		require.NoError(t, err)
		require.NoError(t, f.history.Finish(ctx, id, tc.status, 5, tc.signals, time.Second, ""))
	}

	st, err := f.service.Statistics(ctx, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, st.TotalScans)
	assert.Equal(t, 2, st.SuccessfulScans)
	assert.Equal(t, 6, st.TotalSignals)
	assert.InDelta(t, 66.666, st.SuccessRate, 0.01)
	assert.InDelta(t, 3.0, st.AvgSignalsPerScan, 1e-9)
	assert.NotNil(t, st.LastRun)

	_, err = f.service.Statistics(ctx, 42)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Publish(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) ofType(typ string) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, ev := range l.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func seed(t *testing.T, f *fixture, symbols ...string) (*storage.Scanner, *watchlist.Watchlist) {
	t.Helper()
	ctx := context.Background()
	sc := &storage.Scanner{Name: "threshold", Code: thresholdCode, Parameters: thresholdSchema}
	require.NoError(t, f.service.Create(ctx, sc))

	wl := watchlist.New("core", "", "BSE")
	for _, s := range symbols {
		wl.Add(s, "")
	}
	require.NoError(t, f.watchlists.Create(ctx, wl))
	return sc, wl
}

func TestRunRegistryLifecycle(t *testing.T) {
	f := newFixture(risingProvider(30, "TCS"))
	events := &eventLog{}
	reg := NewRunRegistry(f.service, f.watchlists, f.history, f.results, events, logger.Nop())
	sc, wl := seed(t, f, "RELIANCE", "TCS", "INFY")
	ctx := context.Background()

	started, err := reg.Start(ctx, StartRequest{ScannerID: sc.ID, WatchlistID: wl.ID})
	require.NoError(t, err)
	assert.Equal(t, "scan_1", started.ScanID)
	assert.Equal(t, 3, started.TotalSymbols)
	assert.True(t, started.IsRunning)

	final, err := reg.Wait(ctx, started.ScanID)
	require.NoError(t, err)
	assert.Equal(t, storage.HistoryCompleted, final.Status)
	assert.False(t, final.IsRunning)
	assert.Equal(t, 100.0, final.Progress)
	assert.Equal(t, 3, final.SymbolsScanned)
	assert.Equal(t, 2, final.SignalsFound)

	h, err := f.history.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, storage.HistoryCompleted, h.Status)
	assert.Equal(t, wl.ID, *h.WatchlistID)

	saved := f.savedResults()
	require.Len(t, saved, 2)
	for _, r := range saved {
		assert.Equal(t, sc.ID, r.ScannerID)
		assert.Equal(t, int64(1), *r.HistoryID)
		assert.Equal(t, "BSE", r.Exchange, "watchlist exchange applies")
	}

	progress := events.ofType(EventProgress)
	require.Len(t, progress, 3)
	assert.Equal(t, 100.0, progress[2].Progress)
	complete := events.ofType(EventComplete)
	require.Len(t, complete, 1)
	assert.Equal(t, Event{
		Type: EventComplete, ScanID: "scan_1", Status: storage.HistoryCompleted,
		Progress: 100, TotalScanned: 3, SignalsFound: 2,
	}, complete[0])

	assert.False(t, reg.Cancel(started.ScanID), "finished scans cannot be cancelled")
	assert.Empty(t, reg.Active())
}

func TestRunRegistrySymbolErrors(t *testing.T) {
	inner := risingProvider(30)
	provider := scanner.ProviderFunc(func(ctx context.Context, symbol, exchange, interval string, days int) (*scanner.Series, error) {
		if symbol == "BAD" {
			return nil, errors.New("upstream timeout")
		}
		return inner.History(ctx, symbol, exchange, interval, days)
	})

	f := newFixture(provider)
	events := &eventLog{}
	reg := NewRunRegistry(f.service, f.watchlists, f.history, f.results, events, logger.Nop())
	sc, wl := seed(t, f, "RELIANCE", "BAD")
	ctx := context.Background()

	final, err := reg.Run(ctx, StartRequest{ScannerID: sc.ID, WatchlistID: wl.ID})
	require.NoError(t, err)
	assert.Equal(t, storage.HistoryCompleted, final.Status)
	assert.Equal(t, 1, final.SignalsFound)
	require.Len(t, final.SymbolErrors, 1)
	assert.Equal(t, "BAD", final.SymbolErrors[0].Symbol)
	assert.Contains(t, final.SymbolErrors[0].Message, "upstream timeout")

	complete := events.ofType(EventComplete)
	require.Len(t, complete, 1)
	assert.Equal(t, 1, complete[0].ErrorCount)
	assert.Equal(t, final.SymbolErrors, complete[0].SymbolErrors)
}

func TestRunRegistrySetupErrors(t *testing.T) {
	f := newFixture(risingProvider(30))
	reg := NewRunRegistry(f.service, f.watchlists, f.history, f.results, nil, logger.Nop())
	sc, wl := seed(t, f, "RELIANCE")
	ctx := context.Background()

	_, err := reg.Start(ctx, StartRequest{ScannerID: 99, WatchlistID: wl.ID})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = reg.Start(ctx, StartRequest{ScannerID: sc.ID, WatchlistID: 99})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	empty := watchlist.New("empty", "", "NSE")
	require.NoError(t, f.watchlists.Create(ctx, empty))
	_, err = reg.Start(ctx, StartRequest{ScannerID: sc.ID, WatchlistID: empty.ID})
	assert.ErrorIs(t, err, ErrEmptyWatchlist)

	_, err = reg.Start(ctx, StartRequest{ScannerID: sc.ID, WatchlistID: wl.ID,
		Parameters: map[string]interface{}{"threshold": "high"}})
	var verr *scanner.ValidationError
	assert.ErrorAs(t, err, &verr)

	recent, err := f.history.Recent(ctx, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, recent, "no history is recorded for rejected scans")
}

func TestRunRegistryCancel(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	inner := risingProvider(30)
	var once sync.Once
	provider := scanner.ProviderFunc(func(ctx context.Context, symbol, exchange, interval string, days int) (*scanner.Series, error) {
		once.Do(func() {
			close(entered)
			<-release
		})
		return inner.History(ctx, symbol, exchange, interval, days)
	})

	f := newFixture(provider)
	events := &eventLog{}
	reg := NewRunRegistry(f.service, f.watchlists, f.history, f.results, events, logger.Nop())
	sc, wl := seed(t, f, "A", "B", "C")
	ctx := context.Background()

	st, err := reg.Start(ctx, StartRequest{ScannerID: sc.ID, WatchlistID: wl.ID})
	require.NoError(t, err)

	<-entered
	assert.Len(t, reg.Active(), 1)
	assert.True(t, reg.Cancel(st.ScanID))
	close(release)

	final, err := reg.Wait(ctx, st.ScanID)
	require.NoError(t, err)
	assert.Equal(t, storage.HistoryCancelled, final.Status)
	assert.Equal(t, 1, final.SymbolsScanned)

	h, err := f.history.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, storage.HistoryCancelled, h.Status)
	assert.False(t, reg.Cancel("scan_404"))
}

func TestRunRegistryFailedSave(t *testing.T) {
	f := newFixture(risingProvider(30))
	results := failingResults{Results: f.results, err: errors.New("disk full")}
	reg := NewRunRegistry(f.service, f.watchlists, f.history, results, nil, logger.Nop())
	sc, wl := seed(t, f, "RELIANCE")

	st, err := reg.Run(context.Background(), StartRequest{ScannerID: sc.ID, WatchlistID: wl.ID})
	require.NoError(t, err)
	assert.Equal(t, storage.HistoryFailed, st.Status)
	assert.Equal(t, "disk full", st.Error)
}

func TestRunRegistryStatusFallsBackToHistory(t *testing.T) {
	f := newFixture(risingProvider(30))
	reg := NewRunRegistry(f.service, f.watchlists, f.history, f.results, nil, logger.Nop())
	ctx := context.Background()

	id, err := f.history.Start(ctx, 1, nil)
	require.NoError(t, err)
	require.NoError(t, f.history.Finish(ctx, id, storage.HistoryCompleted, 10, 3, time.Second, ""))

	st, err := reg.Status(ctx, ScanID(id))
	require.NoError(t, err)
	assert.Equal(t, RunStatus{
		ScanID: ScanID(id), Status: storage.HistoryCompleted, Progress: 100,
		SymbolsScanned: 10, SignalsFound: 3,
	}, st)

	_, err = reg.Status(ctx, "scan_77")
	assert.ErrorIs(t, err, ErrUnknownScan)
	_, err = reg.Status(ctx, "bogus")
	assert.ErrorIs(t, err, ErrUnknownScan)
}

func TestParseScanID(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"scan_12", 12, false},
		{"scan_0", 0, true},
		{"scan_x", 0, true},
		{"12", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseScanID(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrUnknownScan, tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestRunRegistryShutdown(t *testing.T) {
	f := newFixture(risingProvider(30))
	reg := NewRunRegistry(f.service, f.watchlists, f.history, f.results, nil, logger.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, reg.Shutdown(ctx))
}
