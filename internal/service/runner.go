package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wonny/fluxscan/internal/metrics"
	"github.com/wonny/fluxscan/internal/scanner"
	"github.com/wonny/fluxscan/internal/storage"
	"github.com/wonny/fluxscan/pkg/logger"
)

// ErrEmptyWatchlist is returned when a scan is requested for a watchlist
// without symbols.
var ErrEmptyWatchlist = errors.New("watchlist has no symbols")

// ErrUnknownScan is returned for scan ids that match no run.
var ErrUnknownScan = errors.New("unknown scan id")

// finishedRetention is how long finished runs stay in memory for status polls.
const finishedRetention = time.Hour

// StartRequest asks for a background scan of a watchlist.
type StartRequest struct {
	ScannerID    int64                  `json:"scanner_id"`
	WatchlistID  int64                  `json:"watchlist_id"`
	Parameters   map[string]interface{} `json:"parameters"`
	Interval     string                 `json:"interval"`
	LookbackDays int                    `json:"lookback_days"`
	Parallel     *bool                  `json:"parallel,omitempty"`
}

// RunStatus is the externally visible state of a scan.
type RunStatus struct {
	ScanID         string  `json:"scan_id"`
	Status         string  `json:"status"`
	Progress       float64 `json:"progress"`
	IsRunning      bool    `json:"is_running"`
	TotalSymbols   int     `json:"total_symbols"`
	SymbolsScanned int     `json:"symbols_scanned"`
	SignalsFound   int     `json:"signals_found"`
	Error          string  `json:"error,omitempty"`

	SymbolErrors []scanner.SymbolError `json:"symbol_errors,omitempty"`
}

type run struct {
	id        string
	historyID int64
	token     *scanner.CancelToken
	done      chan struct{}

	mu         sync.Mutex
	status     string
	progress   float64
	total      int
	scanned    int
	signals    int
	errMsg     string
	symbolErrs []scanner.SymbolError
	finishedAt time.Time
}

func (r *run) snapshot() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RunStatus{
		ScanID:         r.id,
		Status:         r.status,
		Progress:       r.progress,
		IsRunning:      r.status == storage.HistoryRunning,
		TotalSymbols:   r.total,
		SymbolsScanned: r.scanned,
		SignalsFound:   r.signals,
		Error:          r.errMsg,
		SymbolErrors:   r.symbolErrs,
	}
}

// RunRegistry launches scans in the background and tracks them by scan id.
type RunRegistry struct {
	scanners   *ScannerService
	watchlists WatchlistStore
	history    HistoryStore
	results    ResultStore
	publisher  Publisher
	logger     *logger.Logger
	now        func() time.Time

	mu   sync.Mutex
	runs map[string]*run
	wg   sync.WaitGroup
}

// NewRunRegistry creates a RunRegistry. publisher may be nil.
func NewRunRegistry(scanners *ScannerService, watchlists WatchlistStore, history HistoryStore, results ResultStore, publisher Publisher, log *logger.Logger) *RunRegistry {
	if publisher == nil {
		publisher = Publishers(nil)
	}
	return &RunRegistry{
		scanners:   scanners,
		watchlists: watchlists,
		history:    history,
		results:    results,
		publisher:  publisher,
		logger:     log.WithField("module", "scan_runner"),
		now:        time.Now,
		runs:       make(map[string]*run),
	}
}

// ScanID formats the public id of a history record.
func ScanID(historyID int64) string {
	return fmt.Sprintf("scan_%d", historyID)
}

// ParseScanID extracts the history id from a scan id.
func ParseScanID(scanID string) (int64, error) {
	raw, ok := strings.CutPrefix(scanID, "scan_")
	if !ok {
		return 0, ErrUnknownScan
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrUnknownScan
	}
	return id, nil
}

// Start records a running history entry and scans the watchlist in the
// background. Setup failures (unknown scanner or watchlist, bad parameters)
// are returned synchronously and nothing is recorded.
func (r *RunRegistry) Start(ctx context.Context, req StartRequest) (RunStatus, error) {
	sc, err := r.scanners.Get(ctx, req.ScannerID)
	if err != nil {
		return RunStatus{}, fmt.Errorf("scanner %d: %w", req.ScannerID, err)
	}
	wl, err := r.watchlists.Get(ctx, req.WatchlistID)
	if err != nil {
		return RunStatus{}, fmt.Errorf("watchlist %d: %w", req.WatchlistID, err)
	}
	tasks := wl.Tasks()
	if len(tasks) == 0 {
		return RunStatus{}, ErrEmptyWatchlist
	}

	// Surface parameter problems before a history row exists.
	schema, err := scanner.ParseSchema(sc.Parameters)
	if err != nil {
		return RunStatus{}, &scanner.ValidationError{Errors: []string{err.Error()}}
	}
	settings := scanner.BatchSettings{Exchange: wl.Exchange, Interval: req.Interval, LookbackDays: req.LookbackDays}
	if _, err := scanner.MergeParams(schema, req.Parameters, settings); err != nil {
		return RunStatus{}, err
	}

	watchlistID := wl.ID
	historyID, err := r.history.Start(ctx, sc.ID, &watchlistID)
	if err != nil {
		return RunStatus{}, err
	}

	rn := &run{
		id:        ScanID(historyID),
		historyID: historyID,
		token:     scanner.NewCancelToken(),
		done:      make(chan struct{}),
		status:    storage.HistoryRunning,
		total:     len(tasks),
	}

	r.mu.Lock()
	r.pruneLocked()
	r.runs[rn.id] = rn
	r.mu.Unlock()

	metrics.ActiveScans.Inc()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer metrics.ActiveScans.Dec()
		defer close(rn.done)
		r.execute(context.WithoutCancel(ctx), rn, sc, ExecuteOptions{
			Tasks:     tasks,
			Overrides: req.Parameters,
			Settings:  settings,
			Cancel:    rn.token,
			Parallel:  req.Parallel,
		})
	}()

	r.logger.WithFields(map[string]interface{}{
		"scan_id":   rn.id,
		"scanner":   sc.Name,
		"watchlist": wl.Name,
		"symbols":   len(tasks),
	}).Info("Scan started")

	return rn.snapshot(), nil
}

func (r *RunRegistry) execute(ctx context.Context, rn *run, sc *storage.Scanner, opts ExecuteOptions) {
	log := r.logger.WithField("scan_id", rn.id)

	defer func() {
		if p := recover(); p != nil {
			log.Errorf("Scan panicked: %v", p)
			r.finish(ctx, rn, storage.HistoryFailed, nil, fmt.Sprintf("internal error: %v", p))
		}
	}()

	opts.Progress = func(pct float64, symbol string) {
		rn.mu.Lock()
		rn.progress = pct
		rn.mu.Unlock()
		r.publisher.Publish(Event{Type: EventProgress, ScanID: rn.id, Progress: pct, Symbol: symbol})
	}

	res, err := r.scanners.Execute(ctx, sc, opts)
	if err != nil {
		r.finish(ctx, rn, storage.HistoryFailed, nil, err.Error())
		return
	}

	if err := r.results.SaveBatch(ctx, toStored(sc.ID, rn.historyID, res.Results)); err != nil {
		log.WithError(err).Error("Failed to save scan results")
		r.finish(ctx, rn, storage.HistoryFailed, res, err.Error())
		return
	}

	status := storage.HistoryCompleted
	switch res.Status {
	case scanner.StatusCancelled:
		status = storage.HistoryCancelled
	case scanner.StatusValidationError:
		status = storage.HistoryFailed
	}
	r.finish(ctx, rn, status, res, res.Error)
}

// finish records the final state of a run. res is nil when the batch never
// ran.
func (r *RunRegistry) finish(ctx context.Context, rn *run, status string, res *scanner.BatchResult, errMsg string) {
	var (
		scanned, signals int
		elapsed          time.Duration
		symbolErrs       []scanner.SymbolError
	)
	if res != nil {
		scanned, signals, elapsed = res.TotalScanned, res.SignalsFound, res.ExecutionTime
		if len(res.Errors) > 0 {
			symbolErrs = res.Errors
		}
	}

	if err := r.history.Finish(ctx, rn.historyID, status, scanned, signals, elapsed, errMsg); err != nil {
		r.logger.WithError(err).WithField("scan_id", rn.id).Error("Failed to record scan history")
	}

	rn.mu.Lock()
	rn.status = status
	rn.scanned = scanned
	rn.signals = signals
	rn.errMsg = errMsg
	rn.symbolErrs = symbolErrs
	if status == storage.HistoryCompleted {
		rn.progress = 100
	}
	rn.finishedAt = r.now()
	rn.mu.Unlock()

	r.publisher.Publish(Event{
		Type:         EventComplete,
		ScanID:       rn.id,
		Status:       status,
		Progress:     rn.snapshot().Progress,
		TotalScanned: scanned,
		SignalsFound: signals,
		Error:        errMsg,
		ErrorCount:   len(symbolErrs),
		SymbolErrors: symbolErrs,
	})

	r.logger.WithFields(map[string]interface{}{
		"scan_id":       rn.id,
		"status":        status,
		"total_scanned": scanned,
		"signals_found": signals,
		"symbol_errors": len(symbolErrs),
		"elapsed_ms":    elapsed.Milliseconds(),
	}).Info("Scan finished")
}

func toStored(scannerID, historyID int64, results []scanner.ScanResult) []storage.Result {
	out := make([]storage.Result, len(results))
	for i, res := range results {
		hid := historyID
		out[i] = storage.Result{
			ScannerID: scannerID,
			HistoryID: &hid,
			Symbol:    res.Symbol,
			Exchange:  res.Exchange,
			Signal:    res.Signal,
			Metrics:   res.Metrics,
			Timestamp: res.Timestamp,
		}
	}
	return out
}

// pruneLocked drops finished runs past their retention.
func (r *RunRegistry) pruneLocked() {
	cutoff := r.now().Add(-finishedRetention)
	for id, rn := range r.runs {
		rn.mu.Lock()
		expired := rn.status != storage.HistoryRunning && rn.finishedAt.Before(cutoff)
		rn.mu.Unlock()
		if expired {
			delete(r.runs, id)
		}
	}
}

// Status reports a scan. Runs no longer in memory are answered from history.
func (r *RunRegistry) Status(ctx context.Context, scanID string) (RunStatus, error) {
	r.mu.Lock()
	rn, ok := r.runs[scanID]
	r.mu.Unlock()
	if ok {
		return rn.snapshot(), nil
	}

	historyID, err := ParseScanID(scanID)
	if err != nil {
		return RunStatus{}, err
	}
	h, err := r.history.Get(ctx, historyID)
	if errors.Is(err, storage.ErrNotFound) {
		return RunStatus{}, ErrUnknownScan
	}
	if err != nil {
		return RunStatus{}, err
	}

	st := RunStatus{
		ScanID:         scanID,
		Status:         h.Status,
		SymbolsScanned: h.SymbolsScanned,
		SignalsFound:   h.SignalsFound,
		Error:          h.ErrorMessage,
	}
	// A running row with no live run belongs to another process or a crash.
	if h.Status == storage.HistoryCompleted {
		st.Progress = 100
	}
	return st, nil
}

// Cancel asks a running scan to stop after the symbols in flight. It returns
// false when the scan is unknown or already finished.
func (r *RunRegistry) Cancel(scanID string) bool {
	r.mu.Lock()
	rn, ok := r.runs[scanID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	rn.mu.Lock()
	running := rn.status == storage.HistoryRunning
	rn.mu.Unlock()
	if !running {
		return false
	}
	rn.token.Cancel()
	r.logger.WithField("scan_id", scanID).Info("Scan cancellation requested")
	return true
}

// Wait blocks until scanID finishes or ctx ends.
func (r *RunRegistry) Wait(ctx context.Context, scanID string) (RunStatus, error) {
	r.mu.Lock()
	rn, ok := r.runs[scanID]
	r.mu.Unlock()
	if !ok {
		return r.Status(ctx, scanID)
	}
	select {
	case <-rn.done:
		return rn.snapshot(), nil
	case <-ctx.Done():
		return rn.snapshot(), ctx.Err()
	}
}

// Run starts a scan and waits for it to finish.
func (r *RunRegistry) Run(ctx context.Context, req StartRequest) (RunStatus, error) {
	st, err := r.Start(ctx, req)
	if err != nil {
		return st, err
	}
	return r.Wait(ctx, st.ScanID)
}

// Active returns the scans still running.
func (r *RunRegistry) Active() []RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []RunStatus
	for _, rn := range r.runs {
		if st := rn.snapshot(); st.IsRunning {
			out = append(out, st)
		}
	}
	return out
}

// Shutdown cancels every running scan and waits for them to record their
// outcome, or for ctx to end.
func (r *RunRegistry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	for _, rn := range r.runs {
		rn.token.Cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
