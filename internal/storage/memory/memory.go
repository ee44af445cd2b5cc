// Package memory is a process-local implementation of the storage
// repositories. It backs the API when no database is configured and is
// used by tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wonny/fluxscan/internal/storage"
	"github.com/wonny/fluxscan/internal/watchlist"
)

// Store holds every table. The zero value is not usable; call New.
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	seq        map[string]int64
	scanners   map[int64]storage.Scanner
	watchlists map[int64]watchlist.Watchlist
	schedules  map[int64]storage.Schedule
	history    map[int64]storage.History
	results    []storage.Result
}

// New creates an empty store.
func New() *Store {
	return &Store{
		now:        time.Now,
		seq:        make(map[string]int64),
		scanners:   make(map[int64]storage.Scanner),
		watchlists: make(map[int64]watchlist.Watchlist),
		schedules:  make(map[int64]storage.Schedule),
		history:    make(map[int64]storage.History),
	}
}

// nextID hands out ids per table, starting at 1.
func (s *Store) nextID(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

// Scanners returns the scanner repository view.
func (s *Store) Scanners() *Scanners { return &Scanners{s} }

// Watchlists returns the watchlist repository view.
func (s *Store) Watchlists() *Watchlists { return &Watchlists{s} }

// Schedules returns the schedule repository view.
func (s *Store) Schedules() *Schedules { return &Schedules{s} }

// History returns the history repository view.
func (s *Store) History() *History { return &History{s} }

// Results returns the result repository view.
func (s *Store) Results() *Results { return &Results{s} }

func copyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Scanners implements the scanner repository.
type Scanners struct{ s *Store }

func (r *Scanners) Create(_ context.Context, sc *storage.Scanner) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.scanners {
		if existing.Name == sc.Name {
			return storage.ErrDuplicate
		}
	}
	if sc.Category == "" {
		sc.Category = "custom"
	}
	sc.Parameters = copyMap(sc.Parameters)
	sc.ID = r.s.nextID("scanners")
	sc.CreatedAt = r.s.now()
	sc.UpdatedAt = sc.CreatedAt
	cp := *sc
	cp.Parameters = copyMap(sc.Parameters)
	r.s.scanners[sc.ID] = cp
	return nil
}

func (r *Scanners) Get(_ context.Context, id int64) (*storage.Scanner, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sc, ok := r.s.scanners[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	sc.Parameters = copyMap(sc.Parameters)
	return &sc, nil
}

func (r *Scanners) GetByName(_ context.Context, name string) (*storage.Scanner, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, sc := range r.s.scanners {
		if sc.Name == name {
			sc.Parameters = copyMap(sc.Parameters)
			return &sc, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (r *Scanners) List(_ context.Context, activeOnly bool) ([]*storage.Scanner, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*storage.Scanner, 0, len(r.s.scanners))
	for _, sc := range r.s.scanners {
		if activeOnly && !sc.IsActive {
			continue
		}
		sc.Parameters = copyMap(sc.Parameters)
		out = append(out, &sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *Scanners) Update(_ context.Context, sc *storage.Scanner) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	old, ok := r.s.scanners[sc.ID]
	if !ok {
		return storage.ErrNotFound
	}
	sc.CreatedAt = old.CreatedAt
	sc.UpdatedAt = r.s.now()
	cp := *sc
	cp.Parameters = copyMap(sc.Parameters)
	r.s.scanners[sc.ID] = cp
	return nil
}

// Delete removes the scanner with its schedules, history and results.
func (r *Scanners) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.scanners[id]; !ok {
		return storage.ErrNotFound
	}
	delete(r.s.scanners, id)
	for sid, sch := range r.s.schedules {
		if sch.ScannerID == id {
			delete(r.s.schedules, sid)
		}
	}
	for hid, h := range r.s.history {
		if h.ScannerID == id {
			delete(r.s.history, hid)
		}
	}
	kept := r.s.results[:0]
	for _, res := range r.s.results {
		if res.ScannerID != id {
			kept = append(kept, res)
		}
	}
	r.s.results = kept
	return nil
}

// Watchlists implements the watchlist repository.
type Watchlists struct{ s *Store }

func cloneWatchlist(w watchlist.Watchlist) *watchlist.Watchlist {
	w.Symbols = append([]watchlist.Entry{}, w.Symbols...)
	return &w
}

func (r *Watchlists) Create(_ context.Context, w *watchlist.Watchlist) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.watchlists {
		if existing.Name == w.Name {
			return storage.ErrDuplicate
		}
	}
	w.ID = r.s.nextID("watchlists")
	w.CreatedAt = r.s.now()
	w.UpdatedAt = w.CreatedAt
	r.s.watchlists[w.ID] = *cloneWatchlist(*w)
	return nil
}

func (r *Watchlists) Get(_ context.Context, id int64) (*watchlist.Watchlist, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.watchlists[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneWatchlist(w), nil
}

func (r *Watchlists) List(_ context.Context) ([]*watchlist.Watchlist, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*watchlist.Watchlist, 0, len(r.s.watchlists))
	for _, w := range r.s.watchlists {
		out = append(out, cloneWatchlist(w))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *Watchlists) Update(_ context.Context, w *watchlist.Watchlist) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	old, ok := r.s.watchlists[w.ID]
	if !ok {
		return storage.ErrNotFound
	}
	w.CreatedAt = old.CreatedAt
	w.UpdatedAt = r.s.now()
	r.s.watchlists[w.ID] = *cloneWatchlist(*w)
	return nil
}

func (r *Watchlists) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.watchlists[id]; !ok {
		return storage.ErrNotFound
	}
	delete(r.s.watchlists, id)
	for sid, sch := range r.s.schedules {
		if sch.WatchlistID == id {
			delete(r.s.schedules, sid)
		}
	}
	return nil
}

// Schedules implements the schedule repository.
type Schedules struct{ s *Store }

func cloneSchedule(sch storage.Schedule) *storage.Schedule {
	sch.DaysOfWeek = append([]int{}, sch.DaysOfWeek...)
	sch.Parameters = copyMap(sch.Parameters)
	return &sch
}

func (r *Schedules) Create(_ context.Context, sch *storage.Schedule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sch.ID = r.s.nextID("schedules")
	sch.CreatedAt = r.s.now()
	r.s.schedules[sch.ID] = *cloneSchedule(*sch)
	return nil
}

func (r *Schedules) Get(_ context.Context, id int64) (*storage.Schedule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sch, ok := r.s.schedules[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneSchedule(sch), nil
}

func (r *Schedules) List(_ context.Context, activeOnly bool) ([]*storage.Schedule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*storage.Schedule, 0, len(r.s.schedules))
	for _, sch := range r.s.schedules {
		if activeOnly && !sch.IsActive {
			continue
		}
		out = append(out, cloneSchedule(sch))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Schedules) update(id int64, fn func(*storage.Schedule)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sch, ok := r.s.schedules[id]
	if !ok {
		return storage.ErrNotFound
	}
	fn(&sch)
	r.s.schedules[id] = sch
	return nil
}

func (r *Schedules) SetActive(_ context.Context, id int64, active bool) error {
	return r.update(id, func(sch *storage.Schedule) { sch.IsActive = active })
}

func (r *Schedules) MarkExecuted(_ context.Context, id int64, ranAt time.Time, next *time.Time) error {
	return r.update(id, func(sch *storage.Schedule) {
		sch.LastRun = &ranAt
		sch.NextRun = next
		if next == nil {
			sch.IsActive = false
		}
	})
}

func (r *Schedules) Reschedule(_ context.Context, id int64, next *time.Time) error {
	return r.update(id, func(sch *storage.Schedule) { sch.NextRun = next })
}

func (r *Schedules) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.schedules[id]; !ok {
		return storage.ErrNotFound
	}
	delete(r.s.schedules, id)
	return nil
}

// History implements the history repository.
type History struct{ s *Store }

func (r *History) Start(_ context.Context, scannerID int64, watchlistID *int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id := r.s.nextID("history")
	r.s.history[id] = storage.History{
		ID:          id,
		ScannerID:   scannerID,
		WatchlistID: watchlistID,
		Status:      storage.HistoryRunning,
		StartedAt:   r.s.now(),
	}
	return id, nil
}

func (r *History) Finish(_ context.Context, id int64, status string, scanned, signals int, elapsed time.Duration, errMsg string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	h, ok := r.s.history[id]
	if !ok {
		return storage.ErrNotFound
	}
	done := r.s.now()
	h.Status = status
	h.SymbolsScanned = scanned
	h.SignalsFound = signals
	h.ExecutionTimeMs = elapsed.Milliseconds()
	h.ErrorMessage = errMsg
	h.CompletedAt = &done
	r.s.history[id] = h
	return nil
}

func (r *History) Get(_ context.Context, id int64) (*storage.History, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	h, ok := r.s.history[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &h, nil
}

func (r *History) Recent(_ context.Context, scannerID int64, limit int) ([]*storage.History, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*storage.History, 0)
	for _, h := range r.s.history {
		if scannerID == 0 || h.ScannerID == scannerID {
			h := h
			out = append(out, &h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *History) Statistics(_ context.Context, scannerID int64) (*storage.Statistics, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var st storage.Statistics
	for _, h := range r.s.history {
		if h.ScannerID != scannerID {
			continue
		}
		st.TotalScans++
		if h.Status == storage.HistoryCompleted {
			st.SuccessfulScans++
		}
		st.TotalSignals += h.SignalsFound
		if st.LastRun == nil || h.StartedAt.After(*st.LastRun) {
			started := h.StartedAt
			st.LastRun = &started
		}
	}
	st.Derive()
	return &st, nil
}

// Results implements the result repository.
type Results struct{ s *Store }

func (r *Results) SaveBatch(_ context.Context, results []storage.Result) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, res := range results {
		res.ID = r.s.nextID("results")
		res.Metrics = copyMap(res.Metrics)
		if res.Timestamp.IsZero() {
			res.Timestamp = r.s.now()
		}
		r.s.results = append(r.s.results, res)
	}
	return nil
}

func (r *Results) Recent(_ context.Context, f storage.ResultFilter) ([]*storage.Result, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	out := make([]*storage.Result, 0)
	for i := len(r.s.results) - 1; i >= 0 && len(out) < limit; i-- {
		res := r.s.results[i]
		if f.ScannerID != 0 && res.ScannerID != f.ScannerID {
			continue
		}
		if f.HistoryID != 0 && (res.HistoryID == nil || *res.HistoryID != f.HistoryID) {
			continue
		}
		if f.Signal != "" && res.Signal != f.Signal {
			continue
		}
		res.Metrics = copyMap(res.Metrics)
		out = append(out, &res)
	}
	return out, nil
}

func (r *Results) CleanupOlderThan(_ context.Context, days int) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cutoff := r.s.now().AddDate(0, 0, -days)
	kept := r.s.results[:0]
	var removed int64
	for _, res := range r.s.results {
		if res.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, res)
	}
	r.s.results = kept
	return removed, nil
}
