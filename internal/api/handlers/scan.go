package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/fluxscan/internal/service"
	"github.com/wonny/fluxscan/internal/storage"
	"github.com/wonny/fluxscan/pkg/logger"
)

// ScanHandler starts background scans and serves their status, results and history.
type ScanHandler struct {
	runs    *service.RunRegistry
	results service.ResultStore
	history service.HistoryStore
	logger  *logger.Logger
}

// NewScanHandler creates a new scan handler
func NewScanHandler(runs *service.RunRegistry, results service.ResultStore, history service.HistoryStore, log *logger.Logger) *ScanHandler {
	return &ScanHandler{
		runs:    runs,
		results: results,
		history: history,
		logger:  log.WithField("handler", "scan"),
	}
}

// Start launches a scan of a watchlist.
// POST /api/scan
func (h *ScanHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req service.StartRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ScannerID <= 0 || req.WatchlistID <= 0 {
		respondError(w, http.StatusBadRequest, "scanner_id and watchlist_id are required")
		return
	}

	st, err := h.runs.Start(r.Context(), req)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondData(w, http.StatusAccepted, st)
}

// Status reports a scan's progress.
// GET /api/scan/{scanID}/status
func (h *ScanHandler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.runs.Status(r.Context(), mux.Vars(r)["scanID"])
	if err != nil {
		respondErr(w, err)
		return
	}
	respondData(w, http.StatusOK, st)
}

// Cancel stops a running scan.
// POST /api/scan/{scanID}/cancel
func (h *ScanHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	scanID := mux.Vars(r)["scanID"]
	if !h.runs.Cancel(scanID) {
		respondError(w, http.StatusNotFound, "Scan not running")
		return
	}
	respondData(w, http.StatusOK, map[string]interface{}{"scan_id": scanID, "cancelled": true})
}

// Results lists stored results, newest first.
// GET /api/results?scanner_id=&scan_id=&signal=&limit=
func (h *ScanHandler) Results(w http.ResponseWriter, r *http.Request) {
	f := storage.ResultFilter{
		ScannerID: queryInt64(r, "scanner_id"),
		Signal:    r.URL.Query().Get("signal"),
		Limit:     queryInt(r, "limit", 100),
	}
	if scanID := r.URL.Query().Get("scan_id"); scanID != "" {
		id, err := service.ParseScanID(scanID)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid scan_id")
			return
		}
		f.HistoryID = id
	}

	list, err := h.results.Recent(r.Context(), f)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list results")
		respondErr(w, err)
		return
	}
	if list == nil {
		list = []*storage.Result{}
	}
	respondData(w, http.StatusOK, list)
}

// History lists recent runs.
// GET /api/history?scanner_id=&limit=
func (h *ScanHandler) History(w http.ResponseWriter, r *http.Request) {
	list, err := h.history.Recent(r.Context(), queryInt64(r, "scanner_id"), queryInt(r, "limit", 50))
	if err != nil {
		h.logger.WithError(err).Error("Failed to list history")
		respondErr(w, err)
		return
	}
	if list == nil {
		list = []*storage.History{}
	}
	respondData(w, http.StatusOK, list)
}
