package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/wonny/fluxscan/internal/service"
	"github.com/wonny/fluxscan/internal/storage"
	"github.com/wonny/fluxscan/internal/watchlist"
	"github.com/wonny/fluxscan/pkg/logger"
)

// WatchlistHandler serves watchlists and their symbols.
type WatchlistHandler struct {
	store  service.WatchlistStore
	logger *logger.Logger
}

// NewWatchlistHandler creates a new watchlist handler
func NewWatchlistHandler(store service.WatchlistStore, log *logger.Logger) *WatchlistHandler {
	return &WatchlistHandler{
		store:  store,
		logger: log.WithField("handler", "watchlist"),
	}
}

// WatchlistRequest is the body of a create call.
type WatchlistRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Exchange    string            `json:"exchange"`
	Symbols     []watchlist.Entry `json:"symbols"`
}

// List returns all watchlists.
// GET /api/watchlists
func (h *WatchlistHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.List(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list watchlists")
		respondErr(w, err)
		return
	}
	if list == nil {
		list = []*watchlist.Watchlist{}
	}
	respondData(w, http.StatusOK, list)
}

// Create stores a new watchlist.
// POST /api/watchlists
func (h *WatchlistHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req WatchlistRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	wl := watchlist.New(req.Name, req.Description, req.Exchange)
	if wl.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	wl.SetSymbols(req.Symbols)

	if err := h.store.Create(r.Context(), wl); err != nil {
		h.logger.WithError(err).Error("Failed to create watchlist")
		respondErr(w, err)
		return
	}
	respondData(w, http.StatusCreated, wl)
}

// Get returns one watchlist.
// GET /api/watchlists/{id}
func (h *WatchlistHandler) Get(w http.ResponseWriter, r *http.Request) {
	wl, ok := h.load(w, r)
	if !ok {
		return
	}
	respondData(w, http.StatusOK, wl)
}

// Delete removes a watchlist.
// DELETE /api/watchlists/{id}
func (h *WatchlistHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid watchlist id")
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		respondErr(w, err)
		return
	}
	respondData(w, http.StatusOK, map[string]interface{}{"deleted": id})
}

// AddSymbols appends symbols; duplicates are ignored.
// POST /api/watchlists/{id}/symbols
func (h *WatchlistHandler) AddSymbols(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbols []watchlist.Entry `json:"symbols"`
	}
	if err := decode(w, r, &req); err != nil || len(req.Symbols) == 0 {
		respondError(w, http.StatusBadRequest, "symbols are required")
		return
	}
	wl, ok := h.load(w, r)
	if !ok {
		return
	}

	added := 0
	for _, e := range req.Symbols {
		if wl.Add(e.Symbol, e.Exchange) {
			added++
		}
	}
	if added > 0 {
		if err := h.store.Update(r.Context(), wl); err != nil {
			respondErr(w, err)
			return
		}
	}
	respondData(w, http.StatusOK, map[string]interface{}{"added": added, "watchlist": wl})
}

// RemoveSymbol drops a symbol. ?exchange= limits removal to one exchange.
// DELETE /api/watchlists/{id}/symbols/{symbol}
func (h *WatchlistHandler) RemoveSymbol(w http.ResponseWriter, r *http.Request) {
	wl, ok := h.load(w, r)
	if !ok {
		return
	}
	removed := wl.Remove(mux.Vars(r)["symbol"], r.URL.Query().Get("exchange"))
	if removed == 0 {
		respondError(w, http.StatusNotFound, "Symbol not in watchlist")
		return
	}
	if err := h.store.Update(r.Context(), wl); err != nil {
		respondErr(w, err)
		return
	}
	respondData(w, http.StatusOK, map[string]interface{}{"removed": removed, "watchlist": wl})
}

// Import creates a watchlist from a CSV or HTML body, or adds to an existing
// one when ?watchlist_id= is given. ?format=html parses an HTML table;
// anything else is read as SYMBOL[,EXCHANGE] rows.
// POST /api/watchlists/import?name=...&exchange=...&format=csv|html
func (h *WatchlistHandler) Import(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	exchange := q.Get("exchange")
	body := io.LimitReader(r.Body, maxBodyBytes)

	format := strings.ToLower(q.Get("format"))
	if format == "" && strings.Contains(r.Header.Get("Content-Type"), "html") {
		format = "html"
	}

	var entries []watchlist.Entry
	var err error
	if format == "html" {
		entries, err = watchlist.ParseHTMLTable(body, exchange)
	} else {
		entries, err = watchlist.ParseCSV(body, exchange)
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(entries) == 0 {
		respondError(w, http.StatusBadRequest, "No symbols found")
		return
	}

	ctx := r.Context()
	if id := queryInt64(r, "watchlist_id"); id > 0 {
		wl, err := h.store.Get(ctx, id)
		if err != nil {
			respondErr(w, err)
			return
		}
		added := 0
		for _, e := range entries {
			if wl.Add(e.Symbol, e.Exchange) {
				added++
			}
		}
		if err := h.store.Update(ctx, wl); err != nil {
			respondErr(w, err)
			return
		}
		respondData(w, http.StatusOK, map[string]interface{}{"added": added, "watchlist": wl})
		return
	}

	wl := watchlist.New(q.Get("name"), q.Get("description"), exchange)
	if wl.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	wl.SetSymbols(entries)
	if err := h.store.Create(ctx, wl); err != nil {
		respondErr(w, err)
		return
	}
	respondData(w, http.StatusCreated, map[string]interface{}{"added": wl.Len(), "watchlist": wl})
}

func (h *WatchlistHandler) load(w http.ResponseWriter, r *http.Request) (*watchlist.Watchlist, bool) {
	id, ok := pathID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid watchlist id")
		return nil, false
	}
	wl, err := h.store.Get(r.Context(), id)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			h.logger.WithError(err).Error("Failed to load watchlist")
		}
		respondErr(w, err)
		return nil, false
	}
	return wl, true
}
