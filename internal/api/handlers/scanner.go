package handlers

import (
	"net/http"

	"github.com/wonny/fluxscan/internal/scanner"
	"github.com/wonny/fluxscan/internal/service"
	"github.com/wonny/fluxscan/internal/storage"
	"github.com/wonny/fluxscan/pkg/logger"
)

// ScannerHandler serves scanner definitions, validation and test runs.
type ScannerHandler struct {
	service *service.ScannerService
	logger  *logger.Logger
}

// NewScannerHandler creates a new scanner handler
func NewScannerHandler(svc *service.ScannerService, log *logger.Logger) *ScannerHandler {
	return &ScannerHandler{
		service: svc,
		logger:  log.WithField("handler", "scanner"),
	}
}

// ScannerRequest is the body of create and update calls.
type ScannerRequest struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Code        string                 `json:"code"`
	Parameters  map[string]interface{} `json:"parameters"`
	Category    string                 `json:"category"`
	IsActive    *bool                  `json:"is_active"`
}

// Validate checks code without saving it.
// POST /api/scanners/validate
func (h *ScannerHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decode(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	respondData(w, http.StatusOK, h.service.Validate(req.Code))
}

// Template returns the starter template and the examples.
// GET /api/scanners/template
func (h *ScannerHandler) Template(w http.ResponseWriter, r *http.Request) {
	if name := r.URL.Query().Get("name"); name != "" {
		tpl, ok := scanner.Example(name)
		if !ok {
			respondError(w, http.StatusNotFound, "Unknown template")
			return
		}
		respondData(w, http.StatusOK, tpl)
		return
	}
	respondData(w, http.StatusOK, map[string]interface{}{
		"starter":  scanner.StarterTemplate(),
		"examples": scanner.Examples(),
	})
}

// List returns stored scanners. ?active=true limits to active ones.
// GET /api/scanners
func (h *ScannerHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context(), r.URL.Query().Get("active") == "true")
	if err != nil {
		h.logger.WithError(err).Error("Failed to list scanners")
		respondErr(w, err)
		return
	}
	if list == nil {
		list = []*storage.Scanner{}
	}
	respondData(w, http.StatusOK, list)
}

// Create stores a new scanner after validation.
// POST /api/scanners
func (h *ScannerHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ScannerRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sc := &storage.Scanner{
		Name:        req.Name,
		Description: req.Description,
		Code:        req.Code,
		Parameters:  req.Parameters,
		Category:    req.Category,
		IsActive:    req.IsActive == nil || *req.IsActive,
	}
	if err := h.service.Create(r.Context(), sc); err != nil {
		respondErr(w, err)
		return
	}
	respondData(w, http.StatusCreated, sc)
}

// Get returns one scanner.
// GET /api/scanners/{id}
func (h *ScannerHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid scanner id")
		return
	}
	sc, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondData(w, http.StatusOK, sc)
}

// Update changes a scanner. Omitted fields keep their values.
// PUT /api/scanners/{id}
func (h *ScannerHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid scanner id")
		return
	}
	var req ScannerRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sc, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondErr(w, err)
		return
	}
	if req.Name != "" {
		sc.Name = req.Name
	}
	if req.Description != "" {
		sc.Description = req.Description
	}
	if req.Code != "" {
		sc.Code = req.Code
	}
	if req.Parameters != nil {
		sc.Parameters = req.Parameters
	}
	if req.Category != "" {
		sc.Category = req.Category
	}
	if req.IsActive != nil {
		sc.IsActive = *req.IsActive
	}

	if err := h.service.Update(r.Context(), sc); err != nil {
		respondErr(w, err)
		return
	}
	respondData(w, http.StatusOK, sc)
}

// Delete removes a scanner.
// DELETE /api/scanners/{id}
func (h *ScannerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid scanner id")
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		respondErr(w, err)
		return
	}
	respondData(w, http.StatusOK, map[string]interface{}{"deleted": id})
}

// Clone copies a scanner.
// POST /api/scanners/{id}/clone
func (h *ScannerHandler) Clone(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid scanner id")
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	clone, err := h.service.Clone(r.Context(), id, req.Name)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondData(w, http.StatusCreated, clone)
}

// TestScannerRequest overrides the stored scanner for a test run.
type TestScannerRequest struct {
	Code       string                 `json:"code"`
	Parameters map[string]interface{} `json:"parameters"`
	Symbols    []string               `json:"symbols"`
	Exchange   string                 `json:"exchange"`
}

// Test runs a stored scanner, or the code in the body, on a few symbols.
// POST /api/scanners/{id}/test
func (h *ScannerHandler) Test(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid scanner id")
		return
	}
	var req TestScannerRequest
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	sc, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondErr(w, err)
		return
	}
	code := sc.Code
	if req.Code != "" {
		code = req.Code
	}

	res, err := h.service.Test(r.Context(), service.TestRequest{
		Code:       code,
		Parameters: sc.Parameters,
		Overrides:  req.Parameters,
		Symbols:    req.Symbols,
		Exchange:   req.Exchange,
	})
	if err != nil {
		respondErr(w, err)
		return
	}
	respondData(w, http.StatusOK, batchView(res))
}

// Stats returns the run statistics of a scanner.
// GET /api/scanners/{id}/stats
func (h *ScannerHandler) Stats(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid scanner id")
		return
	}
	st, err := h.service.Statistics(r.Context(), id)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondData(w, http.StatusOK, st)
}

// batchView adds the elapsed milliseconds to a batch result.
func batchView(res *scanner.BatchResult) map[string]interface{} {
	return map[string]interface{}{
		"status":            res.Status,
		"results":           res.Results,
		"errors":            res.Errors,
		"total_scanned":     res.TotalScanned,
		"signals_found":     res.SignalsFound,
		"execution_time_ms": res.ExecutionMillis(),
		"error":             res.Error,
	}
}
