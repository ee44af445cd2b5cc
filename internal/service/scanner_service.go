package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wonny/fluxscan/internal/scanner"
	"github.com/wonny/fluxscan/internal/storage"
	"github.com/wonny/fluxscan/pkg/config"
	"github.com/wonny/fluxscan/pkg/logger"
)

// ErrNameTaken is returned when a scanner name is already in use.
var ErrNameTaken = errors.New("scanner name already exists")

// ScannerService manages scanner definitions and runs them through the engine.
type ScannerService struct {
	scanners    ScannerStore
	history     HistoryStore
	engine      *scanner.Engine
	testSymbols []string
	exchange    string
	parallel    bool
	logger      *logger.Logger
}

// NewScannerService creates a ScannerService.
func NewScannerService(scanners ScannerStore, history HistoryStore, engine *scanner.Engine, cfg config.ScannerConfig, log *logger.Logger) *ScannerService {
	symbols := cfg.TestSymbols
	if len(symbols) == 0 {
		symbols = []string{"RELIANCE", "TCS", "INFY"}
	}
	exchange := cfg.DefaultExchange
	if exchange == "" {
		exchange = scanner.DefaultExchange
	}
	return &ScannerService{
		scanners:    scanners,
		history:     history,
		engine:      engine,
		testSymbols: symbols,
		exchange:    exchange,
		parallel:    cfg.Parallel,
		logger:      log.WithField("module", "scanner_service"),
	}
}

// Validate checks code without storing anything.
func (s *ScannerService) Validate(code string) scanner.ValidationResult {
	return scanner.Validate(code)
}

// check gates a definition on code validation and a parseable schema.
func (s *ScannerService) check(sc *storage.Scanner) error {
	var problems []string
	if strings.TrimSpace(sc.Name) == "" {
		problems = append(problems, "name is required")
	}
	res := scanner.Validate(sc.Code)
	problems = append(problems, res.Errors...)
	if _, err := scanner.ParseSchema(sc.Parameters); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return &scanner.ValidationError{Errors: problems}
	}
	return nil
}

// Create validates and stores a new scanner.
func (s *ScannerService) Create(ctx context.Context, sc *storage.Scanner) error {
	sc.Name = strings.TrimSpace(sc.Name)
	if err := s.check(sc); err != nil {
		return err
	}
	if _, err := s.scanners.GetByName(ctx, sc.Name); err == nil {
		return ErrNameTaken
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if err := s.scanners.Create(ctx, sc); err != nil {
		return err
	}
	s.logger.WithFields(map[string]interface{}{"id": sc.ID, "name": sc.Name}).Info("Scanner created")
	return nil
}

// Update validates and stores changes to an existing scanner.
func (s *ScannerService) Update(ctx context.Context, sc *storage.Scanner) error {
	sc.Name = strings.TrimSpace(sc.Name)
	if err := s.check(sc); err != nil {
		return err
	}
	if other, err := s.scanners.GetByName(ctx, sc.Name); err == nil && other.ID != sc.ID {
		return ErrNameTaken
	} else if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return s.scanners.Update(ctx, sc)
}

// Get returns one scanner.
func (s *ScannerService) Get(ctx context.Context, id int64) (*storage.Scanner, error) {
	return s.scanners.Get(ctx, id)
}

// List returns stored scanners.
func (s *ScannerService) List(ctx context.Context, activeOnly bool) ([]*storage.Scanner, error) {
	return s.scanners.List(ctx, activeOnly)
}

// Delete removes a scanner.
func (s *ScannerService) Delete(ctx context.Context, id int64) error {
	return s.scanners.Delete(ctx, id)
}

// Clone copies a scanner under a new name. An empty name becomes
// "<name> (Copy)".
func (s *ScannerService) Clone(ctx context.Context, id int64, name string) (*storage.Scanner, error) {
	src, err := s.scanners.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		name = src.Name + " (Copy)"
	}
	params := make(map[string]interface{}, len(src.Parameters))
	for k, v := range src.Parameters {
		params[k] = v
	}
	clone := &storage.Scanner{
		Name:        name,
		Description: "Clone of " + src.Name,
		Code:        src.Code,
		Parameters:  params,
		Category:    src.Category,
		IsActive:    true,
	}
	if err := s.Create(ctx, clone); err != nil {
		return nil, err
	}
	return clone, nil
}

// TestRequest is an ad hoc run of unsaved code.
type TestRequest struct {
	Code       string
	Parameters map[string]interface{} // schema, as stored on a scanner
	Overrides  map[string]interface{}
	Symbols    []string // defaults to the configured test symbols
	Exchange   string
}

// Test runs code against a small symbol set without recording history.
func (s *ScannerService) Test(ctx context.Context, req TestRequest) (*scanner.BatchResult, error) {
	symbols := req.Symbols
	if len(symbols) == 0 {
		symbols = s.testSymbols
	}
	exchange := req.Exchange
	if exchange == "" {
		exchange = s.exchange
	}
	tasks := make([]scanner.SymbolTask, 0, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym != "" {
			tasks = append(tasks, scanner.SymbolTask{Symbol: sym, Exchange: exchange})
		}
	}

	def := &storage.Scanner{Code: req.Code, Parameters: req.Parameters}
	return s.Execute(ctx, def, ExecuteOptions{
		Tasks:     tasks,
		Overrides: req.Overrides,
		Settings:  scanner.BatchSettings{Exchange: exchange},
	})
}

// ExecuteOptions configures one run of a stored scanner.
type ExecuteOptions struct {
	Tasks     []scanner.SymbolTask
	Overrides map[string]interface{}
	Settings  scanner.BatchSettings
	Progress  scanner.ProgressFunc
	Cancel    *scanner.CancelToken
	Parallel  *bool // nil uses the configured default
}

// Execute merges parameters and runs the scanner over the tasks. Parameter
// and schema problems are returned as *scanner.ValidationError before any
// symbol is touched; everything else is reported in the batch result.
func (s *ScannerService) Execute(ctx context.Context, sc *storage.Scanner, opts ExecuteOptions) (*scanner.BatchResult, error) {
	schema, err := scanner.ParseSchema(sc.Parameters)
	if err != nil {
		return nil, &scanner.ValidationError{Errors: []string{err.Error()}}
	}
	params, err := scanner.MergeParams(schema, opts.Overrides, opts.Settings)
	if err != nil {
		return nil, err
	}

	parallel := s.parallel
	if opts.Parallel != nil {
		parallel = *opts.Parallel
	}

	res := s.engine.Execute(ctx, scanner.Request{
		Code:     sc.Code,
		Tasks:    opts.Tasks,
		Params:   params,
		Parallel: parallel,
		Progress: opts.Progress,
		Cancel:   opts.Cancel,
	})
	return res, nil
}

// Statistics summarises a scanner's run history.
func (s *ScannerService) Statistics(ctx context.Context, id int64) (*storage.Statistics, error) {
	if _, err := s.scanners.Get(ctx, id); err != nil {
		return nil, err
	}
	st, err := s.history.Statistics(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("statistics for scanner %d: %w", id, err)
	}
	return st, nil
}
