package scanner

import (
	"context"
	"time"
)

// Bar is one OHLCV row of a market series.
type Bar struct {
	Time   time.Time `json:"timestamp"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Series is a time-ordered OHLCV table for one symbol.
// Series values handed to the executor are treated as read-only.
type Series struct {
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange"`
	Interval string `json:"interval"`
	Bars     []Bar  `json:"bars"`
}

// Len returns the number of bars.
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Bars)
}

// Empty reports whether the series is absent or has no bars.
func (s *Series) Empty() bool {
	return s.Len() == 0
}

// Clone returns a deep copy.
func (s *Series) Clone() *Series {
	if s == nil {
		return nil
	}
	out := *s
	out.Bars = make([]Bar, len(s.Bars))
	copy(out.Bars, s.Bars)
	return &out
}

// Column returns a freshly allocated copy of one OHLCV column.
func (s *Series) Column(name string) []float64 {
	out := make([]float64, s.Len())
	for i, b := range s.Bars {
		switch name {
		case "open":
			out[i] = b.Open
		case "high":
			out[i] = b.High
		case "low":
			out[i] = b.Low
		case "close":
			out[i] = b.Close
		case "volume":
			out[i] = b.Volume
		}
	}
	return out
}

// SymbolTask is one unit of work in a batch.
type SymbolTask struct {
	Symbol       string `json:"symbol"`
	Exchange     string `json:"exchange"`
	Interval     string `json:"interval"`
	LookbackDays int    `json:"lookback_days"`
}

// SeriesProvider fetches the market series for a symbol task.
// A nil or empty series means no data is available and the symbol is skipped.
type SeriesProvider interface {
	History(ctx context.Context, symbol, exchange, interval string, lookbackDays int) (*Series, error)
}

// ProviderFunc adapts a function to SeriesProvider.
type ProviderFunc func(ctx context.Context, symbol, exchange, interval string, lookbackDays int) (*Series, error)

// History implements SeriesProvider.
func (f ProviderFunc) History(ctx context.Context, symbol, exchange, interval string, lookbackDays int) (*Series, error) {
	return f(ctx, symbol, exchange, interval, lookbackDays)
}

// ResultKind tags which reporting convention produced a ScanResult.
type ResultKind string

const (
	KindSignal  ResultKind = "signal"
	KindExplore ResultKind = "explore"
)

// SignalExplore is the signal label carried by exploration rows.
const SignalExplore = "EXPLORE"

// DefaultSignalType is used when a legacy scanner fires without setting signal_type.
const DefaultSignalType = "BUY"

// Column is one AddColumn entry of an exploration row.
type Column struct {
	Name   string      `json:"name"`
	Value  interface{} `json:"value"`
	Format string      `json:"format"`
}

// ScanResult is the outcome for one symbol that produced something.
//
// Kind selects the variant: a legacy signal carries Signal and Metrics, an
// exploration row carries Columns (also flattened into Metrics).
type ScanResult struct {
	Symbol    string                 `json:"symbol"`
	Exchange  string                 `json:"exchange"`
	Kind      ResultKind             `json:"kind"`
	Signal    string                 `json:"signal"`
	Metrics   map[string]interface{} `json:"metrics"`
	Columns   []Column               `json:"columns,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// IsExploration reports whether the result is an exploration row.
func (r *ScanResult) IsExploration() bool {
	return r.Kind == KindExplore
}

// SymbolError records a per-symbol failure.
type SymbolError struct {
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange"`
	Message  string `json:"error"`
}

// BatchStatus is the terminal state of a batch.
type BatchStatus string

const (
	StatusCompleted       BatchStatus = "completed"
	StatusCancelled       BatchStatus = "cancelled"
	StatusValidationError BatchStatus = "validation_error"
)

// BatchResult aggregates one batch run.
type BatchResult struct {
	Status        BatchStatus   `json:"status"`
	Results       []ScanResult  `json:"results"`
	Errors        []SymbolError `json:"errors"`
	TotalScanned  int           `json:"total_scanned"`
	SignalsFound  int           `json:"signals_found"`
	ExecutionTime time.Duration `json:"-"`
	Error         string        `json:"error,omitempty"`
}

// ExecutionMillis returns the wall-clock time in milliseconds.
func (r *BatchResult) ExecutionMillis() int64 {
	return r.ExecutionTime.Milliseconds()
}

// ProgressFunc receives the completed percentage and the symbol just finished.
type ProgressFunc func(percent float64, symbol string)
