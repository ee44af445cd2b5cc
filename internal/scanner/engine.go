package scanner

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wonny/fluxscan/internal/metrics"
	"github.com/wonny/fluxscan/pkg/logger"
)

// Config holds engine configuration.
type Config struct {
	Workers  int    // worker pool size for parallel batches
	MaxSteps uint64 // per-execution Starlark step budget, 0 = unlimited
}

// Engine orchestrates batches: compile once, then fetch and execute every
// symbol task, isolating per-symbol failures.
type Engine struct {
	provider SeriesProvider
	executor *Executor
	workers  int
	logger   *logger.Logger
}

// NewEngine creates an Engine.
func NewEngine(provider SeriesProvider, cfg Config, log *logger.Logger) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	return &Engine{
		provider: provider,
		executor: NewExecutor(cfg.MaxSteps, log),
		workers:  cfg.Workers,
		logger:   log.WithField("module", "scanner"),
	}
}

// Request describes one batch.
type Request struct {
	Code     string   // scanner body, validated and compiled by Execute
	Program  *Program // precompiled body, used instead of Code when set
	Tasks    []SymbolTask
	Params   Params
	Parallel bool
	Workers  int // overrides the engine's pool size when > 0
	Progress ProgressFunc
	Cancel   *CancelToken
}

type outcome struct {
	index   int
	task    SymbolTask
	result  *ScanResult
	err     error
	skipped bool
}

// Execute runs a batch and always returns a result. Validation and
// compilation failures produce StatusValidationError with nothing scanned.
// Cancellation (the request's token or ctx) stops new tasks from starting
// and yields StatusCancelled with whatever was collected.
func (e *Engine) Execute(ctx context.Context, req Request) *BatchResult {
	start := time.Now()

	prog, err := e.prepare(req)
	if err != nil {
		return e.finish(validationFailure(err), start)
	}
	ns, err := NewNamespace(req.Params)
	if err != nil {
		return e.finish(validationFailure(err), start)
	}

	tasks := resolveTasks(req.Tasks, req.Params)
	workers := e.workers
	if req.Workers > 0 {
		workers = req.Workers
	}

	e.logger.WithFields(map[string]interface{}{
		"symbols":  len(tasks),
		"parallel": req.Parallel,
		"workers":  workers,
	}).Info("Starting scanner batch")

	var outcomes []outcome
	var cancelled bool
	if req.Parallel && workers > 1 && len(tasks) > 1 {
		outcomes, cancelled = e.runParallel(ctx, prog, ns, tasks, workers, req)
	} else {
		outcomes, cancelled = e.runSequential(ctx, prog, ns, tasks, req)
	}

	return e.finish(assemble(outcomes, cancelled), start)
}

func (e *Engine) prepare(req Request) (*Program, error) {
	if req.Program != nil {
		return req.Program, nil
	}
	if err := Validate(req.Code).Err(); err != nil {
		return nil, err
	}
	return Compile(req.Code)
}

func (e *Engine) runSequential(ctx context.Context, prog *Program, ns *Namespace, tasks []SymbolTask, req Request) ([]outcome, bool) {
	outcomes := make([]outcome, 0, len(tasks))
	for i, task := range tasks {
		if isCancelled(ctx, req.Cancel) {
			return outcomes, true
		}
		out := e.processTask(ctx, prog, ns, i, task)
		if out.err != nil {
			e.logger.WithError(out.err).WithField("symbol", task.Symbol).Debug("Symbol task failed")
		}
		outcomes = append(outcomes, out)
		if req.Progress != nil {
			req.Progress(percent(len(outcomes), len(tasks)), task.Symbol)
		}
	}
	return outcomes, isCancelled(ctx, req.Cancel)
}

func (e *Engine) runParallel(ctx context.Context, prog *Program, ns *Namespace, tasks []SymbolTask, workers int, req Request) ([]outcome, bool) {
	if workers > len(tasks) {
		workers = len(tasks)
	}

	taskCh := make(chan outcome, len(tasks))
	for i, task := range tasks {
		taskCh <- outcome{index: i, task: task}
	}
	close(taskCh)

	resultCh := make(chan outcome, len(tasks))
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
		skipped   atomic.Bool
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for item := range taskCh {
				if isCancelled(ctx, req.Cancel) {
					skipped.Store(true)
					continue
				}
				out := e.processTask(ctx, prog, ns, item.index, item.task)
				if out.err != nil {
					e.logger.WithError(out.err).WithFields(map[string]interface{}{
						"worker": workerID,
						"symbol": item.task.Symbol,
					}).Debug("Symbol task failed")
				}
				resultCh <- out

				mu.Lock()
				completed++
				if req.Progress != nil {
					req.Progress(percent(completed, len(tasks)), item.task.Symbol)
				}
				mu.Unlock()
			}
		}(w)
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	outcomes := make([]outcome, 0, len(tasks))
	for out := range resultCh {
		outcomes = append(outcomes, out)
	}
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].index < outcomes[j].index })

	return outcomes, skipped.Load() || isCancelled(ctx, req.Cancel)
}

// processTask fetches one symbol's series and runs the scanner on it.
// Nothing escapes this boundary except the returned outcome.
func (e *Engine) processTask(ctx context.Context, prog *Program, ns *Namespace, index int, task SymbolTask) (out outcome) {
	out = outcome{index: index, task: task}
	defer func() {
		if r := recover(); r != nil {
			out.result = nil
			out.err = &ExecutionError{Symbol: task.Symbol, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	series, err := e.provider.History(ctx, task.Symbol, task.Exchange, task.Interval, task.LookbackDays)
	if err != nil {
		out.err = &ExecutionError{Symbol: task.Symbol, Err: fmt.Errorf("fetch series: %w", err)}
		return out
	}
	if series.Empty() {
		out.skipped = true
		return out
	}

	out.result, out.err = e.executor.Run(prog, ns, task, series)
	return out
}

func (e *Engine) finish(res *BatchResult, start time.Time) *BatchResult {
	res.ExecutionTime = time.Since(start)

	metrics.BatchesTotal.WithLabelValues(string(res.Status)).Inc()
	metrics.BatchDuration.Observe(res.ExecutionTime.Seconds())

	log := e.logger.WithFields(map[string]interface{}{
		"status":        res.Status,
		"total_scanned": res.TotalScanned,
		"signals_found": res.SignalsFound,
		"errors":        len(res.Errors),
		"elapsed_ms":    res.ExecutionMillis(),
	})
	if res.Status == StatusValidationError {
		log.WithField("error", res.Error).Warn("Scanner batch rejected")
	} else {
		log.Info("Scanner batch finished")
	}
	return res
}

func assemble(outcomes []outcome, cancelled bool) *BatchResult {
	res := &BatchResult{
		Status:  StatusCompleted,
		Results: make([]ScanResult, 0),
		Errors:  make([]SymbolError, 0),
	}
	if cancelled {
		res.Status = StatusCancelled
	}

	for _, o := range outcomes {
		res.TotalScanned++
		switch {
		case o.err != nil:
			res.Errors = append(res.Errors, SymbolError{
				Symbol:   o.task.Symbol,
				Exchange: o.task.Exchange,
				Message:  o.err.Error(),
			})
			metrics.SymbolsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		case o.skipped:
			metrics.SymbolsTotal.WithLabelValues(metrics.OutcomeSkipped).Inc()
		case o.result != nil:
			res.Results = append(res.Results, *o.result)
			metrics.SymbolsTotal.WithLabelValues(metrics.OutcomeSignal).Inc()
		default:
			metrics.SymbolsTotal.WithLabelValues(metrics.OutcomeNone).Inc()
		}
	}
	res.SignalsFound = len(res.Results)
	return res
}

func validationFailure(err error) *BatchResult {
	return &BatchResult{
		Status:  StatusValidationError,
		Results: make([]ScanResult, 0),
		Errors:  make([]SymbolError, 0),
		Error:   err.Error(),
	}
}

// resolveTasks fills missing exchange, interval and lookback from the
// batch parameters.
func resolveTasks(tasks []SymbolTask, params Params) []SymbolTask {
	exchange := stringParam(params, "exchange", DefaultExchange)
	interval := stringParam(params, "interval", DefaultInterval)
	lookback := intParam(params, "lookback_days", DefaultLookbackDays)

	out := make([]SymbolTask, len(tasks))
	for i, t := range tasks {
		if t.Exchange == "" {
			t.Exchange = exchange
		}
		if t.Interval == "" {
			t.Interval = interval
		}
		if t.LookbackDays <= 0 {
			t.LookbackDays = lookback
		}
		out[i] = t
	}
	return out
}

func stringParam(p Params, key, def string) string {
	if s, ok := p[key].(string); ok && s != "" {
		return s
	}
	return def
}

func intParam(p Params, key string, def int) int {
	if i, err := asInt(p[key]); err == nil && i > 0 {
		return int(i)
	}
	return def
}

func isCancelled(ctx context.Context, token *CancelToken) bool {
	return token.Cancelled() || ctx.Err() != nil
}

func percent(done, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(done) / float64(total) * 100
}
