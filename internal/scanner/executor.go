package scanner

import (
	"fmt"
	"time"

	"go.starlark.net/starlark"

	"github.com/wonny/fluxscan/pkg/logger"
)

// Executor runs a compiled scanner against one symbol at a time.
type Executor struct {
	maxSteps uint64
	logger   *logger.Logger
	now      func() time.Time
}

// NewExecutor creates an Executor. maxSteps bounds the Starlark steps of a
// single execution; 0 means unlimited.
func NewExecutor(maxSteps uint64, log *logger.Logger) *Executor {
	return &Executor{
		maxSteps: maxSteps,
		logger:   log.WithField("module", "executor"),
		now:      time.Now,
	}
}

// Run executes prog for one symbol in a fresh environment and extracts the
// result. It returns (nil, nil) when the script reports nothing. Every
// failure, including a panic inside a helper, is an *ExecutionError.
func (e *Executor) Run(prog *Program, ns *Namespace, task SymbolTask, series *Series) (res *ScanResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = &ExecutionError{Symbol: task.Symbol, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	env := ns.Enrich(task.Symbol, task.Exchange, series)
	thread := e.newThread(task)

	globals, err := prog.prog.Init(thread, env.predeclared)
	if err != nil {
		return nil, &ExecutionError{Symbol: task.Symbol, Err: err}
	}
	return extract(task, globals, env.columns, e.now()), nil
}

func (e *Executor) newThread(task SymbolTask) *starlark.Thread {
	log := e.logger.WithField("symbol", task.Symbol)
	thread := &starlark.Thread{
		Name: "scan:" + task.Symbol,
		Print: func(_ *starlark.Thread, msg string) {
			log.Debug(msg)
		},
		Load: loadModule,
	}
	if e.maxSteps > 0 {
		thread.SetMaxExecutionSteps(e.maxSteps)
	}
	return thread
}
