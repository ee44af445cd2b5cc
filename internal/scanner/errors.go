package scanner

import (
	"fmt"
	"strings"
)

// ValidationError is returned when code fails static gating.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "scanner validation failed: " + strings.Join(e.Errors, "; ")
}

// CompilationError is returned when code cannot be compiled for a batch.
type CompilationError struct {
	Err error
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("scanner code compilation failed: %v", e.Err)
}

func (e *CompilationError) Unwrap() error { return e.Err }

// ExecutionError wraps any failure while processing one symbol.
type ExecutionError struct {
	Symbol string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("scanner execution failed for %s: %v", e.Symbol, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
