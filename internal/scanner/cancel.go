package scanner

import "sync/atomic"

// CancelToken is a cooperative cancellation flag owned by one batch.
// It stops new symbol tasks from starting; a running script is never interrupted.
type CancelToken struct {
	flag atomic.Bool
}

// NewCancelToken returns an unset token.
func NewCancelToken() *CancelToken {
	return &CancelToken{}
}

// Cancel sets the flag. Safe to call more than once.
func (t *CancelToken) Cancel() {
	if t != nil {
		t.flag.Store(true)
	}
}

// Cancelled reports whether Cancel was called. A nil token is never cancelled.
func (t *CancelToken) Cancelled() bool {
	return t != nil && t.flag.Load()
}
