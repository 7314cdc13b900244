// Package cancel provides the cooperative cancellation flag shared between a caller
// and the worker loops it starts.
package cancel

import (
	"errors"
	"sync/atomic"
)

// ErrCancelled is returned by worker loops that observed a cancelled token. It is
// a user decision, not a failure.
var ErrCancelled = errors.New("operation cancelled by user")

// Token is a shared cancellation flag. Once set it stays set until Reset.
// The zero value is ready to use; copy the pointer, not the value.
type Token struct {
	cancelled atomic.Bool
}

// New returns a fresh, unset token.
func New() *Token {
	return &Token{}
}

// Cancel sets the flag.
func (t *Token) Cancel() {
	t.cancelled.Store(true)
}

// Cancelled reports whether Cancel was called. A nil token is never cancelled.
func (t *Token) Cancelled() bool {
	return t != nil && t.cancelled.Load()
}

// Reset clears the flag for a new run.
func (t *Token) Reset() {
	t.cancelled.Store(false)
}

// Check returns ErrCancelled if the token is set.
func (t *Token) Check() error {
	if t.Cancelled() {
		return ErrCancelled
	}
	return nil
}

// IsCancelled reports whether err is, or wraps, ErrCancelled.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
