// Package cancel provides a cooperative, one-way cancellation token shared
// across goroutines. Unlike context cancellation it carries no deadline or
// parent chain: any holder may trip it exactly once, and readers poll it at
// their own suspension points.
package cancel

import "sync"

// Token is a one-way cancellation flag. The zero value is not usable; create
// tokens with NewToken. Cancel may be called concurrently from any number of
// goroutines.
type Token struct {
	once sync.Once
	done chan struct{}
}

// NewToken creates an active token.
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Cancel trips the token. Idempotent.
func (t *Token) Cancel() {
	t.once.Do(func() { close(t.done) })
}

// Cancelled reports whether the token has been tripped.
func (t *Token) Cancelled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the token is tripped, for use in select.
func (t *Token) Done() <-chan struct{} {
	return t.done
}
