package session

import (
	"sync"

	"github.com/inkwell-ai/inkwell/internal/cancel"
)

// Registry maps live session IDs to their cancellation tokens. Entries are
// inserted when a session starts and removed when it reaches its terminal
// event, so a lookup miss means the session is unknown or already finished.
type Registry struct {
	mu     sync.Mutex
	tokens map[string]*cancel.Token
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tokens: make(map[string]*cancel.Token)}
}

// Add registers a session's token.
func (r *Registry) Add(id string, tok *cancel.Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[id] = tok
}

// Remove deregisters a session. Safe to call for unknown IDs.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, id)
}

// Cancel trips the token for a session, if still registered. Returns false
// for unknown or already-completed sessions; the call is always a no-op in
// that case.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	tok, ok := r.tokens[id]
	r.mu.Unlock()

	if !ok {
		return false
	}
	tok.Cancel()
	return true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens)
}
