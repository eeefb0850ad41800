package session

import (
	"sync"
	"sync/atomic"
)

// Token is the cancellation flag for one in-flight generation. It is owned
// by the generation that created it; the registry only tracks which token is
// current for a session. A token stays valid for holders after it is
// replaced in the registry, but new stop requests no longer reach it.
type Token struct {
	set atomic.Bool
}

// IsSet reports whether the token has been signalled. Non-blocking.
func (t *Token) IsSet() bool {
	return t.set.Load()
}

// trip sets the flag outside the registry path. The supervisor trips the
// token when it abandons a worker on deadline or caller cancellation, so the
// worker's relay output stays suppressed.
func (t *Token) trip() {
	t.set.Store(true)
}

// Registry maps a session to its single live cancellation token. At most one
// token per session is registered at a time.
type Registry struct {
	mu     sync.Mutex
	tokens map[string]*Token
}

// NewRegistry creates an empty cancellation registry.
func NewRegistry() *Registry {
	return &Registry{tokens: make(map[string]*Token)}
}

// Begin creates and registers a fresh unset token for the session, replacing
// any previous registration.
func (r *Registry) Begin(sessionID string) *Token {
	r.mu.Lock()
	defer r.mu.Unlock()

	token := &Token{}
	r.tokens[sessionID] = token
	return token
}

// Signal sets the flag on the session's currently registered token and
// reports whether one was found.
func (r *Registry) Signal(sessionID string) bool {
	r.mu.Lock()
	token, ok := r.tokens[sessionID]
	r.mu.Unlock()

	if !ok {
		return false
	}
	token.set.Store(true)
	return true
}

// End removes the session's registration only if it still points at the
// caller's token. A stale End — the registry already holds a newer token —
// is a silent no-op, so a finished generation can never clobber its
// successor's registration.
func (r *Registry) End(sessionID string, token *Token) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.tokens[sessionID]; ok && current == token {
		delete(r.tokens, sessionID)
	}
}

// Live reports whether the session has an unsignalled registered token,
// i.e. a generation is in flight that nobody has asked to stop yet. A
// signalled token winding down does not block the next message.
func (r *Registry) Live(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.tokens[sessionID]
	return ok && !token.IsSet()
}
