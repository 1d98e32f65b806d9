package generation

import (
	"context"
	"sync"
)

// Token identifies one generation started through a SessionRegistry.
type Token uint64

type activeGeneration struct {
	token  Token
	cancel context.CancelFunc
}

// SessionRegistry tracks the in-flight generation of each caller session.
// Starting a new generation for a session cancels the previous one, and
// IsCurrent lets callers drop results that finished after being replaced.
// Requests without a session ID are never superseded.
type SessionRegistry struct {
	mu       sync.Mutex
	next     Token
	sessions map[string]activeGeneration
}

// NewSessionRegistry creates an empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]activeGeneration)}
}

// Begin registers a new generation for sessionID, cancelling any generation
// the session already has in flight.
//
// Parameters:
//   - ctx: The parent context of the new generation
//   - sessionID: The caller's session; empty disables supersession
//
// Returns:
//   - A context cancelled when the generation is superseded or released
//   - The token identifying this generation
//   - A release function that must be called when the generation is done
func (r *SessionRegistry) Begin(ctx context.Context, sessionID string) (context.Context, Token, func()) {
	genCtx, cancel := context.WithCancel(ctx)
	if sessionID == "" {
		return genCtx, 0, cancel
	}

	r.mu.Lock()
	if prev, ok := r.sessions[sessionID]; ok {
		prev.cancel()
	}
	r.next++
	token := r.next
	r.sessions[sessionID] = activeGeneration{token: token, cancel: cancel}
	r.mu.Unlock()

	release := func() {
		r.mu.Lock()
		if current, ok := r.sessions[sessionID]; ok && current.token == token {
			delete(r.sessions, sessionID)
		}
		r.mu.Unlock()
		cancel()
	}
	return genCtx, token, release
}

// IsCurrent reports whether token is still the latest generation of sessionID.
// It must be called before the generation's release function runs.
func (r *SessionRegistry) IsCurrent(sessionID string, token Token) bool {
	if sessionID == "" {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.sessions[sessionID]
	return ok && current.token == token
}

// Cancel aborts the in-flight generation of sessionID, if any.
// Returns true when a generation was cancelled.
func (r *SessionRegistry) Cancel(sessionID string) bool {
	if sessionID == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	current.cancel()
	delete(r.sessions, sessionID)
	return true
}

// Active returns the number of sessions with a generation in flight.
func (r *SessionRegistry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
