package httpapi

import (
	"sync"
	"sync/atomic"
	"time"
)

// SessionRegistry tracks active verification sessions and supports
// graceful draining. When draining is enabled, new sessions are rejected
// while in-flight sessions finish naturally.
//
// The mu mutex makes the draining check and wg.Add atomic in Add(),
// preventing a TOCTOU race where StartDraining+Wait could be called
// between the draining check and wg.Add.
type SessionRegistry struct {
	mu       sync.Mutex
	draining bool
	sessions map[string]*pipelineSession
	wg       sync.WaitGroup
	count    atomic.Int64
}

// NewSessionRegistry creates a new SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*pipelineSession)}
}

// Add reserves a slot for a new session. Returns false if the registry
// is draining, meaning no new sessions should be accepted. The draining
// check and WaitGroup increment are performed atomically under a mutex.
// Callers attach the built session with Register once it exists.
func (sr *SessionRegistry) Add() bool {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if sr.draining {
		return false
	}
	sr.wg.Add(1)
	sr.count.Add(1)
	return true
}

// Register makes a session visible to lookups and the reaper. Must
// follow a successful Add.
func (sr *SessionRegistry) Register(ps *pipelineSession) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.sessions[ps.id] = ps
}

// Done marks a session as completed. Must be called exactly once per
// successful Add.
func (sr *SessionRegistry) Done(sessionID string) {
	sr.mu.Lock()
	delete(sr.sessions, sessionID)
	sr.mu.Unlock()
	sr.count.Add(-1)
	sr.wg.Done()
}

// Get returns the live session with the given ID, or nil.
func (sr *SessionRegistry) Get(sessionID string) *pipelineSession {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.sessions[sessionID]
}

// Snapshot returns summaries of all live sessions.
func (sr *SessionRegistry) Snapshot() []SessionSummary {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	out := make([]SessionSummary, 0, len(sr.sessions))
	for _, ps := range sr.sessions {
		out = append(out, ps.summary())
	}
	return out
}

// ReapIdle closes sessions whose last activity is older than maxAge and
// returns how many were closed. Closing happens outside the registry
// lock so session teardown can call Done without deadlocking.
func (sr *SessionRegistry) ReapIdle(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	sr.mu.Lock()
	var stale []*pipelineSession
	for _, ps := range sr.sessions {
		if ps.lastActivityTime().Before(cutoff) {
			stale = append(stale, ps)
		}
	}
	sr.mu.Unlock()

	for _, ps := range stale {
		ps.shutdown("reaped")
	}
	return len(stale)
}

// StartDraining sets the draining flag so that future Add calls return
// false. This is safe to call concurrently with Add.
func (sr *SessionRegistry) StartDraining() {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.draining = true
}

// IsDraining reports whether the registry is in draining mode.
func (sr *SessionRegistry) IsDraining() bool {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.draining
}

// ActiveCount returns the number of currently active sessions.
func (sr *SessionRegistry) ActiveCount() int64 {
	return sr.count.Load()
}

// Wait blocks until all active sessions have completed.
func (sr *SessionRegistry) Wait() {
	sr.wg.Wait()
}
