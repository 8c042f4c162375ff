// Package registry is the single source of truth for which entities
// currently hold a live session. It is constructed once at process start
// and injected everywhere; nothing reaches it through package globals.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/telegate/telegate/internal/telegram"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusInactive Status = "inactive"
	StatusStarting Status = "starting"
	StatusActive   Status = "active"
	StatusError    Status = "error"
)

// Session is the transient runtime state of one started entity. It is
// created by the lifecycle controller and destroyed on stop or
// unrecoverable error; persisted rows outlive it.
type Session struct {
	Entity    telegram.EntityRef
	Transport telegram.Transport
	StartedAt time.Time

	mu     sync.Mutex
	status Status
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSession builds a session in Starting state. cancel must stop the
// session's adapter task; Finish is called when that task has exited.
func NewSession(entity telegram.EntityRef, transport telegram.Transport, cancel context.CancelFunc) *Session {
	return &Session{
		Entity:    entity,
		Transport: transport,
		StartedAt: time.Now(),
		status:    StatusStarting,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetStatus moves the session to a new lifecycle state.
func (s *Session) SetStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// Cancel signals the adapter task to stop. Safe to call more than once.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Finish marks the adapter task as exited. Safe to call more than once.
func (s *Session) Finish() {
	s.mu.Lock()
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	s.mu.Unlock()
}

// Done is closed once the adapter task has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Registry maps entities to their live sessions. All mutation serializes
// through one lock; the registry is small and mutation is rare relative
// to message throughput.
type Registry struct {
	mu       sync.RWMutex
	sessions map[telegram.EntityRef]*Session
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{sessions: make(map[telegram.EntityRef]*Session)}
}

// Register adds a session. Returns false if the entity already has one;
// the existing handle is kept, preventing orphaned duplicate connections.
func (r *Registry) Register(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.Entity]; ok {
		return false
	}
	r.sessions[s.Entity] = s
	return true
}

// Unregister removes an entity's session. Returns false if none existed.
func (r *Registry) Unregister(entity telegram.EntityRef) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[entity]; !ok {
		return false
	}
	delete(r.sessions, entity)
	return true
}

// Get returns the live session for an entity, if any.
func (r *Registry) Get(entity telegram.EntityRef) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[entity]
	return s, ok
}

// IsActive reports whether an entity has a session in Active state.
func (r *Registry) IsActive(entity telegram.EntityRef) bool {
	s, ok := r.Get(entity)
	return ok && s.Status() == StatusActive
}

// ListActive returns a snapshot of all registered entities.
func (r *Registry) ListActive() []telegram.EntityRef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	refs := make([]telegram.EntityRef, 0, len(r.sessions))
	for ref := range r.sessions {
		refs = append(refs, ref)
	}
	return refs
}
