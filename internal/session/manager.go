package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/informes/backend/internal/clock"
	"github.com/informes/backend/internal/models"
	"github.com/informes/backend/internal/workflow"
)

// MaxSessions limits concurrent intake sessions
const MaxSessions = 100

// SessionMaxAge is how long an untouched session is kept before cleanup
const SessionMaxAge = 30 * time.Minute

// SessionKeepAliveWindow protects recently used sessions from cleanup
const SessionKeepAliveWindow = 5 * time.Minute

// ErrTooManySessions is returned when every slot holds a busy session.
var ErrTooManySessions = errors.New("too many active sessions")

// Factory builds the controller for a new session.
type Factory func(id string, variant models.Variant) (*workflow.Controller, error)

// Manager owns the intake sessions of the server.
type Manager struct {
	sessions    map[string]*SessionState
	mu          sync.RWMutex
	factory     Factory
	clock       clock.Clock
	maxSessions int
	logger      *slog.Logger
}

// SessionState holds one session and its bookkeeping.
type SessionState struct {
	ID         string
	Variant    models.Variant
	Controller *workflow.Controller
	CreatedAt  time.Time

	lastAccessed atomic.Int64 // unix nanos
}

// LastAccessed returns when the session was last used.
func (s *SessionState) LastAccessed() time.Time {
	return time.Unix(0, s.lastAccessed.Load())
}

func (s *SessionState) touch(t time.Time) {
	s.lastAccessed.Store(t.UnixNano())
}

// Info returns the API view of the session.
func (s *SessionState) Info() models.SessionInfo {
	return models.SessionInfo{
		ID:           s.ID,
		Variant:      s.Variant,
		CreatedAt:    s.CreatedAt,
		LastAccessed: s.LastAccessed(),
	}
}

// NewManager creates a session manager. A nil clock means wall time.
func NewManager(factory Factory, clk clock.Clock) *Manager {
	return NewManagerWithLimit(factory, clk, MaxSessions)
}

// NewManagerWithLimit creates a session manager holding at most max sessions.
func NewManagerWithLimit(factory Factory, clk clock.Clock, max int) *Manager {
	if clk == nil {
		clk = clock.Real()
	}
	if max <= 0 {
		max = MaxSessions
	}
	return &Manager{
		sessions:    make(map[string]*SessionState),
		factory:     factory,
		clock:       clk,
		maxSessions: max,
		logger:      slog.With("component", "sessions"),
	}
}

// Create starts a new session of the given variant. At capacity the least
// recently used idle session is evicted.
func (m *Manager) Create(variant models.Variant) (*SessionState, error) {
	if err := m.evictIfNeeded(); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	ctrl, err := m.factory(id, variant)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	now := m.clock.Now()
	state := &SessionState{
		ID:         id,
		Variant:    ctrl.Variant(),
		Controller: ctrl,
		CreatedAt:  now,
	}
	state.touch(now)

	m.mu.Lock()
	m.sessions[id] = state
	m.mu.Unlock()

	m.logger.Info("session created", "id", id, "variant", state.Variant)
	return state, nil
}

func (m *Manager) evictIfNeeded() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) < m.maxSessions {
		return nil
	}

	candidates := make([]*SessionState, 0, len(m.sessions))
	for _, state := range m.sessions {
		if !state.Controller.Loading() {
			candidates = append(candidates, state)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].LastAccessed().Before(candidates[j].LastAccessed())
	})

	toFree := len(m.sessions) - m.maxSessions + 1
	if len(candidates) < toFree {
		return ErrTooManySessions
	}
	for _, state := range candidates[:toFree] {
		state.Controller.Close()
		delete(m.sessions, state.ID)
		m.logger.Info("evicted session to free a slot", "id", state.ID)
	}
	return nil
}

// Get returns a session and marks it as used.
func (m *Manager) Get(id string) (*SessionState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	state.touch(m.clock.Now())
	return state, true
}

// Touch updates the last access time of a session.
func (m *Manager) Touch(id string) bool {
	_, ok := m.Get(id)
	return ok
}

// Delete closes and removes a session.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	state, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return false
	}
	state.Controller.Close()
	m.logger.Info("session closed", "id", id)
	return true
}

// List returns every session, most recently used first.
func (m *Manager) List() []models.SessionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.SessionInfo, 0, len(m.sessions))
	for _, state := range m.sessions {
		out = append(out, state.Info())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastAccessed.After(out[j].LastAccessed)
	})
	return out
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CleanupOldSessions removes sessions untouched for longer than maxAge.
// Sessions with a submission in flight are kept.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	now := m.clock.Now()
	cutoff := now.Add(-maxAge)
	keepAliveCutoff := now.Add(-SessionKeepAliveWindow)

	m.mu.Lock()
	var expired []*SessionState
	for id, state := range m.sessions {
		last := state.LastAccessed()
		if last.After(keepAliveCutoff) || !last.Before(cutoff) {
			continue
		}
		if state.Controller.Loading() {
			continue
		}
		delete(m.sessions, id)
		expired = append(expired, state)
	}
	m.mu.Unlock()

	for _, state := range expired {
		state.Controller.Close()
		m.logger.Info("cleaned up aged session", "id", state.ID,
			"idle", now.Sub(state.LastAccessed()).Round(time.Second))
	}
	return len(expired)
}

// Close closes every session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*SessionState)
	m.mu.Unlock()

	for _, state := range sessions {
		state.Controller.Close()
	}
}
