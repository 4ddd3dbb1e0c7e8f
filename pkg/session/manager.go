package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/yurifrl/exoprep/pkg/store"
)

// Manager tracks the sessions of a running server. Sessions idle for longer
// than ttl are dropped; a zero ttl keeps them forever.
type Manager struct {
	sessions  sync.Map
	predictor Predictor
	results   store.Store
	timeout   time.Duration
	ttl       time.Duration
	logger    *log.Logger

	now       func() time.Time
	lastSweep atomic.Int64
}

func NewManager(predictor Predictor, results store.Store, timeout, ttl time.Duration, logger *log.Logger) *Manager {
	return &Manager{
		predictor: predictor,
		results:   results,
		timeout:   timeout,
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
	}
}

// Lookup returns the live session with id without creating one.
func (m *Manager) Lookup(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	m.maybeSweep()

	v, ok := m.sessions.Load(id)
	if !ok {
		return nil, false
	}
	s, ok := v.(*Session)
	if !ok {
		return nil, false
	}
	now := m.now()
	if m.expired(s, now) {
		m.sessions.Delete(id)
		m.logger.Debug("session expired", "session", id)
		return nil, false
	}
	s.lastSeen.Store(now.UnixNano())
	return s, true
}

// Get returns the session with id, creating a new one when id is empty,
// unknown or expired. The returned session's ID may differ from id.
func (m *Manager) Get(id string) *Session {
	if s, ok := m.Lookup(id); ok {
		return s
	}
	s := New(uuid.NewString(), m.predictor, m.results, m.timeout, m.logger)
	s.lastSeen.Store(m.now().UnixNano())
	m.sessions.Store(s.ID, s)
	m.logger.Debug("session created", "session", s.ID)
	return s
}

// SetClock replaces the time source used for expiry. It must be called
// before the manager is shared.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Len returns the number of tracked sessions.
func (m *Manager) Len() int {
	n := 0
	m.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Sweep drops every expired session.
func (m *Manager) Sweep() {
	now := m.now()
	m.lastSweep.Store(now.UnixNano())
	dropped := 0
	m.sessions.Range(func(k, v any) bool {
		if s, ok := v.(*Session); !ok || m.expired(s, now) {
			m.sessions.Delete(k)
			dropped++
		}
		return true
	})
	if dropped > 0 {
		m.logger.Debug("expired sessions dropped", "count", dropped)
	}
}

// maybeSweep runs Sweep at most once per ttl.
func (m *Manager) maybeSweep() {
	if m.ttl <= 0 {
		return
	}
	if m.now().UnixNano()-m.lastSweep.Load() >= int64(m.ttl) {
		m.Sweep()
	}
}

// expired reports whether s has been idle past ttl. A session with a
// submission in flight never expires.
func (m *Manager) expired(s *Session, now time.Time) bool {
	if m.ttl <= 0 || s.Submitting() {
		return false
	}
	return now.UnixNano()-s.lastSeen.Load() > int64(m.ttl)
}
