package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager manages all live sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	opts     Options
}

// NewManager creates a session manager. Every session it creates shares
// opts.
func NewManager(opts Options) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		opts:     opts.withDefaults(),
	}
}

// Create starts a new session on the landing screen.
func (m *Manager) Create() *Session {
	s := New(uuid.NewString(), m.opts)
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	m.opts.Logger.Debug("session created", "session", s.ID)
	return s
}

// Get returns a session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// List returns views of all live sessions.
func (m *Manager) List() []View {
	m.mu.RLock()
	defer m.mu.RUnlock()
	views := make([]View, 0, len(m.sessions))
	for _, s := range m.sessions {
		views = append(views, s.View())
	}
	return views
}

// Remove closes a session and forgets it.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.Close()
	}
	return ok
}

// CloseAll closes every session, disconnecting their subscribers.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}

// CleanupLoop removes idle sessions periodically until ctx is done.
func (m *Manager) CleanupLoop(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.cleanup(now, maxIdle)
		}
	}
}

func (m *Manager) cleanup(now time.Time, maxIdle time.Duration) int {
	m.mu.Lock()
	var stale []*Session
	for id, s := range m.sessions {
		idle, watched := s.Idle(now)
		if !watched && idle > maxIdle {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		m.opts.Logger.Info("cleaning up session", "session", s.ID)
		s.Close()
	}
	return len(stale)
}
