package session

import (
	"sync"

	"go.uber.org/zap"
)

// Manager tracks live sessions keyed by account ID.
type Manager struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
	logger   *zap.Logger
}

func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		sessions: make(map[int64]*Session),
		logger:   logger,
	}
}

// Register stores a session. If the account already has a live session the
// old one is closed and displaced by the new one.
func (m *Manager) Register(s *Session) {
	m.mu.Lock()
	old, exists := m.sessions[s.AccountID]
	m.sessions[s.AccountID] = s
	m.mu.Unlock()

	if exists && old != s {
		m.logger.Info("displacing duplicate session",
			zap.Int64("account_id", s.AccountID))
		old.Close()
	}
}

// Unregister removes s if it is still the registered session for its account.
func (m *Manager) Unregister(s *Session) {
	m.mu.Lock()
	if cur, ok := m.sessions[s.AccountID]; ok && cur == s {
		delete(m.sessions, s.AccountID)
	}
	m.mu.Unlock()
}

func (m *Manager) Get(accountID int64) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[accountID]
	return s, ok
}

// GM returns the first connected session with the gm role, if any.
func (m *Manager) GM() (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.Role == "gm" && !s.IsClosed() {
			return s, true
		}
	}
	return nil, false
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Broadcast sends pkt to every live session.
func (m *Manager) Broadcast(pkt *Packet) {
	m.mu.RLock()
	targets := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		targets = append(targets, s)
	}
	m.mu.RUnlock()

	for _, s := range targets {
		s.Send(pkt)
	}
}
