package memory

import (
	"sync"

	"livepoll-service/internal/app"
	"livepoll-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
type SessionStore struct {
	mu        sync.RWMutex
	sessions  map[string]*app.Session
	positions map[string]int
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions:  make(map[string]*app.Session),
		positions: make(map[string]int),
	}
}

func (s *SessionStore) Create(code string, session *app.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[code]; ok && !existing.Ended() {
		return domain.ErrDuplicateSession
	}
	s.sessions[code] = session
	s.positions[code] = session.Position()
	return nil
}

func (s *SessionStore) Get(code string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[code]
	return session, ok
}

func (s *SessionStore) Delete(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, code)
	delete(s.positions, code)
}

func (s *SessionStore) List() []*app.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*app.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	return out
}

func (s *SessionStore) SavePosition(code string, position int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[code] = position
}

func (s *SessionStore) LoadPosition(code string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.positions[code]
	return pos, ok
}
