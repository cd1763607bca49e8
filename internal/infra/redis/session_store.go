package redis

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"livepoll-service/internal/app"
	"livepoll-service/internal/domain"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - Sessions themselves stay in a local map; aggregation and broadcast are
//     in-process.
//   - Redis holds a liveness marker per access code whose value is the
//     current question position, so a restarted process resumes on the
//     question the presenter was showing.
type SessionStore struct {
	client  *redis.Client
	ttl     time.Duration
	timeout time.Duration
	logger  *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *SessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		timeout:  time.Second,
		logger:   logger,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Create(code string, session *app.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[code]; ok && !existing.Ended() {
		return domain.ErrDuplicateSession
	}
	s.sessions[code] = session
	s.SavePosition(code, session.Position())
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
	ctx, cancel := s.ctx()
	defer cancel()
	if err := s.client.Del(ctx, s.key(code)).Err(); err != nil {
		s.logger.Warn("delete session marker", zap.String("code", code), zap.Error(err))
	}
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

// SavePosition is best-effort; a lost write only affects resume after a restart.
func (s *SessionStore) SavePosition(code string, position int) {
	ctx, cancel := s.ctx()
	defer cancel()
	if err := s.client.Set(ctx, s.key(code), position, s.ttl).Err(); err != nil {
		s.logger.Warn("save session position", zap.String("code", code), zap.Error(err))
	}
}

func (s *SessionStore) LoadPosition(code string) (int, bool) {
	ctx, cancel := s.ctx()
	defer cancel()
	raw, err := s.client.Get(ctx, s.key(code)).Result()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("load session position", zap.String("code", code), zap.Error(err))
		}
		return 0, false
	}
	pos, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return pos, true
}

func (s *SessionStore) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *SessionStore) key(code string) string {
	return "poll:session:" + code
}
