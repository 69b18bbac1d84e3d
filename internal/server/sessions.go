package server

import (
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"qaworkbench/internal/engine"
)

const defaultSessionCacheSize = 64

// liveSession serialises every request that touches one session.
type liveSession struct {
	mu sync.Mutex
	*engine.Session
}

// sessionStore keeps the most recently used sessions. Evicted sessions are
// closed once their in-flight request, if any, returns.
type sessionStore struct {
	cache *lru.Cache[uuid.UUID, *liveSession]
}

func newSessionStore(size int, log *zap.Logger) (*sessionStore, error) {
	if size <= 0 {
		size = defaultSessionCacheSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	cache, err := lru.NewWithEvict[uuid.UUID, *liveSession](size, func(id uuid.UUID, s *liveSession) {
		go func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.Close()
			log.Debug("session closed", zap.Stringer("session", id))
		}()
	})
	if err != nil {
		return nil, err
	}
	return &sessionStore{cache: cache}, nil
}

func (s *sessionStore) add(sess *engine.Session) *liveSession {
	ls := &liveSession{Session: sess}
	s.cache.Add(sess.ID, ls)
	return ls
}

func (s *sessionStore) get(id uuid.UUID) (*liveSession, bool) {
	return s.cache.Get(id)
}

func (s *sessionStore) remove(id uuid.UUID) bool {
	return s.cache.Remove(id)
}

func (s *sessionStore) purge() { s.cache.Purge() }
