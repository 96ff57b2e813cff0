package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a thread-safe in-memory Store.
// Sessions are lost on server restart.
type MemoryStore struct {
	mu          sync.RWMutex
	data        map[string]Session
	idleTimeout time.Duration
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory session store.
// idleTimeout of 0 disables idle timeout checking.
func NewMemoryStore(idleTimeout time.Duration) *MemoryStore {
	return &MemoryStore{
		data:        make(map[string]Session),
		idleTimeout: idleTimeout,
	}
}

func (s *MemoryStore) Get(ctx context.Context, token string) (Session, bool) {
	s.mu.RLock()
	sess, ok := s.data[token]
	s.mu.RUnlock()
	if !ok {
		return Session{}, false
	}
	if !sess.Live(time.Now(), s.idleTimeout) {
		_ = s.Delete(ctx, token)
		return Session{}, false
	}
	return sess, true
}

func (s *MemoryStore) Put(_ context.Context, token string, sess Session) error {
	s.mu.Lock()
	s.data[token] = sess
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	delete(s.data, token)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored sessions, live or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
