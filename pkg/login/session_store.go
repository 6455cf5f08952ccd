package login

import (
	"sync"
	"time"
)

// Session is one in-flight QR handshake. The provider client carries the
// cookie jar the handshake is bound to, so the same client must serve
// every round-trip for the session's lifetime.
type Session struct {
	Key       string
	Client    ProviderClient
	QRImage   []byte
	State     State
	Owner     string
	CreatedAt time.Time
}

// Store holds in-flight sessions keyed by login key. Implementations must
// evict entries older than their TTL before serving any access, so a
// lookup after expiry behaves exactly like a lookup that never matched.
// Get hands out a private copy; a mutation becomes visible to other
// callers only once written back through Put.
type Store interface {
	Get(key string) (*Session, bool)
	Put(key string, session *Session)
	Delete(key string)
	Sweep()
}

// memoryStore is a single-process Store: a map behind a mutex with the
// sweep folded into every access.
type memoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryStore creates an in-memory session store with the given TTL.
func NewMemoryStore(ttl time.Duration) Store {
	return &memoryStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// sweepLocked drops expired entries. Callers must hold mu.
func (s *memoryStore) sweepLocked() {
	cutoff := s.now().Add(-s.ttl)
	for key, session := range s.sessions {
		if session.CreatedAt.Before(cutoff) {
			delete(s.sessions, key)
		}
	}
}

func (s *memoryStore) Get(key string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	session, ok := s.sessions[key]
	if !ok {
		return nil, false
	}
	cp := *session
	return &cp, true
}

func (s *memoryStore) Put(key string, session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	cp := *session
	s.sessions[key] = &cp
}

func (s *memoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	delete(s.sessions, key)
}

func (s *memoryStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
}
