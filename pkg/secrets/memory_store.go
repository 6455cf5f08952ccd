package secrets

import "sync"

// MemoryStore is a volatile Store for tests and ephemeral runs.
type MemoryStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{secrets: make(map[string]string)}
}

func (m *MemoryStore) Put(token, cookieMaterial string) error {
	if token == "" {
		return ErrInvalidToken
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[token] = cookieMaterial
	return nil
}

func (m *MemoryStore) Get(token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	material, ok := m.secrets[token]
	if !ok {
		return "", ErrNotFound
	}
	return material, nil
}

func (m *MemoryStore) Delete(token string) error {
	if token == "" {
		return ErrInvalidToken
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.secrets[token]; !ok {
		return ErrNotFound
	}
	delete(m.secrets, token)
	return nil
}
