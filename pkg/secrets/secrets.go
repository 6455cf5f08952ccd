package secrets

import (
	"errors"
	"fmt"
)

// Store holds provider cookie material keyed by credential token. Cookie
// headers never touch the relational store; they live here.
type Store interface {
	Put(token, cookieMaterial string) error
	Get(token string) (string, error)
	Delete(token string) error
}

var (
	ErrNotFound         = errors.New("secret not found")
	ErrInvalidToken     = errors.New("invalid token")
	ErrStoreUnavailable = errors.New("secret store unavailable")
)

// Manager chains stores: writes go to every store that accepts them,
// reads come from the first store that answers. The system keychain is
// preferred when present; the encrypted file is the portable fallback.
type Manager struct {
	stores []Store
}

// NewManager builds the default chain for the given encrypted-file path.
func NewManager(encryptedFilePath string) (*Manager, error) {
	var stores []Store

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	encryptedStore, err := NewEncryptedFileStore(encryptedFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores builds a manager over an explicit chain.
func NewManagerWithStores(stores ...Store) *Manager {
	return &Manager{stores: stores}
}

// Put writes the secret to the first store that accepts it.
func (m *Manager) Put(token, cookieMaterial string) error {
	if token == "" {
		return ErrInvalidToken
	}

	var lastErr error
	for _, store := range m.stores {
		if err := store.Put(token, cookieMaterial); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store secret: %w", lastErr)
	}
	return ErrStoreUnavailable
}

// Get reads the secret from the first store that has it.
func (m *Manager) Get(token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}
	for _, store := range m.stores {
		if material, err := store.Get(token); err == nil {
			return material, nil
		}
	}
	return "", ErrNotFound
}

// Delete removes the secret from every store that holds it.
func (m *Manager) Delete(token string) error {
	if token == "" {
		return ErrInvalidToken
	}

	var deleted bool
	var lastErr error
	for _, store := range m.stores {
		if err := store.Delete(token); err == nil {
			deleted = true
		} else if !errors.Is(err, ErrNotFound) {
			lastErr = err
		}
	}

	if deleted {
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("failed to delete secret: %w", lastErr)
	}
	return ErrNotFound
}
