package secrets

import (
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "fastmp"
	keyringPrefix  = "mp_session_"
)

// KeyringStore keeps cookie material in the system keychain.
type KeyringStore struct{}

// NewKeyringStore probes the keychain and fails fast when it is absent,
// so the manager can fall through to the encrypted file.
func NewKeyringStore() (*KeyringStore, error) {
	testKey := "test_availability"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, testKey)

	return &KeyringStore{}, nil
}

func (k *KeyringStore) Put(token, cookieMaterial string) error {
	if token == "" {
		return ErrInvalidToken
	}
	if err := keyring.Set(keyringService, keyringPrefix+token, cookieMaterial); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}
	return nil
}

func (k *KeyringStore) Get(token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}
	material, err := keyring.Get(keyringService, keyringPrefix+token)
	if err != nil {
		if err == keyring.ErrNotFound {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to retrieve from keyring: %w", err)
	}
	return material, nil
}

func (k *KeyringStore) Delete(token string) error {
	if token == "" {
		return ErrInvalidToken
	}
	err := keyring.Delete(keyringService, keyringPrefix+token)
	if err != nil {
		if err == keyring.ErrNotFound {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return nil
}
