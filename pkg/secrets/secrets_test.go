package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptedFileStoreRoundTrip(t *testing.T) {
	t.Setenv("FASTMP_PASSPHRASE", "test-passphrase")

	path := filepath.Join(t.TempDir(), "secrets.enc")
	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Put("998877", "slave_sid=abc; data_ticket=xyz; "))

	material, err := store.Get("998877")
	require.NoError(t, err)
	assert.Equal(t, "slave_sid=abc; data_ticket=xyz; ", material)

	// The file on disk must not contain the plaintext.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "slave_sid")
}

func TestEncryptedFileStoreSurvivesReopen(t *testing.T) {
	t.Setenv("FASTMP_PASSPHRASE", "test-passphrase")

	path := filepath.Join(t.TempDir(), "secrets.enc")
	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Put("tok", "cookie=1; "))

	reopened, err := NewEncryptedFileStore(path)
	require.NoError(t, err)

	material, err := reopened.Get("tok")
	require.NoError(t, err)
	assert.Equal(t, "cookie=1; ", material)
}

func TestEncryptedFileStoreDelete(t *testing.T) {
	t.Setenv("FASTMP_PASSPHRASE", "test-passphrase")

	path := filepath.Join(t.TempDir(), "secrets.enc")
	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Put("a", "1"))
	require.NoError(t, store.Put("b", "2"))

	require.NoError(t, store.Delete("a"))
	_, err = store.Get("a")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting the last secret removes the file entirely.
	require.NoError(t, store.Delete("b"))
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestEncryptedFileStoreMissingToken(t *testing.T) {
	t.Setenv("FASTMP_PASSPHRASE", "test-passphrase")

	store, err := NewEncryptedFileStore(filepath.Join(t.TempDir(), "secrets.enc"))
	require.NoError(t, err)

	_, err = store.Get("never-stored")
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.Delete("never-stored")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManagerChainsStores(t *testing.T) {
	primary := NewMemoryStore()
	fallback := NewMemoryStore()
	manager := NewManagerWithStores(primary, fallback)

	require.NoError(t, manager.Put("tok", "cookie=1; "))

	// A write lands in the first store; reads find it there.
	material, err := manager.Get("tok")
	require.NoError(t, err)
	assert.Equal(t, "cookie=1; ", material)

	// A secret only the fallback holds is still reachable.
	require.NoError(t, fallback.Put("other", "cookie=2; "))
	material, err = manager.Get("other")
	require.NoError(t, err)
	assert.Equal(t, "cookie=2; ", material)

	require.NoError(t, manager.Delete("tok"))
	_, err = manager.Get("tok")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManagerRejectsEmptyToken(t *testing.T) {
	manager := NewManagerWithStores(NewMemoryStore())

	assert.ErrorIs(t, manager.Put("", "x"), ErrInvalidToken)
	_, err := manager.Get("")
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, manager.Delete(""), ErrInvalidToken)
}
