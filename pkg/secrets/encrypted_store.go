package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 32
	keySize    = 32
	iterations = 100000
)

// EncryptedFileStore keeps secrets in a single AES-GCM encrypted file.
// The key is derived from a passphrase with PBKDF2.
type EncryptedFileStore struct {
	filepath   string
	passphrase string
	mu         sync.RWMutex
}

// NewEncryptedFileStore creates the store, generating a passphrase on
// first use unless FASTMP_PASSPHRASE overrides it.
func NewEncryptedFileStore(filePath string) (*EncryptedFileStore, error) {
	dir := filepath.Dir(filePath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	store := &EncryptedFileStore{filepath: filePath}

	passphrase, err := store.getPassphrase()
	if err != nil {
		return nil, fmt.Errorf("failed to get passphrase: %w", err)
	}
	store.passphrase = passphrase

	return store, nil
}

func (e *EncryptedFileStore) Put(token, cookieMaterial string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if token == "" {
		return ErrInvalidToken
	}

	secrets, salt, err := e.loadData()
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load existing data: %w", err)
	}
	if secrets == nil {
		secrets = make(map[string]string)
	}

	secrets[token] = cookieMaterial
	return e.saveData(secrets, salt)
}

func (e *EncryptedFileStore) Get(token string) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if token == "" {
		return "", ErrInvalidToken
	}

	secrets, _, err := e.loadData()
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to load data: %w", err)
	}

	material, exists := secrets[token]
	if !exists {
		return "", ErrNotFound
	}
	return material, nil
}

func (e *EncryptedFileStore) Delete(token string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if token == "" {
		return ErrInvalidToken
	}

	secrets, salt, err := e.loadData()
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to load data: %w", err)
	}

	if _, exists := secrets[token]; !exists {
		return ErrNotFound
	}
	delete(secrets, token)

	if len(secrets) == 0 {
		return os.Remove(e.filepath)
	}
	return e.saveData(secrets, salt)
}

// loadData reads, decrypts and parses the secrets file.
func (e *EncryptedFileStore) loadData() (map[string]string, string, error) {
	content, err := os.ReadFile(e.filepath)
	if err != nil {
		return nil, "", err
	}

	var fileData struct {
		Salt      string `json:"salt"`
		Encrypted string `json:"encrypted"`
	}
	if err := json.Unmarshal(content, &fileData); err != nil {
		return nil, "", fmt.Errorf("failed to parse file: %w", err)
	}

	salt, err := base64.StdEncoding.DecodeString(fileData.Salt)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode salt: %w", err)
	}

	encryptedBytes, err := base64.StdEncoding.DecodeString(fileData.Encrypted)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode encrypted data: %w", err)
	}

	key := pbkdf2.Key([]byte(e.passphrase), salt, iterations, keySize, sha256.New)

	decrypted, err := decrypt(encryptedBytes, key)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decrypt data: %w", err)
	}

	var secrets map[string]string
	if err := json.Unmarshal(decrypted, &secrets); err != nil {
		return nil, "", fmt.Errorf("failed to parse secrets: %w", err)
	}

	return secrets, fileData.Salt, nil
}

// saveData encrypts and writes the secrets file atomically.
func (e *EncryptedFileStore) saveData(secrets map[string]string, saltB64 string) error {
	var salt []byte
	if saltB64 == "" {
		salt = make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return fmt.Errorf("failed to generate salt: %w", err)
		}
		saltB64 = base64.StdEncoding.EncodeToString(salt)
	} else {
		var err error
		salt, err = base64.StdEncoding.DecodeString(saltB64)
		if err != nil {
			return fmt.Errorf("failed to decode salt: %w", err)
		}
	}

	key := pbkdf2.Key([]byte(e.passphrase), salt, iterations, keySize, sha256.New)

	plaintext, err := json.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("failed to marshal secrets: %w", err)
	}

	encrypted, err := encrypt(plaintext, key)
	if err != nil {
		return fmt.Errorf("failed to encrypt data: %w", err)
	}

	fileData := struct {
		Salt      string    `json:"salt"`
		Encrypted string    `json:"encrypted"`
		Version   int       `json:"version"`
		Modified  time.Time `json:"modified"`
	}{
		Salt:      saltB64,
		Encrypted: base64.StdEncoding.EncodeToString(encrypted),
		Version:   1,
		Modified:  time.Now(),
	}

	content, err := json.MarshalIndent(fileData, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal file data: %w", err)
	}

	tempFile := e.filepath + ".tmp"
	if err := os.WriteFile(tempFile, content, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return os.Rename(tempFile, e.filepath)
}

// getPassphrase resolves the encryption passphrase: environment first,
// then a sibling file, generating one on first run.
func (e *EncryptedFileStore) getPassphrase() (string, error) {
	if pass := os.Getenv("FASTMP_PASSPHRASE"); pass != "" {
		return pass, nil
	}

	passphraseFile := filepath.Join(filepath.Dir(e.filepath), ".passphrase")

	if content, err := os.ReadFile(passphraseFile); err == nil && len(content) > 0 {
		return string(content), nil
	}

	passphrase := generatePassphrase()
	if err := os.WriteFile(passphraseFile, []byte(passphrase), 0600); err != nil {
		return "", fmt.Errorf("failed to save passphrase: %w", err)
	}
	return passphrase, nil
}

func generatePassphrase() string {
	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return base64.URLEncoding.EncodeToString(b)
}

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
