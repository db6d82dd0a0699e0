// Package encryption provides AES-256-GCM protection for the stored values of
// sensitive preferences. Key material is read from the environment and
// stretched to a 256-bit key with SHA-256.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	// MinKeyLength is the minimum accepted length of key material, in bytes.
	MinKeyLength = 32
	// EnvKeyName is the environment variable holding the key material.
	EnvKeyName = "PREFS_ENCRYPTION_KEY"
)

var (
	// ErrInvalidKeyLength is returned when the key material is shorter than MinKeyLength.
	ErrInvalidKeyLength = errors.New("encryption key must be at least 32 bytes for AES-256")
	// ErrKeyNotFound is returned when the key environment variable is not set.
	ErrKeyNotFound = errors.New("encryption key not found in environment variable " + EnvKeyName)
	// ErrEncryptionFailed is returned when encryption fails.
	ErrEncryptionFailed = errors.New("encryption operation failed")
	// ErrDecryptionFailed is returned when decryption fails, including on a wrong key.
	ErrDecryptionFailed = errors.New("decryption operation failed")
	// ErrInvalidCiphertext is returned when the ciphertext is shorter than a nonce.
	ErrInvalidCiphertext = errors.New("invalid ciphertext: too short or malformed")
)

// Manager encrypts and decrypts stored strings.
type Manager struct {
	key []byte
}

// NewManager creates a Manager from the key material in PREFS_ENCRYPTION_KEY.
func NewManager() (*Manager, error) {
	keyStr := os.Getenv(EnvKeyName)
	if keyStr == "" {
		return nil, ErrKeyNotFound
	}
	return NewManagerWithKey([]byte(keyStr))
}

// NewManagerWithKey creates a Manager from explicit key material.
func NewManagerWithKey(material []byte) (*Manager, error) {
	if err := checkLength(material); err != nil {
		return nil, err
	}
	return &Manager{key: deriveKey(material)}, nil
}

func checkLength(material []byte) error {
	if len(material) < MinKeyLength {
		return fmt.Errorf("%w: got %d bytes, need at least %d", ErrInvalidKeyLength, len(material), MinKeyLength)
	}
	return nil
}

func deriveKey(material []byte) []byte {
	sum := sha256.Sum256(material)
	return sum[:]
}

func (m *Manager) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(m.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext and returns base64(nonce || ciphertext).
// The empty string encrypts to the empty string.
func (m *Manager) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	aead, err := m.gcm()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: failed to generate nonce: %v", ErrEncryptionFailed, err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (m *Manager) Decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}

	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64: %v", ErrDecryptionFailed, err)
	}

	aead, err := m.gcm()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	nonceSize := aead.NonceSize()
	if len(sealed) < nonceSize {
		return "", ErrInvalidCiphertext
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return string(plaintext), nil
}

// ValidateKey checks the key material in the environment without building a
// Manager, for fail-fast checks at startup.
func ValidateKey() error {
	keyStr := os.Getenv(EnvKeyName)
	if keyStr == "" {
		return ErrKeyNotFound
	}
	return checkLength([]byte(keyStr))
}
