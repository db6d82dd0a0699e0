package encryption

import (
	"crypto/sha256"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "this-is-a-32-byte-key-for-test!!"

func derivedKeyForTest(material []byte) []byte {
	hash := sha256.Sum256(material)
	return hash[:]
}

func TestNewManager(t *testing.T) {
	tests := []struct {
		name      string
		envValue  string
		errorType error
	}{
		{name: "valid key", envValue: testKey},
		{name: "key too short", envValue: "short", errorType: ErrInvalidKeyLength},
		{name: "empty key", envValue: "", errorType: ErrKeyNotFound},
		{name: "longer than minimum", envValue: strings.Repeat("a", MinKeyLength+10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvKeyName, tt.envValue)

			manager, err := NewManager()
			if tt.errorType != nil {
				assert.ErrorIs(t, err, tt.errorType)
				assert.Nil(t, manager)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, derivedKeyForTest([]byte(tt.envValue)), manager.key)
		})
	}
}

func TestNewManagerWithKey(t *testing.T) {
	_, err := NewManagerWithKey(nil)
	assert.ErrorIs(t, err, ErrInvalidKeyLength)

	manager, err := NewManagerWithKey([]byte(strings.Repeat("a", MinKeyLength)))
	require.NoError(t, err)
	assert.Len(t, manager.key, 32)
}

func TestEncryptDecrypt(t *testing.T) {
	manager, err := NewManagerWithKey([]byte(testKey))
	require.NoError(t, err)

	tests := []struct {
		name      string
		plaintext string
	}{
		{"simple text", "hello world"},
		{"empty string", ""},
		{"unicode text", "Hello 世界! 🌍"},
		{"encoded object", "UFJGTwEEanNvbg=="},
		{"long text", strings.Repeat("Lorem ipsum dolor sit amet. ", 100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encrypted, err := manager.Encrypt(tt.plaintext)
			require.NoError(t, err)

			if tt.plaintext == "" {
				assert.Equal(t, "", encrypted)
				return
			}
			assert.NotEqual(t, tt.plaintext, encrypted)

			decrypted, err := manager.Decrypt(encrypted)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, decrypted)
		})
	}
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	manager, err := NewManagerWithKey([]byte(testKey))
	require.NoError(t, err)

	encrypted1, err := manager.Encrypt("same")
	require.NoError(t, err)
	encrypted2, err := manager.Encrypt("same")
	require.NoError(t, err)
	assert.NotEqual(t, encrypted1, encrypted2)
}

func TestDecryptInvalidData(t *testing.T) {
	manager, err := NewManagerWithKey([]byte(testKey))
	require.NoError(t, err)

	tests := []struct {
		name       string
		ciphertext string
		errorType  error
	}{
		{"invalid base64", "invalid-base64!@#", ErrDecryptionFailed},
		{"too short ciphertext", "dGVzdA==", ErrInvalidCiphertext},
		{"shorter than nonce", "YWJjZGVmZ2hpams=", ErrInvalidCiphertext},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := manager.Decrypt(tt.ciphertext)
			assert.ErrorIs(t, err, tt.errorType)
		})
	}
}

func TestValidateKey(t *testing.T) {
	t.Setenv(EnvKeyName, testKey)
	assert.NoError(t, ValidateKey())

	t.Setenv(EnvKeyName, "short-key")
	assert.ErrorIs(t, ValidateKey(), ErrInvalidKeyLength)

	t.Setenv(EnvKeyName, "")
	assert.ErrorIs(t, ValidateKey(), ErrKeyNotFound)
}

func TestCrossKeyCompatibility(t *testing.T) {
	manager1, err := NewManagerWithKey([]byte(testKey))
	require.NoError(t, err)
	manager2, err := NewManagerWithKey([]byte("another-32-byte-key-for-testing!!"))
	require.NoError(t, err)

	encrypted, err := manager1.Encrypt("cross key test")
	require.NoError(t, err)

	_, err = manager2.Decrypt(encrypted)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func BenchmarkEncrypt(b *testing.B) {
	manager, err := NewManagerWithKey([]byte(testKey))
	require.NoError(b, err)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := manager.Encrypt("benchmark test data for encryption performance"); err != nil {
			b.Fatal(err)
		}
	}
}
