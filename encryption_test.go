package prefs

import (
	"context"
	"testing"

	"github.com/CreativeUnicorns/prefs/encryption"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyMaterial = "this-is-a-32-byte-key-for-test!!"

func TestEncryptionAdapter(t *testing.T) {
	adapter, err := NewEncryptionAdapterWithKey([]byte(testKeyMaterial))
	require.NoError(t, err)
	require.NotNil(t, adapter)

	plaintext := "sensitive data"
	encrypted, err := adapter.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, encrypted)

	decrypted, err := adapter.Decrypt(encrypted)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestEncryptionAdapterWithEnv(t *testing.T) {
	t.Setenv(encryption.EnvKeyName, testKeyMaterial)

	adapter, err := NewEncryptionAdapter()
	require.NoError(t, err)

	encrypted, err := adapter.Encrypt("sensitive data")
	require.NoError(t, err)
	decrypted, err := adapter.Decrypt(encrypted)
	require.NoError(t, err)
	assert.Equal(t, "sensitive data", decrypted)
}

func TestEncryptionAdapterMissingKey(t *testing.T) {
	t.Setenv(encryption.EnvKeyName, "")
	_, err := NewEncryptionAdapter()
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.ErrorIs(t, err, encryption.ErrKeyNotFound)

	_, err = NewEncryptionAdapterWithKey([]byte("short"))
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.ErrorIs(t, err, encryption.ErrInvalidKeyLength)
}

func TestEncryptedPreferenceKinds(t *testing.T) {
	ctx := context.Background()
	adapter, err := NewEncryptionAdapterWithKey([]byte(testKeyMaterial))
	require.NoError(t, err)
	p, backend := newTestPreferences(t, WithEncryption(adapter))

	pin := NewUserKey(testNamespace, "pin", Int(0), Sensitive())
	remember := NewUserKey(testNamespace, "remember", Bool(false), Sensitive())
	session := NewUserKey(testNamespace, "session", Object(windowState{}), Sensitive())

	require.NoError(t, p.SetInt(ctx, pin, 1234))
	require.NoError(t, p.SetBool(ctx, remember, true))
	require.NoError(t, p.SetObject(ctx, session, windowState{X: 7, Recent: []string{"secret.txt"}}))

	node, err := backend.root(ScopeUser).Node(ctx, testNamespace)
	require.NoError(t, err)
	raw, _, err := node.Get(ctx, "pin")
	require.NoError(t, err)
	assert.NotEqual(t, "1234", raw)

	i, err := p.GetInt(ctx, pin)
	require.NoError(t, err)
	assert.Equal(t, 1234, i)

	b, err := p.GetBool(ctx, remember)
	require.NoError(t, err)
	assert.True(t, b)

	w, err := GetObject[windowState](ctx, p, session)
	require.NoError(t, err)
	assert.Equal(t, windowState{X: 7, Recent: []string{"secret.txt"}}, w)
}

func TestEncryptedValueWithWrongKey(t *testing.T) {
	ctx := context.Background()
	writer, err := NewEncryptionAdapterWithKey([]byte(testKeyMaterial))
	require.NoError(t, err)
	reader, err := NewEncryptionAdapterWithKey([]byte("another-32-byte-key-for-testing!"))
	require.NoError(t, err)

	p, backend := newTestPreferences(t, WithEncryption(writer))
	token := NewUserKey(testNamespace, "token", String(""), Sensitive())
	require.NoError(t, p.SetString(ctx, token, "abc"))

	node, err := backend.root(ScopeUser).Node(ctx, testNamespace)
	require.NoError(t, err)
	stored, _, err := node.Get(ctx, "token")
	require.NoError(t, err)

	p.config.encrypter = reader
	_, err = p.GetString(ctx, token)
	assert.True(t, IsStoreError(err))

	p.config.encrypter = writer
	require.NoError(t, node.Put(ctx, "token", stored))
	s, err := p.GetString(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "abc", s)
}

func TestCacheHoldsCiphertext(t *testing.T) {
	ctx := context.Background()
	adapter, err := NewEncryptionAdapterWithKey([]byte(testKeyMaterial))
	require.NoError(t, err)
	cache := NewMockCache()
	p, _ := newTestPreferences(t, WithEncryption(adapter), WithCache(cache))

	token := NewUserKey(testNamespace, "token", String(""), Sensitive())
	require.NoError(t, p.SetString(ctx, token, "abc"))

	cached, err := cache.Get(ctx, "pref:editor/user/tester:0:"+testNamespace+":token")
	require.NoError(t, err)
	assert.NotEqual(t, "abc", cached)

	s, err := p.GetString(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "abc", s)
}
