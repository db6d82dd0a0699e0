// Package prefs defines interfaces for node storage, caching and encryption used by the preferences facade.
package prefs

import (
	"context"
	"fmt"
	"time"

	"github.com/CreativeUnicorns/prefs/encryption"
)

// Node is one namespace node of a root: a flat map of names to stored strings.
// Implementations must be safe for concurrent use.
type Node interface {
	// Path returns the node's "/"-separated path relative to its root.
	Path() string
	// Get returns the stored string for key and whether it is present.
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
	// Keys lists the names stored in the node, sorted.
	Keys(ctx context.Context) ([]string, error)
	// Clear removes every entry of the node. The node itself keeps existing.
	Clear(ctx context.Context) error
}

// Root is the top of one scope's node tree, the system root or a user's root.
type Root interface {
	ID() RootID
	// Node returns the node at path, creating it if needed.
	Node(ctx context.Context, path string) (Node, error)
	// NodeExists reports whether the node at path exists, without creating it.
	NodeExists(ctx context.Context, path string) (bool, error)
	// Flush forces pending changes to durable storage.
	Flush(ctx context.Context) error
	// Sync discards unflushed state and reloads from durable storage.
	Sync(ctx context.Context) error
	Close() error
}

// Backend creates roots. A Provider asks for each root at most once.
type Backend interface {
	Root(ctx context.Context, id RootID) (Root, error)
	Close() error
}

// Cache defines the methods required for a caching backend.
type Cache interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Encrypter protects the stored strings of sensitive keys. Set encrypts the
// encoded value before it reaches the root or the cache, and Get decrypts it
// before decoding, so neither ever holds plaintext. EncryptionAdapter is the
// AES-256-GCM implementation.
type Encrypter interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(encrypted string) (string, error)
}

// EncryptionAdapter is an Encrypter backed by an encryption.Manager.
type EncryptionAdapter struct {
	*encryption.Manager
}

// NewEncryptionAdapter reads key material from PREFS_ENCRYPTION_KEY.
func NewEncryptionAdapter() (*EncryptionAdapter, error) {
	return newEncryptionAdapter(encryption.NewManager())
}

// NewEncryptionAdapterWithKey uses explicit key material of at least 32 bytes.
func NewEncryptionAdapterWithKey(key []byte) (*EncryptionAdapter, error) {
	return newEncryptionAdapter(encryption.NewManagerWithKey(key))
}

func newEncryptionAdapter(m *encryption.Manager, err error) (*EncryptionAdapter, error) {
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return &EncryptionAdapter{Manager: m}, nil
}
