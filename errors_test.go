package prefs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorVariables(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"ErrInvalidInput", ErrInvalidInput, "invalid input parameters"},
		{"ErrInvalidKey", ErrInvalidKey, "invalid preference key"},
		{"ErrInvalidType", ErrInvalidType, "invalid preference type"},
		{"ErrInvalidValue", ErrInvalidValue, "invalid preference value"},
		{"ErrNotFound", ErrNotFound, "preference not found"},
		{"ErrSerialization", ErrSerialization, "preference serialization failed"},
		{"ErrStorageUnavailable", ErrStorageUnavailable, "storage backend unavailable"},
		{"ErrCacheUnavailable", ErrCacheUnavailable, "cache backend unavailable"},
		{"ErrConfiguration", ErrConfiguration, "preferences misconfigured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.expected {
				t.Errorf("Expected error message '%s', got '%s'", tt.expected, tt.err.Error())
			}
		})
	}
}

func TestStoreError(t *testing.T) {
	key := NewUserKey("example.com/app", "theme", String("dark"))

	t.Run("message_with_key", func(t *testing.T) {
		err := storeErr("get", key, ErrStorageUnavailable)
		assert.Equal(t, "prefs: get example.com/app/theme: storage backend unavailable", err.Error())
	})

	t.Run("message_with_namespace", func(t *testing.T) {
		err := &StoreError{Op: "clear namespace", Namespace: "example.com/app", Err: ErrStorageUnavailable}
		assert.Equal(t, "prefs: clear namespace example.com/app: storage backend unavailable", err.Error())
	})

	t.Run("message_without_location", func(t *testing.T) {
		err := &StoreError{Op: "flush user", Err: ErrStorageUnavailable}
		assert.Equal(t, "prefs: flush user: storage backend unavailable", err.Error())
	})

	t.Run("unwraps_cause", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", storeErr("set", key, ErrSerialization))
		assert.True(t, IsStoreError(err))
		assert.True(t, errors.Is(err, ErrSerialization))
	})

	t.Run("does_not_double_wrap", func(t *testing.T) {
		inner := storeErr("get", key, ErrSerialization)
		assert.Same(t, inner, storeErr("set", key, inner))
	})

	t.Run("nil_stays_nil", func(t *testing.T) {
		assert.NoError(t, storeErr("get", key, nil))
	})

	t.Run("plain_errors_are_not_store_errors", func(t *testing.T) {
		assert.False(t, IsStoreError(ErrInvalidKey))
	})
}
