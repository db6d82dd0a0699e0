// errors.go
package prefs

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput          = errors.New("invalid input parameters")
	ErrInvalidKey            = errors.New("invalid preference key")
	ErrInvalidType           = errors.New("invalid preference type")
	ErrInvalidValue          = errors.New("invalid preference value")
	ErrNotFound              = errors.New("preference not found")
	ErrSerialization         = errors.New("preference serialization failed")
	ErrStorageUnavailable    = errors.New("storage backend unavailable")
	ErrCacheUnavailable      = errors.New("cache backend unavailable")
	ErrConfiguration         = errors.New("preferences misconfigured")
	ErrEncryptionUnavailable = errors.New("encryption not configured for sensitive preference")
)

// StoreError reports a failure of the backing store, or of encoding a value
// for it. It is the only error kind returned for store-level failures; the
// wrapped Err carries the cause and can be matched with errors.Is.
type StoreError struct {
	// Op is the facade operation that failed, e.g. "get" or "flush".
	Op string
	// Namespace is the node path involved, if any.
	Namespace string
	// Key is the preference name involved, if any.
	Key string
	Err error
}

func (e *StoreError) Error() string {
	switch {
	case e.Key != "":
		return fmt.Sprintf("prefs: %s %s/%s: %v", e.Op, e.Namespace, e.Key, e.Err)
	case e.Namespace != "":
		return fmt.Sprintf("prefs: %s %s: %v", e.Op, e.Namespace, e.Err)
	default:
		return fmt.Sprintf("prefs: %s: %v", e.Op, e.Err)
	}
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsStoreError reports whether err is, or wraps, a *StoreError.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

func storeErr(op string, key Key, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Namespace: key.Namespace(), Key: key.Name(), Err: err}
}
