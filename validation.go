// validation.go
package prefs

import (
	"fmt"
	"strings"
)

// Limits enforced on names and stored values.
const (
	MaxKeyLength   = 80
	MaxNameLength  = 80
	MaxValueLength = 8 * 1024
)

// ValidatePath checks a "/"-separated node path. The empty path names the root
// node itself. Segments must be non-empty, at most MaxNameLength bytes, and
// may not be "." or "..".
func ValidatePath(path string) error {
	if path == "" {
		return nil
	}
	for _, seg := range strings.Split(path, "/") {
		switch {
		case seg == "":
			return fmt.Errorf("%w: empty segment in node path %q", ErrInvalidKey, path)
		case seg == "." || seg == "..":
			return fmt.Errorf("%w: relative segment in node path %q", ErrInvalidKey, path)
		case len(seg) > MaxNameLength:
			return fmt.Errorf("%w: node name %q longer than %d bytes", ErrInvalidKey, seg, MaxNameLength)
		}
	}
	return nil
}

func validateKey(k Key) error {
	if k.name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidKey)
	}
	if len(k.name) > MaxKeyLength {
		return fmt.Errorf("%w: name %q longer than %d bytes", ErrInvalidKey, k.name, MaxKeyLength)
	}
	if err := ValidatePath(k.namespace); err != nil {
		return err
	}
	if !k.def.IsValid() {
		return fmt.Errorf("%w: key %s has no default", ErrInvalidValue, k)
	}
	return nil
}

func validateValue(k Key, v Value) error {
	if !v.IsValid() {
		return fmt.Errorf("%w: invalid value for %s", ErrInvalidValue, k)
	}
	if v.kind != k.def.kind {
		return fmt.Errorf("%w: %s expects %s, got %s", ErrInvalidValue, k, k.def.kind, v.kind)
	}
	if v.kind == KindObject && v.objectType() != k.def.objectType() {
		return fmt.Errorf("%w: %s expects %s, got %s", ErrInvalidValue, k, k.def.objectType(), v.objectType())
	}
	return nil
}

func validateStored(k Key, stored string) error {
	if len(stored) > MaxValueLength {
		return fmt.Errorf("%w: encoded value for %s is %d bytes, limit %d", ErrInvalidValue, k, len(stored), MaxValueLength)
	}
	return nil
}
