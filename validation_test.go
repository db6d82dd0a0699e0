package prefs

import (
	"errors"
	"strings"
	"testing"
)

func TestValidatePath(t *testing.T) {
	valid := []string{"", "app", "github.com/acme/app", "a.b.c"}
	invalid := []string{"a//b", "a/../b", "./a", strings.Repeat("x", MaxNameLength+1)}

	for _, p := range valid {
		if err := ValidatePath(p); err != nil {
			t.Errorf("Expected path %q to be valid, got %v", p, err)
		}
	}
	for _, p := range invalid {
		if err := ValidatePath(p); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Expected ErrInvalidKey for path %q, got %v", p, err)
		}
	}
}

func TestValidateKey(t *testing.T) {
	if err := validateKey(NewUserKey("app", "theme", String("dark"))); err != nil {
		t.Errorf("Expected valid key, got error: %v", err)
	}

	err := validateKey(NewUserKey("app", "", String("dark")))
	if !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Expected ErrInvalidKey for empty name, got: %v", err)
	}

	err = validateKey(NewUserKey("app", strings.Repeat("k", MaxKeyLength+1), Int(1)))
	if !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Expected ErrInvalidKey for long name, got: %v", err)
	}

	err = validateKey(NewUserKey("app", "nodefault", Value{}))
	if !errors.Is(err, ErrInvalidValue) {
		t.Errorf("Expected ErrInvalidValue for missing default, got: %v", err)
	}

	err = validateKey(NewUserKey("app", "nilobject", Object(nil)))
	if !errors.Is(err, ErrInvalidValue) {
		t.Errorf("Expected ErrInvalidValue for nil object default, got: %v", err)
	}
}

func TestValidateValue(t *testing.T) {
	type window struct{ W, H int }
	type other struct{ Name string }

	boolKey := NewUserKey("app", "enabled", Bool(false))
	objKey := NewUserKey("app", "window", Object(window{W: 800, H: 600}))

	if err := validateValue(boolKey, Bool(true)); err != nil {
		t.Errorf("Expected valid bool, got error: %v", err)
	}
	if err := validateValue(boolKey, Int(1)); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("Expected ErrInvalidValue for kind mismatch, got: %v", err)
	}
	if err := validateValue(objKey, Object(window{W: 1, H: 1})); err != nil {
		t.Errorf("Expected valid object, got error: %v", err)
	}
	if err := validateValue(objKey, Object(other{Name: "x"})); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("Expected ErrInvalidValue for object type mismatch, got: %v", err)
	}
	if err := validateValue(objKey, Value{}); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("Expected ErrInvalidValue for invalid value, got: %v", err)
	}
}

func TestValidateStored(t *testing.T) {
	k := NewUserKey("app", "blob", String(""))
	if err := validateStored(k, strings.Repeat("a", MaxValueLength)); err != nil {
		t.Errorf("Expected value at the limit to be valid, got: %v", err)
	}
	if err := validateStored(k, strings.Repeat("a", MaxValueLength+1)); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("Expected ErrInvalidValue above the limit, got: %v", err)
	}
}
