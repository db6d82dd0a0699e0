package prefs

import "fmt"

// Kind identifies which variant a Value holds. The kind of a key's default
// decides how the value is encoded in its node.
type Kind int

// Supported value kinds.
const (
	kindInvalid Kind = iota
	// KindBool is a boolean value, stored as "true" or "false".
	KindBool
	// KindInt is an integer value, stored in base 10.
	KindInt
	// KindString is a string value, stored verbatim.
	KindString
	// KindObject is an opaque structured value, stored as a versioned envelope
	// produced by a Codec.
	KindObject
)

var kindNames = map[Kind]string{
	KindBool:   "bool",
	KindInt:    "int",
	KindString: "string",
	KindObject: "object",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "invalid"
}

// ParseKind maps a kind name ("bool", "int", "string", "object") to a Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return kindInvalid, fmt.Errorf("%w: unknown kind %q", ErrInvalidType, s)
}

// Scope selects the root a key is stored under.
type Scope int

const (
	// ScopeUser stores the preference per user.
	ScopeUser Scope = iota
	// ScopeSystem stores the preference machine-wide.
	ScopeSystem
)

func (s Scope) String() string {
	if s == ScopeSystem {
		return "system"
	}
	return "user"
}

// ParseScope maps "user" or "system" to a Scope.
func ParseScope(s string) (Scope, error) {
	switch s {
	case "user":
		return ScopeUser, nil
	case "system":
		return ScopeSystem, nil
	}
	return ScopeUser, fmt.Errorf("%w: unknown scope %q", ErrInvalidInput, s)
}
