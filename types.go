// Package prefs defines the core types used by the preferences facade.
package prefs

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Value is a preference value. It holds exactly one of a bool, an int, a
// string or an opaque object; the zero Value holds nothing and is invalid.
type Value struct {
	kind Kind
	b    bool
	i    int
	s    string
	obj  any
}

// Bool returns a boolean Value.
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// Int returns an integer Value.
func Int(v int) Value { return Value{kind: KindInt, i: v} }

// String returns a string Value.
func String(v string) Value { return Value{kind: KindString, s: v} }

// Object returns an opaque Value wrapping v. The dynamic type of v is recorded
// in the stored envelope, so a key's default and every value later set for it
// must share one concrete type.
func Object(v any) Value { return Value{kind: KindObject, obj: v} }

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsValid reports whether v holds a value.
func (v Value) IsValid() bool {
	if v.kind == KindObject {
		return v.obj != nil
	}
	return v.kind != kindInvalid
}

// AsBool returns the boolean held by v, or false for any other kind.
func (v Value) AsBool() bool { return v.b }

// AsInt returns the integer held by v, or 0 for any other kind.
func (v Value) AsInt() int { return v.i }

// AsString returns the string held by v, or "" for any other kind.
func (v Value) AsString() string { return v.s }

// AsObject returns the opaque value held by v, or nil for any other kind.
func (v Value) AsObject() any { return v.obj }

// Interface returns the held value as an untyped Go value.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindString:
		return v.s
	case KindObject:
		return v.obj
	}
	return nil
}

// Equal reports whether v and o hold the same kind and an equal value.
// Objects are compared with reflect.DeepEqual.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	if v.kind == KindObject {
		return reflect.DeepEqual(v.obj, o.obj)
	}
	return v == o
}

func (v Value) String() string {
	if !v.IsValid() {
		return "<invalid>"
	}
	return fmt.Sprintf("%v", v.Interface())
}

// objectType is the declared type name recorded for opaque values.
func (v Value) objectType() string {
	if v.obj == nil {
		return ""
	}
	return reflect.TypeOf(v.obj).String()
}

// Key identifies one preference: its name within a namespace node, the scope
// it is stored under and the default returned while nothing is stored.
// Keys are meant to be declared once, as package-level variables.
type Key struct {
	namespace   string
	name        string
	def         Value
	scope       Scope
	sensitive   bool
	description string
}

// KeyOption customises a Key.
type KeyOption func(*Key)

// Sensitive marks a key whose stored value is encrypted at rest.
func Sensitive() KeyOption {
	return func(k *Key) { k.sensitive = true }
}

// WithDescription attaches a human readable description, shown by the API.
func WithDescription(desc string) KeyOption {
	return func(k *Key) { k.description = desc }
}

// NewKey declares a key in the given scope.
func NewKey(scope Scope, namespace, name string, def Value, opts ...KeyOption) Key {
	k := Key{
		namespace: strings.Trim(namespace, "/"),
		name:      name,
		def:       def,
		scope:     scope,
	}
	for _, opt := range opts {
		opt(&k)
	}
	return k
}

// NewUserKey declares a per-user key.
func NewUserKey(namespace, name string, def Value, opts ...KeyOption) Key {
	return NewKey(ScopeUser, namespace, name, def, opts...)
}

// NewSystemKey declares a machine-wide key.
func NewSystemKey(namespace, name string, def Value, opts ...KeyOption) Key {
	return NewKey(ScopeSystem, namespace, name, def, opts...)
}

// Name returns the key's name within its namespace node.
func (k Key) Name() string { return k.name }

// Namespace returns the "/"-separated path of the node holding the key.
func (k Key) Namespace() string { return k.namespace }

// Default returns the value Get falls back to when nothing is stored. Its
// kind is the key's kind.
func (k Key) Default() Value { return k.def }

// Scope returns the root the key lives in.
func (k Key) Scope() Scope { return k.scope }

// Sensitive reports whether stored values of the key are encrypted.
func (k Key) Sensitive() bool { return k.sensitive }

// Description returns the human-readable text given with WithDescription.
func (k Key) Description() string { return k.description }

// String formats the key as scope:namespace/name.
func (k Key) String() string {
	return k.scope.String() + ":" + k.namespace + "/" + k.name
}

// PackageNamespace returns the import path of the package declaring the type
// of v, for use as a key namespace. Keys declared next to a type share its
// package's node:
//
//	type settings struct{}
//	var Theme = prefs.NewUserKey(prefs.PackageNamespace(settings{}), "theme", prefs.String("dark"))
func PackageNamespace(v any) string {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	return t.PkgPath()
}

// Config holds the internal configuration for a Preferences instance.
// It is populated by applying functional Options when calling New.
type Config struct {
	// provider resolves the system and user roots.
	provider *Provider
	// cache is the optional read-through cache of stored strings.
	cache Cache
	// cacheTTL bounds how long a cached entry is trusted.
	cacheTTL time.Duration
	// logger is the logging interface used by the facade.
	logger Logger
	// encrypter protects values of sensitive keys.
	encrypter Encrypter
	// codec encodes opaque values.
	codec Codec
}

// Option configures a Preferences instance.
type Option func(*Config)

// WithProvider sets the Provider used to resolve roots. This option is required.
func WithProvider(p *Provider) Option {
	return func(c *Config) {
		c.provider = p
	}
}

// WithCache puts a read-through cache in front of the store.
func WithCache(cache Cache) Option {
	return func(c *Config) {
		c.cache = cache
	}
}

// WithCacheTTL sets the TTL of cached entries. Zero keeps entries until they
// are invalidated.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Config) {
		c.cacheTTL = ttl
	}
}

// WithLogger sets the Logger. If not set, a JSON logger on os.Stderr is used.
func WithLogger(l Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithEncryption sets the Encrypter used for sensitive keys.
func WithEncryption(e Encrypter) Option {
	return func(c *Config) {
		c.encrypter = e
	}
}

// WithCodec sets the codec used when writing opaque values. Values are always
// read back with the codec recorded in their envelope.
func WithCodec(codec Codec) Option {
	return func(c *Config) {
		if codec != nil {
			c.codec = codec
		}
	}
}

// namespaceKeyName is the placeholder name of keys built by NamespaceKey.
const namespaceKeyName = "*"

// NamespaceKey returns a key that only addresses a namespace node, for use
// with ClearNamespace and NamespaceExists when no key of that namespace is at
// hand.
func NamespaceKey(scope Scope, namespace string) Key {
	return NewKey(scope, namespace, namespaceKeyName, String(""))
}
