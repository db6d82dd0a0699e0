// preferences.go
package prefs

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Preferences is the accessor facade: it routes each key to the node of its
// namespace in the root of its scope, encodes and decodes typed values, and
// falls back to the key's default when nothing is stored.
type Preferences struct {
	mu          sync.RWMutex
	config      *Config
	definitions map[string]Key
	scopes      [2]scopeCache
}

// scopeCache guards the cache entries of one scope. Reads and writes that
// fill or drop entries hold mu shared; ClearNamespace and Sync hold it
// exclusively, so no entry is filled from state they are discarding. gen is
// part of every cache key and Sync bumps it, which orphans every entry of the
// scope whether or not its key was defined.
type scopeCache struct {
	mu  sync.RWMutex
	gen uint64
}

// lockScope locks the cache state of scope and returns its generation. It is
// a no-op without a cache.
func (p *Preferences) lockScope(scope Scope, exclusive bool) (uint64, func()) {
	if p.config.cache == nil {
		return 0, func() {}
	}
	sc := &p.scopes[0]
	if scope == ScopeSystem {
		sc = &p.scopes[1]
	}
	if exclusive {
		sc.mu.Lock()
		return sc.gen, sc.mu.Unlock
	}
	sc.mu.RLock()
	return sc.gen, sc.mu.RUnlock
}

// bumpGeneration must be called with the scope locked exclusively.
func (p *Preferences) bumpGeneration(scope Scope) {
	if scope == ScopeSystem {
		p.scopes[1].gen++
		return
	}
	p.scopes[0].gen++
}

// New creates a Preferences facade. WithProvider is required.
func New(opts ...Option) (*Preferences, error) {
	cfg := &Config{
		logger: newDefaultLogger(),
		codec:  JSONCodec{},
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.provider == nil {
		return nil, fmt.Errorf("%w: no provider configured", ErrConfiguration)
	}

	return &Preferences{
		config:      cfg,
		definitions: make(map[string]Key),
	}, nil
}

// Provider returns the provider the facade resolves roots with.
func (p *Preferences) Provider() *Provider {
	return p.config.provider
}

// Define registers key so that it can be found with Lookup and listed with
// Definitions. Redefining a key replaces the previous declaration.
func (p *Preferences) Define(key Key) error {
	if err := validateKey(key); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.definitions[key.String()] = key
	return nil
}

// Lookup finds a defined key by scope, namespace and name.
func (p *Preferences) Lookup(scope Scope, namespace, name string) (Key, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	k, ok := p.definitions[NewKey(scope, namespace, name, Value{}).String()]
	return k, ok
}

// Definitions returns every defined key, ordered by scope, namespace and name.
func (p *Preferences) Definitions() []Key {
	p.mu.RLock()
	defer p.mu.RUnlock()
	keys := make([]Key, 0, len(p.definitions))
	for _, k := range p.definitions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Get returns the value stored for key, or key's default if none is stored.
// Stored booleans and integers that no longer parse also yield the default.
// An opaque value that cannot be decoded is reported as a *StoreError.
func (p *Preferences) Get(ctx context.Context, key Key) (Value, error) {
	stored, ok, err := p.load(ctx, "get", key)
	if err != nil {
		return Value{}, err
	}
	if !ok {
		return key.Default(), nil
	}
	if key.Sensitive() {
		stored, err = p.decrypt(stored)
		if err != nil {
			return Value{}, storeErr("get", key, err)
		}
	}
	return p.decode(key, stored)
}

// GetBool returns the boolean value of key.
func (p *Preferences) GetBool(ctx context.Context, key Key) (bool, error) {
	if err := expectKind(key, KindBool); err != nil {
		return false, err
	}
	v, err := p.Get(ctx, key)
	return v.AsBool(), err
}

// GetInt returns the integer value of key.
func (p *Preferences) GetInt(ctx context.Context, key Key) (int, error) {
	if err := expectKind(key, KindInt); err != nil {
		return 0, err
	}
	v, err := p.Get(ctx, key)
	return v.AsInt(), err
}

// GetString returns the string value of key.
func (p *Preferences) GetString(ctx context.Context, key Key) (string, error) {
	if err := expectKind(key, KindString); err != nil {
		return "", err
	}
	v, err := p.Get(ctx, key)
	return v.AsString(), err
}

// GetObject returns the opaque value of key as a T. T must be the type of the
// key's default.
func GetObject[T any](ctx context.Context, p *Preferences, key Key) (T, error) {
	var zero T
	if err := expectKind(key, KindObject); err != nil {
		return zero, err
	}
	v, err := p.Get(ctx, key)
	if err != nil {
		return zero, err
	}
	obj, ok := v.AsObject().(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s holds %T", ErrInvalidType, key, v.AsObject())
	}
	return obj, nil
}

// Set stores v for key. v must have the same kind as key's default, and for
// opaque values the same concrete type.
func (p *Preferences) Set(ctx context.Context, key Key, v Value) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := validateValue(key, v); err != nil {
		return err
	}

	stored, err := p.encode(v)
	if err != nil {
		return storeErr("set", key, err)
	}
	if key.Sensitive() {
		stored, err = p.encrypt(stored)
		if err != nil {
			return storeErr("set", key, err)
		}
	}
	if err := validateStored(key, stored); err != nil {
		return err
	}

	gen, unlock := p.lockScope(key.Scope(), false)
	defer unlock()

	node, id, err := p.node(ctx, "set", key)
	if err != nil {
		return err
	}
	if err := node.Put(ctx, key.Name(), stored); err != nil {
		p.config.logger.Error("Failed to store preference", "key", key.String(), "error", err)
		return storeErr("set", key, err)
	}

	if p.config.cache != nil {
		p.setToCache(ctx, cacheKey(id, gen, key), stored)
	}
	return nil
}

// SetBool stores a boolean value for key.
func (p *Preferences) SetBool(ctx context.Context, key Key, v bool) error {
	return p.Set(ctx, key, Bool(v))
}

// SetInt stores an integer value for key.
func (p *Preferences) SetInt(ctx context.Context, key Key, v int) error {
	return p.Set(ctx, key, Int(v))
}

// SetString stores a string value for key.
func (p *Preferences) SetString(ctx context.Context, key Key, v string) error {
	return p.Set(ctx, key, String(v))
}

// SetObject stores an opaque value for key.
func (p *Preferences) SetObject(ctx context.Context, key Key, v any) error {
	return p.Set(ctx, key, Object(v))
}

// Clear removes the value stored for key, so that Get returns the default again.
func (p *Preferences) Clear(ctx context.Context, key Key) error {
	gen, unlock := p.lockScope(key.Scope(), false)
	defer unlock()

	node, id, err := p.node(ctx, "clear", key)
	if err != nil {
		return err
	}
	if err := node.Remove(ctx, key.Name()); err != nil {
		return storeErr("clear", key, err)
	}
	if p.config.cache != nil {
		p.deleteFromCache(ctx, cacheKey(id, gen, key))
	}
	return nil
}

// ClearNamespace removes every value stored in key's namespace node. Keys in
// other namespaces are untouched.
func (p *Preferences) ClearNamespace(ctx context.Context, key Key) error {
	gen, unlock := p.lockScope(key.Scope(), true)
	defer unlock()

	node, id, err := p.node(ctx, "clear namespace", key)
	if err != nil {
		return err
	}

	var names []string
	if p.config.cache != nil {
		if names, err = node.Keys(ctx); err != nil {
			return &StoreError{Op: "clear namespace", Namespace: key.Namespace(), Err: err}
		}
	}
	if err := node.Clear(ctx); err != nil {
		p.config.logger.Error("Failed to clear namespace", "namespace", key.Namespace(), "error", err)
		return &StoreError{Op: "clear namespace", Namespace: key.Namespace(), Err: err}
	}
	for _, name := range names {
		p.deleteFromCache(ctx, cacheKey(id, gen, NewKey(key.Scope(), key.Namespace(), name, Value{})))
	}
	return nil
}

// Exists reports whether a value is explicitly stored for key.
func (p *Preferences) Exists(ctx context.Context, key Key) (bool, error) {
	_, ok, err := p.load(ctx, "exists", key)
	return ok, err
}

// NamespaceExists reports whether the node of key's namespace already exists
// in the root of key's scope.
func (p *Preferences) NamespaceExists(ctx context.Context, key Key) (bool, error) {
	if err := ValidatePath(key.Namespace()); err != nil {
		return false, err
	}
	root, err := p.config.provider.Root(ctx, key.Scope())
	if err != nil {
		return false, &StoreError{Op: "namespace exists", Namespace: key.Namespace(), Err: err}
	}
	ok, err := root.NodeExists(ctx, key.Namespace())
	if err != nil {
		return false, &StoreError{Op: "namespace exists", Namespace: key.Namespace(), Err: err}
	}
	return ok, nil
}

// Flush forces cached writes of the scope's root to durable storage.
func (p *Preferences) Flush(ctx context.Context, scope Scope) error {
	if err := p.config.provider.Flush(ctx, scope); err != nil {
		p.config.logger.Error("Failed to flush preferences", "scope", scope.String(), "error", err)
		return &StoreError{Op: "flush " + scope.String(), Err: err}
	}
	return nil
}

// FlushAll flushes the user and system roots concurrently.
func (p *Preferences) FlushAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, scope := range []Scope{ScopeUser, ScopeSystem} {
		scope := scope
		g.Go(func() error {
			return p.Flush(gctx, scope)
		})
	}
	return g.Wait()
}

// Sync discards unflushed state of the scope's root and reloads it from
// durable storage. Every cached entry of the scope is invalidated.
func (p *Preferences) Sync(ctx context.Context, scope Scope) error {
	gen, unlock := p.lockScope(scope, true)
	defer unlock()

	if err := p.config.provider.Sync(ctx, scope); err != nil {
		return &StoreError{Op: "sync " + scope.String(), Err: err}
	}
	if p.config.cache == nil {
		return nil
	}
	p.bumpGeneration(scope)

	// Entries of the old generation are unreachable now; drop the ones we
	// can name so that they do not linger until their TTL.
	root, err := p.config.provider.Root(ctx, scope)
	if err != nil {
		return &StoreError{Op: "sync " + scope.String(), Err: err}
	}
	for _, k := range p.Definitions() {
		if k.Scope() == scope {
			p.deleteFromCache(ctx, cacheKey(root.ID(), gen, k))
		}
	}
	return nil
}

// Close releases the provider's roots and backend, and the cache.
func (p *Preferences) Close() error {
	var errs []error
	if err := p.config.provider.Close(); err != nil {
		errs = append(errs, err)
	}
	if p.config.cache != nil {
		if err := p.config.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%w: %v", ErrCacheUnavailable, err))
		}
	}
	return errors.Join(errs...)
}

func expectKind(key Key, kind Kind) error {
	if key.Default().Kind() != kind {
		return fmt.Errorf("%w: %s is a %s preference, not %s", ErrInvalidType, key, key.Default().Kind(), kind)
	}
	return nil
}

func (p *Preferences) node(ctx context.Context, op string, key Key) (Node, RootID, error) {
	if err := validateKey(key); err != nil {
		return nil, RootID{}, err
	}
	root, err := p.config.provider.Root(ctx, key.Scope())
	if err != nil {
		return nil, RootID{}, storeErr(op, key, err)
	}
	node, err := root.Node(ctx, key.Namespace())
	if err != nil {
		return nil, RootID{}, storeErr(op, key, err)
	}
	return node, root.ID(), nil
}

// load returns the raw stored string for key, consulting the cache first.
func (p *Preferences) load(ctx context.Context, op string, key Key) (string, bool, error) {
	gen, unlock := p.lockScope(key.Scope(), false)
	defer unlock()

	node, id, err := p.node(ctx, op, key)
	if err != nil {
		return "", false, err
	}

	ck := cacheKey(id, gen, key)
	if p.config.cache != nil {
		if stored, ok := p.getFromCache(ctx, ck); ok {
			return stored, true, nil
		}
	}

	stored, ok, err := node.Get(ctx, key.Name())
	if err != nil {
		p.config.logger.Error("Failed to read preference", "key", key.String(), "error", err)
		return "", false, storeErr(op, key, err)
	}
	if ok && p.config.cache != nil {
		p.setToCache(ctx, ck, stored)
	}
	return stored, ok, nil
}

func (p *Preferences) encode(v Value) (string, error) {
	switch v.Kind() {
	case KindBool:
		return strconv.FormatBool(v.AsBool()), nil
	case KindInt:
		return strconv.Itoa(v.AsInt()), nil
	case KindString:
		return v.AsString(), nil
	case KindObject:
		raw, err := encodeObject(p.config.codec, v.AsObject())
		if err != nil {
			return "", err
		}
		return base64.StdEncoding.EncodeToString(raw), nil
	}
	return "", fmt.Errorf("%w: cannot encode %s", ErrInvalidValue, v.Kind())
}

func (p *Preferences) decode(key Key, stored string) (Value, error) {
	def := key.Default()
	switch def.Kind() {
	case KindBool:
		b, err := strconv.ParseBool(stored)
		if err != nil {
			p.config.logger.Warn("Stored value is not a boolean, using default", "key", key.String(), "value", stored)
			return def, nil
		}
		return Bool(b), nil
	case KindInt:
		i, err := strconv.Atoi(stored)
		if err != nil {
			p.config.logger.Warn("Stored value is not an integer, using default", "key", key.String(), "value", stored)
			return def, nil
		}
		return Int(i), nil
	case KindString:
		return String(stored), nil
	case KindObject:
		if stored == "" {
			return def, nil
		}
		raw, err := base64.StdEncoding.DecodeString(stored)
		if err != nil {
			return Value{}, storeErr("get", key, fmt.Errorf("%w: invalid base64: %v", ErrSerialization, err))
		}
		obj, err := decodeObject(raw, reflect.TypeOf(def.AsObject()))
		if err != nil {
			return Value{}, storeErr("get", key, err)
		}
		return Object(obj), nil
	}
	return Value{}, fmt.Errorf("%w: %s has no usable default", ErrInvalidType, key)
}

func (p *Preferences) encrypt(s string) (string, error) {
	if p.config.encrypter == nil {
		return "", ErrEncryptionUnavailable
	}
	return p.config.encrypter.Encrypt(s)
}

func (p *Preferences) decrypt(s string) (string, error) {
	if p.config.encrypter == nil {
		return "", ErrEncryptionUnavailable
	}
	return p.config.encrypter.Decrypt(s)
}

// cacheKey names the cache entry of key in root id at cache generation gen.
func cacheKey(id RootID, gen uint64, key Key) string {
	return fmt.Sprintf("pref:%s:%d:%s:%s", id, gen, key.Namespace(), key.Name())
}

func (p *Preferences) getFromCache(ctx context.Context, ck string) (string, bool) {
	v, err := p.config.cache.Get(ctx, ck)
	if err != nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (p *Preferences) setToCache(ctx context.Context, ck, stored string) {
	if err := p.config.cache.Set(ctx, ck, stored, p.config.cacheTTL); err != nil {
		p.config.logger.Error("Failed to cache preference", "key", ck, "error", err)
	}
}

func (p *Preferences) deleteFromCache(ctx context.Context, ck string) {
	if err := p.config.cache.Delete(ctx, ck); err != nil {
		p.config.logger.Error("Failed to delete preference from cache", "key", ck, "error", err)
	}
}
