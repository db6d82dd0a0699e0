package prefs

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MockBackend implements the Backend interface for testing. Roots share no
// state with each other; rootCalls counts how many roots were created.
type MockBackend struct {
	rootCalls atomic.Int32
	rootErr   error
	delay     time.Duration
	closed    atomic.Bool

	mu    sync.Mutex
	roots map[Scope]*MockRoot
}

func NewMockBackend() *MockBackend {
	return &MockBackend{roots: make(map[Scope]*MockRoot)}
}

// root returns the last root created for scope.
func (b *MockBackend) root(scope Scope) *MockRoot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.roots[scope]
}

func (b *MockBackend) Root(ctx context.Context, id RootID) (Root, error) {
	_, _ = ctx.Deadline()
	b.rootCalls.Add(1)
	if b.delay > 0 {
		time.Sleep(b.delay)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rootErr != nil {
		return nil, b.rootErr
	}
	r := NewMockRoot(id)
	b.roots[id.Scope] = r
	return r, nil
}

func (b *MockBackend) Close() error {
	b.closed.Store(true)
	return nil
}

// MockRoot implements Root with in-memory nodes. Errors can be forced per
// operation to exercise failure paths.
type MockRoot struct {
	mu      sync.RWMutex
	id      RootID
	nodes   map[string]*MockNode
	flushes int
	closed  bool

	forceGetErr   error
	forceClearErr error
	forceFlushErr error
	forceNodeErr  error
}

func NewMockRoot(id RootID) *MockRoot {
	return &MockRoot{id: id, nodes: make(map[string]*MockNode)}
}

func (r *MockRoot) ID() RootID { return r.id }

func (r *MockRoot) Node(ctx context.Context, path string) (Node, error) {
	_, _ = ctx.Deadline()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.forceNodeErr != nil {
		return nil, r.forceNodeErr
	}
	n, ok := r.nodes[path]
	if !ok {
		n = &MockNode{root: r, path: path, data: make(map[string]string)}
		r.nodes[path] = n
	}
	return n, nil
}

func (r *MockRoot) NodeExists(ctx context.Context, path string) (bool, error) {
	_, _ = ctx.Deadline()
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.forceNodeErr != nil {
		return false, r.forceNodeErr
	}
	_, ok := r.nodes[path]
	return ok, nil
}

func (r *MockRoot) Flush(ctx context.Context) error {
	_, _ = ctx.Deadline()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.forceFlushErr != nil {
		return r.forceFlushErr
	}
	r.flushes++
	return nil
}

func (r *MockRoot) Sync(ctx context.Context) error {
	_, _ = ctx.Deadline()
	return nil
}

func (r *MockRoot) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// MockNode implements Node over a map.
type MockNode struct {
	root *MockRoot
	path string
	mu   sync.RWMutex
	data map[string]string
}

func (n *MockNode) Path() string { return n.path }

func (n *MockNode) Get(ctx context.Context, key string) (string, bool, error) {
	_, _ = ctx.Deadline()
	n.root.mu.RLock()
	err := n.root.forceGetErr
	n.root.mu.RUnlock()
	if err != nil {
		return "", false, err
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	v, ok := n.data[key]
	return v, ok, nil
}

func (n *MockNode) Put(ctx context.Context, key, value string) error {
	_, _ = ctx.Deadline()
	n.mu.Lock()
	defer n.mu.Unlock()
	n.data[key] = value
	return nil
}

func (n *MockNode) Remove(ctx context.Context, key string) error {
	_, _ = ctx.Deadline()
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.data, key)
	return nil
}

func (n *MockNode) Keys(ctx context.Context) ([]string, error) {
	_, _ = ctx.Deadline()
	n.mu.RLock()
	defer n.mu.RUnlock()
	keys := make([]string, 0, len(n.data))
	for k := range n.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (n *MockNode) Clear(ctx context.Context) error {
	_, _ = ctx.Deadline()
	n.root.mu.RLock()
	err := n.root.forceClearErr
	n.root.mu.RUnlock()
	if err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.data = make(map[string]string)
	return nil
}

// MockCache implements the Cache interface for testing.
type MockCache struct {
	mu     sync.RWMutex
	data   map[string]interface{}
	closed bool
}

// NewMockCache creates a new MockCache for testing.
func NewMockCache() *MockCache {
	return &MockCache{
		data: make(map[string]interface{}),
	}
}

func (m *MockCache) Get(ctx context.Context, key string) (interface{}, error) {
	_, _ = ctx.Deadline()
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrCacheUnavailable
	}
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (m *MockCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	_, _ = ctx.Deadline()
	_ = ttl

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrCacheUnavailable
	}
	m.data[key] = value
	return nil
}

func (m *MockCache) Delete(ctx context.Context, key string) error {
	_, _ = ctx.Deadline()
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrCacheUnavailable
	}
	delete(m.data, key)
	return nil
}

func (m *MockCache) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockCache) has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[key]
	return ok
}

// MockLogger implements the Logger interface for testing.
type MockLogger struct {
	mu       sync.Mutex
	Messages []string
}

func (m *MockLogger) Debug(msg string, args ...interface{}) {
	m.record("DEBUG", msg, args...)
}

func (m *MockLogger) Info(msg string, args ...interface{}) {
	m.record("INFO", msg, args...)
}

func (m *MockLogger) Warn(msg string, args ...interface{}) {
	m.record("WARN", msg, args...)
}

func (m *MockLogger) Error(msg string, args ...any) {
	m.record("ERROR", msg, args...)
}

func (m *MockLogger) SetLevel(level LogLevel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, fmt.Sprintf("SET_LEVEL: %v", level))
}

func (m *MockLogger) record(level, msg string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, formatMessage(level, msg, args...))
}

func (m *MockLogger) contains(substr string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.Messages {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

func formatMessage(level, msg string, args ...interface{}) string {
	if len(args) > 0 {
		return fmt.Sprintf("%s: %s %v", level, msg, args)
	}
	return fmt.Sprintf("%s: %s", level, msg)
}
