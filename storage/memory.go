package storage

import (
	"context"
	"sync"

	"github.com/CreativeUnicorns/prefs"
)

// MemoryBackend keeps every root in process memory. Roots outlive the
// providers that opened them, so two providers over one MemoryBackend see the
// same data. Useful for tests and for applications that need no persistence.
type MemoryBackend struct {
	mu    sync.Mutex
	trees map[string]*tree
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{trees: make(map[string]*tree)}
}

// Root returns the root for id, creating it if this backend has not seen id.
func (b *MemoryBackend) Root(_ context.Context, id prefs.RootID) (prefs.Root, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.trees[id.String()]
	if !ok {
		t = newTree()
		b.trees[id.String()] = t
	}
	return &memoryRoot{id: id, t: t}, nil
}

// Close is a no-op for MemoryBackend as there are no external resources to release.
func (b *MemoryBackend) Close() error {
	return nil
}

type memoryRoot struct {
	id prefs.RootID
	t  *tree
}

func (r *memoryRoot) ID() prefs.RootID { return r.id }

func (r *memoryRoot) Node(_ context.Context, path string) (prefs.Node, error) {
	if err := prefs.ValidatePath(path); err != nil {
		return nil, err
	}
	if err := r.t.ensure(path); err != nil {
		return nil, err
	}
	return &treeNode{t: r.t, path: path}, nil
}

func (r *memoryRoot) NodeExists(_ context.Context, path string) (bool, error) {
	if err := prefs.ValidatePath(path); err != nil {
		return false, err
	}
	return r.t.exists(path)
}

// Flush has nothing to persist; every write is already visible.
func (r *memoryRoot) Flush(context.Context) error { return nil }

func (r *memoryRoot) Sync(context.Context) error { return nil }

func (r *memoryRoot) Close() error { return nil }
