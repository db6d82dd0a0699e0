package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/CreativeUnicorns/prefs"
)

// tree holds the nodes of one root in memory, keyed by node path. The root
// node has the empty path and always exists. Nodes modified since the last
// takeDirty are tracked so that file-backed roots only rewrite what changed.
type tree struct {
	mu     sync.RWMutex
	nodes  map[string]map[string]string
	dirty  map[string]struct{}
	closed bool
}

func newTree() *tree {
	return &tree{
		nodes: map[string]map[string]string{"": {}},
		dirty: make(map[string]struct{}),
	}
}

// ancestors returns path and every ancestor above it, root excluded,
// shallowest first: "a/b/c" gives a, a/b, a/b/c.
func ancestors(path string) []string {
	if path == "" {
		return nil
	}
	segs := strings.Split(path, "/")
	out := make([]string, len(segs))
	for i := range segs {
		out[i] = strings.Join(segs[:i+1], "/")
	}
	return out
}

func (t *tree) check() error {
	if t.closed {
		return fmt.Errorf("%w: root closed", prefs.ErrStorageUnavailable)
	}
	return nil
}

// ensure creates the node at path and its ancestors.
func (t *tree) ensure(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.check(); err != nil {
		return err
	}
	for _, p := range ancestors(path) {
		if _, ok := t.nodes[p]; !ok {
			t.nodes[p] = make(map[string]string)
			t.dirty[p] = struct{}{}
		}
	}
	return nil
}

func (t *tree) exists(path string) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if err := t.check(); err != nil {
		return false, err
	}
	_, ok := t.nodes[path]
	return ok, nil
}

func (t *tree) get(path, key string) (string, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if err := t.check(); err != nil {
		return "", false, err
	}
	v, ok := t.nodes[path][key]
	return v, ok, nil
}

// entries returns the node at path, recreating it if a Sync dropped it while
// a handle was still held.
func (t *tree) entries(path string) map[string]string {
	n, ok := t.nodes[path]
	if !ok {
		for _, p := range ancestors(path) {
			if _, ok := t.nodes[p]; !ok {
				t.nodes[p] = make(map[string]string)
				t.dirty[p] = struct{}{}
			}
		}
		n = t.nodes[path]
	}
	return n
}

func (t *tree) put(path, key, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.check(); err != nil {
		return err
	}
	t.entries(path)[key] = value
	t.dirty[path] = struct{}{}
	return nil
}

func (t *tree) remove(path, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.check(); err != nil {
		return err
	}
	n := t.entries(path)
	if _, ok := n[key]; ok {
		delete(n, key)
		t.dirty[path] = struct{}{}
	}
	return nil
}

func (t *tree) keys(path string) ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if err := t.check(); err != nil {
		return nil, err
	}
	n := t.nodes[path]
	keys := make([]string, 0, len(n))
	for k := range n {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (t *tree) clear(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.check(); err != nil {
		return err
	}
	t.nodes[path] = make(map[string]string)
	t.dirty[path] = struct{}{}
	return nil
}

// takeDirty returns copies of every node changed since the last call and
// resets the dirty set.
func (t *tree) takeDirty() map[string]map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]map[string]string, len(t.dirty))
	for p := range t.dirty {
		n := t.nodes[p]
		cp := make(map[string]string, len(n))
		for k, v := range n {
			cp[k] = v
		}
		out[p] = cp
	}
	t.dirty = make(map[string]struct{})
	return out
}

// markDirty puts paths back into the dirty set after a failed write.
func (t *tree) markDirty(paths []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range paths {
		if _, ok := t.nodes[p]; ok {
			t.dirty[p] = struct{}{}
		}
	}
}

// replace swaps in nodes loaded from durable storage, dropping unflushed changes.
func (t *tree) replace(nodes map[string]map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := nodes[""]; !ok {
		nodes[""] = make(map[string]string)
	}
	t.nodes = nodes
	t.dirty = make(map[string]struct{})
}

func (t *tree) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

// treeNode is a handle on one node of a tree.
type treeNode struct {
	t    *tree
	path string
}

func (n *treeNode) Path() string { return n.path }

func (n *treeNode) Get(_ context.Context, key string) (string, bool, error) {
	return n.t.get(n.path, key)
}

func (n *treeNode) Put(_ context.Context, key, value string) error {
	return n.t.put(n.path, key, value)
}

func (n *treeNode) Remove(_ context.Context, key string) error {
	return n.t.remove(n.path, key)
}

func (n *treeNode) Keys(_ context.Context) ([]string, error) {
	return n.t.keys(n.path)
}

func (n *treeNode) Clear(_ context.Context) error {
	return n.t.clear(n.path)
}
