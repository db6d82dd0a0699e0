package storage

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/CreativeUnicorns/prefs"
)

const (
	prefsFileName       = "prefs.xml"
	mapVersion          = "1.0"
	defaultSyncInterval = 30 * time.Second
	flushConcurrency    = 4
)

type xmlMap struct {
	XMLName xml.Name   `xml:"map"`
	Version string     `xml:"version,attr"`
	Entries []xmlEntry `xml:"entry"`
}

type xmlEntry struct {
	Key   string `xml:"key,attr"`
	Value string `xml:"value,attr"`
}

// XMLBackend stores each root as a directory tree: one directory per node,
// holding the node's entries in a prefs.xml file.
//
//	<dir>/<app>/system/<node path>/prefs.xml
//	<dir>/<app>/users/<user>/<node path>/prefs.xml
//
// Roots keep their nodes in memory and write changed nodes on Flush, on
// Close, and every sync interval in the background.
type XMLBackend struct {
	dir          string
	syncInterval time.Duration
	logger       prefs.Logger

	mu    sync.Mutex
	roots []*xmlRoot
}

// XMLOption customizes an XMLBackend.
type XMLOption func(*XMLBackend)

// WithSyncInterval sets how often roots flush in the background. Zero
// disables background flushing.
func WithSyncInterval(d time.Duration) XMLOption {
	return func(b *XMLBackend) {
		if d >= 0 {
			b.syncInterval = d
		}
	}
}

// WithLogger sets the logger for background flush failures.
func WithLogger(l prefs.Logger) XMLOption {
	return func(b *XMLBackend) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewXMLBackend creates an XMLBackend rooted at dir. Nothing is touched on
// disk until a root is opened.
func NewXMLBackend(dir string, opts ...XMLOption) *XMLBackend {
	b := &XMLBackend{
		dir:          dir,
		syncInterval: defaultSyncInterval,
		logger:       prefs.NopLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Dir returns the base directory.
func (b *XMLBackend) Dir() string {
	return b.dir
}

func (b *XMLBackend) rootDir(id prefs.RootID) string {
	if id.Scope == prefs.ScopeSystem {
		return filepath.Join(b.dir, encodeSegment(id.App), "system")
	}
	return filepath.Join(b.dir, encodeSegment(id.App), "users", encodeSegment(id.User))
}

// Root opens the root for id and loads its nodes from disk.
func (b *XMLBackend) Root(ctx context.Context, id prefs.RootID) (prefs.Root, error) {
	if b.dir == "" {
		return nil, fmt.Errorf("%w: xml store has no directory", prefs.ErrConfiguration)
	}
	if id.App == "" || (id.Scope == prefs.ScopeUser && id.User == "") {
		return nil, fmt.Errorf("%w: incomplete root id %q", prefs.ErrInvalidInput, id)
	}

	dir := b.rootDir(id)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: creating %s: %v", prefs.ErrStorageUnavailable, dir, err)
	}

	r := &xmlRoot{
		id:     id,
		dir:    dir,
		t:      newTree(),
		logger: b.logger,
	}
	if err := r.load(ctx); err != nil {
		return nil, err
	}
	if b.syncInterval > 0 {
		r.stop = make(chan struct{})
		r.done = make(chan struct{})
		go r.syncLoop(b.syncInterval)
	}

	b.mu.Lock()
	b.roots = append(b.roots, r)
	b.mu.Unlock()
	return r, nil
}

// Close closes every root opened through the backend, flushing them.
func (b *XMLBackend) Close() error {
	b.mu.Lock()
	roots := b.roots
	b.roots = nil
	b.mu.Unlock()

	var errs []error
	for _, r := range roots {
		// Roots closed through the provider already reported their errors.
		if r.closed.Load() {
			continue
		}
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type xmlRoot struct {
	id     prefs.RootID
	dir    string
	t      *tree
	logger prefs.Logger

	// ioMu serialises Flush, Sync and Close against each other.
	ioMu      sync.Mutex
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	closed    atomic.Bool
}

func (r *xmlRoot) ID() prefs.RootID { return r.id }

func (r *xmlRoot) Node(_ context.Context, path string) (prefs.Node, error) {
	if err := prefs.ValidatePath(path); err != nil {
		return nil, err
	}
	if err := r.t.ensure(path); err != nil {
		return nil, err
	}
	return &xmlNode{treeNode: &treeNode{t: r.t, path: path}}, nil
}

func (r *xmlRoot) NodeExists(_ context.Context, path string) (bool, error) {
	if err := prefs.ValidatePath(path); err != nil {
		return false, err
	}
	return r.t.exists(path)
}

// xmlNode rejects keys and values that an XML 1.0 document cannot carry.
// encoding/xml would otherwise write them as U+FFFD and the value read back
// would differ from the one stored.
type xmlNode struct {
	*treeNode
}

func (n *xmlNode) Put(ctx context.Context, key, value string) error {
	if !xmlSafe(key) {
		return fmt.Errorf("%w: key %q has characters an xml file cannot hold", prefs.ErrInvalidKey, key)
	}
	if !xmlSafe(value) {
		return fmt.Errorf("%w: value of %q has characters an xml file cannot hold", prefs.ErrInvalidValue, key)
	}
	return n.treeNode.Put(ctx, key, value)
}

// xmlSafe reports whether s is valid UTF-8 made only of XML 1.0 Chars.
func xmlSafe(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		switch {
		case r == 0x09 || r == 0x0A || r == 0x0D:
		case r >= 0x20 && r <= 0xD7FF:
		case r >= 0xE000 && r <= 0xFFFD:
		case r >= 0x10000 && r <= 0x10FFFF:
		default:
			return false
		}
	}
	return true
}

// Flush writes every node changed since the last flush, in parallel. If any
// write fails the whole batch stays dirty for the next attempt.
func (r *xmlRoot) Flush(ctx context.Context) error {
	r.ioMu.Lock()
	defer r.ioMu.Unlock()
	if err := r.t.check(); err != nil {
		return err
	}
	return r.flushLocked(ctx)
}

func (r *xmlRoot) flushLocked(ctx context.Context) error {
	dirty := r.t.takeDirty()
	if len(dirty) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(flushConcurrency)
	for path, entries := range dirty {
		path, entries := path, entries
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return writeNodeFile(r.nodeDir(path), entries)
		})
	}
	if err := g.Wait(); err != nil {
		paths := make([]string, 0, len(dirty))
		for path := range dirty {
			paths = append(paths, path)
		}
		r.t.markDirty(paths)
		return fmt.Errorf("%w: flushing %s: %v", prefs.ErrStorageUnavailable, r.id, err)
	}
	return nil
}

// Sync drops unflushed changes and reloads the root from disk.
func (r *xmlRoot) Sync(ctx context.Context) error {
	r.ioMu.Lock()
	defer r.ioMu.Unlock()
	if err := r.t.check(); err != nil {
		return err
	}
	return r.load(ctx)
}

// Close stops background flushing, flushes pending changes and makes further
// access fail.
func (r *xmlRoot) Close() error {
	r.closeOnce.Do(func() {
		if r.stop != nil {
			close(r.stop)
			<-r.done
		}
		r.ioMu.Lock()
		defer r.ioMu.Unlock()
		r.closeErr = r.flushLocked(context.Background())
		r.t.close()
		r.closed.Store(true)
	})
	return r.closeErr
}

func (r *xmlRoot) syncLoop(interval time.Duration) {
	defer close(r.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.Flush(context.Background()); err != nil {
				r.logger.Error("Background flush failed", "root", r.id.String(), "error", err)
			}
		case <-r.stop:
			return
		}
	}
}

func (r *xmlRoot) nodeDir(path string) string {
	if path == "" {
		return r.dir
	}
	segs := strings.Split(path, "/")
	parts := make([]string, 0, len(segs)+1)
	parts = append(parts, r.dir)
	for _, s := range segs {
		parts = append(parts, encodeSegment(s))
	}
	return filepath.Join(parts...)
}

// load reads every node directory below the root directory.
func (r *xmlRoot) load(ctx context.Context) error {
	nodes := make(map[string]map[string]string)
	err := filepath.WalkDir(r.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(r.dir, p)
		if err != nil {
			return err
		}
		path, err := decodePath(rel)
		if err != nil {
			return err
		}
		entries, err := readNodeFile(filepath.Join(p, prefsFileName))
		if err != nil {
			return err
		}
		nodes[path] = entries
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: loading %s: %v", prefs.ErrStorageUnavailable, r.id, err)
	}
	r.t.replace(nodes)
	return nil
}

func decodePath(rel string) (string, error) {
	if rel == "." {
		return "", nil
	}
	segs := strings.Split(filepath.ToSlash(rel), "/")
	for i, s := range segs {
		dec, err := decodeSegment(s)
		if err != nil {
			return "", fmt.Errorf("node directory %q: %w", rel, err)
		}
		segs[i] = dec
	}
	return strings.Join(segs, "/"), nil
}

// encodeSegment maps a node name to a directory name. Names that could clash
// with prefs.xml, temp files or the escape prefix itself get a leading "_".
func encodeSegment(s string) string {
	esc := url.PathEscape(s)
	if strings.HasPrefix(esc, "_") || strings.HasPrefix(esc, ".") || esc == prefsFileName {
		esc = "_" + esc
	}
	return esc
}

func decodeSegment(s string) (string, error) {
	return url.PathUnescape(strings.TrimPrefix(s, "_"))
}

func readNodeFile(file string) (map[string]string, error) {
	entries := make(map[string]string)
	data, err := os.ReadFile(file)
	if errors.Is(err, fs.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return nil, err
	}

	var m xmlMap
	if err := xml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("corrupt %s: %w", file, err)
	}
	for _, e := range m.Entries {
		entries[e.Key] = e.Value
	}
	return entries, nil
}

// writeNodeFile replaces the node's prefs.xml atomically. An empty node keeps
// its directory but loses its file.
func writeNodeFile(dir string, entries map[string]string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	file := filepath.Join(dir, prefsFileName)
	if len(entries) == 0 {
		if err := os.Remove(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	}

	m := xmlMap{Version: mapVersion, Entries: make([]xmlEntry, 0, len(entries))}
	for k, v := range entries {
		m.Entries = append(m.Entries, xmlEntry{Key: k, Value: v})
	}
	sort.Slice(m.Entries, func(i, j int) bool { return m.Entries[i].Key < m.Entries[j].Key })

	data, err := xml.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".prefs-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(xml.Header); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), file)
}
