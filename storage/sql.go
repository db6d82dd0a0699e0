package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/CreativeUnicorns/prefs"
)

// queries holds one SQL dialect's statements. Every statement scoping a root
// takes app, scope and owner as its first three arguments; owner is the user
// name for user roots and empty for the system root.
type queries struct {
	migrations []string
	insertNode string
	selectNode string
	selectKeys string
	selectOne  string
	upsert     string
	deleteOne  string
	deleteAll  string
}

// sqlBackend implements roots over a database/sql connection. Writes are
// durable as soon as they return, so Flush and Sync have nothing to do.
type sqlBackend struct {
	name string
	db   *sql.DB
	q    queries
}

// migrate runs the schema statements in order.
func (b *sqlBackend) migrate() error {
	for _, stmt := range b.q.migrations {
		if _, err := b.db.Exec(stmt); err != nil {
			return fmt.Errorf("%s: failed to execute migration: %w", b.name, err)
		}
	}
	return nil
}

func (b *sqlBackend) root(id prefs.RootID) (prefs.Root, error) {
	if id.App == "" || (id.Scope == prefs.ScopeUser && id.User == "") {
		return nil, fmt.Errorf("%w: incomplete root id %q", prefs.ErrInvalidInput, id)
	}
	owner := ""
	if id.Scope == prefs.ScopeUser {
		owner = id.User
	}
	return &sqlRoot{b: b, id: id, scope: id.Scope.String(), owner: owner}, nil
}

func (b *sqlBackend) close() error {
	return b.db.Close()
}

type sqlRoot struct {
	b     *sqlBackend
	id    prefs.RootID
	scope string
	owner string
}

func (r *sqlRoot) ID() prefs.RootID { return r.id }

func (r *sqlRoot) args(extra ...any) []any {
	return append([]any{r.id.App, r.scope, r.owner}, extra...)
}

// Node records path and its ancestors in the node table.
func (r *sqlRoot) Node(ctx context.Context, path string) (prefs.Node, error) {
	if err := prefs.ValidatePath(path); err != nil {
		return nil, err
	}
	for _, p := range ancestors(path) {
		if _, err := r.b.db.ExecContext(ctx, r.b.q.insertNode, r.args(p)...); err != nil {
			return nil, fmt.Errorf("%s: failed to create node %q: %w", r.b.name, p, err)
		}
	}
	return &sqlNode{r: r, path: path}, nil
}

func (r *sqlRoot) NodeExists(ctx context.Context, path string) (bool, error) {
	if err := prefs.ValidatePath(path); err != nil {
		return false, err
	}
	if path == "" {
		return true, nil
	}
	var one int
	err := r.b.db.QueryRowContext(ctx, r.b.q.selectNode, r.args(path)...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: failed to look up node %q: %w", r.b.name, path, err)
	}
	return true, nil
}

func (r *sqlRoot) Flush(context.Context) error { return nil }

func (r *sqlRoot) Sync(context.Context) error { return nil }

func (r *sqlRoot) Close() error { return nil }

type sqlNode struct {
	r    *sqlRoot
	path string
}

func (n *sqlNode) Path() string { return n.path }

func (n *sqlNode) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := n.r.b.db.QueryRowContext(ctx, n.r.b.q.selectOne, n.r.args(n.path, key)...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%s: failed to get entry: %w", n.r.b.name, err)
	}
	return value, true, nil
}

func (n *sqlNode) Put(ctx context.Context, key, value string) error {
	_, err := n.r.b.db.ExecContext(ctx, n.r.b.q.upsert, n.r.args(n.path, key, value, time.Now().UTC())...)
	if err != nil {
		return fmt.Errorf("%s: failed to set entry: %w", n.r.b.name, err)
	}
	return nil
}

func (n *sqlNode) Remove(ctx context.Context, key string) error {
	if _, err := n.r.b.db.ExecContext(ctx, n.r.b.q.deleteOne, n.r.args(n.path, key)...); err != nil {
		return fmt.Errorf("%s: failed to delete entry: %w", n.r.b.name, err)
	}
	return nil
}

func (n *sqlNode) Keys(ctx context.Context) ([]string, error) {
	rows, err := n.r.b.db.QueryContext(ctx, n.r.b.q.selectKeys, n.r.args(n.path)...)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to query keys: %w", n.r.b.name, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("%s: failed to scan key: %w", n.r.b.name, err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: error iterating rows: %w", n.r.b.name, err)
	}
	return keys, nil
}

func (n *sqlNode) Clear(ctx context.Context) error {
	if _, err := n.r.b.db.ExecContext(ctx, n.r.b.q.deleteAll, n.r.args(n.path)...); err != nil {
		return fmt.Errorf("%s: failed to clear node: %w", n.r.b.name, err)
	}
	return nil
}
