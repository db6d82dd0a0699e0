package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // registers "sqlite3" (cgo)
	_ "modernc.org/sqlite"          // registers "sqlite" (pure Go)

	"github.com/CreativeUnicorns/prefs"
)

var sqliteQueries = queries{
	migrations: []string{
		`CREATE TABLE IF NOT EXISTS pref_nodes (
			app TEXT NOT NULL,
			scope TEXT NOT NULL,
			owner TEXT NOT NULL,
			path TEXT NOT NULL,
			PRIMARY KEY (app, scope, owner, path)
		)`,
		`CREATE TABLE IF NOT EXISTS pref_entries (
			app TEXT NOT NULL,
			scope TEXT NOT NULL,
			owner TEXT NOT NULL,
			path TEXT NOT NULL,
			name TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (app, scope, owner, path, name)
		)`,
	},
	insertNode: `INSERT INTO pref_nodes (app, scope, owner, path) VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
	selectNode: `SELECT 1 FROM pref_nodes
		WHERE app = ? AND scope = ? AND owner = ? AND path = ?`,
	selectKeys: `SELECT name FROM pref_entries
		WHERE app = ? AND scope = ? AND owner = ? AND path = ?
		ORDER BY name`,
	selectOne: `SELECT value FROM pref_entries
		WHERE app = ? AND scope = ? AND owner = ? AND path = ? AND name = ?`,
	upsert: `INSERT INTO pref_entries (app, scope, owner, path, name, value, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (app, scope, owner, path, name)
		DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
	deleteOne: `DELETE FROM pref_entries
		WHERE app = ? AND scope = ? AND owner = ? AND path = ? AND name = ?`,
	deleteAll: `DELETE FROM pref_entries
		WHERE app = ? AND scope = ? AND owner = ? AND path = ?`,
}

// SQLite driver names accepted by WithSQLiteDriver.
const (
	DriverMattn   = "sqlite3"
	DriverModernc = "sqlite"
)

// SQLiteBackend stores every root in one SQLite database.
type SQLiteBackend struct {
	sqlBackend
}

// SQLiteOption customizes a SQLiteBackend.
type SQLiteOption func(*sqliteOptions)

type sqliteOptions struct {
	driver string
}

// WithSQLiteDriver selects the database/sql driver: DriverMattn (default) or
// DriverModernc, which needs no cgo.
func WithSQLiteDriver(name string) SQLiteOption {
	return func(o *sqliteOptions) {
		if name != "" {
			o.driver = name
		}
	}
}

// NewSQLiteBackend opens the SQLite database at dbPath and runs migrations.
func NewSQLiteBackend(dbPath string, opts ...SQLiteOption) (*SQLiteBackend, error) {
	o := sqliteOptions{driver: DriverMattn}
	for _, opt := range opts {
		opt(&o)
	}
	if o.driver != DriverMattn && o.driver != DriverModernc {
		return nil, fmt.Errorf("%w: unknown sqlite driver %q", prefs.ErrConfiguration, o.driver)
	}

	db, err := sql.Open(o.driver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	b := &SQLiteBackend{sqlBackend{name: "sqlite", db: db, q: sqliteQueries}}
	if err := b.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return b, nil
}

// Root returns the root for id. Roots share the backend's connection.
func (b *SQLiteBackend) Root(_ context.Context, id prefs.RootID) (prefs.Root, error) {
	return b.root(id)
}

// Close closes the SQLite database connection.
func (b *SQLiteBackend) Close() error {
	return b.close()
}
