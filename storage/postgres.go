package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/CreativeUnicorns/prefs"
)

// sqlOpenFunc is a package-level variable that can be overridden for testing.
var sqlOpenFunc = sql.Open

var postgresQueries = queries{
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
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (app, scope, owner, path, name)
		)`,
	},
	insertNode: `INSERT INTO pref_nodes (app, scope, owner, path) VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING`,
	selectNode: `SELECT 1 FROM pref_nodes
		WHERE app = $1 AND scope = $2 AND owner = $3 AND path = $4`,
	selectKeys: `SELECT name FROM pref_entries
		WHERE app = $1 AND scope = $2 AND owner = $3 AND path = $4
		ORDER BY name`,
	selectOne: `SELECT value FROM pref_entries
		WHERE app = $1 AND scope = $2 AND owner = $3 AND path = $4 AND name = $5`,
	upsert: `INSERT INTO pref_entries (app, scope, owner, path, name, value, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (app, scope, owner, path, name)
		DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
	deleteOne: `DELETE FROM pref_entries
		WHERE app = $1 AND scope = $2 AND owner = $3 AND path = $4 AND name = $5`,
	deleteAll: `DELETE FROM pref_entries
		WHERE app = $1 AND scope = $2 AND owner = $3 AND path = $4`,
}

// PostgresBackend stores every root in PostgreSQL.
type PostgresBackend struct {
	sqlBackend
}

// NewPostgresBackend connects using connString and runs migrations.
func NewPostgresBackend(connString string) (*PostgresBackend, error) {
	db, err := sqlOpenFunc("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open database connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: failed to ping database: %w", err)
	}

	b := &PostgresBackend{sqlBackend{name: "postgres", db: db, q: postgresQueries}}
	if err := b.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: failed to run migrations: %w", err)
	}
	return b, nil
}

// Root returns the root for id.
func (b *PostgresBackend) Root(_ context.Context, id prefs.RootID) (prefs.Root, error) {
	return b.root(id)
}

// Close closes the database connection.
func (b *PostgresBackend) Close() error {
	return b.close()
}
