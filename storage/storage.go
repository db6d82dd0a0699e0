// Package storage provides the backends that hold preference roots: an XML
// file store, an in-memory store, SQLite and PostgreSQL.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/CreativeUnicorns/prefs"
	"github.com/CreativeUnicorns/prefs/config"
)

// Backend names accepted by Open.
const (
	BackendXML      = "xml"
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Open creates the backend selected by cfg.Backend.
func Open(cfg config.StorageConfig, logger prefs.Logger) (prefs.Backend, error) {
	if logger == nil {
		logger = prefs.NopLogger()
	}
	switch cfg.Backend {
	case BackendXML, "":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("%w: storage.dir is required for the xml backend", prefs.ErrConfiguration)
		}
		return NewXMLBackend(cfg.Dir, WithSyncInterval(cfg.SyncInterval), WithLogger(logger)), nil
	case BackendMemory:
		return NewMemoryBackend(), nil
	case BackendSQLite:
		path := cfg.DSN
		if path == "" {
			if cfg.Dir == "" {
				return nil, fmt.Errorf("%w: storage.dir or storage.dsn is required for the sqlite backend", prefs.ErrConfiguration)
			}
			if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
				return nil, fmt.Errorf("%w: creating %s: %v", prefs.ErrStorageUnavailable, cfg.Dir, err)
			}
			path = filepath.Join(cfg.Dir, "prefs.db")
		}
		return NewSQLiteBackend(path, WithSQLiteDriver(cfg.SQLiteDriver))
	case BackendPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("%w: storage.dsn is required for the postgres backend", prefs.ErrConfiguration)
		}
		return NewPostgresBackend(cfg.DSN)
	}
	return nil, fmt.Errorf("%w: unknown storage backend %q", prefs.ErrConfiguration, cfg.Backend)
}

// NewProvider opens the configured backend and wraps it in a Provider.
func NewProvider(cfg config.Config, logger prefs.Logger) (*prefs.Provider, error) {
	backend, err := Open(cfg.Storage, logger)
	if err != nil {
		return nil, err
	}
	p, err := prefs.NewProvider(backend,
		prefs.WithAppName(cfg.App),
		prefs.WithUserName(cfg.User),
		prefs.WithProviderLogger(logger),
	)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return p, nil
}

var defaultProvider = sync.OnceValues(func() (*prefs.Provider, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, err
	}
	return NewProvider(cfg, nil)
})

// DefaultProvider returns the process-wide provider, configured once from the
// default config file and PREFS_* environment variables. Later calls return
// the same provider, or the same error.
func DefaultProvider() (*prefs.Provider, error) {
	return defaultProvider()
}
