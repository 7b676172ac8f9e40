// Package backend selects a store implementation by name.
package backend

import (
	"strings"

	"github.com/Keyring-Network/groundchat/internal/store"
	"github.com/Keyring-Network/groundchat/internal/store/bolt"
	"github.com/Keyring-Network/groundchat/internal/store/memory"
	"github.com/Keyring-Network/groundchat/internal/store/postgres"
	"github.com/Keyring-Network/groundchat/internal/store/sqlite"
)

const (
	Memory   = "memory"
	Postgres = "postgres"
	SQLite   = "sqlite"
	Bolt     = "bolt"
)

type Options struct {
	Kind        string
	PostgresURL string
	SQLitePath  string
	BoltPath    string
}

var (
	openPostgres = func(conn string) (store.Backend, error) {
		return postgres.New(conn)
	}
	openSQLite = func(path string) (store.Backend, error) {
		return sqlite.New(path)
	}
	openBolt = func(path string) (store.Backend, error) {
		return bolt.New(path)
	}
)

func Open(opts Options) (store.Backend, error) {
	kind := strings.ToLower(strings.TrimSpace(opts.Kind))
	switch kind {
	case "", Memory:
		return memory.New(), nil
	case Postgres:
		return openPostgres(opts.PostgresURL)
	case SQLite:
		return openSQLite(opts.SQLitePath)
	case Bolt:
		return openBolt(opts.BoltPath)
	default:
		return nil, store.ErrUnsupportedBackend{Backend: opts.Kind}
	}
}

// Shared reports whether separate processes can open the backend at once.
// Only shared backends are swept by the worker; the server sweeps the rest.
func Shared(kind string) bool {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case Postgres, SQLite:
		return true
	default:
		return false
	}
}
