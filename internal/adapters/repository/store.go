// Package repository persists the poller state. Every backend stores the
// whole aggregate atomically: a save either fully applies or leaves the
// previous state intact.
package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/clubwatch/internal/domain/model"
)

// Backend names accepted by Open.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Store provides atomic load/save of the persisted state.
type Store interface {
	// Load returns the persisted state, or an empty unseeded state when
	// nothing was saved yet. An unreadable document yields ErrStateCorrupt.
	Load(ctx context.Context) (*model.State, error)
	// Save replaces the persisted state in one atomic step.
	Save(ctx context.Context, st *model.State) error
	Close() error
}

// Open builds the store for backend. path is used by the file and SQLite
// backends, dsn by Postgres.
func Open(ctx context.Context, backend, path, dsn string, opts ...Option) (Store, error) {
	var (
		store Store
		err   error
	)
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case BackendFile, "":
		store, err = NewFileStore(path, opts...)
	case BackendSQLite:
		store, err = OpenSQLite(ctx, path, opts...)
	case BackendPostgres:
		store, err = OpenPostgres(ctx, dsn, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}
