package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/okian/clubwatch/internal/domain/model"
	"github.com/okian/clubwatch/pkg/logger"
)

// FileStore keeps the state as one JSON document. Saves go to a temporary
// file in the same directory which is synced and renamed over the target.
type FileStore struct {
	mu     sync.Mutex
	path   string
	logger logger.Logger
}

// NewFileStore creates a FileStore writing to path.
func NewFileStore(path string, opts ...Option) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: file path is required", ErrNotConfigured)
	}
	s := newSettings(opts)
	return &FileStore{path: filepath.Clean(path), logger: s.logger}, nil
}

// Load reads the state document.
func (s *FileStore) Load(ctx context.Context) (*model.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return model.NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	st := &model.State{}
	if err := json.Unmarshal(raw, st); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", model.ErrStateCorrupt, s.path, err)
	}
	return st.Normalize(), nil
}

// Save writes the state document atomically.
func (s *FileStore) Save(ctx context.Context, st *model.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	committed = true
	s.syncDir(ctx, dir)
	return nil
}

// syncDir makes the rename durable where the platform allows it.
func (s *FileStore) syncDir(ctx context.Context, dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		s.logger.Debug(ctx, "state dir sync failed", logger.String("dir", dir), logger.Error(err))
	}
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error { return nil }
