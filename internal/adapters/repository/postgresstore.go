package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/okian/clubwatch/internal/domain/model"
	"github.com/okian/clubwatch/pkg/logger"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS clubwatch_state (
    club       TEXT PRIMARY KEY,
    document   JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore keeps the state as one JSONB document per club, replaced by
// a single upsert.
type PostgresStore struct {
	pool   *pgxpool.Pool
	key    string
	logger logger.Logger
}

// OpenPostgres connects to dsn and ensures the state table exists.
func OpenPostgres(ctx context.Context, dsn string, opts ...Option) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("%w: postgres dsn is required", ErrNotConfigured)
	}
	s := newSettings(opts)
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply postgres schema: %w", err)
	}
	s.logger.Debug(ctx, "postgres state store opened", logger.String("key", s.documentKey))
	return &PostgresStore{pool: pool, key: s.documentKey, logger: s.logger}, nil
}

// Load reads the document of this club.
func (s *PostgresStore) Load(ctx context.Context) (*model.State, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT document FROM clubwatch_state WHERE club = $1`, s.key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("select state: %w", err)
	}
	st := &model.State{}
	if err := json.Unmarshal(raw, st); err != nil {
		return nil, fmt.Errorf("%w: decode document %s: %v", model.ErrStateCorrupt, s.key, err)
	}
	return st.Normalize(), nil
}

// Save upserts the document of this club.
func (s *PostgresStore) Save(ctx context.Context, st *model.State) error {
	if s == nil || s.pool == nil {
		return ErrNotConfigured
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO clubwatch_state (club, document, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (club) DO UPDATE
		SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at`,
		s.key, raw)
	if err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
