package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/okian/clubwatch/internal/domain/model"
	"github.com/okian/clubwatch/pkg/logger"
	"modernc.org/sqlite" // also registers the "sqlite" driver
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

const (
	metaRosterSeeded = "roster_seeded"
	metaGlobalLeader = "global_leader"
)

// SQLiteStore keeps the state in normalized tables. A save rewrites every
// table inside one transaction.
type SQLiteStore struct {
	db     *sql.DB
	logger logger.Logger
}

// OpenSQLite opens the database at path and applies the embedded schema.
// A file that is not a readable SQLite database is moved aside to
// <path>.corrupt-<unix> and a fresh database is created in its place.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: sqlite path is required", ErrNotConfigured)
	}
	s := newSettings(opts)
	path = filepath.Clean(path)

	db, err := openSQLiteDB(ctx, path)
	if errors.Is(err, model.ErrStateCorrupt) {
		moved, qerr := quarantine(path, time.Now())
		if qerr != nil {
			return nil, fmt.Errorf("%w: quarantine failed: %v", err, qerr)
		}
		s.logger.Warn(ctx, "sqlite state unreadable, starting from an empty database",
			logger.String("path", path),
			logger.String("movedTo", moved),
			logger.Error(err),
		)
		db, err = openSQLiteDB(ctx, path)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Debug(ctx, "sqlite state store opened", logger.String("path", path))
	return &SQLiteStore{db: db, logger: s.logger}, nil
}

func openSQLiteDB(ctx context.Context, path string) (*sql.DB, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer; keeps WAL checkpoints and the single transaction simple.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", classifySQLite(err))
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", classifySQLite(err))
	}
	return db, nil
}

// classifySQLite marks errors reporting an unreadable database file as
// ErrStateCorrupt.
func classifySQLite(err error) error {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_CORRUPT:
		return fmt.Errorf("%w: %w", model.ErrStateCorrupt, err)
	}
	return err
}

// quarantine renames the database and its WAL sidecars out of the way and
// returns the new database path.
func quarantine(path string, now time.Time) (string, error) {
	suffix := ".corrupt-" + strconv.FormatInt(now.Unix(), 10)
	for _, side := range []string{"-wal", "-shm"} {
		if err := os.Rename(path+side, path+suffix+side); err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
	}
	if err := os.Rename(path, path+suffix); err != nil {
		return "", err
	}
	return path + suffix, nil
}

// Load reads all tables into a State.
func (s *SQLiteStore) Load(ctx context.Context) (*model.State, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	st := model.NewState()

	if err := s.each(ctx, `SELECT id, display_name, role FROM members`, func(rows *sql.Rows) error {
		var m model.MemberRef
		if err := rows.Scan(&m.ID, &m.DisplayName, &m.Role); err != nil {
			return err
		}
		st.Roster[m.ID] = m
		return nil
	}); err != nil {
		return nil, err
	}

	if err := s.each(ctx, `SELECT member_id, dimension, value FROM trophy_watermarks`, func(rows *sql.Rows) error {
		var id, dim string
		var v int
		if err := rows.Scan(&id, &dim, &v); err != nil {
			return err
		}
		if st.Trophies[id] == nil {
			st.Trophies[id] = make(map[string]int)
		}
		st.Trophies[id][dim] = v
		return nil
	}); err != nil {
		return nil, err
	}

	if err := s.each(ctx, `SELECT member_id, value FROM ranked_watermarks`, func(rows *sql.Rows) error {
		var id string
		var v int
		if err := rows.Scan(&id, &v); err != nil {
			return err
		}
		st.Ranked[id] = v
		return nil
	}); err != nil {
		return nil, err
	}

	if err := s.each(ctx, `SELECT member_id, threshold FROM threshold_watermarks`, func(rows *sql.Rows) error {
		var id string
		var v int
		if err := rows.Scan(&id, &v); err != nil {
			return err
		}
		st.LastThreshold[id] = v
		return nil
	}); err != nil {
		return nil, err
	}

	if err := s.each(ctx, `SELECT member_id FROM rebaseline`, func(rows *sql.Rows) error {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		st.Rebaseline[id] = true
		return nil
	}); err != nil {
		return nil, err
	}

	if err := s.each(ctx, `SELECT key, value FROM meta`, func(rows *sql.Rows) error {
		var key string
		var v int
		if err := rows.Scan(&key, &v); err != nil {
			return err
		}
		switch key {
		case metaRosterSeeded:
			st.RosterSeeded = v != 0
		case metaGlobalLeader:
			st.GlobalLeader = v
		}
		return nil
	}); err != nil {
		return nil, err
	}

	return st, nil
}

func (s *SQLiteStore) each(ctx context.Context, query string, scan func(*sql.Rows) error) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("query state: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("%w: scan row: %v", model.ErrStateCorrupt, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	return nil
}

// Save replaces all tables in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, st *model.State) (err error) {
	if s == nil || s.db == nil {
		return ErrNotConfigured
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin state tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, table := range []string{"members", "trophy_watermarks", "ranked_watermarks", "threshold_watermarks", "rebaseline", "meta"} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, id := range model.SortedIDs(st.Roster) {
		m := st.Roster[id]
		if _, err = tx.ExecContext(ctx, `INSERT INTO members (id, display_name, role) VALUES (?, ?, ?)`, id, m.DisplayName, m.Role); err != nil {
			return fmt.Errorf("insert member %s: %w", id, err)
		}
	}
	for _, id := range model.SortedIDs(st.Trophies) {
		for dim, v := range st.Trophies[id] {
			if _, err = tx.ExecContext(ctx, `INSERT INTO trophy_watermarks (member_id, dimension, value) VALUES (?, ?, ?)`, id, dim, v); err != nil {
				return fmt.Errorf("insert trophy watermark %s/%s: %w", id, dim, err)
			}
		}
	}
	for id, v := range st.Ranked {
		if _, err = tx.ExecContext(ctx, `INSERT INTO ranked_watermarks (member_id, value) VALUES (?, ?)`, id, v); err != nil {
			return fmt.Errorf("insert ranked watermark %s: %w", id, err)
		}
	}
	for id, v := range st.LastThreshold {
		if _, err = tx.ExecContext(ctx, `INSERT INTO threshold_watermarks (member_id, threshold) VALUES (?, ?)`, id, v); err != nil {
			return fmt.Errorf("insert threshold watermark %s: %w", id, err)
		}
	}
	for id, pending := range st.Rebaseline {
		if !pending {
			continue
		}
		if _, err = tx.ExecContext(ctx, `INSERT INTO rebaseline (member_id) VALUES (?)`, id); err != nil {
			return fmt.Errorf("insert rebaseline %s: %w", id, err)
		}
	}

	seeded := 0
	if st.RosterSeeded {
		seeded = 1
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?), (?, ?)`,
		metaRosterSeeded, seeded, metaGlobalLeader, st.GlobalLeader); err != nil {
		return fmt.Errorf("insert meta: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit state tx: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
