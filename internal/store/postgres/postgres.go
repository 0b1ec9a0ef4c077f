// Package postgres implements core.Store on PostgreSQL using sqlx.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/dkeye/tileworld/internal/core"
	"github.com/dkeye/tileworld/internal/domain"
)

type Config struct {
	DSN      string
	MaxConns int
	Timeout  time.Duration
}

type Store struct {
	db *sqlx.DB
}

var _ core.Store = (*Store)(nil)

// Open connects and verifies connectivity with a ping.
func Open(cfg Config) (*Store, error) {
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 10
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle.
func NewWithDB(db *sqlx.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

// EnsureSchema creates the tables if they do not exist (idempotent).
func (s *Store) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  email TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  is_developer BOOLEAN NOT NULL DEFAULT false,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  last_login TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS maps (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  slug TEXT NOT NULL,
  width INT NOT NULL,
  height INT NOT NULL,
  tiles JSONB NOT NULL,
  is_published BOOLEAN NOT NULL DEFAULT false,
  is_default_spawn BOOLEAN NOT NULL DEFAULT false,
  created_by TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_maps_published ON maps(is_published);
CREATE UNIQUE INDEX IF NOT EXISTS idx_maps_single_default ON maps(is_default_spawn) WHERE is_default_spawn;
CREATE TABLE IF NOT EXISTS player_presence (
  user_id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
  display_name TEXT NOT NULL,
  map_id TEXT NOT NULL,
  pos_row INT NOT NULL,
  pos_col INT NOT NULL,
  direction TEXT NOT NULL DEFAULT 'idle',
  is_online BOOLEAN NOT NULL DEFAULT false,
  connection_id TEXT,
  last_update TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_presence_room ON player_presence(map_id, is_online);
CREATE INDEX IF NOT EXISTS idx_presence_conn ON player_presence(connection_id);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return translate(err)
}

// translate maps driver errors onto the domain taxonomy.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %s", domain.ErrConflict, pqErr.Constraint)
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}
