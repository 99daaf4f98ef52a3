// Package postgres implements the store boundary on PostgreSQL via pgx.
// The user removal cascade runs inside a single transaction, so callers never
// observe a partially applied cascade.
package postgres

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/c360/socialgate/errors"
	"github.com/c360/socialgate/store"
)

// Schema creates the tables this store expects. Applied by the seed command;
// production deployments run it out of band.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL,
	email         TEXT NOT NULL,
	password      TEXT NOT NULL,
	role          TEXT NOT NULL DEFAULT '',
	name          TEXT NOT NULL DEFAULT '',
	bio           TEXT NOT NULL DEFAULT '',
	avatar_id     TEXT NOT NULL DEFAULT '',
	cover_id      TEXT NOT NULL DEFAULT '',
	follower_ids  TEXT[] NOT NULL DEFAULT '{}',
	following_ids TEXT[] NOT NULL DEFAULT '{}',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT users_username_key UNIQUE (username),
	CONSTRAINT users_email_key UNIQUE (email)
);

CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	text       TEXT NOT NULL,
	author_id  TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS messages_author_id_idx ON messages (author_id);
`

// Store implements store.Store on a pgx connection pool. The pool handles
// connection-level concurrency; no locking happens at this layer.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Connect opens a pool against the given database URL and verifies it.
func Connect(ctx context.Context, databaseURL string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "postgres", "Connect", "parse database url")
	}
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.WrapTransient(err, "postgres", "Connect", "create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.WrapTransient(err, "postgres", "Connect", "ping")
	}

	logger.Info("connected to postgres")
	return &Store{pool: pool, logger: logger.With("component", "postgres-store")}, nil
}

// NewWithPool wraps an existing pool (tests).
func NewWithPool(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger.With("component", "postgres-store")}
}

// EnsureSchema applies the schema DDL.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return errors.Wrap(err, "postgres", "EnsureSchema", "apply schema")
	}
	return nil
}

// Ping verifies the pool can still reach the database.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return errors.WrapTransient(err, "postgres", "Ping", "ping")
	}
	return nil
}

// Users returns the user collection.
func (s *Store) Users() store.UserStore { return &userStore{s} }

// Messages returns the message collection.
func (s *Store) Messages() store.MessageStore { return &messageStore{s} }

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

var _ store.Store = (*Store)(nil)
