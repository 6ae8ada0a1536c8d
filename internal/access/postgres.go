package access

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/voxcast/pkg/types"
)

// ddlOverrides stores one row per (actor, spell). The empty actor is the
// global override.
const ddlOverrides = `
CREATE TABLE IF NOT EXISTS spell_access_overrides (
    actor_id   TEXT        NOT NULL DEFAULT '',
    spell_id   TEXT        NOT NULL,
    enabled    BOOLEAN     NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (actor_id, spell_id)
);`

// PostgresStore persists overrides in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to dsn and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("access postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("access postgres: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// Migrate creates the overrides table if it does not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlOverrides); err != nil {
		return fmt.Errorf("access postgres: migrate: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Load implements [Store].
func (s *PostgresStore) Load(ctx context.Context) ([]Override, error) {
	rows, err := s.pool.Query(ctx, `SELECT actor_id, spell_id, enabled FROM spell_access_overrides`)
	if err != nil {
		return nil, fmt.Errorf("access postgres: load: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Override, error) {
		var (
			o     Override
			actor string
		)
		err := row.Scan(&actor, &o.Spell, &o.Enabled)
		o.Actor = types.ActorID(actor)
		return o, err
	})
	if err != nil {
		return nil, fmt.Errorf("access postgres: scan: %w", err)
	}
	return out, nil
}

// Put implements [Store].
func (s *PostgresStore) Put(ctx context.Context, o Override) error {
	const q = `
INSERT INTO spell_access_overrides (actor_id, spell_id, enabled, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (actor_id, spell_id)
DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = now()`
	if _, err := s.pool.Exec(ctx, q, string(o.Actor), o.Spell, o.Enabled); err != nil {
		return fmt.Errorf("access postgres: put: %w", err)
	}
	return nil
}

// Ping implements [Store].
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
