package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// migration is one forward-only schema step.
type migration struct {
	version int
	name    string
	sql     string
}

var migrations = []migration{
	{version: 1, name: "create_progress_ledger", sql: migration001},
	{version: 2, name: "create_profile_accumulators", sql: migration002},
}

// Migrator applies the embedded schema and records applied versions in
// schema_migrations.
type Migrator struct {
	conn  *Connection
	steps []migration
}

// NewMigrator creates a Migrator for conn.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, steps: migrations}
}

// Migrate applies every pending step, each in its own transaction, and
// returns the versions it applied.
func (m *Migrator) Migrate(ctx context.Context) ([]int, error) {
	const ensure = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`
	if _, err := m.conn.Exec(ctx, ensure); err != nil {
		return nil, fmt.Errorf("%w: schema_migrations: %w", ErrMigrationFailed, err)
	}

	done, err := m.appliedVersions(ctx)
	if err != nil {
		return nil, err
	}

	var applied []int
	for _, step := range m.steps {
		if done[step.version] {
			continue
		}
		err := m.conn.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, step.sql); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, step.version, step.name)
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("%w: %03d_%s: %w", ErrMigrationFailed, step.version, step.name, err)
		}
		applied = append(applied, step.version)
	}
	return applied, nil
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := m.conn.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("%w: list applied: %w", ErrMigrationFailed, err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return nil, fmt.Errorf("%w: list applied: %w", ErrMigrationFailed, err)
	}
	done := make(map[int]bool, len(versions))
	for _, v := range versions {
		done[v] = true
	}
	return done, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: PROGRESS LEDGER
// ══════════════════════════════════════════════════════════════════════════════

const migration001 = `
-- One row per (profile, module, category). Slots and performance bounds are
-- stored inline so a single row lock covers the whole entry.
CREATE TABLE IF NOT EXISTS ledger_entries (
    profile_id UUID NOT NULL,
    module SMALLINT NOT NULL,
    category_id INTEGER NOT NULL,
    completion_count INTEGER NOT NULL DEFAULT 0,
    last_renewed_at TIMESTAMP WITH TIME ZONE NOT NULL,
    slots JSONB NOT NULL DEFAULT '[]'::jsonb,
    bounds JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (profile_id, module, category_id),
    CONSTRAINT valid_module CHECK (module BETWEEN 1 AND 4),
    CONSTRAINT valid_completion_count CHECK (completion_count >= 0)
);

CREATE INDEX IF NOT EXISTS idx_ledger_entries_profile ON ledger_entries(profile_id);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: PROFILE ACCUMULATORS
// ══════════════════════════════════════════════════════════════════════════════

const migration002 = `
CREATE TABLE IF NOT EXISTS module_progress (
    profile_id UUID NOT NULL,
    module SMALLINT NOT NULL,
    experience DOUBLE PRECISION NOT NULL DEFAULT 0,
    streak_start TIMESTAMP WITH TIME ZONE,
    current_streak INTEGER NOT NULL DEFAULT 0,
    max_streak INTEGER NOT NULL DEFAULT 0,
    building_level INTEGER NOT NULL DEFAULT 0,
    population INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (profile_id, module),
    CONSTRAINT valid_module CHECK (module BETWEEN 1 AND 4),
    CONSTRAINT valid_experience CHECK (experience >= 0),
    CONSTRAINT valid_population CHECK (population >= 0)
);

CREATE TABLE IF NOT EXISTS wallets (
    profile_id UUID PRIMARY KEY,
    balance BIGINT NOT NULL DEFAULT 0,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
`
