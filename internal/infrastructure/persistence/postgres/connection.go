// Package postgres implements the PostgreSQL persistence layer of HomeQuest.
// Ledger entries and module accumulators are locked with SELECT ... FOR UPDATE
// for the lifetime of the reward transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/homequest/homequest/internal/domain/shared"
)

var (
	// ErrConnectionClosed is returned once Close has been called.
	ErrConnectionClosed = errors.New("postgres: connection pool is closed")

	// ErrMigrationFailed wraps any schema migration error.
	ErrMigrationFailed = errors.New("postgres: migration failed")

	// ErrPoolExhausted is reported by Check when no connection is free.
	ErrPoolExhausted = errors.New("postgres: connection pool exhausted")
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIG
// ══════════════════════════════════════════════════════════════════════════════

// Config holds pool settings. Zero values keep the pgxpool defaults.
type Config struct {
	URL               string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration

	// LockTimeout bounds how long a reward transaction waits on a row lock.
	// An expired wait surfaces as ErrConcurrentModification.
	LockTimeout time.Duration
}

// DefaultConfig returns the production pool settings.
func DefaultConfig() Config {
	return Config{
		MaxConns:          10,
		MinConns:          2,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   30 * time.Minute,
		HealthCheckPeriod: time.Minute,
		LockTimeout:       5 * time.Second,
	}
}

// PoolConfig parses URL and applies the non-zero settings.
func (c Config) PoolConfig() (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(c.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	setPositive(&pc.MaxConns, c.MaxConns)
	setPositive(&pc.MinConns, c.MinConns)
	setPositive(&pc.MaxConnLifetime, c.MaxConnLifetime)
	setPositive(&pc.MaxConnIdleTime, c.MaxConnIdleTime)
	setPositive(&pc.HealthCheckPeriod, c.HealthCheckPeriod)

	if c.LockTimeout > 0 {
		if pc.ConnConfig.RuntimeParams == nil {
			pc.ConnConfig.RuntimeParams = map[string]string{}
		}
		pc.ConnConfig.RuntimeParams["lock_timeout"] = fmt.Sprintf("%dms", c.LockTimeout.Milliseconds())
	}
	return pc, nil
}

func setPositive[T int32 | time.Duration](dst *T, v T) {
	if v > 0 {
		*dst = v
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CONNECTION
// ══════════════════════════════════════════════════════════════════════════════

// Connection is a pgx pool that refuses new work after Close. It satisfies
// Querier, so repositories can run on it outside a transaction.
type Connection struct {
	pool   *pgxpool.Pool
	closed atomic.Bool
}

// NewConnection opens the pool and verifies the database answers.
func NewConnection(ctx context.Context, cfg Config) (*Connection, error) {
	pc, err := cfg.PoolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: failed to ping database: %w", err)
	}
	return &Connection{pool: pool}, nil
}

// Close closes the pool. Further calls are no-ops.
func (c *Connection) Close() {
	if c.closed.CompareAndSwap(false, true) {
		c.pool.Close()
	}
}

// Ping checks the database answers.
func (c *Connection) Ping(ctx context.Context) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	return c.pool.Ping(ctx)
}

// Check is the storage health check: the database must answer and at least
// one pooled connection must be free for a new reward transaction.
func (c *Connection) Check(ctx context.Context) error {
	if err := c.Ping(ctx); err != nil {
		return err
	}
	return poolSaturation(c.pool.Stat())
}

type poolStat interface {
	AcquiredConns() int32
	MaxConns() int32
}

func poolSaturation(s poolStat) error {
	if limit := s.MaxConns(); limit > 0 && s.AcquiredConns() >= limit {
		return fmt.Errorf("%w: %d/%d connections in use", ErrPoolExhausted, s.AcquiredConns(), limit)
	}
	return nil
}

// WithTx runs fn in a transaction. It commits when fn returns nil and rolls
// back on error or panic. The rollback survives a cancelled ctx.
func (c *Connection) WithTx(ctx context.Context, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	tx, err := c.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	rollback := func() error { return tx.Rollback(context.WithoutCancel(ctx)) }
	defer func() {
		if p := recover(); p != nil {
			_ = rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := rollback(); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Querier is implemented by Connection and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Exec implements Querier.
func (c *Connection) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if c.closed.Load() {
		return pgconn.CommandTag{}, ErrConnectionClosed
	}
	return c.pool.Exec(ctx, sql, args...)
}

// Query implements Querier.
func (c *Connection) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if c.closed.Load() {
		return nil, ErrConnectionClosed
	}
	return c.pool.Query(ctx, sql, args...)
}

// QueryRow implements Querier. On a closed pool the row's Scan fails.
func (c *Connection) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if c.closed.Load() {
		return errRow{ErrConnectionClosed}
	}
	return c.pool.QueryRow(ctx, sql, args...)
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// SQLSTATE codes the store reacts to.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeQueryCanceled        = "57014"
)

// IsNoRows reports whether err is pgx.ErrNoRows.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// mapError classifies a driver error into the shared error taxonomy.
// Domain errors pass through unchanged.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
			return shared.WrapError("postgres", op, shared.ErrConcurrentModification, "transaction conflict", err)
		case codeQueryCanceled:
			return shared.WrapError("postgres", op, shared.ErrUnavailable, "statement canceled", err)
		}
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return shared.WrapError("postgres", op, shared.ErrUnavailable, "operation aborted", err)
	case errors.Is(err, ErrConnectionClosed):
		return shared.WrapError("postgres", op, shared.ErrUnavailable, "connection closed", err)
	}
	return shared.WrapError("postgres", op, shared.ErrStorage, "query failed", err)
}
