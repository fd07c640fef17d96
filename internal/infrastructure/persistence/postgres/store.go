package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/homequest/homequest/internal/application/command"
	"github.com/homequest/homequest/internal/domain/profile"
	"github.com/homequest/homequest/internal/domain/progression"
	"github.com/homequest/homequest/internal/domain/shared"
)

// Store is the Postgres storage backend. It implements command.UnitOfWork,
// progression.LedgerReader and profile.Reader.
type Store struct {
	conn    *Connection
	opts    pgx.TxOptions
	ledger  *LedgerRepository
	profile *ProfileRepository
}

// NewStore creates a Store on conn.
func NewStore(conn *Connection) *Store {
	return &Store{
		conn:    conn,
		opts:    pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite},
		ledger:  NewLedgerRepository(conn),
		profile: NewProfileRepository(conn),
	}
}

// InTx runs fn in one database transaction. Row locks taken through the
// repositories are held until fn returns.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, repos command.Repositories) error) error {
	err := s.conn.WithTx(ctx, s.opts, func(tx pgx.Tx) error {
		return fn(ctx, command.Repositories{
			Ledger:   NewLedgerRepository(tx),
			Profiles: NewProfileRepository(tx),
		})
	})
	return mapError("InTx", err)
}

// Find implements progression.LedgerReader.
func (s *Store) Find(ctx context.Context, key progression.EntryKey) (*progression.LedgerEntry, error) {
	return s.ledger.Find(ctx, key)
}

// Wallet implements profile.Reader.
func (s *Store) Wallet(ctx context.Context, profileID shared.ProfileID) (int64, error) {
	return s.profile.Wallet(ctx, profileID)
}

// ListModules implements profile.Reader.
func (s *Store) ListModules(ctx context.Context, profileID shared.ProfileID) ([]profile.ModuleProgress, error) {
	return s.profile.ListModules(ctx, profileID)
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Check reports the database and pool health. See Connection.Check.
func (s *Store) Check(ctx context.Context) error {
	return s.conn.Check(ctx)
}

var (
	_ command.UnitOfWork       = (*Store)(nil)
	_ progression.LedgerReader = (*Store)(nil)
	_ profile.Reader           = (*Store)(nil)
)
