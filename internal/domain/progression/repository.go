package progression

import (
	"context"
	"time"
)

// LedgerReader reads ledger entries without taking locks.
type LedgerReader interface {
	// Find loads the entry. Returns nil, nil when absent.
	Find(ctx context.Context, key EntryKey) (*LedgerEntry, error)
}

// LedgerRepository persists ledger entries together with their slots and
// performance bounds.
type LedgerRepository interface {
	LedgerReader

	// GetOrCreateForUpdate loads the entry for key, creating it with a window
	// starting at now when absent, and holds an exclusive lock on it until the
	// surrounding transaction ends. Two transactions locking the same key are
	// serialized; different keys never block each other.
	GetOrCreateForUpdate(ctx context.Context, key EntryKey, now time.Time) (*LedgerEntry, error)

	// Save writes the entry, its slots and its bounds.
	Save(ctx context.Context, entry *LedgerEntry) error
}
