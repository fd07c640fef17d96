// Package memory is an in-process storage backend. It honours the same
// locking contract as the Postgres backend: one exclusive lock per ledger
// entry and per module accumulator, held until the transaction ends, with all
// writes of a transaction applied together or not at all.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/homequest/homequest/internal/application/command"
	"github.com/homequest/homequest/internal/domain/profile"
	"github.com/homequest/homequest/internal/domain/progression"
	"github.com/homequest/homequest/internal/domain/shared"
)

type moduleKey struct {
	ProfileID shared.ProfileID
	Module    shared.Module
}

// Store holds committed state.
type Store struct {
	mu      sync.RWMutex
	ledger  map[progression.EntryKey]*progression.LedgerEntry
	modules map[moduleKey]*profile.ModuleProgress
	wallets map[shared.ProfileID]int64

	locks *keyedLocks
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		ledger:  make(map[progression.EntryKey]*progression.LedgerEntry),
		modules: make(map[moduleKey]*profile.ModuleProgress),
		wallets: make(map[shared.ProfileID]int64),
		locks:   newKeyedLocks(),
	}
}

// InTx implements command.UnitOfWork.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, repos command.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t := newTx(s)
	defer t.release()
	defer func() {
		if p := recover(); p != nil {
			t.rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, command.Repositories{Ledger: (*ledgerTx)(t), Profiles: (*profileTx)(t)}); err != nil {
		t.rollback()
		return err
	}
	t.commit()
	return nil
}

// Find implements progression.LedgerReader.
func (s *Store) Find(_ context.Context, key progression.EntryKey) (*progression.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.ledger[key]
	if !ok {
		return nil, nil
	}
	return e.Clone(), nil
}

// Wallet implements profile.Reader.
func (s *Store) Wallet(_ context.Context, profileID shared.ProfileID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wallets[profileID], nil
}

// ListModules implements profile.Reader.
func (s *Store) ListModules(_ context.Context, profileID shared.ProfileID) ([]profile.ModuleProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []profile.ModuleProgress
	for _, m := range shared.AllModules {
		if mp, ok := s.modules[moduleKey{profileID, m}]; ok {
			out = append(out, *mp)
		}
	}
	return out, nil
}

// Ping reports the store as healthy.
func (s *Store) Ping(context.Context) error { return nil }

// ══════════════════════════════════════════════════════════════════════════════
// TRANSACTION
// ══════════════════════════════════════════════════════════════════════════════

var errTxDone = errors.New("memory: transaction already finished")

type tx struct {
	store *Store
	done  bool

	held    []func()
	ledger  map[progression.EntryKey]*progression.LedgerEntry
	modules map[moduleKey]*profile.ModuleProgress
	credits map[shared.ProfileID]int64
}

func newTx(s *Store) *tx {
	return &tx{
		store:   s,
		ledger:  make(map[progression.EntryKey]*progression.LedgerEntry),
		modules: make(map[moduleKey]*profile.ModuleProgress),
		credits: make(map[shared.ProfileID]int64),
	}
}

func (t *tx) lock(ctx context.Context, key any) error {
	unlock, err := t.store.locks.acquire(ctx, key)
	if err != nil {
		return shared.WrapError("memory", "Lock", shared.ErrUnavailable, "lock wait aborted", err)
	}
	t.held = append(t.held, unlock)
	return nil
}

func (t *tx) commit() {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range t.ledger {
		s.ledger[k] = e.Clone()
	}
	for k, m := range t.modules {
		cp := *m
		s.modules[k] = &cp
	}
	for id, amount := range t.credits {
		s.wallets[id] += amount
	}
	t.done = true
}

func (t *tx) rollback() {
	t.ledger = nil
	t.modules = nil
	t.credits = nil
	t.done = true
}

func (t *tx) release() {
	for i := len(t.held) - 1; i >= 0; i-- {
		t.held[i]()
	}
	t.held = nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Ledger
// ─────────────────────────────────────────────────────────────────────────────

type ledgerTx tx

func (l *ledgerTx) GetOrCreateForUpdate(ctx context.Context, key progression.EntryKey, now time.Time) (*progression.LedgerEntry, error) {
	t := (*tx)(l)
	if t.done {
		return nil, errTxDone
	}
	if e, ok := t.ledger[key]; ok {
		return e.Clone(), nil
	}
	if err := t.lock(ctx, key); err != nil {
		return nil, err
	}

	t.store.mu.RLock()
	committed, ok := t.store.ledger[key]
	t.store.mu.RUnlock()

	var e *progression.LedgerEntry
	if ok {
		e = committed.Clone()
	} else {
		e = progression.NewLedgerEntry(key, now)
	}
	t.ledger[key] = e.Clone()
	return e, nil
}

func (l *ledgerTx) Save(_ context.Context, entry *progression.LedgerEntry) error {
	t := (*tx)(l)
	if t.done {
		return errTxDone
	}
	if _, ok := t.ledger[entry.Key]; !ok {
		return shared.NewDomainError("memory", "SaveLedger", shared.ErrConcurrentModification, "entry was not locked in this transaction")
	}
	t.ledger[entry.Key] = entry.Clone()
	return nil
}

func (l *ledgerTx) Find(ctx context.Context, key progression.EntryKey) (*progression.LedgerEntry, error) {
	t := (*tx)(l)
	if e, ok := t.ledger[key]; ok {
		return e.Clone(), nil
	}
	return t.store.Find(ctx, key)
}

// ─────────────────────────────────────────────────────────────────────────────
// Profiles
// ─────────────────────────────────────────────────────────────────────────────

type profileTx tx

func (p *profileTx) GetModuleForUpdate(ctx context.Context, profileID shared.ProfileID, module shared.Module) (*profile.ModuleProgress, error) {
	t := (*tx)(p)
	if t.done {
		return nil, errTxDone
	}
	key := moduleKey{profileID, module}
	if m, ok := t.modules[key]; ok {
		cp := *m
		return &cp, nil
	}
	if err := t.lock(ctx, key); err != nil {
		return nil, err
	}

	t.store.mu.RLock()
	committed, ok := t.store.modules[key]
	t.store.mu.RUnlock()

	var m profile.ModuleProgress
	if ok {
		m = *committed
	} else {
		m = *profile.NewModuleProgress(profileID, module)
	}
	staged := m
	t.modules[key] = &staged
	return &m, nil
}

func (p *profileTx) SaveModule(_ context.Context, progress *profile.ModuleProgress) error {
	t := (*tx)(p)
	if t.done {
		return errTxDone
	}
	key := moduleKey{progress.ProfileID, progress.Module}
	if _, ok := t.modules[key]; !ok {
		return shared.NewDomainError("memory", "SaveModule", shared.ErrConcurrentModification, "module was not locked in this transaction")
	}
	cp := *progress
	t.modules[key] = &cp
	return nil
}

func (p *profileTx) TotalExperience(_ context.Context, profileID shared.ProfileID) (float64, error) {
	t := (*tx)(p)
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	var total float64
	for _, m := range shared.AllModules {
		key := moduleKey{profileID, m}
		if staged, ok := t.modules[key]; ok {
			total += staged.Experience
		} else if committed, ok := t.store.modules[key]; ok {
			total += committed.Experience
		}
	}
	return total, nil
}

func (p *profileTx) CreditWallet(_ context.Context, profileID shared.ProfileID, amount int64) (int64, error) {
	t := (*tx)(p)
	if t.done {
		return 0, errTxDone
	}
	t.credits[profileID] += amount

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return t.store.wallets[profileID] + t.credits[profileID], nil
}
