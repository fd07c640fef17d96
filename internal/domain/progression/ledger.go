package progression

import (
	"math"
	"sort"
	"time"

	"github.com/homequest/homequest/internal/domain/shared"
	"github.com/homequest/homequest/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS LEDGER
// ══════════════════════════════════════════════════════════════════════════════

// MaxCompletionCount is the saturation bound of LedgerEntry.CompletionCount.
const MaxCompletionCount = math.MaxInt32

// UnslottedBoundsKey keys the performance bounds of a non-slotted category.
const UnslottedBoundsKey = -1

// EntryKey identifies one ledger row.
type EntryKey struct {
	ProfileID  shared.ProfileID
	Module     shared.Module
	CategoryID int
}

// Category returns the category part of the key.
func (k EntryKey) Category() CategoryKey {
	return CategoryKey{Module: k.Module, CategoryID: k.CategoryID}
}

// Slot is one uniquely claimable unit of work of a slotted category.
type Slot struct {
	Index     int
	Allocated bool
	Completed bool
}

// LedgerEntry is the mutable progress of a profile in one category.
// A slot or bounds entry that is absent reads as the zero value.
type LedgerEntry struct {
	Key             EntryKey
	CompletionCount int
	LastRenewedAt   time.Time

	Slots  map[int]*Slot
	Bounds map[int]Data
}

// NewLedgerEntry creates an empty entry whose window starts at now.
func NewLedgerEntry(key EntryKey, now time.Time) *LedgerEntry {
	return &LedgerEntry{
		Key:           key,
		LastRenewedAt: now,
		Slots:         make(map[int]*Slot),
		Bounds:        make(map[int]Data),
	}
}

// Clone returns a deep copy of the entry.
func (e *LedgerEntry) Clone() *LedgerEntry {
	out := &LedgerEntry{
		Key:             e.Key,
		CompletionCount: e.CompletionCount,
		LastRenewedAt:   e.LastRenewedAt,
		Slots:           make(map[int]*Slot, len(e.Slots)),
		Bounds:          make(map[int]Data, len(e.Bounds)),
	}
	for i, s := range e.Slots {
		cp := *s
		out.Slots[i] = &cp
	}
	for i, b := range e.Bounds {
		out.Bounds[i] = b.Clone()
	}
	return out
}

// RenewalDue reports whether cfg's renewal period has elapsed at now.
func (e *LedgerEntry) RenewalDue(cfg CategoryConfig, now time.Time) bool {
	return timeutil.ElapsedDays(e.LastRenewedAt, now, cfg.RenewalPeriod)
}

// ResetIfRenewalElapsed starts a new window when the renewal period has
// elapsed: the completion count drops to zero, the window restarts at now and
// every slot's completed flag is cleared. Reports whether a reset happened.
func (e *LedgerEntry) ResetIfRenewalElapsed(cfg CategoryConfig, now time.Time) bool {
	if !e.RenewalDue(cfg, now) {
		return false
	}
	e.CompletionCount = 0
	e.LastRenewedAt = now
	if cfg.IsSlotted() {
		for _, s := range e.Slots {
			s.Completed = false
		}
	}
	return true
}

// IncrementCompletion adds one completion, never exceeding
// MaxCompletionCount. In saturate-only mode a counter already at the bound is
// left untouched. Reports whether the counter changed.
func (e *LedgerEntry) IncrementCompletion(saturateOnly bool) bool {
	if e.CompletionCount >= MaxCompletionCount {
		if saturateOnly {
			return false
		}
		e.CompletionCount = MaxCompletionCount
		return false
	}
	e.CompletionCount++
	return true
}

// OverLimit reports whether no rewarded completions remain in this window.
func (e *LedgerEntry) OverLimit(cfg CategoryConfig) bool {
	return e.CompletionCount >= cfg.CompletionLimit
}

// RemainingRewards returns how many rewarded completions remain in this window.
func (e *LedgerEntry) RemainingRewards(cfg CategoryConfig) int {
	if rem := cfg.CompletionLimit - e.CompletionCount; rem > 0 {
		return rem
	}
	return 0
}

// ─────────────────────────────────────────────────────────────────────────────
// Slots
// ─────────────────────────────────────────────────────────────────────────────

// IsAllocated reports whether slot index may currently be used.
func (e *LedgerEntry) IsAllocated(index int) bool {
	s, ok := e.Slots[index]
	return ok && s.Allocated
}

// WasCompleted reports whether slot index was rewarded in this window.
func (e *LedgerEntry) WasCompleted(index int) bool {
	s, ok := e.Slots[index]
	return ok && s.Completed
}

// MarkCompleted flags slot index as rewarded for this window.
func (e *LedgerEntry) MarkCompleted(index int) error {
	if !e.IsAllocated(index) {
		return ErrSlotNotAllocated
	}
	if e.WasCompleted(index) {
		return ErrSlotCompleted
	}
	e.Slots[index].Completed = true
	return nil
}

// Allocate makes slot index usable. An already completed slot stays
// completed until the window renews.
func (e *LedgerEntry) Allocate(cfg CategoryConfig, index int) error {
	if err := checkSlot(cfg, index); err != nil {
		return err
	}
	s := e.slot(index)
	s.Allocated = true
	return nil
}

// Release makes slot index unusable and drops its bounds.
func (e *LedgerEntry) Release(cfg CategoryConfig, index int) error {
	if err := checkSlot(cfg, index); err != nil {
		return err
	}
	s := e.slot(index)
	s.Allocated = false
	delete(e.Bounds, index)
	return nil
}

// SlotList returns the stored slots ordered by index.
func (e *LedgerEntry) SlotList() []Slot {
	out := make([]Slot, 0, len(e.Slots))
	for _, s := range e.Slots {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

func (e *LedgerEntry) slot(index int) *Slot {
	if e.Slots == nil {
		e.Slots = make(map[int]*Slot)
	}
	s, ok := e.Slots[index]
	if !ok {
		s = &Slot{Index: index}
		e.Slots[index] = s
	}
	return s
}

func checkSlot(cfg CategoryConfig, index int) error {
	if !cfg.IsSlotted() {
		return ErrNotSlotted
	}
	if !cfg.ValidSlot(index) {
		return ErrSlotOutOfRange
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Performance bounds
// ─────────────────────────────────────────────────────────────────────────────

// BoundsFor returns a copy of the bounds stored under key (a slot index, or
// UnslottedBoundsKey). Missing bounds read as an empty bag.
func (e *LedgerEntry) BoundsFor(key int) Data {
	return e.Bounds[key].Clone()
}

// SetBounds replaces the bounds stored under key. An empty bag removes them.
func (e *LedgerEntry) SetBounds(cfg CategoryConfig, key int, bounds Data) error {
	if key != UnslottedBoundsKey {
		if err := checkSlot(cfg, key); err != nil {
			return err
		}
	} else if cfg.IsSlotted() {
		return ErrSlotOutOfRange
	}
	if e.Bounds == nil {
		e.Bounds = make(map[int]Data)
	}
	if len(bounds) == 0 {
		delete(e.Bounds, key)
		return nil
	}
	e.Bounds[key] = bounds.Clone()
	return nil
}
