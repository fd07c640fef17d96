package query

import (
	"context"
	"time"

	"github.com/homequest/homequest/internal/domain/progression"
	"github.com/homequest/homequest/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET CATEGORY PROGRESS QUERY
// The current window of one ledger entry, as the engine would see it now.
// ══════════════════════════════════════════════════════════════════════════════

// GetCategoryProgressQuery selects a ledger entry.
type GetCategoryProgressQuery struct {
	ProfileID  shared.ProfileID
	Module     shared.Module
	CategoryID int
}

// Validate validates the query.
func (q GetCategoryProgressQuery) Validate() error {
	if !q.ProfileID.IsValid() {
		return shared.ErrInvalidProfileID
	}
	if !q.Module.IsValid() {
		return shared.ErrInvalidModule
	}
	return nil
}

// SlotDTO is the state of one slot.
type SlotDTO struct {
	Index     int              `json:"index"`
	Allocated bool             `json:"allocated"`
	Completed bool             `json:"completed"`
	Bounds    progression.Data `json:"bounds,omitempty"`
}

// CategoryProgressDTO describes a category and the profile's window in it.
type CategoryProgressDTO struct {
	Module          shared.Module `json:"module"`
	CategoryID      int           `json:"category_id"`
	Name            string        `json:"name"`
	SlotLimit       int           `json:"slot_limit"`
	CompletionLimit int           `json:"completion_limit"`
	RenewalPeriod   int           `json:"renewal_period_days"`

	CompletionCount  int              `json:"completion_count"`
	RemainingRewards int              `json:"remaining_rewards"`
	LastRenewedAt    time.Time        `json:"last_renewed_at"`
	NextRenewalAt    time.Time        `json:"next_renewal_at"`
	Bounds           progression.Data `json:"bounds,omitempty"`
	Slots            []SlotDTO        `json:"slots,omitempty"`
}

// GetCategoryProgressHandler handles GetCategoryProgressQuery.
type GetCategoryProgressHandler struct {
	categories *progression.CategoryRegistry
	ledger     progression.LedgerReader
	clock      func() time.Time
}

// NewGetCategoryProgressHandler creates the handler.
func NewGetCategoryProgressHandler(categories *progression.CategoryRegistry, ledger progression.LedgerReader, clock func() time.Time) *GetCategoryProgressHandler {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &GetCategoryProgressHandler{categories: categories, ledger: ledger, clock: clock}
}

// Handle executes the query. A renewal that is due is applied to the
// returned view only; storage is not written.
func (h *GetCategoryProgressHandler) Handle(ctx context.Context, q GetCategoryProgressQuery) (*CategoryProgressDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	cfg, err := h.categories.Require(q.Module, q.CategoryID)
	if err != nil {
		return nil, err
	}

	now := h.clock()
	key := progression.EntryKey{ProfileID: q.ProfileID, Module: q.Module, CategoryID: q.CategoryID}
	entry, err := h.ledger.Find(ctx, key)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		entry = progression.NewLedgerEntry(key, now)
	}
	entry.ResetIfRenewalElapsed(cfg, now)

	dto := &CategoryProgressDTO{
		Module:           cfg.Module,
		CategoryID:       cfg.CategoryID,
		Name:             cfg.Name,
		SlotLimit:        cfg.SlotLimit,
		CompletionLimit:  cfg.CompletionLimit,
		RenewalPeriod:    cfg.RenewalPeriod,
		CompletionCount:  entry.CompletionCount,
		RemainingRewards: entry.RemainingRewards(cfg),
		LastRenewedAt:    entry.LastRenewedAt,
		NextRenewalAt:    entry.LastRenewedAt.Add(time.Duration(cfg.RenewalPeriod) * 24 * time.Hour),
	}

	if !cfg.IsSlotted() {
		if b := entry.BoundsFor(progression.UnslottedBoundsKey); len(b) > 0 {
			dto.Bounds = b
		}
		return dto, nil
	}
	for _, s := range entry.SlotList() {
		slot := SlotDTO{Index: s.Index, Allocated: s.Allocated, Completed: s.Completed}
		if b := entry.BoundsFor(s.Index); len(b) > 0 {
			slot.Bounds = b
		}
		dto.Slots = append(dto.Slots, slot)
	}
	return dto, nil
}
