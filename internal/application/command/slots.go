package command

import (
	"context"

	"github.com/homequest/homequest/internal/domain/progression"
	"github.com/homequest/homequest/internal/domain/shared"
	"github.com/homequest/homequest/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SLOT COMMANDS
// Used by the task-creation flow: a slot is allocated when a task is created,
// released when it is deleted, and may carry performance bounds.
// ══════════════════════════════════════════════════════════════════════════════

// SlotRef addresses a slot, or with Slot == progression.UnslottedBoundsKey the
// bounds of a non-slotted category.
type SlotRef struct {
	ProfileID  shared.ProfileID
	Module     shared.Module
	CategoryID int
	Slot       int
}

func (r SlotRef) key() progression.EntryKey {
	return progression.EntryKey{ProfileID: r.ProfileID, Module: r.Module, CategoryID: r.CategoryID}
}

func (r SlotRef) validate() error {
	if !r.ProfileID.IsValid() {
		return shared.ErrInvalidProfileID
	}
	if !r.Module.IsValid() {
		return shared.ErrInvalidModule
	}
	return nil
}

// AllocateSlotCommand makes a slot claimable. Bounds, when non-nil, replace
// the slot's performance bounds.
type AllocateSlotCommand struct {
	SlotRef
	Bounds progression.Data
}

// ReleaseSlotCommand makes a slot unclaimable and drops its bounds.
type ReleaseSlotCommand struct {
	SlotRef
}

// SetBoundsCommand replaces the bounds of a slot or of a non-slotted category.
// Empty bounds remove them.
type SetBoundsCommand struct {
	SlotRef
	Bounds progression.Data
}

// SlotHandler executes the slot commands.
type SlotHandler struct {
	categories *progression.CategoryRegistry
	uow        UnitOfWork
	clock      Clock
	logger     *logger.Logger
}

// NewSlotHandler creates a new SlotHandler.
func NewSlotHandler(categories *progression.CategoryRegistry, uow UnitOfWork, clock Clock, log *logger.Logger) *SlotHandler {
	if clock == nil {
		clock = SystemClock
	}
	if log == nil {
		log = logger.Nop()
	}
	return &SlotHandler{
		categories: categories,
		uow:        uow,
		clock:      clock,
		logger:     log.With(logger.Component("slots")),
	}
}

// Allocate handles AllocateSlotCommand.
func (h *SlotHandler) Allocate(ctx context.Context, cmd AllocateSlotCommand) (progression.Slot, error) {
	var slot progression.Slot
	err := h.mutate(ctx, cmd.SlotRef, "AllocateSlot", func(cfg progression.CategoryConfig, e *progression.LedgerEntry) error {
		if err := e.Allocate(cfg, cmd.Slot); err != nil {
			return err
		}
		if cmd.Bounds != nil {
			if err := e.SetBounds(cfg, cmd.Slot, cmd.Bounds); err != nil {
				return err
			}
		}
		slot = *e.Slots[cmd.Slot]
		return nil
	})
	return slot, err
}

// Release handles ReleaseSlotCommand.
func (h *SlotHandler) Release(ctx context.Context, cmd ReleaseSlotCommand) (progression.Slot, error) {
	var slot progression.Slot
	err := h.mutate(ctx, cmd.SlotRef, "ReleaseSlot", func(cfg progression.CategoryConfig, e *progression.LedgerEntry) error {
		if err := e.Release(cfg, cmd.Slot); err != nil {
			return err
		}
		slot = *e.Slots[cmd.Slot]
		return nil
	})
	return slot, err
}

// SetBounds handles SetBoundsCommand.
func (h *SlotHandler) SetBounds(ctx context.Context, cmd SetBoundsCommand) error {
	return h.mutate(ctx, cmd.SlotRef, "SetBounds", func(cfg progression.CategoryConfig, e *progression.LedgerEntry) error {
		return e.SetBounds(cfg, cmd.Slot, cmd.Bounds)
	})
}

// mutate locks the ledger entry, brings its window up to date, applies fn and
// saves the entry in one transaction.
func (h *SlotHandler) mutate(
	ctx context.Context,
	ref SlotRef,
	op string,
	fn func(progression.CategoryConfig, *progression.LedgerEntry) error,
) error {
	if err := ref.validate(); err != nil {
		return err
	}
	cfg, err := h.categories.Require(ref.Module, ref.CategoryID)
	if err != nil {
		return err
	}

	now := h.clock()
	err = h.uow.InTx(ctx, func(ctx context.Context, repos Repositories) error {
		entry, err := repos.Ledger.GetOrCreateForUpdate(ctx, ref.key(), now)
		if err != nil {
			return err
		}
		entry.ResetIfRenewalElapsed(cfg, now)
		if err := fn(cfg, entry); err != nil {
			return err
		}
		return repos.Ledger.Save(ctx, entry)
	})
	if err != nil {
		return err
	}

	h.logger.Debug("ledger updated",
		logger.Operation(op),
		logger.ProfileID(ref.ProfileID.String()),
		logger.ModuleField(ref.Module.String()),
		logger.CategoryID(ref.CategoryID),
		logger.SlotIndex(ref.Slot),
	)
	return nil
}
