package profile

import (
	"context"

	"github.com/homequest/homequest/internal/domain/shared"
)

// Repository persists profile accumulators.
type Repository interface {
	// GetModuleForUpdate loads the accumulator of (profileID, module), creating
	// an empty one when absent, and locks it until the transaction ends.
	GetModuleForUpdate(ctx context.Context, profileID shared.ProfileID, module shared.Module) (*ModuleProgress, error)

	// SaveModule writes an accumulator.
	SaveModule(ctx context.Context, progress *ModuleProgress) error

	// TotalExperience sums experience over every module of the profile.
	TotalExperience(ctx context.Context, profileID shared.ProfileID) (float64, error)

	// CreditWallet atomically adds amount to the wallet and returns the new balance.
	CreditWallet(ctx context.Context, profileID shared.ProfileID, amount int64) (int64, error)
}

// Reader is the read-only view other components are given.
type Reader interface {
	// Wallet returns the balance, zero when the profile has no wallet yet.
	Wallet(ctx context.Context, profileID shared.ProfileID) (int64, error)

	// ListModules returns the stored accumulators of the profile.
	ListModules(ctx context.Context, profileID shared.ProfileID) ([]ModuleProgress, error)
}
