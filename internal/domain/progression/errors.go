// Package progression implements the task-reward progression engine's domain:
// category configuration, scoring functions and the per-category progress ledger.
package progression

import (
	"github.com/homequest/homequest/internal/domain/shared"
)

const domain = "progression"

// Progression domain errors.
var (
	ErrCategoryNotFound = shared.NewDomainError(domain, "GetCategory", shared.ErrNotFound, "category is not configured")
	ErrNotSlotted       = shared.NewDomainError(domain, "Slot", shared.ErrInvalidInput, "category has no slots")
	ErrSlotOutOfRange   = shared.NewDomainError(domain, "Slot", shared.ErrValueOutOfRange, "slot index out of range")
	ErrSlotNotAllocated = shared.NewDomainError(domain, "MarkCompleted", shared.ErrInvalidInput, "slot is not allocated")
	ErrSlotCompleted    = shared.NewDomainError(domain, "MarkCompleted", shared.ErrAlreadyExists, "slot already completed in this window")
	ErrScoringFault     = shared.NewDomainError(domain, "Score", shared.ErrConfiguration, "scoring function fault")
	ErrInvalidCategory  = shared.NewDomainError(domain, "LoadCategories", shared.ErrConfiguration, "invalid category configuration")
)

func scoringFault(name string, err error) error {
	return shared.WrapError(domain, "Score", ErrScoringFault, "scoring function "+quote(name)+" failed", err)
}

func invalidCategory(msg string) error {
	return shared.NewDomainError(domain, "LoadCategories", ErrInvalidCategory, msg)
}

func quote(s string) string {
	if s == "" {
		return `""`
	}
	return `"` + s + `"`
}
