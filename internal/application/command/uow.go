// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"time"

	"github.com/homequest/homequest/internal/domain/profile"
	"github.com/homequest/homequest/internal/domain/progression"
	"github.com/homequest/homequest/internal/domain/shared"
)

// Repositories are the transaction-scoped repositories handed to a unit of work.
type Repositories struct {
	Ledger   progression.LedgerRepository
	Profiles profile.Repository
}

// UnitOfWork runs fn inside one storage transaction. If fn returns an error
// every write made through repos is discarded; otherwise all of them commit
// together. Row locks taken through repos are held until fn returns.
type UnitOfWork interface {
	InTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// Clock returns the current time. Tests inject a fixed clock.
type Clock func() time.Time

// SystemClock is the wall clock in UTC.
func SystemClock() time.Time { return time.Now().UTC() }

// Outcome labels reported to RewardMetrics.
const (
	ResultGranted           = "granted"
	ResultOverLimit         = "over_limit"
	ResultRejectedCategory  = "rejected_unconfigured"
	ResultRejectedSlot      = "rejected_slot"
	ResultRejectedDuplicate = "rejected_duplicate"
	ResultFault             = "fault"
)

// RewardMetrics receives one observation per completion attempt.
type RewardMetrics interface {
	ObserveCompletion(module shared.Module, result string, performance float64, d time.Duration)
	ObserveReward(module shared.Module, currency int, experience float64)
}

type nopMetrics struct{}

func (nopMetrics) ObserveCompletion(shared.Module, string, float64, time.Duration) {}
func (nopMetrics) ObserveReward(shared.Module, int, float64)                       {}
