package progression

import (
	"math"
	"time"

	"github.com/homequest/homequest/internal/domain/shared"
)

// NoSlot marks a task that does not address a slot.
const NoSlot = -1

// DefaultTaskWeight is used when a task carries no positive weight.
const DefaultTaskWeight = 1.0

// ModuleTask is a single completion request. It is consumed exactly once.
type ModuleTask struct {
	ProfileID  shared.ProfileID
	Module     shared.Module
	CategoryID int
	Slot       int // NoSlot when absent
	Weight     float64
	Date       time.Time
	ClientData Data
}

// EntryKey returns the ledger key the task addresses.
func (t ModuleTask) EntryKey() EntryKey {
	return EntryKey{ProfileID: t.ProfileID, Module: t.Module, CategoryID: t.CategoryID}
}

// HasSlot reports whether the task names a slot.
func (t ModuleTask) HasSlot() bool {
	return t.Slot != NoSlot
}

// EffectiveWeight returns the task weight, defaulting to 1.0.
func (t ModuleTask) EffectiveWeight() float64 {
	if t.Weight <= 0 || math.IsNaN(t.Weight) || math.IsInf(t.Weight, 0) {
		return DefaultTaskWeight
	}
	return t.Weight
}

// ScoringData builds the task-side input of a scoring function: the client
// payload overlaid with the task's weight and date.
func (t ModuleTask) ScoringData(date string) Data {
	return t.ClientData.Merge(Data{
		"weight": t.EffectiveWeight(),
		"date":   date,
	})
}

// RewardOutcome is the result of a completion attempt.
type RewardOutcome struct {
	TaskCompleted bool    `json:"task_completed"`
	HasReward     bool    `json:"has_reward"`
	Performance   float64 `json:"performance"`
	Currency      int     `json:"currency"`
	Experience    float64 `json:"experience"`
	Population    int     `json:"population"`
	HasRankedUp   bool    `json:"has_ranked_up"`
}

// NoCompletion is the outcome of every policy rejection.
func NoCompletion() RewardOutcome {
	return RewardOutcome{Performance: NeutralPerformance}
}

// Reward holds the deltas granted for one rewarded completion.
type Reward struct {
	Currency   int
	Experience float64
	Population int
}

// RewardFor computes the deltas for a performance multiplier:
// currency = ⌊10p⌋, experience = max(1, ⌊5p⌋), population = ⌊p⌋.
func RewardFor(performance float64) Reward {
	return Reward{
		Currency:   int(math.Floor(10 * performance)),
		Experience: math.Max(1, math.Floor(5*performance)),
		Population: int(math.Floor(performance)),
	}
}
