package progression

import (
	"fmt"
	"math"
	"sort"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCORING FUNCTIONS
// ══════════════════════════════════════════════════════════════════════════════

// ScoringFunc maps (bounds, task data) to a performance multiplier.
// Implementations must be pure: no I/O, no side effects, and they must return
// a finite value >= 0 for any input.
type ScoringFunc func(bounds, task Data) float64

// Names of the scoring functions that ship by default.
const (
	ScoringFinanceUnderBudget      = "finance_under_budget"
	ScoringHomeLifeEarlyCompletion = "homelife_early_completion"
)

// NeutralPerformance is the multiplier used when no scoring function applies.
const NeutralPerformance = 1.0

const (
	financePerformanceCap   = 1.5
	homeLifeEarlyCompletion = 1.2
)

// Neutral always returns 1.0.
func Neutral(Data, Data) float64 { return NeutralPerformance }

// FinanceUnderBudget rewards spending below a budget: budget / expense, capped
// at 1.5. A missing or non-positive expense or a missing budget is neutral.
func FinanceUnderBudget(bounds, task Data) float64 {
	budget, ok := bounds.Float("budget")
	if !ok {
		return NeutralPerformance
	}
	expense, ok := task.Float("expense")
	if !ok || expense <= 0 {
		return NeutralPerformance
	}
	ratio := budget / expense
	if math.IsNaN(ratio) || ratio < 0 {
		return NeutralPerformance
	}
	return math.Min(ratio, financePerformanceCap)
}

// HomeLifeEarlyCompletion returns 1.2 when the task date is strictly before
// the due date, otherwise 1.0.
func HomeLifeEarlyCompletion(bounds, task Data) float64 {
	due, ok := bounds.Date("due_date")
	if !ok {
		return NeutralPerformance
	}
	done, ok := task.Date("date")
	if !ok {
		return NeutralPerformance
	}
	if done.Before(due) {
		return homeLifeEarlyCompletion
	}
	return NeutralPerformance
}

// DefaultScoringFuncs returns the built-in name → function table.
func DefaultScoringFuncs() map[string]ScoringFunc {
	return map[string]ScoringFunc{
		ScoringFinanceUnderBudget:      FinanceUnderBudget,
		ScoringHomeLifeEarlyCompletion: HomeLifeEarlyCompletion,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRY
// ══════════════════════════════════════════════════════════════════════════════

// ScoringRegistry is an immutable name → ScoringFunc table built at startup.
type ScoringRegistry struct {
	funcs map[string]ScoringFunc
}

// NewScoringRegistry creates a registry holding the defaults plus extra.
// Entries in extra override defaults with the same name.
func NewScoringRegistry(extra map[string]ScoringFunc) *ScoringRegistry {
	funcs := DefaultScoringFuncs()
	for name, fn := range extra {
		if fn == nil {
			continue
		}
		funcs[name] = fn
	}
	return &ScoringRegistry{funcs: funcs}
}

// Lookup returns the function registered under name.
func (r *ScoringRegistry) Lookup(name string) (ScoringFunc, bool) {
	if r == nil {
		return nil, false
	}
	fn, ok := r.funcs[name]
	return fn, ok
}

// Resolve returns the function registered under name, or Neutral when the
// name is empty or unknown.
func (r *ScoringRegistry) Resolve(name string) ScoringFunc {
	if fn, ok := r.Lookup(name); ok {
		return fn
	}
	return Neutral
}

// Names returns the registered names, sorted.
func (r *ScoringRegistry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MaxPerformance is the largest usable performance. Above it the scaled
// currency and population no longer fit the reward arithmetic.
const MaxPerformance = math.MaxInt32 / 10.0

// Evaluate runs fn and converts a panic or a value that is NaN, infinite,
// negative or above MaxPerformance into ErrScoringFault.
func Evaluate(name string, fn ScoringFunc, bounds, task Data) (performance float64, err error) {
	if fn == nil {
		return NeutralPerformance, nil
	}
	defer func() {
		if p := recover(); p != nil {
			performance = 0
			err = scoringFault(name, fmt.Errorf("panic: %v", p))
		}
	}()

	performance = fn(bounds.Clone(), task.Clone())
	switch {
	case math.IsNaN(performance), math.IsInf(performance, 0):
		return 0, scoringFault(name, fmt.Errorf("non-finite result %v", performance))
	case performance < 0:
		return 0, scoringFault(name, fmt.Errorf("negative result %v", performance))
	case performance > MaxPerformance:
		return 0, scoringFault(name, fmt.Errorf("result %v exceeds %v", performance, MaxPerformance))
	}
	return performance, nil
}
