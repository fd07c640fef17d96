// Package profile holds the per-profile aggregates the reward engine writes:
// wallet balance and per-module experience, streak and population.
// Other components read these values; only the reward engine mutates them.
package profile

import (
	"math"
	"time"

	"github.com/homequest/homequest/internal/domain/shared"
	"github.com/homequest/homequest/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MODULE PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// ModuleProgress is the accumulator of one profile in one module.
type ModuleProgress struct {
	ProfileID  shared.ProfileID `json:"-"`
	Module     shared.Module    `json:"module"`
	Experience float64          `json:"experience"`

	// StreakStart is the first day of the running streak; zero when none.
	StreakStart   time.Time `json:"streak_start"`
	CurrentStreak int       `json:"current_streak"`
	MaxStreak     int       `json:"max_streak"`

	// BuildingLevel follows MaxStreak and never decreases.
	BuildingLevel int `json:"building_level"`
	Population    int `json:"population"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewModuleProgress creates an empty accumulator.
func NewModuleProgress(profileID shared.ProfileID, module shared.Module) *ModuleProgress {
	return &ModuleProgress{ProfileID: profileID, Module: module}
}

// StreakLastDay returns the last day covered by the running streak.
func (m *ModuleProgress) StreakLastDay(cal timeutil.Calendar) time.Time {
	if !m.hasStreak() {
		return time.Time{}
	}
	return cal.AddDays(m.StreakStart, m.CurrentStreak-1)
}

func (m *ModuleProgress) hasStreak() bool {
	return !m.StreakStart.IsZero() && m.CurrentStreak > 0
}

// StreakChange describes what AdvanceStreak did.
type StreakChange int

const (
	// StreakStarted: no streak was running, a new one began today.
	StreakStarted StreakChange = iota
	// StreakExtended: today is the day after the streak's last day.
	StreakExtended
	// StreakRestarted: there was a gap, the streak restarted today.
	StreakRestarted
	// StreakUnchanged: today is already covered by the streak.
	StreakUnchanged
)

// AdvanceStreak records a rewarded completion on day.
func (m *ModuleProgress) AdvanceStreak(cal timeutil.Calendar, day time.Time) StreakChange {
	today := cal.StartOfDay(day)
	change := StreakStarted

	switch {
	case !m.hasStreak():
		m.StreakStart = today
		m.CurrentStreak = 1
	default:
		switch gap := cal.DaysBetween(m.StreakLastDay(cal), today); {
		case gap == 1:
			m.CurrentStreak++
			change = StreakExtended
		case gap <= 0 && !today.Before(cal.StartOfDay(m.StreakStart)):
			change = StreakUnchanged
		default:
			m.StreakStart = today
			m.CurrentStreak = 1
			change = StreakRestarted
		}
	}

	if m.CurrentStreak > m.MaxStreak {
		m.MaxStreak = m.CurrentStreak
	}
	if m.MaxStreak > m.BuildingLevel {
		m.BuildingLevel = m.MaxStreak
	}
	return change
}

// AddExperience adds a non-negative amount of experience.
func (m *ModuleProgress) AddExperience(amount float64) {
	if amount > 0 {
		m.Experience += amount
	}
}

// AdjustPopulation changes the population gauge, clamping at zero.
func (m *ModuleProgress) AdjustPopulation(delta int) {
	m.Population += delta
	if m.Population < 0 {
		m.Population = 0
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// RANK
// ══════════════════════════════════════════════════════════════════════════════

// RankFor returns ⌊log2(totalXP + 1)⌋.
func RankFor(totalXP float64) int {
	if totalXP <= 0 {
		return 0
	}
	return int(math.Floor(math.Log2(totalXP + 1)))
}

// RankedUp reports whether adding gained to before crosses a rank band.
func RankedUp(before, gained float64) (oldRank, newRank int, up bool) {
	oldRank = RankFor(before)
	newRank = RankFor(before + gained)
	return oldRank, newRank, newRank > oldRank
}

// ══════════════════════════════════════════════════════════════════════════════
// SUMMARY (read side)
// ══════════════════════════════════════════════════════════════════════════════

// Summary is the read-only view of a profile's aggregates.
type Summary struct {
	ProfileID       shared.ProfileID `json:"profile_id"`
	Wallet          int64            `json:"wallet"`
	TotalExperience float64          `json:"total_experience"`
	Rank            int              `json:"rank"`
	Modules         []ModuleProgress `json:"modules"`
}

// NewSummary assembles a summary, filling in modules with no progress yet.
func NewSummary(profileID shared.ProfileID, wallet int64, modules []ModuleProgress) *Summary {
	byModule := make(map[shared.Module]ModuleProgress, len(modules))
	for _, m := range modules {
		byModule[m.Module] = m
	}

	s := &Summary{ProfileID: profileID, Wallet: wallet}
	for _, mod := range shared.AllModules {
		mp, ok := byModule[mod]
		if !ok {
			mp = *NewModuleProgress(profileID, mod)
		}
		s.TotalExperience += mp.Experience
		s.Modules = append(s.Modules, mp)
	}
	s.Rank = RankFor(s.TotalExperience)
	return s
}
