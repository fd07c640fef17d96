package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/homequest/homequest/internal/domain/profile"
	"github.com/homequest/homequest/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProfileRepository implements profile.Repository and profile.Reader.
type ProfileRepository struct {
	q Querier
}

// NewProfileRepository creates a repository bound to q.
func NewProfileRepository(q Querier) *ProfileRepository {
	return &ProfileRepository{q: q}
}

const moduleColumns = `experience, streak_start, current_streak, max_streak, building_level, population, updated_at`

// GetModuleForUpdate returns the accumulator of one module and locks its row.
func (r *ProfileRepository) GetModuleForUpdate(ctx context.Context, profileID shared.ProfileID, module shared.Module) (*profile.ModuleProgress, error) {
	insert := `
		INSERT INTO module_progress (profile_id, module)
		VALUES ($1, $2)
		ON CONFLICT (profile_id, module) DO NOTHING
	`
	if _, err := r.q.Exec(ctx, insert, profileID.String(), int(module)); err != nil {
		return nil, mapError("GetModule", err)
	}

	query := `SELECT ` + moduleColumns + `
		FROM module_progress
		WHERE profile_id = $1 AND module = $2
		FOR UPDATE
	`
	progress, err := scanModule(profileID, module, r.q.QueryRow(ctx, query, profileID.String(), int(module)))
	if err != nil {
		return nil, mapError("GetModule", err)
	}
	return progress, nil
}

// SaveModule writes the accumulator back.
func (r *ProfileRepository) SaveModule(ctx context.Context, m *profile.ModuleProgress) error {
	var streakStart *time.Time
	if !m.StreakStart.IsZero() {
		streakStart = &m.StreakStart
	}

	query := `
		UPDATE module_progress
		SET experience = $3, streak_start = $4, current_streak = $5, max_streak = $6,
			building_level = $7, population = $8, updated_at = $9
		WHERE profile_id = $1 AND module = $2
	`
	_, err := r.q.Exec(ctx, query,
		m.ProfileID.String(),
		int(m.Module),
		m.Experience,
		streakStart,
		m.CurrentStreak,
		m.MaxStreak,
		m.BuildingLevel,
		m.Population,
		m.UpdatedAt,
	)
	return mapError("SaveModule", err)
}

// TotalExperience sums experience across all modules of the profile.
func (r *ProfileRepository) TotalExperience(ctx context.Context, profileID shared.ProfileID) (float64, error) {
	var total float64
	err := r.q.QueryRow(ctx,
		`SELECT COALESCE(SUM(experience), 0) FROM module_progress WHERE profile_id = $1`,
		profileID.String(),
	).Scan(&total)
	if err != nil {
		return 0, mapError("TotalExperience", err)
	}
	return total, nil
}

// CreditWallet adds amount to the balance and returns the new balance.
func (r *ProfileRepository) CreditWallet(ctx context.Context, profileID shared.ProfileID, amount int64) (int64, error) {
	query := `
		INSERT INTO wallets (profile_id, balance) VALUES ($1, $2)
		ON CONFLICT (profile_id) DO UPDATE
		SET balance = wallets.balance + EXCLUDED.balance, updated_at = NOW()
		RETURNING balance
	`
	var balance int64
	if err := r.q.QueryRow(ctx, query, profileID.String(), amount).Scan(&balance); err != nil {
		return 0, mapError("CreditWallet", err)
	}
	return balance, nil
}

// Wallet returns the balance, zero for a profile never credited.
func (r *ProfileRepository) Wallet(ctx context.Context, profileID shared.ProfileID) (int64, error) {
	var balance int64
	err := r.q.QueryRow(ctx, `SELECT balance FROM wallets WHERE profile_id = $1`, profileID.String()).Scan(&balance)
	if IsNoRows(err) {
		return 0, nil
	}
	if err != nil {
		return 0, mapError("Wallet", err)
	}
	return balance, nil
}

// ListModules returns the stored accumulators ordered by module.
func (r *ProfileRepository) ListModules(ctx context.Context, profileID shared.ProfileID) ([]profile.ModuleProgress, error) {
	query := `SELECT module, ` + moduleColumns + `
		FROM module_progress
		WHERE profile_id = $1
		ORDER BY module
	`
	rows, err := r.q.Query(ctx, query, profileID.String())
	if err != nil {
		return nil, mapError("ListModules", err)
	}
	defer rows.Close()

	var out []profile.ModuleProgress
	for rows.Next() {
		var module int
		m := profile.ModuleProgress{ProfileID: profileID}
		var streakStart *time.Time
		if err := rows.Scan(&module, &m.Experience, &streakStart, &m.CurrentStreak, &m.MaxStreak,
			&m.BuildingLevel, &m.Population, &m.UpdatedAt); err != nil {
			return nil, mapError("ListModules", err)
		}
		m.Module = shared.Module(module)
		if streakStart != nil {
			m.StreakStart = *streakStart
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("ListModules", err)
	}
	return out, nil
}

func scanModule(profileID shared.ProfileID, module shared.Module, row pgx.Row) (*profile.ModuleProgress, error) {
	m := profile.NewModuleProgress(profileID, module)
	var streakStart *time.Time
	if err := row.Scan(&m.Experience, &streakStart, &m.CurrentStreak, &m.MaxStreak,
		&m.BuildingLevel, &m.Population, &m.UpdatedAt); err != nil {
		return nil, err
	}
	if streakStart != nil {
		m.StreakStart = *streakStart
	}
	return m, nil
}
