package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/homequest/homequest/internal/domain/progression"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// LedgerRepository implements progression.LedgerRepository on a transaction.
// Reads made through Find outside a transaction use the pool.
type LedgerRepository struct {
	q Querier
}

// NewLedgerRepository creates a repository bound to q, which is either the
// pool or an open transaction.
func NewLedgerRepository(q Querier) *LedgerRepository {
	return &LedgerRepository{q: q}
}

// GetOrCreateForUpdate returns the entry for key, creating it with a renewal
// window starting at now when absent, and locks its row until the transaction ends.
func (r *LedgerRepository) GetOrCreateForUpdate(ctx context.Context, key progression.EntryKey, now time.Time) (*progression.LedgerEntry, error) {
	insert := `
		INSERT INTO ledger_entries (profile_id, module, category_id, completion_count, last_renewed_at)
		VALUES ($1, $2, $3, 0, $4)
		ON CONFLICT (profile_id, module, category_id) DO NOTHING
	`
	if _, err := r.q.Exec(ctx, insert, key.ProfileID.String(), int(key.Module), key.CategoryID, now); err != nil {
		return nil, mapError("GetOrCreateLedger", err)
	}

	query := `
		SELECT completion_count, last_renewed_at, slots, bounds
		FROM ledger_entries
		WHERE profile_id = $1 AND module = $2 AND category_id = $3
		FOR UPDATE
	`
	entry, err := scanLedgerEntry(key, r.q.QueryRow(ctx, query, key.ProfileID.String(), int(key.Module), key.CategoryID))
	if err != nil {
		return nil, mapError("GetOrCreateLedger", err)
	}
	return entry, nil
}

// Save writes entry back. The row must have been locked by GetOrCreateForUpdate.
func (r *LedgerRepository) Save(ctx context.Context, entry *progression.LedgerEntry) error {
	slots, err := encodeSlots(entry.Slots)
	if err != nil {
		return err
	}
	bounds, err := encodeBounds(entry.Bounds)
	if err != nil {
		return err
	}

	query := `
		UPDATE ledger_entries
		SET completion_count = $4, last_renewed_at = $5, slots = $6, bounds = $7, updated_at = NOW()
		WHERE profile_id = $1 AND module = $2 AND category_id = $3
	`
	tag, err := r.q.Exec(ctx, query,
		entry.Key.ProfileID.String(),
		int(entry.Key.Module),
		entry.Key.CategoryID,
		entry.CompletionCount,
		entry.LastRenewedAt,
		slots,
		bounds,
	)
	if err != nil {
		return mapError("SaveLedger", err)
	}
	if tag.RowsAffected() == 0 {
		return mapError("SaveLedger", fmt.Errorf("ledger entry %v vanished", entry.Key))
	}
	return nil
}

// Find returns the entry for key without locking it, or nil when absent.
func (r *LedgerRepository) Find(ctx context.Context, key progression.EntryKey) (*progression.LedgerEntry, error) {
	query := `
		SELECT completion_count, last_renewed_at, slots, bounds
		FROM ledger_entries
		WHERE profile_id = $1 AND module = $2 AND category_id = $3
	`
	entry, err := scanLedgerEntry(key, r.q.QueryRow(ctx, query, key.ProfileID.String(), int(key.Module), key.CategoryID))
	if IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError("FindLedger", err)
	}
	return entry, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Row mapping
// ─────────────────────────────────────────────────────────────────────────────

func scanLedgerEntry(key progression.EntryKey, row pgx.Row) (*progression.LedgerEntry, error) {
	var (
		count     int
		renewedAt time.Time
		slotsRaw  []byte
		boundsRaw []byte
	)
	if err := row.Scan(&count, &renewedAt, &slotsRaw, &boundsRaw); err != nil {
		return nil, err
	}

	entry := progression.NewLedgerEntry(key, renewedAt)
	entry.CompletionCount = count

	slots, err := decodeSlots(slotsRaw)
	if err != nil {
		return nil, err
	}
	entry.Slots = slots

	bounds, err := decodeBounds(boundsRaw)
	if err != nil {
		return nil, err
	}
	entry.Bounds = bounds
	return entry, nil
}

type slotRow struct {
	Index     int  `json:"index"`
	Allocated bool `json:"allocated"`
	Completed bool `json:"completed"`
}

// encodeSlots stores only slots that differ from the zero state, ordered by index.
func encodeSlots(slots map[int]*progression.Slot) ([]byte, error) {
	rows := make([]slotRow, 0, len(slots))
	for i, s := range slots {
		if s == nil || (!s.Allocated && !s.Completed) {
			continue
		}
		rows = append(rows, slotRow{Index: i, Allocated: s.Allocated, Completed: s.Completed})
	}
	sort.Slice(rows, func(a, b int) bool { return rows[a].Index < rows[b].Index })

	raw, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal slots: %w", err)
	}
	return raw, nil
}

func decodeSlots(raw []byte) (map[int]*progression.Slot, error) {
	out := make(map[int]*progression.Slot)
	if len(raw) == 0 {
		return out, nil
	}
	var rows []slotRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal slots: %w", err)
	}
	for _, r := range rows {
		out[r.Index] = &progression.Slot{Index: r.Index, Allocated: r.Allocated, Completed: r.Completed}
	}
	return out, nil
}

// encodeBounds keys the JSON object by the decimal bounds key.
func encodeBounds(bounds map[int]progression.Data) ([]byte, error) {
	obj := make(map[string]progression.Data, len(bounds))
	for k, d := range bounds {
		obj[strconv.Itoa(k)] = d
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal bounds: %w", err)
	}
	return raw, nil
}

func decodeBounds(raw []byte) (map[int]progression.Data, error) {
	out := make(map[int]progression.Data)
	if len(raw) == 0 {
		return out, nil
	}
	var obj map[string]progression.Data
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bounds: %w", err)
	}
	for k, d := range obj {
		key, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("invalid bounds key %q: %w", k, err)
		}
		out[key] = d
	}
	return out, nil
}
