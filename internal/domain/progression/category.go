package progression

import (
	"fmt"
	"sort"

	"github.com/homequest/homequest/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATEGORY CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// LoginCategoryID is the daily check-in category every module has.
const LoginCategoryID = 0

// CategoryKey identifies a category within a module.
type CategoryKey struct {
	Module     shared.Module
	CategoryID int
}

// String returns "MODULE/id".
func (k CategoryKey) String() string {
	return fmt.Sprintf("%s/%d", k.Module, k.CategoryID)
}

// CategoryConfig is the static reward policy of one category.
type CategoryConfig struct {
	Module          shared.Module
	CategoryID      int
	Name            string
	SlotLimit       int    // 0 = non-slotted
	CompletionLimit int    // rewarded completions per renewal window
	RenewalPeriod   int    // days
	EvalFunc        string // empty = neutral performance

	scorer ScoringFunc
}

// Key returns the registry key of the category.
func (c CategoryConfig) Key() CategoryKey {
	return CategoryKey{Module: c.Module, CategoryID: c.CategoryID}
}

// IsSlotted reports whether completions address a fixed set of slots.
func (c CategoryConfig) IsSlotted() bool {
	return c.SlotLimit > 0
}

// ValidSlot reports whether index addresses a slot of this category.
func (c CategoryConfig) ValidSlot(index int) bool {
	return c.IsSlotted() && index >= 0 && index < c.SlotLimit
}

// Score evaluates the category's scoring function.
func (c CategoryConfig) Score(bounds, task Data) (float64, error) {
	if c.scorer == nil {
		return NeutralPerformance, nil
	}
	return Evaluate(c.EvalFunc, c.scorer, bounds, task)
}

// LoginCategory returns the implicit daily check-in category of a module.
func LoginCategory(module shared.Module) CategoryConfig {
	return CategoryConfig{
		Module:          module,
		CategoryID:      LoginCategoryID,
		Name:            "daily login",
		SlotLimit:       0,
		CompletionLimit: 1,
		RenewalPeriod:   1,
	}
}

func (c CategoryConfig) validate() error {
	switch {
	case !c.Module.IsValid():
		return invalidCategory(fmt.Sprintf("category %d: unknown module", c.CategoryID))
	case c.CategoryID < 0:
		return invalidCategory(fmt.Sprintf("%s: category id must be >= 0", c.Key()))
	case c.SlotLimit < 0:
		return invalidCategory(fmt.Sprintf("%s: slot_limit must be >= 0", c.Key()))
	case c.CompletionLimit < 0:
		return invalidCategory(fmt.Sprintf("%s: completion_limit must be >= 0", c.Key()))
	case c.RenewalPeriod < 1:
		return invalidCategory(fmt.Sprintf("%s: renewal_period must be >= 1 day", c.Key()))
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRY
// ══════════════════════════════════════════════════════════════════════════════

// CategoryRegistry is the immutable (module, category) → CategoryConfig table.
// It is assembled once at startup and shared read-only afterwards.
type CategoryRegistry struct {
	categories map[CategoryKey]CategoryConfig
}

// NewCategoryRegistry validates defs, binds every eval_func name to a scoring
// function, and adds the implicit login category to modules that do not
// configure category 0 explicitly. Unknown scoring names fail here rather
// than on first use.
func NewCategoryRegistry(defs []CategoryConfig, scoring *ScoringRegistry) (*CategoryRegistry, error) {
	categories := make(map[CategoryKey]CategoryConfig, len(defs)+len(shared.AllModules))

	for _, def := range defs {
		if err := def.validate(); err != nil {
			return nil, err
		}
		key := def.Key()
		if _, dup := categories[key]; dup {
			return nil, invalidCategory(fmt.Sprintf("%s: duplicate category", key))
		}
		if def.EvalFunc != "" {
			fn, ok := scoring.Lookup(def.EvalFunc)
			if !ok {
				return nil, invalidCategory(fmt.Sprintf("%s: unknown eval_func %s", key, quote(def.EvalFunc)))
			}
			def.scorer = fn
		}
		categories[key] = def
	}

	for _, m := range shared.AllModules {
		key := CategoryKey{Module: m, CategoryID: LoginCategoryID}
		if _, ok := categories[key]; !ok {
			categories[key] = LoginCategory(m)
		}
	}

	return &CategoryRegistry{categories: categories}, nil
}

// Get returns the configuration for (module, categoryID).
func (r *CategoryRegistry) Get(module shared.Module, categoryID int) (CategoryConfig, bool) {
	if r == nil {
		return CategoryConfig{}, false
	}
	cfg, ok := r.categories[CategoryKey{Module: module, CategoryID: categoryID}]
	return cfg, ok
}

// Require is Get returning ErrCategoryNotFound on a miss.
func (r *CategoryRegistry) Require(module shared.Module, categoryID int) (CategoryConfig, error) {
	cfg, ok := r.Get(module, categoryID)
	if !ok {
		return CategoryConfig{}, ErrCategoryNotFound
	}
	return cfg, nil
}

// All returns every configured category ordered by module then id.
func (r *CategoryRegistry) All() []CategoryConfig {
	out := make([]CategoryConfig, 0, len(r.categories))
	for _, cfg := range r.categories {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Module != out[j].Module {
			return out[i].Module < out[j].Module
		}
		return out[i].CategoryID < out[j].CategoryID
	})
	return out
}

// Len returns the number of configured categories.
func (r *CategoryRegistry) Len() int {
	return len(r.categories)
}
