package progression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homequest/homequest/internal/domain/shared"
)

func TestNewCategoryRegistry_ImplicitLogin(t *testing.T) {
	reg, err := NewCategoryRegistry(nil, NewScoringRegistry(nil))
	require.NoError(t, err)

	for _, m := range shared.AllModules {
		cfg, ok := reg.Get(m, LoginCategoryID)
		require.True(t, ok, m.String())
		assert.Equal(t, 0, cfg.SlotLimit)
		assert.Equal(t, 1, cfg.CompletionLimit)
		assert.Equal(t, 1, cfg.RenewalPeriod)
		assert.Empty(t, cfg.EvalFunc)
	}
	assert.Equal(t, len(shared.AllModules), reg.Len())
}

func TestNewCategoryRegistry_ExplicitZeroOverridesLogin(t *testing.T) {
	scoring := NewScoringRegistry(map[string]ScoringFunc{"some_finance_eval": FinanceUnderBudget})
	reg, err := NewCategoryRegistry([]CategoryConfig{{
		Module:          shared.ModuleFinance,
		CategoryID:      0,
		Name:            "budget",
		CompletionLimit: 12,
		RenewalPeriod:   1,
		EvalFunc:        "some_finance_eval",
	}}, scoring)
	require.NoError(t, err)

	cfg, err := reg.Require(shared.ModuleFinance, 0)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.CompletionLimit)

	p, err := cfg.Score(Data{"budget": 100}, Data{"expense": 50})
	require.NoError(t, err)
	assert.Equal(t, 1.5, p)
}

func TestNewCategoryRegistry_Rejects(t *testing.T) {
	base := CategoryConfig{Module: shared.ModuleWork, CategoryID: 1, CompletionLimit: 1, RenewalPeriod: 1}

	tests := []struct {
		name string
		defs func() []CategoryConfig
	}{
		{"unknown module", func() []CategoryConfig { c := base; c.Module = 0; return []CategoryConfig{c} }},
		{"negative id", func() []CategoryConfig { c := base; c.CategoryID = -2; return []CategoryConfig{c} }},
		{"negative slots", func() []CategoryConfig { c := base; c.SlotLimit = -1; return []CategoryConfig{c} }},
		{"negative limit", func() []CategoryConfig { c := base; c.CompletionLimit = -1; return []CategoryConfig{c} }},
		{"zero renewal", func() []CategoryConfig { c := base; c.RenewalPeriod = 0; return []CategoryConfig{c} }},
		{"unknown eval", func() []CategoryConfig { c := base; c.EvalFunc = "nope"; return []CategoryConfig{c} }},
		{"duplicate", func() []CategoryConfig { return []CategoryConfig{base, base} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCategoryRegistry(tt.defs(), NewScoringRegistry(nil))
			assert.ErrorIs(t, err, ErrInvalidCategory)
			assert.True(t, shared.IsConfiguration(err))
		})
	}
}

func TestCategoryRegistry_Miss(t *testing.T) {
	reg, err := NewCategoryRegistry(nil, NewScoringRegistry(nil))
	require.NoError(t, err)

	_, ok := reg.Get(shared.ModuleSchool, 5)
	assert.False(t, ok)
	_, err = reg.Require(shared.Module(99), 0)
	assert.ErrorIs(t, err, ErrCategoryNotFound)
	assert.True(t, shared.IsNotFound(err))
}

func TestCategoryConfig_NeutralScore(t *testing.T) {
	p, err := LoginCategory(shared.ModuleWork).Score(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, NeutralPerformance, p)
}
