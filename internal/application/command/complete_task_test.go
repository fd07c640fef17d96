package command_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homequest/homequest/internal/application/command"
	"github.com/homequest/homequest/internal/domain/profile"
	"github.com/homequest/homequest/internal/domain/progression"
	"github.com/homequest/homequest/internal/domain/shared"
	"github.com/homequest/homequest/internal/infrastructure/persistence/memory"
	"github.com/homequest/homequest/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// FIXTURES
// ══════════════════════════════════════════════════════════════════════════════

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

const (
	budgetCategory = 0
	choreCategory  = 3
	weeklyCategory = 7
	brokenCategory = 9
	hugeCategory   = 8
)

func testCategories(t *testing.T) *progression.CategoryRegistry {
	t.Helper()
	scoring := progression.NewScoringRegistry(map[string]progression.ScoringFunc{
		"some_finance_eval": progression.FinanceUnderBudget,
		"explode":           func(progression.Data, progression.Data) float64 { panic("boom") },
		"huge":              func(progression.Data, progression.Data) float64 { return 1e19 },
	})
	reg, err := progression.NewCategoryRegistry([]progression.CategoryConfig{
		{Module: shared.ModuleFinance, CategoryID: budgetCategory, Name: "budget", CompletionLimit: 12, RenewalPeriod: 1, EvalFunc: "some_finance_eval"},
		{Module: shared.ModuleHomeLife, CategoryID: 0, Name: "chores", SlotLimit: 12, CompletionLimit: 6, RenewalPeriod: 1},
		{Module: shared.ModuleHomeLife, CategoryID: choreCategory, Name: "weekly chores", SlotLimit: 3, CompletionLimit: 6, RenewalPeriod: 1},
		{Module: shared.ModuleWork, CategoryID: weeklyCategory, Name: "weekly review", CompletionLimit: 1, RenewalPeriod: 7},
		{Module: shared.ModuleWork, CategoryID: hugeCategory, Name: "inflated", CompletionLimit: 5, RenewalPeriod: 1, EvalFunc: "huge"},
		{Module: shared.ModuleSchool, CategoryID: brokenCategory, Name: "broken", CompletionLimit: 5, RenewalPeriod: 1, EvalFunc: "explode"},
	}, scoring)
	require.NoError(t, err)
	return reg
}

type harness struct {
	store     *memory.Store
	clock     *fakeClock
	publisher *recordingPublisher
	engine    *command.CompleteTaskHandler
	slots     *command.SlotHandler
	profileID shared.ProfileID
}

func newHarness(t *testing.T, uow func(*memory.Store) command.UnitOfWork) *harness {
	t.Helper()
	h := &harness{
		store:     memory.NewStore(),
		clock:     &fakeClock{now: time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)},
		publisher: &recordingPublisher{},
		profileID: shared.GenerateProfileID(),
	}
	var u command.UnitOfWork = h.store
	if uow != nil {
		u = uow(h.store)
	}
	cats := testCategories(t)
	h.engine = command.NewCompleteTaskHandler(cats, u, command.CompleteTaskHandlerConfig{
		Publisher: h.publisher,
		Calendar:  timeutil.UTC,
		Clock:     h.clock.Now,
	})
	h.slots = command.NewSlotHandler(cats, h.store, h.clock.Now, nil)
	return h
}

func (h *harness) complete(t *testing.T, module shared.Module, category, slot int, data progression.Data) progression.RewardOutcome {
	t.Helper()
	out, err := h.engine.Handle(context.Background(), command.CompleteTaskCommand{
		ProfileID:  h.profileID,
		Module:     module,
		CategoryID: category,
		Slot:       slot,
		Data:       data,
	})
	require.NoError(t, err)
	return out
}

func (h *harness) ref(module shared.Module, category, slot int) command.SlotRef {
	return command.SlotRef{ProfileID: h.profileID, Module: module, CategoryID: category, Slot: slot}
}

func (h *harness) entry(t *testing.T, module shared.Module, category int) *progression.LedgerEntry {
	t.Helper()
	e, err := h.store.Find(context.Background(), progression.EntryKey{ProfileID: h.profileID, Module: module, CategoryID: category})
	require.NoError(t, err)
	return e
}

func (h *harness) wallet(t *testing.T) int64 {
	t.Helper()
	w, err := h.store.Wallet(context.Background(), h.profileID)
	require.NoError(t, err)
	return w
}

var zeroOutcome = progression.RewardOutcome{Performance: 1.0}

// ══════════════════════════════════════════════════════════════════════════════
// SCENARIOS
// ══════════════════════════════════════════════════════════════════════════════

func TestCompleteTask_FinanceUnderBudget(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.slots.SetBounds(context.Background(), command.SetBoundsCommand{
		SlotRef: h.ref(shared.ModuleFinance, budgetCategory, progression.UnslottedBoundsKey),
		Bounds:  progression.Data{"budget": 100},
	}))

	out := h.complete(t, shared.ModuleFinance, budgetCategory, progression.NoSlot, progression.Data{"expense": 50})

	assert.Equal(t, progression.RewardOutcome{
		TaskCompleted: true,
		HasReward:     true,
		Performance:   1.5,
		Currency:      15,
		Experience:    7,
		Population:    1,
		HasRankedUp:   true,
	}, out)
	assert.Equal(t, int64(15), h.wallet(t))
	assert.Equal(t, 1, h.entry(t, shared.ModuleFinance, budgetCategory).CompletionCount)

	mods, err := h.store.ListModules(context.Background(), h.profileID)
	require.NoError(t, err)
	require.Len(t, mods, 1)
	assert.Equal(t, 7.0, mods[0].Experience)
	assert.Equal(t, 1, mods[0].Population)
	assert.Equal(t, 1, mods[0].CurrentStreak)

	assert.Equal(t, []shared.EventType{
		shared.EventRewardGranted, shared.EventStreakUpdated, shared.EventRankUp,
	}, h.publisher.Types())
}

func TestCompleteTask_UnallocatedSlot(t *testing.T) {
	h := newHarness(t, nil)

	out := h.complete(t, shared.ModuleHomeLife, 0, 2, nil)

	assert.Equal(t, zeroOutcome, out)
	assert.Zero(t, h.wallet(t))
	assert.Empty(t, h.publisher.Types())
}

func TestCompleteTask_UnconfiguredCategory(t *testing.T) {
	h := newHarness(t, nil)
	unknown, err := shared.ParseModule("S")
	require.Error(t, err)

	out := h.complete(t, unknown, 5, progression.NoSlot, nil)

	assert.Equal(t, zeroOutcome, out)
	assert.Nil(t, h.entry(t, unknown, 5), "no ledger row is touched")
	assert.Equal(t, zeroOutcome, h.complete(t, shared.ModuleSchool, 5, progression.NoSlot, nil))
}

func TestCompleteTask_OverLimitStillCompletes(t *testing.T) {
	h := newHarness(t, nil)

	first := h.complete(t, shared.ModuleWork, weeklyCategory, progression.NoSlot, nil)
	assert.True(t, first.HasReward)

	for i := 0; i < 3; i++ {
		out := h.complete(t, shared.ModuleWork, weeklyCategory, progression.NoSlot, nil)
		assert.Equal(t, progression.RewardOutcome{TaskCompleted: true, Performance: 1.0}, out)
	}

	assert.Equal(t, 4, h.entry(t, shared.ModuleWork, weeklyCategory).CompletionCount)
	assert.Equal(t, int64(10), h.wallet(t))
}

func TestCompleteTask_OverLimitAtSaturationBound(t *testing.T) {
	h := newHarness(t, nil)
	h.complete(t, shared.ModuleWork, weeklyCategory, progression.NoSlot, nil)

	require.NoError(t, h.store.InTx(context.Background(), func(ctx context.Context, repos command.Repositories) error {
		e, err := repos.Ledger.GetOrCreateForUpdate(ctx, progression.EntryKey{ProfileID: h.profileID, Module: shared.ModuleWork, CategoryID: weeklyCategory}, h.clock.Now())
		if err != nil {
			return err
		}
		e.CompletionCount = progression.MaxCompletionCount
		return repos.Ledger.Save(ctx, e)
	}))

	out := h.complete(t, shared.ModuleWork, weeklyCategory, progression.NoSlot, nil)
	assert.True(t, out.TaskCompleted)
	assert.False(t, out.HasReward)
	assert.Equal(t, progression.MaxCompletionCount, h.entry(t, shared.ModuleWork, weeklyCategory).CompletionCount)
}

func TestCompleteTask_SlotExclusivityAndRenewal(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, err := h.slots.Allocate(ctx, command.AllocateSlotCommand{SlotRef: h.ref(shared.ModuleHomeLife, choreCategory, 1)})
	require.NoError(t, err)

	first := h.complete(t, shared.ModuleHomeLife, choreCategory, 1, nil)
	second := h.complete(t, shared.ModuleHomeLife, choreCategory, 1, nil)
	assert.True(t, first.HasReward)
	assert.Equal(t, zeroOutcome, second)

	assert.Equal(t, zeroOutcome, h.complete(t, shared.ModuleHomeLife, choreCategory, 3, nil), "out of range")
	assert.Equal(t, zeroOutcome, h.complete(t, shared.ModuleHomeLife, choreCategory, progression.NoSlot, nil), "missing slot")

	h.clock.Advance(24 * time.Hour)
	third := h.complete(t, shared.ModuleHomeLife, choreCategory, 1, nil)
	assert.True(t, third.HasReward)

	e := h.entry(t, shared.ModuleHomeLife, choreCategory)
	assert.Equal(t, 1, e.CompletionCount)
	assert.True(t, e.WasCompleted(1))
}

func TestSlotHandler_ReleaseDropsBounds(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, err := h.slots.Allocate(ctx, command.AllocateSlotCommand{
		SlotRef: h.ref(shared.ModuleHomeLife, choreCategory, 0),
		Bounds:  progression.Data{"due_date": "2025-01-10"},
	})
	require.NoError(t, err)

	_, err = h.slots.Release(ctx, command.ReleaseSlotCommand{SlotRef: h.ref(shared.ModuleHomeLife, choreCategory, 0)})
	require.NoError(t, err)
	assert.Equal(t, zeroOutcome, h.complete(t, shared.ModuleHomeLife, choreCategory, 0, nil))

	_, err = h.slots.Allocate(ctx, command.AllocateSlotCommand{SlotRef: h.ref(shared.ModuleHomeLife, choreCategory, 0)})
	require.NoError(t, err)
	assert.Empty(t, h.entry(t, shared.ModuleHomeLife, choreCategory).BoundsFor(0), "release dropped the bounds")
}

func TestSlotHandler_Validation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.slots.Allocate(ctx, command.AllocateSlotCommand{SlotRef: h.ref(shared.ModuleWork, weeklyCategory, 0)})
	assert.ErrorIs(t, err, progression.ErrNotSlotted)

	_, err = h.slots.Allocate(ctx, command.AllocateSlotCommand{SlotRef: h.ref(shared.ModuleHomeLife, choreCategory, 3)})
	assert.ErrorIs(t, err, progression.ErrSlotOutOfRange)

	_, err = h.slots.Allocate(ctx, command.AllocateSlotCommand{SlotRef: h.ref(shared.ModuleHomeLife, 42, 0)})
	assert.ErrorIs(t, err, progression.ErrCategoryNotFound)

	_, err = h.slots.Allocate(ctx, command.AllocateSlotCommand{SlotRef: command.SlotRef{ProfileID: "nope", Module: shared.ModuleWork}})
	assert.ErrorIs(t, err, shared.ErrInvalidID)
}

func TestCompleteTask_ConcurrentDuplicateClaim(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.slots.Allocate(context.Background(), command.AllocateSlotCommand{SlotRef: h.ref(shared.ModuleHomeLife, choreCategory, 2)})
	require.NoError(t, err)

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		rewards int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			out, err := h.engine.Handle(context.Background(), command.CompleteTaskCommand{
				ProfileID: h.profileID, Module: shared.ModuleHomeLife, CategoryID: choreCategory, Slot: 2,
			})
			assert.NoError(t, err)
			if out.HasReward {
				mu.Lock()
				rewards++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, rewards)
	assert.Equal(t, int64(10), h.wallet(t))
	assert.Equal(t, 1, h.entry(t, shared.ModuleHomeLife, choreCategory).CompletionCount)
}

func TestCompleteTask_UnrelatedCategoriesDoNotBlock(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		_ = h.store.InTx(ctx, func(ctx context.Context, repos command.Repositories) error {
			_, err := repos.Ledger.GetOrCreateForUpdate(ctx, progression.EntryKey{ProfileID: h.profileID, Module: shared.ModuleWork, CategoryID: weeklyCategory}, h.clock.Now())
			close(locked)
			<-release
			return err
		})
	}()
	<-locked

	out := h.complete(t, shared.ModuleFinance, budgetCategory, progression.NoSlot, nil)
	assert.True(t, out.HasReward)

	close(release)
	<-done
}

// ══════════════════════════════════════════════════════════════════════════════
// FAULTS
// ══════════════════════════════════════════════════════════════════════════════

func TestCompleteTask_ScoringFaultRollsBack(t *testing.T) {
	h := newHarness(t, nil)

	out, err := h.engine.Handle(context.Background(), command.CompleteTaskCommand{
		ProfileID: h.profileID, Module: shared.ModuleSchool, CategoryID: brokenCategory, Slot: progression.NoSlot,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, progression.ErrScoringFault)
	assert.True(t, shared.IsConfiguration(err))
	assert.False(t, out.HasReward)
	assert.Nil(t, h.entry(t, shared.ModuleSchool, brokenCategory))
	assert.Zero(t, h.wallet(t))
	assert.Empty(t, h.publisher.Types())
}

func TestCompleteTask_OversizedPerformanceRollsBack(t *testing.T) {
	h := newHarness(t, nil)

	out, err := h.engine.Handle(context.Background(), command.CompleteTaskCommand{
		ProfileID: h.profileID, Module: shared.ModuleWork, CategoryID: hugeCategory, Slot: progression.NoSlot,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, progression.ErrScoringFault)
	assert.False(t, out.HasReward)
	assert.Zero(t, out.Currency)
	assert.Nil(t, h.entry(t, shared.ModuleWork, hugeCategory))
	assert.Zero(t, h.wallet(t))
	mods, err := h.store.ListModules(context.Background(), h.profileID)
	require.NoError(t, err)
	assert.Empty(t, mods)
	assert.Empty(t, h.publisher.Types())
}

type failingWallet struct {
	profile.Repository
}

var errDisk = shared.WrapError("test", "CreditWallet", shared.ErrStorage, "disk full", errors.New("ENOSPC"))

func (failingWallet) CreditWallet(context.Context, shared.ProfileID, int64) (int64, error) {
	return 0, errDisk
}

type failingUoW struct {
	inner command.UnitOfWork
}

func (f failingUoW) InTx(ctx context.Context, fn func(context.Context, command.Repositories) error) error {
	return f.inner.InTx(ctx, func(ctx context.Context, repos command.Repositories) error {
		repos.Profiles = failingWallet{repos.Profiles}
		return fn(ctx, repos)
	})
}

func TestCompleteTask_StorageFaultRollsBack(t *testing.T) {
	h := newHarness(t, func(s *memory.Store) command.UnitOfWork { return failingUoW{inner: s} })

	_, err := h.engine.Handle(context.Background(), command.CompleteTaskCommand{
		ProfileID: h.profileID, Module: shared.ModuleWork, CategoryID: weeklyCategory, Slot: progression.NoSlot,
	})

	assert.ErrorIs(t, err, shared.ErrStorage)
	assert.Nil(t, h.entry(t, shared.ModuleWork, weeklyCategory))
	mods, err := h.store.ListModules(context.Background(), h.profileID)
	require.NoError(t, err)
	assert.Empty(t, mods)
}

func TestCompleteTask_InvalidProfile(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.engine.Handle(context.Background(), command.CompleteTaskCommand{ProfileID: "x", Module: shared.ModuleWork})
	assert.True(t, shared.IsValidation(err))
}

// ══════════════════════════════════════════════════════════════════════════════
// ACCUMULATORS
// ══════════════════════════════════════════════════════════════════════════════

func TestCheckIn_StreakAcrossDays(t *testing.T) {
	h := newHarness(t, nil)
	checkin := command.NewCheckInHandler(h.engine)
	ctx := context.Background()
	do := func() progression.RewardOutcome {
		out, err := checkin.Handle(ctx, command.CheckInCommand{ProfileID: h.profileID, Module: shared.ModuleSchool})
		require.NoError(t, err)
		return out
	}

	assert.True(t, do().HasReward)
	again := do()
	assert.True(t, again.TaskCompleted)
	assert.False(t, again.HasReward)

	h.clock.Advance(24 * time.Hour)
	assert.True(t, do().HasReward)
	h.clock.Advance(72 * time.Hour)
	assert.True(t, do().HasReward)

	mods, err := h.store.ListModules(ctx, h.profileID)
	require.NoError(t, err)
	require.Len(t, mods, 1)
	assert.Equal(t, 1, mods[0].CurrentStreak)
	assert.Equal(t, 2, mods[0].MaxStreak)
	assert.Equal(t, 2, mods[0].BuildingLevel)
	assert.Equal(t, 15.0, mods[0].Experience)
	assert.Equal(t, 3, mods[0].Population)
	assert.Equal(t, int64(30), h.wallet(t))
}

func TestCompleteTask_RankUsesTotalAcrossModules(t *testing.T) {
	h := newHarness(t, nil)
	checkin := command.NewCheckInHandler(h.engine)
	ctx := context.Background()

	var ranked []bool
	for _, m := range shared.AllModules {
		out, err := checkin.Handle(ctx, command.CheckInCommand{ProfileID: h.profileID, Module: m})
		require.NoError(t, err)
		ranked = append(ranked, out.HasRankedUp)
	}

	// totals 5, 10, 15, 20 -> ranks 2, 3, 4, 4
	assert.Equal(t, []bool{true, true, true, false}, ranked)
}
