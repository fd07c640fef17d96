package command

import (
	"context"
	"time"

	"github.com/homequest/homequest/internal/domain/profile"
	"github.com/homequest/homequest/internal/domain/progression"
	"github.com/homequest/homequest/internal/domain/shared"
	"github.com/homequest/homequest/pkg/logger"
	"github.com/homequest/homequest/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE TASK COMMAND
// Decides whether a completed module task counts, scores it, grants currency,
// experience and population, and advances the module streak.
// ══════════════════════════════════════════════════════════════════════════════

// CompleteTaskCommand is a single completion request.
type CompleteTaskCommand struct {
	ProfileID  shared.ProfileID
	Module     shared.Module
	CategoryID int

	// Slot is progression.NoSlot when the request names no slot.
	Slot int

	// Weight is passed to the scoring function as "weight".
	Weight float64

	// Date is the day the task was done. Zero means now.
	Date time.Time

	// Data is the client payload passed to the scoring function.
	Data progression.Data

	CorrelationID string
}

// Validate validates the command. Unknown modules and categories are not
// validation errors; they yield the no-completion outcome.
func (c CompleteTaskCommand) Validate() error {
	if !c.ProfileID.IsValid() {
		return shared.ErrInvalidProfileID
	}
	return nil
}

func (c CompleteTaskCommand) task(now time.Time) progression.ModuleTask {
	date := c.Date
	if date.IsZero() {
		date = now
	}
	return progression.ModuleTask{
		ProfileID:  c.ProfileID,
		Module:     c.Module,
		CategoryID: c.CategoryID,
		Slot:       c.Slot,
		Weight:     c.Weight,
		Date:       date,
		ClientData: c.Data,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// CompleteTaskHandler is the reward engine.
type CompleteTaskHandler struct {
	categories *progression.CategoryRegistry
	uow        UnitOfWork
	publisher  shared.EventPublisher
	metrics    RewardMetrics
	calendar   timeutil.Calendar
	clock      Clock
	logger     *logger.Logger
}

// CompleteTaskHandlerConfig contains optional collaborators.
type CompleteTaskHandlerConfig struct {
	Publisher shared.EventPublisher
	Metrics   RewardMetrics
	Calendar  timeutil.Calendar
	Clock     Clock
	Logger    *logger.Logger
}

// NewCompleteTaskHandler creates a new CompleteTaskHandler.
func NewCompleteTaskHandler(
	categories *progression.CategoryRegistry,
	uow UnitOfWork,
	config CompleteTaskHandlerConfig,
) *CompleteTaskHandler {
	if config.Metrics == nil {
		config.Metrics = nopMetrics{}
	}
	if config.Clock == nil {
		config.Clock = SystemClock
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	return &CompleteTaskHandler{
		categories: categories,
		uow:        uow,
		publisher:  config.Publisher,
		metrics:    config.Metrics,
		calendar:   config.Calendar,
		clock:      config.Clock,
		logger:     config.Logger.With(logger.Component("reward_engine")),
	}
}

// completion is what one transaction produced.
type completion struct {
	outcome progression.RewardOutcome
	result  string
	events  []shared.Event
}

// Handle executes the complete task command. Policy rejections return the
// no-completion outcome and a nil error. Errors are configuration or storage
// faults; in both cases nothing was committed.
func (h *CompleteTaskHandler) Handle(ctx context.Context, cmd CompleteTaskCommand) (progression.RewardOutcome, error) {
	start := time.Now()
	if err := cmd.Validate(); err != nil {
		return progression.NoCompletion(), err
	}

	now := h.clock()
	task := cmd.task(now)
	log := h.logger.With(
		logger.ProfileID(task.ProfileID.String()),
		logger.ModuleField(task.Module.String()),
		logger.CategoryID(task.CategoryID),
	)

	cfg, ok := h.categories.Get(task.Module, task.CategoryID)
	if !ok {
		log.Debug("completion rejected: category not configured")
		h.metrics.ObserveCompletion(task.Module, ResultRejectedCategory, progression.NeutralPerformance, time.Since(start))
		return progression.NoCompletion(), nil
	}

	var res completion
	err := h.uow.InTx(ctx, func(ctx context.Context, repos Repositories) error {
		var err error
		res, err = h.complete(ctx, repos, cfg, task, now, cmd.CorrelationID)
		return err
	})
	if err != nil {
		h.metrics.ObserveCompletion(task.Module, ResultFault, 0, time.Since(start))
		if shared.IsConfiguration(err) {
			log.Error("completion aborted: configuration fault", logger.Err(err))
		} else {
			log.Warn("completion aborted", logger.Err(err))
		}
		return progression.NoCompletion(), err
	}

	h.metrics.ObserveCompletion(task.Module, res.result, res.outcome.Performance, time.Since(start))
	if res.outcome.HasReward {
		h.metrics.ObserveReward(task.Module, res.outcome.Currency, res.outcome.Experience)
		log.Info("reward granted",
			logger.Performance(res.outcome.Performance),
			logger.Int("currency", res.outcome.Currency),
			logger.Float64("experience", res.outcome.Experience),
			logger.Bool("ranked_up", res.outcome.HasRankedUp),
		)
	} else {
		log.Debug("completion without reward", logger.String("result", res.result))
	}

	h.publish(log, res.events)
	return res.outcome, nil
}

func (h *CompleteTaskHandler) complete(
	ctx context.Context,
	repos Repositories,
	cfg progression.CategoryConfig,
	task progression.ModuleTask,
	now time.Time,
	correlationID string,
) (completion, error) {
	rejected := func(result string) completion {
		return completion{outcome: progression.NoCompletion(), result: result}
	}

	entry, err := repos.Ledger.GetOrCreateForUpdate(ctx, task.EntryKey(), now)
	if err != nil {
		return completion{}, err
	}
	if entry.ResetIfRenewalElapsed(cfg, now) {
		if err := repos.Ledger.Save(ctx, entry); err != nil {
			return completion{}, err
		}
	}

	boundsKey := progression.UnslottedBoundsKey
	if cfg.IsSlotted() {
		switch {
		case !task.HasSlot() || !cfg.ValidSlot(task.Slot):
			return rejected(ResultRejectedSlot), nil
		case !entry.IsAllocated(task.Slot):
			return rejected(ResultRejectedSlot), nil
		case entry.WasCompleted(task.Slot):
			return rejected(ResultRejectedDuplicate), nil
		}
		boundsKey = task.Slot
	}

	performance, err := cfg.Score(entry.BoundsFor(boundsKey), task.ScoringData(h.calendar.FormatDate(task.Date)))
	if err != nil {
		return completion{}, err
	}

	res := completion{outcome: progression.RewardOutcome{TaskCompleted: true, Performance: performance}}

	if entry.OverLimit(cfg) {
		if entry.IncrementCompletion(true) {
			if err := repos.Ledger.Save(ctx, entry); err != nil {
				return completion{}, err
			}
		}
		res.result = ResultOverLimit
		return res, nil
	}

	reward := progression.RewardFor(performance)
	entry.IncrementCompletion(false)
	if cfg.IsSlotted() {
		if err := entry.MarkCompleted(task.Slot); err != nil {
			return completion{}, err
		}
	}
	if err := repos.Ledger.Save(ctx, entry); err != nil {
		return completion{}, err
	}

	progress, err := repos.Profiles.GetModuleForUpdate(ctx, task.ProfileID, task.Module)
	if err != nil {
		return completion{}, err
	}
	totalBefore, err := repos.Profiles.TotalExperience(ctx, task.ProfileID)
	if err != nil {
		return completion{}, err
	}
	oldRank, newRank, rankedUp := profile.RankedUp(totalBefore, reward.Experience)

	progress.AddExperience(reward.Experience)
	streak := progress.AdvanceStreak(h.calendar, now)
	progress.AdjustPopulation(reward.Population)
	progress.UpdatedAt = now
	if err := repos.Profiles.SaveModule(ctx, progress); err != nil {
		return completion{}, err
	}
	if _, err := repos.Profiles.CreditWallet(ctx, task.ProfileID, int64(reward.Currency)); err != nil {
		return completion{}, err
	}

	res.result = ResultGranted
	res.outcome.HasReward = true
	res.outcome.Currency = reward.Currency
	res.outcome.Experience = reward.Experience
	res.outcome.Population = reward.Population
	res.outcome.HasRankedUp = rankedUp

	id := task.ProfileID.String()
	granted := shared.NewRewardGrantedEvent(
		id, task.Module, task.CategoryID, task.Slot,
		performance, reward.Currency, reward.Experience, reward.Population, now,
	)
	granted.BaseEvent = granted.WithCorrelationID(correlationID)
	res.events = append(res.events, granted)

	if streak != profile.StreakUnchanged {
		updated := shared.NewStreakUpdatedEvent(
			id, task.Module, progress.CurrentStreak, progress.MaxStreak, streak == profile.StreakRestarted, now,
		)
		updated.BaseEvent = updated.WithCorrelationID(correlationID)
		res.events = append(res.events, updated)
	}
	if rankedUp {
		up := shared.NewRankUpEvent(id, oldRank, newRank, now)
		up.BaseEvent = up.WithCorrelationID(correlationID)
		res.events = append(res.events, up)
	}
	return res, nil
}

func (h *CompleteTaskHandler) publish(log *logger.Logger, events []shared.Event) {
	if h.publisher == nil {
		return
	}
	for _, e := range events {
		if err := h.publisher.Publish(e); err != nil {
			log.Warn("failed to publish event", logger.String("event_type", string(e.EventType())), logger.Err(err))
		}
	}
}
