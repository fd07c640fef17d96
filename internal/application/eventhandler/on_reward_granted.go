// Package eventhandler contains handlers of domain events. They run after the
// reward transaction has committed and only perform side effects such as
// cache invalidation; a failing handler never affects a granted reward.
package eventhandler

import (
	"context"
	"time"

	"github.com/homequest/homequest/internal/domain/shared"
	"github.com/homequest/homequest/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ON REWARD GRANTED HANDLER
// Drops the cached profile summary so the next read sees the new balances.
// ══════════════════════════════════════════════════════════════════════════════

// SummaryInvalidator drops cached profile summaries.
type SummaryInvalidator interface {
	Invalidate(ctx context.Context, profileID shared.ProfileID) error
}

// OnRewardGrantedHandler reacts to progress.reward_granted.
type OnRewardGrantedHandler struct {
	cache   SummaryInvalidator
	timeout time.Duration
	logger  *logger.Logger
}

// NewOnRewardGrantedHandler creates the handler. cache may be nil.
func NewOnRewardGrantedHandler(cache SummaryInvalidator, log *logger.Logger) *OnRewardGrantedHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &OnRewardGrantedHandler{
		cache:   cache,
		timeout: 2 * time.Second,
		logger:  log.With(logger.String("handler", "on_reward_granted")),
	}
}

// Handle implements shared.EventHandler.
func (h *OnRewardGrantedHandler) Handle(event shared.Event) error {
	e, ok := event.(shared.RewardGrantedEvent)
	if !ok {
		h.logger.Warn("received unexpected event", logger.String("event_type", string(event.EventType())))
		return nil
	}

	h.logger.Debug("reward granted",
		logger.ProfileID(e.AggregateID()),
		logger.ModuleField(e.Module.String()),
		logger.CategoryID(e.CategoryID),
		logger.Int("currency", e.Currency),
	)

	if h.cache == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	return h.cache.Invalidate(ctx, shared.ProfileID(e.AggregateID()))
}

// ══════════════════════════════════════════════════════════════════════════════
// ON PROGRESS MILESTONE HANDLER
// Logs rank-ups and streak changes for the activity feed.
// ══════════════════════════════════════════════════════════════════════════════

// OnMilestoneHandler reacts to progress.rank_up and progress.streak_updated.
type OnMilestoneHandler struct {
	logger *logger.Logger
}

// NewOnMilestoneHandler creates the handler.
func NewOnMilestoneHandler(log *logger.Logger) *OnMilestoneHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &OnMilestoneHandler{logger: log.With(logger.String("handler", "on_milestone"))}
}

// Handle implements shared.EventHandler.
func (h *OnMilestoneHandler) Handle(event shared.Event) error {
	switch e := event.(type) {
	case shared.RankUpEvent:
		h.logger.Info("profile ranked up",
			logger.ProfileID(e.AggregateID()),
			logger.Int("old_rank", e.OldRank),
			logger.Int("new_rank", e.NewRank),
		)
	case shared.StreakUpdatedEvent:
		h.logger.Debug("streak updated",
			logger.ProfileID(e.AggregateID()),
			logger.ModuleField(e.Module.String()),
			logger.Int("current_streak", e.CurrentStreak),
			logger.Int("max_streak", e.MaxStreak),
			logger.Bool("restarted", e.Restarted),
		)
	}
	return nil
}

// Register subscribes the handlers to bus.
func Register(bus shared.EventSubscriber, rewards *OnRewardGrantedHandler, milestones *OnMilestoneHandler) error {
	if err := bus.Subscribe(shared.EventRewardGranted, rewards.Handle); err != nil {
		return err
	}
	if err := bus.Subscribe(shared.EventRankUp, milestones.Handle); err != nil {
		return err
	}
	return bus.Subscribe(shared.EventStreakUpdated, milestones.Handle)
}
