package command

import (
	"context"
	"time"

	"github.com/homequest/homequest/internal/domain/progression"
	"github.com/homequest/homequest/internal/domain/shared"
)

// CheckInCommand claims the daily login reward of a module.
type CheckInCommand struct {
	ProfileID     shared.ProfileID
	Module        shared.Module
	Date          time.Time
	CorrelationID string
}

// CheckInHandler completes the login category of a module.
type CheckInHandler struct {
	engine *CompleteTaskHandler
}

// NewCheckInHandler creates a new CheckInHandler.
func NewCheckInHandler(engine *CompleteTaskHandler) *CheckInHandler {
	return &CheckInHandler{engine: engine}
}

// Handle executes the check-in. A second check-in inside the same window is
// accepted but unrewarded.
func (h *CheckInHandler) Handle(ctx context.Context, cmd CheckInCommand) (progression.RewardOutcome, error) {
	return h.engine.Handle(ctx, CompleteTaskCommand{
		ProfileID:     cmd.ProfileID,
		Module:        cmd.Module,
		CategoryID:    progression.LoginCategoryID,
		Slot:          progression.NoSlot,
		Date:          cmd.Date,
		CorrelationID: cmd.CorrelationID,
	})
}
