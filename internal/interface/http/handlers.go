package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/homequest/homequest/internal/application/command"
	"github.com/homequest/homequest/internal/application/query"
	"github.com/homequest/homequest/internal/domain/progression"
	"github.com/homequest/homequest/internal/domain/shared"
	"github.com/homequest/homequest/pkg/logger"
	"github.com/homequest/homequest/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST BODIES
// ══════════════════════════════════════════════════════════════════════════════

// CompleteRequest is the body of POST .../complete. Every field is optional.
type CompleteRequest struct {
	Slot   *int             `json:"slot,omitempty"`
	Weight float64          `json:"weight,omitempty"`
	Date   string           `json:"date,omitempty"`
	Data   progression.Data `json:"data,omitempty"`
}

// CheckInRequest is the body of POST .../checkin.
type CheckInRequest struct {
	Date string `json:"date,omitempty"`
}

// BoundsRequest is the body of the slot and bounds endpoints.
type BoundsRequest struct {
	Bounds progression.Data `json:"bounds,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

// ══════════════════════════════════════════════════════════════════════════════
// REWARDS
// ══════════════════════════════════════════════════════════════════════════════

// handleComplete handles POST /api/v1/profiles/{profile}/modules/{module}/categories/{category}/complete.
// An unknown module is not an error: it produces the no-completion outcome.
func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	profileID, ok := s.profileParam(w, r)
	if !ok {
		return
	}
	categoryID, ok := intParam(w, r, "category")
	if !ok {
		return
	}

	var req CompleteRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	date, ok := s.dateField(w, r, req.Date)
	if !ok {
		return
	}

	slot := progression.NoSlot
	if req.Slot != nil {
		slot = *req.Slot
	}

	// Module(0) is outside the configured set and rejected by the engine.
	module, _ := shared.ParseModule(r.PathValue("module"))

	cmd := command.CompleteTaskCommand{
		ProfileID:     profileID,
		Module:        module,
		CategoryID:    categoryID,
		Slot:          slot,
		Weight:        req.Weight,
		Date:          date,
		Data:          req.Data,
		CorrelationID: getRequestID(r.Context()),
	}

	outcome, err := retry.DoWithData(r.Context(), s.retrier, func(ctx context.Context) (progression.RewardOutcome, error) {
		return s.deps.CompleteTask.Handle(ctx, cmd)
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, outcome)
}

// handleCheckIn handles POST /api/v1/profiles/{profile}/modules/{module}/checkin.
func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	profileID, ok := s.profileParam(w, r)
	if !ok {
		return
	}
	module, ok := s.moduleParam(w, r)
	if !ok {
		return
	}

	var req CheckInRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	date, ok := s.dateField(w, r, req.Date)
	if !ok {
		return
	}

	cmd := command.CheckInCommand{
		ProfileID:     profileID,
		Module:        module,
		Date:          date,
		CorrelationID: getRequestID(r.Context()),
	}

	outcome, err := retry.DoWithData(r.Context(), s.retrier, func(ctx context.Context) (progression.RewardOutcome, error) {
		return s.deps.CheckIn.Handle(ctx, cmd)
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, outcome)
}

// ══════════════════════════════════════════════════════════════════════════════
// SLOTS
// ══════════════════════════════════════════════════════════════════════════════

// handleAllocateSlot handles PUT .../categories/{category}/slots/{slot}.
func (s *Server) handleAllocateSlot(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.slotRef(w, r, true)
	if !ok {
		return
	}
	var req BoundsRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	slot, err := retry.DoWithData(r.Context(), s.retrier, func(ctx context.Context) (progression.Slot, error) {
		return s.deps.Slots.Allocate(ctx, command.AllocateSlotCommand{SlotRef: ref, Bounds: req.Bounds})
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, query.SlotDTO{Index: slot.Index, Allocated: slot.Allocated, Completed: slot.Completed, Bounds: req.Bounds})
}

// handleReleaseSlot handles DELETE .../categories/{category}/slots/{slot}.
func (s *Server) handleReleaseSlot(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.slotRef(w, r, true)
	if !ok {
		return
	}

	slot, err := retry.DoWithData(r.Context(), s.retrier, func(ctx context.Context) (progression.Slot, error) {
		return s.deps.Slots.Release(ctx, command.ReleaseSlotCommand{SlotRef: ref})
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, query.SlotDTO{Index: slot.Index, Allocated: slot.Allocated, Completed: slot.Completed})
}

// handleSetBounds handles PUT .../categories/{category}/bounds, the bounds of
// a non-slotted category.
func (s *Server) handleSetBounds(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.slotRef(w, r, false)
	if !ok {
		return
	}
	var req BoundsRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	err := s.retrier.Do(r.Context(), func(ctx context.Context) error {
		return s.deps.Slots.SetBounds(ctx, command.SetBoundsCommand{SlotRef: ref, Bounds: req.Bounds})
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"bounds": req.Bounds})
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetProfileProgress handles GET /api/v1/profiles/{profile}/progress.
// ?fresh=true bypasses the summary cache.
func (s *Server) handleGetProfileProgress(w http.ResponseWriter, r *http.Request) {
	profileID, ok := s.profileParam(w, r)
	if !ok {
		return
	}
	fresh, _ := strconv.ParseBool(r.URL.Query().Get("fresh"))

	summary, err := s.deps.ProfileProgress.Handle(r.Context(), query.GetProfileProgressQuery{
		ProfileID: profileID,
		SkipCache: fresh,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, summary)
}

// handleGetCategoryProgress handles GET .../modules/{module}/categories/{category}.
func (s *Server) handleGetCategoryProgress(w http.ResponseWriter, r *http.Request) {
	profileID, ok := s.profileParam(w, r)
	if !ok {
		return
	}
	module, ok := s.moduleParam(w, r)
	if !ok {
		return
	}
	categoryID, ok := intParam(w, r, "category")
	if !ok {
		return
	}

	dto, err := s.deps.CategoryProgress.Handle(r.Context(), query.GetCategoryProgressQuery{
		ProfileID:  profileID,
		Module:     module,
		CategoryID: categoryID,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

// ══════════════════════════════════════════════════════════════════════════════
// PARAMETER HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) profileParam(w http.ResponseWriter, r *http.Request) (shared.ProfileID, bool) {
	id, err := shared.NewProfileID(r.PathValue("profile"))
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_profile", "profile must be a UUID")
		return "", false
	}
	return id, true
}

func (s *Server) moduleParam(w http.ResponseWriter, r *http.Request) (shared.Module, bool) {
	module, err := shared.ParseModule(r.PathValue("module"))
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_module", err.Error())
		return 0, false
	}
	return module, true
}

func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(r.PathValue(name))
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_"+name, name+" must be an integer")
		return 0, false
	}
	return v, true
}

// slotRef reads the slot address. Without a slot segment the reference points
// at the unslotted bounds of the category.
func (s *Server) slotRef(w http.ResponseWriter, r *http.Request, withSlot bool) (command.SlotRef, bool) {
	var ref command.SlotRef
	var ok bool

	if ref.ProfileID, ok = s.profileParam(w, r); !ok {
		return ref, false
	}
	if ref.Module, ok = s.moduleParam(w, r); !ok {
		return ref, false
	}
	if ref.CategoryID, ok = intParam(w, r, "category"); !ok {
		return ref, false
	}

	ref.Slot = progression.UnslottedBoundsKey
	if withSlot {
		if ref.Slot, ok = intParam(w, r, "slot"); !ok {
			return ref, false
		}
	}
	return ref, true
}

// decodeBody decodes an optional JSON body into dst.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil {
		return true
	}
	body := http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return false
	}
	return true
}

// dateField parses an optional task date. Empty means now.
func (s *Server) dateField(w http.ResponseWriter, r *http.Request, value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, true
	}
	t, err := s.deps.Calendar.ParseDate(value)
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD or RFC 3339")
		return time.Time{}, false
	}
	return t, true
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeDomainError maps an application error to a status code.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())

	switch {
	case errors.Is(err, progression.ErrSlotCompleted):
		writeJSONError(w, r, http.StatusConflict, "slot_completed", err.Error())
	case shared.IsValidation(err):
		writeJSONError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
	case shared.IsNotFound(err):
		writeJSONError(w, r, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, progression.ErrScoringFault):
		log.Error("scoring fault", logger.Err(err))
		writeJSONError(w, r, http.StatusInternalServerError, "scoring_fault", "the category scoring function failed")
	case shared.IsConfiguration(err):
		log.Error("configuration fault", logger.Err(err))
		writeJSONError(w, r, http.StatusInternalServerError, "configuration_fault", "the category configuration is invalid")
	case errors.Is(err, shared.ErrConcurrentModification):
		writeJSONError(w, r, http.StatusConflict, "conflict", "concurrent update, retry the request")
	case shared.IsRetryable(err), errors.Is(err, context.DeadlineExceeded):
		writeJSONError(w, r, http.StatusServiceUnavailable, "unavailable", "storage is unavailable")
	default:
		log.Error("request failed", logger.Err(err))
		writeJSONError(w, r, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
