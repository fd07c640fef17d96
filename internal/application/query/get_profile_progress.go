// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"time"

	"github.com/homequest/homequest/internal/domain/profile"
	"github.com/homequest/homequest/internal/domain/shared"
	"github.com/homequest/homequest/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROFILE PROGRESS QUERY
// Wallet, total experience, rank and per-module accumulators of a profile.
// ══════════════════════════════════════════════════════════════════════════════

// GetProfileProgressQuery selects the profile.
type GetProfileProgressQuery struct {
	ProfileID shared.ProfileID

	// SkipCache forces a read from storage.
	SkipCache bool
}

// Validate validates the query.
func (q GetProfileProgressQuery) Validate() error {
	if !q.ProfileID.IsValid() {
		return shared.ErrInvalidProfileID
	}
	return nil
}

// SummaryCache caches profile summaries. Get returns nil, nil on a miss.
type SummaryCache interface {
	Get(ctx context.Context, profileID shared.ProfileID) (*profile.Summary, error)
	Set(ctx context.Context, summary *profile.Summary, ttl time.Duration) error
	Invalidate(ctx context.Context, profileID shared.ProfileID) error
}

// GetProfileProgressHandler handles GetProfileProgressQuery.
type GetProfileProgressHandler struct {
	reader   profile.Reader
	cache    SummaryCache
	cacheTTL time.Duration
	logger   *logger.Logger
}

// NewGetProfileProgressHandler creates the handler. cache may be nil.
func NewGetProfileProgressHandler(reader profile.Reader, cache SummaryCache, cacheTTL time.Duration, log *logger.Logger) *GetProfileProgressHandler {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	if log == nil {
		log = logger.Nop()
	}
	return &GetProfileProgressHandler{
		reader:   reader,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   log.With(logger.Component("profile_progress")),
	}
}

// Handle executes the query. Cache failures degrade to a storage read.
func (h *GetProfileProgressHandler) Handle(ctx context.Context, q GetProfileProgressQuery) (*profile.Summary, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	if h.cache != nil && !q.SkipCache {
		cached, err := h.cache.Get(ctx, q.ProfileID)
		if err != nil {
			h.logger.Warn("summary cache read failed", logger.ProfileID(q.ProfileID.String()), logger.Err(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	wallet, err := h.reader.Wallet(ctx, q.ProfileID)
	if err != nil {
		return nil, err
	}
	modules, err := h.reader.ListModules(ctx, q.ProfileID)
	if err != nil {
		return nil, err
	}
	summary := profile.NewSummary(q.ProfileID, wallet, modules)

	if h.cache != nil {
		if err := h.cache.Set(ctx, summary, h.cacheTTL); err != nil {
			h.logger.Warn("summary cache write failed", logger.ProfileID(q.ProfileID.String()), logger.Err(err))
		}
	}
	return summary, nil
}
