package redis

import (
	"context"
	"errors"
	"time"

	"github.com/homequest/homequest/internal/domain/profile"
	"github.com/homequest/homequest/internal/domain/shared"
	"github.com/homequest/homequest/pkg/circuitbreaker"
)

// ProfileSummaryKey returns the cache key of a profile summary.
func ProfileSummaryKey(profileID shared.ProfileID) string {
	return "profile:" + profileID.String() + ":summary"
}

// ProfileCache implements query.SummaryCache.
type ProfileCache struct {
	cache   *Cache
	breaker *circuitbreaker.Breaker
}

// NewProfileCache creates a new ProfileCache. breaker may be nil; when set,
// calls fail fast with circuitbreaker.ErrOpen while Redis is failing.
func NewProfileCache(cache *Cache, breaker *circuitbreaker.Breaker) *ProfileCache {
	return &ProfileCache{cache: cache, breaker: breaker}
}

// Get returns the cached summary, or nil on a miss.
func (p *ProfileCache) Get(ctx context.Context, profileID shared.ProfileID) (*profile.Summary, error) {
	var (
		s   profile.Summary
		hit bool
	)
	err := p.breaker.Execute(ctx, func(ctx context.Context) error {
		err := p.cache.Get(ctx, ProfileSummaryKey(profileID), &s)
		if errors.Is(err, ErrCacheMiss) {
			return nil
		}
		hit = err == nil
		return err
	})
	if err != nil || !hit {
		return nil, err
	}
	return &s, nil
}

// Set stores a summary.
func (p *ProfileCache) Set(ctx context.Context, s *profile.Summary, ttl time.Duration) error {
	if s == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = TTLProfileSummary
	}
	return p.breaker.Execute(ctx, func(ctx context.Context) error {
		return p.cache.Set(ctx, ProfileSummaryKey(s.ProfileID), s, ttl)
	})
}

// Invalidate drops the cached summary. It bypasses the breaker: a lost
// invalidation serves stale balances until the TTL expires.
func (p *ProfileCache) Invalidate(ctx context.Context, profileID shared.ProfileID) error {
	return p.cache.Delete(ctx, ProfileSummaryKey(profileID))
}
