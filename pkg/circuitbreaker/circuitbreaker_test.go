package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errDown = errors.New("down")

func fail(context.Context) error { return errDown }
func pass(context.Context) error { return nil }

func TestBreaker_Lifecycle(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var transitions []string

	b := New("cache",
		WithFailureThreshold(2),
		WithCoolDown(time.Minute),
		WithOnStateChange(func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		}),
	)
	b.now = func() time.Time { return now }
	ctx := context.Background()

	assert.ErrorIs(t, b.Execute(ctx, fail), errDown)
	assert.Equal(t, StateClosed, b.State())
	assert.ErrorIs(t, b.Execute(ctx, fail), errDown)
	assert.Equal(t, StateOpen, b.State())

	calls := 0
	err := b.Execute(ctx, func(context.Context) error { calls++; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.Zero(t, calls)

	now = now.Add(time.Minute)
	assert.ErrorIs(t, b.Execute(ctx, fail), errDown, "failed half-open call reopens")
	assert.Equal(t, StateOpen, b.State())

	now = now.Add(time.Minute)
	assert.NoError(t, b.Execute(ctx, pass))
	assert.Equal(t, StateClosed, b.State())

	assert.Equal(t, []string{
		"closed->open",
		"open->half-open",
		"half-open->open",
		"open->half-open",
		"half-open->closed",
	}, transitions)
}

func TestCacheBreaker_ClosesAfterTwoSuccesses(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var last State
	b := CacheBreaker("redis", func(_ string, _, to State) { last = to })
	b.now = func() time.Time { return now }
	ctx := context.Background()

	for range 3 {
		_ = b.Execute(ctx, fail)
	}
	assert.Equal(t, StateOpen, b.State())

	now = now.Add(15 * time.Second)
	assert.NoError(t, b.Execute(ctx, pass))
	assert.Equal(t, StateHalfOpen, b.State())
	assert.NoError(t, b.Execute(ctx, pass))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, StateClosed, last)
	assert.Equal(t, "redis", b.Name())
}

func TestBreaker_IsFailure(t *testing.T) {
	b := New("cache", WithFailureThreshold(1), WithIsFailure(func(err error) bool {
		return !errors.Is(err, errDown)
	}))

	for range 3 {
		_ = b.Execute(context.Background(), fail)
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_Nil(t *testing.T) {
	var b *Breaker
	assert.ErrorIs(t, b.Execute(context.Background(), fail), errDown)
}
