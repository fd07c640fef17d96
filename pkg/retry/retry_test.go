package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errConflict = errors.New("conflict")

func isConflict(err error) bool { return errors.Is(err, errConflict) }

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	r := New(WithMaxAttempts(3), WithInitialDelay(time.Millisecond), WithRetryIf(isConflict))

	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errConflict
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	r := New(WithMaxAttempts(5), WithInitialDelay(time.Millisecond), WithRetryIf(isConflict))

	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	var retried []int
	r := New(
		WithMaxAttempts(2),
		WithInitialDelay(time.Millisecond),
		WithRetryIf(isConflict),
		WithOnRetry(func(attempt int, _ error, _ time.Duration) { retried = append(retried, attempt) }),
	)

	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return errConflict
	})

	assert.ErrorIs(t, err, errConflict)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []int{1}, retried)
}

func TestDo_PermanentUnwraps(t *testing.T) {
	r := New(WithRetryIf(func(error) bool { return true }))
	err := r.Do(context.Background(), func(context.Context) error {
		return Permanent(errConflict)
	})
	assert.Equal(t, errConflict, err)
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := New().Do(ctx, func(context.Context) error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestDoWithData(t *testing.T) {
	calls := 0
	r := TransactionRetrier(3, isConflict)

	v, err := DoWithData(context.Background(), r, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errConflict
		}
		return 42, nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 42, v)
}
