package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errConflict = errors.New("version conflict")

func fastOpts(maxAttempts int, retryIf func(error) bool) []Option {
	return []Option{
		WithMaxAttempts(maxAttempts),
		WithInitialDelay(time.Microsecond),
		WithMaxDelay(time.Microsecond),
		WithJitter(0),
		WithRetryIf(retryIf),
	}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	}, fastOpts(3, nil)...)

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 4 {
			return errConflict
		}
		return nil
	}, fastOpts(10, func(err error) bool { return errors.Is(err, errConflict) })...)

	require.NoError(t, err)
	assert.Equal(t, 4, calls)
}

func TestDo_ExhaustsCeilingExactly(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errConflict
	}, fastOpts(7, func(err error) bool { return errors.Is(err, errConflict) })...)

	assert.ErrorIs(t, err, errConflict)
	assert.Equal(t, 7, calls)
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	terminal := errors.New("business rule violated")
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return terminal
	}, fastOpts(10, func(err error) bool { return errors.Is(err, errConflict) })...)

	assert.ErrorIs(t, err, terminal)
	assert.Equal(t, 1, calls)
}

func TestDo_PermanentWinsOverRetryIf(t *testing.T) {
	inner := errors.New("stop now")
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(inner)
	}, fastOpts(10, func(err error) bool { return true })...)

	assert.ErrorIs(t, err, inner)
	assert.Equal(t, 1, calls)
}

func TestDo_DefaultOnlyRetriesRetryable(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return Retryable(errConflict)
		}
		return nil
	}, WithMaxAttempts(3), WithInitialDelay(time.Microsecond), WithJitter(0))

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDo_ContextCancelStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return errConflict
	}, []Option{
		WithMaxAttempts(100),
		WithInitialDelay(time.Hour),
		WithRetryIf(func(err error) bool { return true }),
	}...)

	assert.ErrorIs(t, err, errConflict)
	assert.Equal(t, 1, calls)
}

func TestDoWithData(t *testing.T) {
	calls := 0
	got, err := DoWithData(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", errConflict
		}
		return "done", nil
	}, fastOpts(5, func(err error) bool { return errors.Is(err, errConflict) })...)

	require.NoError(t, err)
	assert.Equal(t, "done", got)
}

func TestConflictRetrier_Defaults(t *testing.T) {
	r := ConflictRetrier(0, func(err error) bool { return errors.Is(err, errConflict) })
	assert.Equal(t, 100, r.config.MaxAttempts)

	r = ConflictRetrier(25, nil)
	assert.Equal(t, 25, r.config.MaxAttempts)
}
