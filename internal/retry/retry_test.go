package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DeafMist/tweet-triage/backend/internal/retry"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func fastConfig(attempts int) retry.Config {
	return retry.Config{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestDoSucceedsAfterRetry(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), fastConfig(3), "op", func() error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDoGivesUp(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), fastConfig(2), "op", func() error {
		calls++
		return errFlaky
	})
	require.ErrorIs(t, err, errFlaky)
	require.Equal(t, 2, calls)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("rejected")
	cfg := fastConfig(5)
	cfg.Retryable = func(err error) bool { return !errors.Is(err, fatal) }

	calls := 0
	err := retry.Do(context.Background(), cfg, "op", func() error {
		calls++
		return fatal
	})
	require.ErrorIs(t, err, fatal)
	require.Equal(t, 1, calls)
}

func TestDoHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := retry.Do(ctx, fastConfig(3), "op", func() error {
		calls++
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, calls)
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	got, err := retry.DoWithResult(context.Background(), fastConfig(3), "op", func() (int, error) {
		calls++
		if calls == 1 {
			return 0, errFlaky
		}
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, got)
}
