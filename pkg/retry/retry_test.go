package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() *Config {
	return &Config{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	calls := 0
	wantErr := errors.New("persistent failure")
	err := Do(context.Background(), fastConfig(), func() error {
		calls++
		return wantErr
	})
	assert.Equal(t, wantErr, err)
	assert.Equal(t, 4, calls) // initial attempt + 3 retries
}

func TestDo_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{
		MaxRetries:   5,
		InitialDelay: time.Hour,
		MaxDelay:     time.Hour,
		Multiplier:   1.0,
	}

	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, cfg, func() error {
		calls++
		return errors.New("transient")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	got, err := DoWithResult(context.Background(), fastConfig(), func() (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

type typedErr struct{ retryable bool }

func (e *typedErr) Error() string     { return "typed" }
func (e *typedErr) IsRetryable() bool { return e.retryable }

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(errors.New("dial tcp: connection refused")))
	assert.True(t, IsRetryable(errors.New("HTTP 429 too many requests")))
	assert.False(t, IsRetryable(errors.New("invalid api key")))

	assert.True(t, IsRetryable(&typedErr{retryable: true}))
	assert.False(t, IsRetryable(&typedErr{retryable: false}))
}

func TestDoIfRetryable_StopsOnPermanentError(t *testing.T) {
	calls := 0
	err := DoIfRetryable(context.Background(), fastConfig(), func() error {
		calls++
		return &typedErr{retryable: false}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoIfRetryable_RetriesTransient(t *testing.T) {
	calls := 0
	err := DoIfRetryable(context.Background(), fastConfig(), func() error {
		calls++
		if calls < 2 {
			return &typedErr{retryable: true}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoWithResultIfRetryable_StopsOnPermanentError(t *testing.T) {
	calls := 0
	got, err := DoWithResultIfRetryable(context.Background(), fastConfig(), func() (string, error) {
		calls++
		return "partial", &typedErr{retryable: false}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "partial", got)
}

func TestDoWithResultIfRetryable_RetriesTransient(t *testing.T) {
	calls := 0
	got, err := DoWithResultIfRetryable(context.Background(), fastConfig(), func() (int, error) {
		calls++
		if calls < 3 {
			return 0, &typedErr{retryable: true}
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 42, got)
}

func TestExternalCallConfig_ThreeAttemptsFixedDelay(t *testing.T) {
	cfg := ExternalCallConfig()
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, cfg.InitialDelay, cfg.MaxDelay)
	assert.Equal(t, 1.0, cfg.Multiplier)
}
