package broker

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryRuleBackoffDoublesAndCaps(t *testing.T) {
	rule := RetryRule{BackoffBase: 100 * time.Millisecond, BackoffMax: 500 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, rule.Backoff(0))
	assert.Equal(t, 200*time.Millisecond, rule.Backoff(1))
	assert.Equal(t, 400*time.Millisecond, rule.Backoff(2))
	assert.Equal(t, 500*time.Millisecond, rule.Backoff(3))
	assert.Equal(t, 500*time.Millisecond, rule.Backoff(10))
}

func TestRetryRuleBackoffNoMax(t *testing.T) {
	rule := RetryRule{BackoffBase: time.Millisecond}
	assert.Equal(t, 8*time.Millisecond, rule.Backoff(3))
}

func TestRetryDoSucceedsAfterTransientFailures(t *testing.T) {
	policy := RetryPolicy{
		KindNetwork: {Retryable: true, MaxAttempts: 3, BackoffBase: time.Millisecond, BackoffMax: time.Millisecond},
	}
	calls := 0
	err := policy.Do(context.Background(), "fetch ticker", func() error {
		calls++
		if calls < 3 {
			return newError(KindNetwork, "fetch ticker", stderrors.New("reset by peer"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryDoStopsAtMaxAttempts(t *testing.T) {
	policy := RetryPolicy{
		KindRateLimit: {Retryable: true, MaxAttempts: 3, BackoffBase: time.Millisecond, BackoffMax: time.Millisecond},
	}
	calls := 0
	failure := newError(KindRateLimit, "create order", stderrors.New("429"))
	err := policy.Do(context.Background(), "create order", func() error {
		calls++
		return failure
	})
	require.Error(t, err)
	assert.Equal(t, KindRateLimit, Classify(err))
	assert.Equal(t, 3, calls)
}

func TestRetryDoFailsFastOnNonRetryableKind(t *testing.T) {
	policy := DefaultRetryPolicy()
	calls := 0
	err := policy.Do(context.Background(), "fetch balance", func() error {
		calls++
		return newError(KindAuth, "fetch balance", stderrors.New("invalid key"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryDoFailsFastOnUnlistedKind(t *testing.T) {
	policy := RetryPolicy{}
	calls := 0
	err := policy.Do(context.Background(), "cancel order", func() error {
		calls++
		return newError(KindNetwork, "cancel order", stderrors.New("reset"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryDoRespectsContext(t *testing.T) {
	policy := RetryPolicy{
		KindNetwork: {Retryable: true, MaxAttempts: 5, BackoffBase: time.Hour, BackoffMax: time.Hour},
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := policy.Do(ctx, "fetch ticker", func() error {
		return newError(KindNetwork, "fetch ticker", stderrors.New("timeout"))
	})
	assert.ErrorIs(t, err, context.Canceled)
}
