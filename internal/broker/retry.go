package broker

import (
	"context"
	"time"

	"github.com/yanun0323/logs"
)

// RetryRule controls retry behavior for one failure kind.
type RetryRule struct {
	Retryable   bool
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// RetryPolicy maps failure kinds to rules. Keeping the policy declarative
// makes the retry behavior inspectable and testable without a network call.
type RetryPolicy map[Kind]RetryRule

// DefaultRetryPolicy retries transient kinds with bounded exponential
// backoff. Auth and Unknown are never retried: an invalid key or an
// unclassified failure must surface immediately.
func DefaultRetryPolicy() RetryPolicy {
	transient := RetryRule{Retryable: true, MaxAttempts: 4, BackoffBase: 500 * time.Millisecond, BackoffMax: 30 * time.Second}
	return RetryPolicy{
		KindRateLimit:    transient,
		KindNetwork:      transient,
		KindExchangeDown: transient,
		KindTimeSkew:     {Retryable: true, MaxAttempts: 2, BackoffBase: 500 * time.Millisecond, BackoffMax: 5 * time.Second},
		KindAuth:         {Retryable: false},
		KindUnknown:      {Retryable: false},
	}
}

// Backoff returns the wait before the given retry attempt (0-based):
// base * 2^attempt, capped at the rule's maximum.
func (r RetryRule) Backoff(attempt int) time.Duration {
	wait := r.BackoffBase
	for i := 0; i < attempt; i++ {
		wait *= 2
		if r.BackoffMax > 0 && wait >= r.BackoffMax {
			return r.BackoffMax
		}
	}
	return wait
}

// Do runs fn, retrying per the policy when the classified kind allows it.
// The sleep respects ctx cancellation; retries are always bounded.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		rule, ok := p[Classify(lastErr)]
		if !ok || !rule.Retryable || attempt >= rule.MaxAttempts-1 {
			return lastErr
		}
		wait := rule.Backoff(attempt)
		logs.Warnf("%s failed (attempt %d), retrying in %s: %+v", op, attempt+1, wait, lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
