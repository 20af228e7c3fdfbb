package engine

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// retryPolicy bounds one retryable external call: up to maxAttempts
// tries, each under its own attempt timeout, with exponential backoff
// between tries (baseDelay * 2^(attempt-1)). A timed-out attempt
// counts the same as an explicit error.
type retryPolicy struct {
	maxAttempts    int
	baseDelay      time.Duration
	attemptTimeout time.Duration
}

func (p retryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.baseDelay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = 5 * time.Minute
	return b
}

// do runs op until it succeeds, attempts are exhausted, or ctx is
// cancelled. The last attempt's error is returned on exhaustion.
func (p retryPolicy) do(ctx context.Context, op func(ctx context.Context) error) error {
	b := p.backOff()

	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, p.attemptTimeout)
		lastErr = op(attemptCtx)
		cancel()

		if lastErr == nil {
			return nil
		}
		if attempt == p.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.NextBackOff()):
		}
	}
	return lastErr
}
