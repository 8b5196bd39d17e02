package indexer

import (
	"context"
	"errors"
	"time"
)

const maxRetryDelay = 30 * time.Second

// retryPolicy retries RPC calls with exponential backoff. Context errors are never retried.
type retryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
}

func newRetryPolicy(maxRetries int, baseDelay time.Duration) retryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	return retryPolicy{maxRetries: maxRetries, baseDelay: baseDelay}
}

// do runs fn until it succeeds or the attempts are exhausted. onError sees every failed attempt.
func (p retryPolicy) do(ctx context.Context, fn func(context.Context) error, onError func(attempt int, err error)) error {
	delay := p.baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if onError != nil {
			onError(attempt, err)
		}
		if attempt >= p.maxRetries {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}
