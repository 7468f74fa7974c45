package infra

import (
	"context"
	"errors"
	"time"

	"metals_go/internal/domain"
)

const (
	defaultBaseDelay = 1 * time.Second
	maxDelay         = 60 * time.Second
)

// CalculateBackoff returns an exponential backoff delay for the given retry
// count, capped at maxDelay.
func CalculateBackoff(retryCount int) time.Duration {
	return BackoffDelay(defaultBaseDelay, retryCount)
}

// BackoffDelay returns base << retryCount, capped at maxDelay.
func BackoffDelay(base time.Duration, retryCount int) time.Duration {
	if base <= 0 {
		base = defaultBaseDelay
	}
	if retryCount < 0 {
		retryCount = 0
	}
	delay := base << uint(retryCount)
	if delay > maxDelay || delay <= 0 {
		return maxDelay
	}
	return delay
}

// Retry runs op up to attempts times, sleeping an exponential backoff starting
// at base between attempts. It stops early when ctx is done or when op returns
// a non-retriable error. op receives the 1-based attempt number.
func Retry(ctx context.Context, attempts int, base time.Duration, op func(attempt int) error) error {
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(BackoffDelay(base, i-1)):
			}
		}

		err := op(i + 1)
		if err == nil {
			return nil
		}
		lastErr = err

		var re domain.RetriableError
		if errors.As(err, &re) && !re.IsRetriable() {
			return err
		}
	}
	return lastErr
}
