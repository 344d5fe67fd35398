package storage

import (
	"context"
	"errors"
	"io/fs"
	"math/rand/v2"
	"time"
)

// RetryPolicy controls how failed uploads are retried. The zero value
// makes a single attempt.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterFrac    float64 // ±fraction of delay to randomize (e.g. 0.3 = ±30%)
}

// DefaultRetryPolicy suits uploads to cloud object stores.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    3,
		InitialDelay:  2 * time.Second,
		MaxDelay:      time.Minute,
		BackoffFactor: 2.0,
		JitterFrac:    0.3,
	}
}

// retryable reports whether err may succeed on another attempt. A missing
// local file or a cancelled context will not.
func retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		return false
	}
	return true
}

// withRetry runs fn until it succeeds, returns a permanent error or the
// policy is exhausted. It returns the last error.
func withRetry(ctx context.Context, p RetryPolicy, label string, fn func(context.Context) error) error {
	delay := p.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			jittered := applyJitter(delay, p.JitterFrac)
			log.Debug("retrying", "task", label, "attempt", attempt, "delay", jittered)
			select {
			case <-ctx.Done():
				return errors.Join(lastErr, ctx.Err())
			case <-time.After(jittered):
			}

			if p.BackoffFactor > 1 {
				delay = time.Duration(float64(delay) * p.BackoffFactor)
			}
			if p.MaxDelay > 0 && delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		}

		lastErr = fn(ctx)
		if !retryable(lastErr) {
			return lastErr
		}
	}

	if p.MaxRetries > 0 {
		log.Warn("all retries exhausted", "task", label, "attempts", p.MaxRetries+1, "error", lastErr)
	}
	return lastErr
}

// applyJitter adds ±frac random jitter to a duration.
func applyJitter(d time.Duration, frac float64) time.Duration {
	if frac <= 0 {
		return d
	}
	jitter := float64(d) * frac * (2*rand.Float64() - 1)
	result := time.Duration(float64(d) + jitter)
	if result < 0 {
		return 0
	}
	return result
}
