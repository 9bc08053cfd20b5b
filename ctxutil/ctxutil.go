// Copyright (c) 2023 BVK Chaitanya

package ctxutil

import (
	"context"
	"time"
)

// Sleep blocks the caller for given timeout duration. Returns early if the
// input context is canceled.
func Sleep(ctx context.Context, d time.Duration) {
	sctx, scancel := context.WithTimeout(ctx, d)
	<-sctx.Done()
	scancel()
}

// Retry runs the input function till it succeeds or till the input context is
// canceled. Returns nil if the input function is successful or last non-nil
// error from the function after the context has expired.
func Retry(ctx context.Context, interval time.Duration, f func() error) (err error) {
	for err = f(); err != nil && context.Cause(ctx) == nil; err = f() {
		Sleep(ctx, interval)
	}
	return
}

// Backoff returns the delay before the retry following the given zero-based
// attempt: base doubled per attempt, capped at max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	return d
}

// RetryBackoff runs the input function up to the given number of attempts
// with exponential backoff between attempts. Only the errors accepted by the
// retryable function are retried; others are returned immediately. Returns
// the last error if all attempts fail or the context is canceled.
func RetryBackoff(ctx context.Context, attempts int, base, max time.Duration, retryable func(error) bool, f func() error) (err error) {
	for i := 0; i < attempts; i++ {
		if err = f(); err == nil || !retryable(err) {
			return err
		}
		if i+1 == attempts {
			break
		}
		Sleep(ctx, Backoff(i, base, max))
		if context.Cause(ctx) != nil {
			break
		}
	}
	return err
}
