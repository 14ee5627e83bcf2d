package errors

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"aictl/internal/logging"
)

// RetryConfig shapes the exponential backoff applied between attempts.
type RetryConfig struct {
	MaxAttempts  int           // retries after the first attempt
	BaseDelay    time.Duration // delay before the first retry
	MaxDelay     time.Duration // ceiling for the backoff
	JitterFactor float64       // 0.25 spreads each delay by ±25%
}

// DefaultRetryConfig suits calls against a local model server, where a
// transient failure is usually a model still loading or a busy queue.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		BaseDelay:    time.Second,
		MaxDelay:     30 * time.Second,
		JitterFactor: 0.25,
	}
}

// RetryableFunc is the unit of work handed to Retry.
type RetryableFunc func(ctx context.Context) error

// Retry runs fn until it succeeds, fails with a non-transient error, or the
// attempt budget runs out.
func Retry(ctx context.Context, config RetryConfig, fn RetryableFunc) error {
	return RetryWithLog(ctx, config, fn, nil)
}

// RetryWithLog is Retry with attempt logging routed to the given logger.
func RetryWithLog(ctx context.Context, config RetryConfig, fn RetryableFunc, logger logging.Logger) error {
	_, err := RetryWithResultAndLog(ctx, config, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, logger)
	return err
}

// RetryWithResult is Retry for work that produces a value.
func RetryWithResult[T any](ctx context.Context, config RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	return RetryWithResultAndLog(ctx, config, fn, nil)
}

// RetryWithResultAndLog is RetryWithResult with attempt logging routed to the
// given logger.
func RetryWithResultAndLog[T any](ctx context.Context, config RetryConfig, fn func(ctx context.Context) (T, error), logger logging.Logger) (T, error) {
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("retry")
	}

	var zero T
	var lastErr error
	total := config.MaxAttempts + 1

	for attempt := 1; attempt <= total; attempt++ {
		if ctx.Err() != nil {
			return zero, fmt.Errorf("context cancelled: %w", ctx.Err())
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("Call succeeded on attempt %d/%d", attempt, total)
			}
			return result, nil
		}
		lastErr = err

		if !IsTransient(err) {
			logger.Debug("Attempt %d failed with a non-transient error: %v", attempt, err)
			return zero, err
		}
		if attempt == total {
			break
		}

		delay := backoffDelay(attempt-1, config)
		logger.Debug("Attempt %d/%d failed (%v), retrying in %v", attempt, total, err, delay)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}
	}

	logger.Warn("Giving up after %d attempts: %v", total, lastErr)
	return zero, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// backoffDelay doubles the base delay per completed attempt, caps it at
// MaxDelay, and spreads it with jitter so concurrent callers do not hit a
// recovering server in lockstep.
func backoffDelay(attempt int, config RetryConfig) time.Duration {
	delay := config.BaseDelay << attempt
	if delay <= 0 || delay > config.MaxDelay {
		delay = config.MaxDelay
	}

	if config.JitterFactor > 0 {
		spread := (rand.Float64()*2 - 1) * config.JitterFactor * float64(delay)
		delay += time.Duration(spread)
		if delay < config.BaseDelay {
			delay = config.BaseDelay
		}
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}
	return delay
}

// ShouldRetry reports whether another attempt is worthwhile for err.
func ShouldRetry(err error, attempt int, maxAttempts int) bool {
	return err != nil && attempt < maxAttempts && IsTransient(err)
}
