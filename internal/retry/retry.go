// Package retry implements short, bounded retries for transient faults.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lookup-tracker/internal/logging"
)

// Config configures retry behavior
type Config struct {
	MaxAttempts int           // Maximum number of physical attempts
	StepDelay   time.Duration // Delay between attempts grows linearly: StepDelay * attempt
}

// DefaultConfig returns the retry configuration used for provider calls.
// Pattern: 3 attempts, 0.5s after the first failure, 1s after the second.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		StepDelay:   500 * time.Millisecond,
	}
}

// Result contains information about the retry operation
type Result struct {
	Attempts      int
	Success       bool
	TotalDuration time.Duration
	LastError     error
}

// Func is a function that can be retried
type Func func(ctx context.Context, attempt int) error

// Permanent marks err as not worth retrying; Do returns immediately when fn
// yields one.
func Permanent(err error) error {
	return &permanentError{err: err}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Do executes a function with linear-backoff retry logic
func Do(ctx context.Context, config *Config, fn Func) *Result {
	logger := logging.FromContext(ctx)
	startTime := time.Now()

	result := &Result{}

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		result.Attempts = attempt

		err := fn(ctx, attempt)
		if err == nil {
			result.Success = true
			result.TotalDuration = time.Since(startTime)

			if attempt > 1 {
				logger.WithFields(map[string]interface{}{
					"attempts":      attempt,
					"totalDuration": result.TotalDuration.String(),
				}).Info("Operation succeeded after retry")
			}

			return result
		}

		result.LastError = err

		var perm *permanentError
		if errors.As(err, &perm) {
			result.LastError = perm.err
			result.TotalDuration = time.Since(startTime)

			logger.WithFields(map[string]interface{}{
				"attempt": attempt,
				"error":   perm.err.Error(),
			}).Debug("Operation failed with a non-retryable error")

			return result
		}

		if attempt >= config.MaxAttempts {
			logger.WithFields(map[string]interface{}{
				"attempts": attempt,
				"error":    err.Error(),
			}).Warn("Operation failed after max retry attempts")
			break
		}

		delay := CalculateDelay(config, attempt)

		logger.WithFields(map[string]interface{}{
			"attempt":     attempt,
			"maxAttempts": config.MaxAttempts,
			"delay":       delay.String(),
			"error":       err.Error(),
		}).Debug("Operation failed, retrying")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(startTime)
			return result
		}
	}

	result.TotalDuration = time.Since(startTime)
	return result
}

// CalculateDelay returns the delay before the next attempt: StepDelay * attempt.
func CalculateDelay(config *Config, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return config.StepDelay * time.Duration(attempt)
}

// WithRetry runs fn with the default configuration and returns the final error.
func WithRetry(ctx context.Context, fn Func) error {
	result := Do(ctx, DefaultConfig(), fn)
	if !result.Success {
		return fmt.Errorf("operation failed after %d attempts: %w", result.Attempts, result.LastError)
	}
	return nil
}
