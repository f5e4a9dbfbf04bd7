package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Backoff computes the pause before the next attempt. attempt is zero-based:
// Delay(0) is the wait after the first failure.
type Backoff interface {
	Delay(attempt int) time.Duration
}

// FixedBackoff waits the same duration between every attempt
type FixedBackoff time.Duration

// Delay implements Backoff
func (f FixedBackoff) Delay(int) time.Duration {
	return time.Duration(f)
}

// ExponentialBackoff grows the wait by Multiplier per attempt, capped at Max
type ExponentialBackoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// Delay implements Backoff
func (e ExponentialBackoff) Delay(attempt int) time.Duration {
	multiplier := e.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	return CalculateBackoff(attempt, e.Initial, e.Max, multiplier)
}

// RetryConfig holds configuration for retry logic
type RetryConfig struct {
	MaxAttempts int              // Maximum number of attempts, including the first
	Backoff     Backoff          // Pause between attempts
	IsRetryable IsRetryableError // nil treats every error as retryable
	OnRetry     func(attempt int, err error, wait time.Duration)
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 3,
		Backoff: ExponentialBackoff{
			Initial:    100 * time.Millisecond,
			Max:        5 * time.Second,
			Multiplier: 2.0,
		},
	}
}

// FixedDelayConfig retries up to attempts times with a constant pause
func FixedDelayConfig(attempts int, delay time.Duration) *RetryConfig {
	return &RetryConfig{
		MaxAttempts: attempts,
		Backoff:     FixedBackoff(delay),
	}
}

// RetryableFunc is a function that can be retried. attempt is zero-based.
type RetryableFunc func(ctx context.Context, attempt int) error

// IsRetryableError checks if an error is retryable
type IsRetryableError func(error) bool

// ExhaustedError is returned when every attempt failed with a retryable error
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Retry executes fn until it succeeds, returns a non-retryable error, the
// attempts run out or ctx is done.
func Retry(ctx context.Context, fn RetryableFunc, config *RetryConfig) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	attempts := config.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if config.IsRetryable != nil && !config.IsRetryable(err) {
			return err
		}

		// Don't sleep after the last attempt
		if attempt == attempts-1 {
			break
		}

		var wait time.Duration
		if config.Backoff != nil {
			wait = config.Backoff.Delay(attempt)
		}
		var re *RetryableError
		if errors.As(err, &re) && re.After > 0 {
			wait = re.After
		}
		if config.OnRetry != nil {
			config.OnRetry(attempt, err, wait)
		}
		if err := Sleep(ctx, wait); err != nil {
			return err
		}
	}

	return &ExhaustedError{Attempts: attempts, Err: lastErr}
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// CalculateBackoff calculates the backoff duration for a given attempt
func CalculateBackoff(attempt int, initialBackoff time.Duration, maxBackoff time.Duration, multiplier float64) time.Duration {
	backoff := time.Duration(float64(initialBackoff) * math.Pow(multiplier, float64(attempt)))
	if maxBackoff > 0 && (backoff > maxBackoff || backoff < 0) {
		return maxBackoff
	}
	return backoff
}

// IsRetryableNetworkError checks if an error is a retryable network error
func IsRetryableNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if IsRetryable(err) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, marker := range []string{
		// Connection errors
		"connection refused",
		"connection reset",
		"connection closed",
		"network is unreachable",
		"no route to host",
		"unexpected eof",
		// Timeout errors
		"deadline exceeded",
		"timeout",
		// Resource exhaustion (may be temporary)
		"too many requests",
		"rate limit",
	} {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}

// RetryableError wraps an error to indicate it's retryable. A positive After
// replaces the configured backoff for the following pause.
type RetryableError struct {
	Err   error
	After time.Duration
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// RetryAfter marks err retryable after a fixed pause
func RetryAfter(err error, d time.Duration) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err, After: d}
}

// IsRetryable checks if an error is a RetryableError
func IsRetryable(err error) bool {
	var retryableErr *RetryableError
	return errors.As(err, &retryableErr)
}
