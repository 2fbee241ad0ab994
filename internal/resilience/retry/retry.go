// Package retry provides retry logic with exponential backoff and jitter.
// It helps handle transient failures gracefully by automatically retrying
// failed operations, while aborting immediately on permanent ones.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"syscall"
	"time"
)

// Config holds the configuration for the backoff policy and retry loop.
type Config struct {
	// MaxAttempts is the total number of attempts (first call included).
	MaxAttempts int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the exponential growth of the delay.
	MaxDelay time.Duration

	// Rand supplies the jitter randomness. A nil Rand uses the shared
	// global source; tests inject a seeded source for determinism.
	Rand *rand.Rand
}

// DefaultConfig returns a default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// FeedQueryConfig returns configuration for feed-source queries.
// Aggressive retry for transient network issues.
func FeedQueryConfig() Config {
	return Config{
		MaxAttempts: 5,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// DeliveryConfig returns configuration for delivery-channel calls
// (recipient lookup and message send).
func DeliveryConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    10 * time.Second,
	}
}

// StoreConfig returns configuration for subscription-store operations.
// Fast retry for transient connection issues.
func StoreConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    1 * time.Second,
	}
}

// Delay returns the backoff delay for the given zero-based attempt:
// min(base * 2^attempt, cap) plus additive jitter sampled uniformly
// from [0.1, 0.5] of the capped delay.
func (c Config) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := c.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= c.MaxDelay {
			delay = c.MaxDelay
			break
		}
	}
	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}

	return delay + c.jitter(delay)
}

// jitter samples additive jitter in [0.1, 0.5] of the delay. Spreading
// retries prevents a thundering herd against a recovering dependency.
func (c Config) jitter(delay time.Duration) time.Duration {
	f := rand.Float64
	if c.Rand != nil {
		f = c.Rand.Float64
	}
	// #nosec G404 -- cryptographic randomness is not required for jitter.
	fraction := 0.1 + 0.4*f()
	return time.Duration(fraction * float64(delay))
}

// WithBackoff executes the given function with retry and exponential backoff.
// It returns nil once the function succeeds, the error unchanged when it is
// classified as permanent, or the last error after all attempts fail.
func WithBackoff(ctx context.Context, cfg Config, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		lastErr = fn()

		if lastErr == nil {
			if attempt > 0 {
				slog.Info("operation succeeded after retry",
					slog.Int("attempt", attempt+1))
			}
			return nil
		}

		if !IsRetryable(lastErr) {
			slog.Warn("non-retryable error, aborting",
				slog.Int("attempt", attempt+1),
				slog.Any("error", lastErr))
			return lastErr
		}

		if attempt == cfg.MaxAttempts-1 {
			break
		}

		delay := cfg.Delay(attempt)
		// A dependency that told us when to come back wins over the policy.
		if ra := retryAfter(lastErr); ra > delay {
			delay = ra
		}

		slog.Warn("operation failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", cfg.MaxAttempts),
			slog.Duration("delay", delay),
			slog.Any("error", lastErr))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		}
	}

	return fmt.Errorf("max retry attempts (%d) exceeded: %w", cfg.MaxAttempts, lastErr)
}

// transienter is implemented by error types that carry their own
// transient-versus-permanent classification.
type transienter interface {
	Transient() bool
}

// retryAfterer is implemented by error types that carry a server-provided
// retry delay (e.g. HTTP 429 responses).
type retryAfterer interface {
	RetryAfterDelay() time.Duration
}

// retryAfter extracts a server-provided retry delay from err, or zero.
func retryAfter(err error) time.Duration {
	var ra retryAfterer
	if errors.As(err, &ra) {
		return ra.RetryAfterDelay()
	}
	return 0
}

// IsRetryable determines if an error is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not retryable
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Errors that classify themselves
	var tr transienter
	if errors.As(err, &tr) {
		return tr.Transient()
	}

	// Network errors (timeout)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Syscall errors
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	// HTTP status codes
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode >= 500 && httpErr.StatusCode < 600 {
			return true
		}
		if httpErr.StatusCode == http.StatusTooManyRequests {
			return true
		}
		if httpErr.StatusCode == http.StatusRequestTimeout {
			return true
		}
	}

	return false
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}
