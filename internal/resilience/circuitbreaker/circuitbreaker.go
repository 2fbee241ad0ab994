// Package circuitbreaker provides circuit breakers for external service calls.
// It uses the github.com/sony/gobreaker library to stop calling a failing
// dependency until it appears to have recovered.
package circuitbreaker

import (
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// Config holds the configuration for a circuit breaker.
type Config struct {
	// Name is the circuit breaker name for logging and metrics
	Name string

	// FailureThreshold is the number of consecutive failures that opens
	// the circuit
	FailureThreshold uint32

	// Timeout is how long the circuit stays open before a half-open probe
	// is allowed through
	Timeout time.Duration
}

// DefaultConfig returns a default configuration for circuit breakers.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		Timeout:          60 * time.Second,
	}
}

// FeedQueryConfig returns configuration for the feed-source adapter.
// The feed tolerates a longer open period since a missed poll cycle is
// recovered by the next one.
func FeedQueryConfig() Config {
	return Config{
		Name:             "feed-query",
		FailureThreshold: 5,
		Timeout:          120 * time.Second,
	}
}

// RecipientLookupConfig returns configuration for recipient handle resolution.
func RecipientLookupConfig() Config {
	return Config{
		Name:             "recipient-lookup",
		FailureThreshold: 5,
		Timeout:          60 * time.Second,
	}
}

// MessageSendConfig returns configuration for message delivery.
func MessageSendConfig() Config {
	return Config{
		Name:             "message-send",
		FailureThreshold: 5,
		Timeout:          60 * time.Second,
	}
}

// PreviewFetchConfig returns configuration for link preview scraping.
// Preview targets are arbitrary external pages, so this breaker tolerates
// more consecutive failures before opening: a run of dead links must not
// cut off preview enrichment for healthy ones.
func PreviewFetchConfig() Config {
	return Config{
		Name:             "preview-fetch",
		FailureThreshold: 10,
		Timeout:          60 * time.Second,
	}
}

// StoreReadConfig returns configuration for subscription store reads.
func StoreReadConfig() Config {
	return Config{
		Name:             "store-read",
		FailureThreshold: 5,
		Timeout:          30 * time.Second,
	}
}

// CircuitBreaker wraps gobreaker.CircuitBreaker with consecutive-failure
// tripping and a single half-open probe.
//
// State machine:
//   - closed: operations pass through; a success resets the consecutive
//     failure count, reaching FailureThreshold opens the circuit.
//   - open: operations are rejected immediately with gobreaker.ErrOpenState,
//     without invoking the wrapped function, until Timeout elapses.
//   - half-open: exactly one probe is allowed through (MaxRequests is 1,
//     concurrent callers are rejected with ErrTooManyRequests). Probe
//     success closes the circuit; probe failure reopens it.
type CircuitBreaker struct {
	breaker *gobreaker.CircuitBreaker
	name    string
}

// New creates a new circuit breaker with the given configuration.
func New(cfg Config) *CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit breaker state changed",
				slog.String("circuit", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	}

	return &CircuitBreaker{
		breaker: gobreaker.NewCircuitBreaker(settings),
		name:    cfg.Name,
	}
}

// Execute runs the given function through the circuit breaker.
// While the circuit is open it returns gobreaker.ErrOpenState immediately.
// The wrapped function's error is re-signaled to the caller unchanged.
func (cb *CircuitBreaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	return cb.breaker.Execute(fn)
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() gobreaker.State {
	return cb.breaker.State()
}

// Name returns the name of the circuit breaker.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// IsOpen returns true if the circuit breaker is in the open state.
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.breaker.State() == gobreaker.StateOpen
}
