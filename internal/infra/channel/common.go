// Package channel implements the delivery channel client: an authenticated
// Discord REST client consumed through "resolve recipient handle" and
// "send message" operations.
package channel

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrRecipientNotFound reports that the recipient ID does not resolve to a
// destination. Distinct from transport errors: the recipient is gone, not
// the channel.
var ErrRecipientNotFound = errors.New("recipient not found")

// RateLimitError represents a 429 response from the delivery channel.
// It is transient and carries the server-provided retry delay.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (retry after %v)", e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded (retry after %v)", e.RetryAfter)
}

// Transient reports that a rate-limited call is worth retrying.
func (e *RateLimitError) Transient() bool { return true }

// RetryAfterDelay returns the server-provided retry delay.
func (e *RateLimitError) RetryAfterDelay() time.Duration { return e.RetryAfter }

// ClientError represents a 4xx response other than 429.
// These are not retryable; 403 is a permanent recipient rejection.
type ClientError struct {
	StatusCode int
	Message    string
}

func (e *ClientError) Error() string {
	return e.Message
}

// Transient reports that 4xx responses are not worth retrying.
func (e *ClientError) Transient() bool { return false }

// ServerError represents a 5xx response. Retryable.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return e.Message
}

// Transient reports that 5xx responses are worth retrying.
func (e *ServerError) Transient() bool { return true }

// IsPermanentRejection reports whether the recipient has permanently
// rejected delivery (blocked the bot, DMs closed). Such a failure abandons
// the recipient's remaining sends for the cycle without retrying.
func IsPermanentRejection(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.StatusCode == http.StatusForbidden
	}
	return errors.Is(err, ErrRecipientNotFound)
}

// truncate shortens text to maxLength characters, appending suffix when a
// cut was made.
func truncate(text string, maxLength int, suffix string) string {
	if len(text) <= maxLength {
		return text
	}
	cut := maxLength - len(suffix)
	if cut < 0 {
		cut = 0
	}
	return text[:cut] + suffix
}
