package cache

import "time"

// Cache categories used by the delivery pipeline.
const (
	// CategorySubscribers caches the subscription store listing.
	// Volatile: subscribers change their keywords between cycles.
	CategorySubscribers = "subscribers"

	// CategoryRecipientHandle caches resolved delivery-channel handles.
	// Near-static: a recipient's DM channel does not move.
	CategoryRecipientHandle = "recipient-handle"

	// CategoryPreview caches link preview metadata per item URL.
	CategoryPreview = "preview"
)

// TTLConfig holds the per-category time-to-live values.
type TTLConfig struct {
	Subscribers     time.Duration
	RecipientHandle time.Duration
	Preview         time.Duration

	// Default applies to categories without a named field.
	Default time.Duration
}

// DefaultTTLConfig returns the documented default TTLs: short for volatile
// subscriber data, long for near-static reference data.
func DefaultTTLConfig() TTLConfig {
	return TTLConfig{
		Subscribers:     60 * time.Second,
		RecipientHandle: 6 * time.Hour,
		Preview:         12 * time.Hour,
		Default:         5 * time.Minute,
	}
}

// For returns the TTL for the given category.
func (c TTLConfig) For(category string) time.Duration {
	switch category {
	case CategorySubscribers:
		return c.Subscribers
	case CategoryRecipientHandle:
		return c.RecipientHandle
	case CategoryPreview:
		return c.Preview
	default:
		return c.Default
	}
}
