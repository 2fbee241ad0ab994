// Package deliver implements the delivery pipeline: fetch, deduplicate,
// filter by subscriber, and rate-limited delivery, wrapped in retry with
// backoff, circuit breakers, and response caching.
//
// The package owns all mutable pipeline state (dedup set, caches, limiter
// windows) through an explicitly constructed Service with a controlled
// lifecycle; collaborators receive it by injection, never as globals.
package deliver

import (
	"context"

	"feedrelay/internal/domain/entity"
)

// SubscriptionStore lists and updates per-recipient delivery configuration.
// An empty store is a valid result, distinct from a store failure.
type SubscriptionStore interface {
	ListAll(ctx context.Context) (map[string]entity.Subscriber, error)
}

// ContentSource produces the normalized item list for one poll.
//
// Implementations may return fewer than limit items and must skip malformed
// entries rather than failing the whole fetch. FiltersServerSide decides
// the scheduler's fetch strategy: true fetches each keyword group
// independently, false shares a single unfiltered fetch across all groups.
type ContentSource interface {
	Fetch(ctx context.Context, limit int, queryTerms []string) ([]entity.Item, error)
	FiltersServerSide() bool
}

// DeliveryChannel sends messages to recipients.
//
// ResolveRecipient turns an opaque recipient ID into a delivery handle;
// a missing recipient is reported as channel.ErrRecipientNotFound, distinct
// from transport failures. Send delivers one message to a resolved handle.
type DeliveryChannel interface {
	ResolveRecipient(ctx context.Context, recipientID string) (string, error)
	Send(ctx context.Context, handle, title, body, imageURL string) error
}

// LinkPreview is the optional page metadata attached to a delivered item.
type LinkPreview struct {
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

// PreviewFetcher extracts link preview metadata from an item's page.
type PreviewFetcher interface {
	Fetch(ctx context.Context, pageURL string) (LinkPreview, error)
}
