// Package entity defines the core domain entities for the delivery pipeline.
// It contains the fundamental business objects such as Item and Subscriber,
// along with their normalization rules.
package entity

import "time"

// Item represents one normalized content entry harvested from the feed.
// Items are created by the feed fetcher once per poll cycle, never mutated,
// and discarded after one delivery pass.
type Item struct {
	// ID is the feed-unique stable identifier, used as the dedup key.
	ID string

	// Title is the display string, truncated at the delivery boundary.
	Title string

	// URL is the canonical external link. It may be empty for feed-internal
	// entries, in which case Discussion is substituted.
	URL string

	// Discussion is the synthesized feed-internal link for this item
	// (e.g. the comments page). Always populated by the adapters.
	Discussion string

	// Age is the presentation-only relative-age string ("2 hours ago").
	// It is never used for ordering.
	Age string

	// CreatedAt is the item's publication time when the adapter knows it,
	// otherwise the fetch time.
	CreatedAt time.Time
}

// Link returns the external URL, falling back to the feed-internal
// discussion link when the item has no external URL.
func (i *Item) Link() string {
	if i.URL != "" {
		return i.URL
	}
	return i.Discussion
}
