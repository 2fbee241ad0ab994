// Package ratelimit provides sliding-window admission control for categories
// of operations against external dependencies.
//
// Each category tracks the timestamps of recently admitted operations.
// AwaitSlot blocks the caller until admitting one more operation would not
// exceed the category's limit inside its window. Operations are never
// rejected; callers are delayed until the oldest admitted timestamp leaves
// the window.
package ratelimit

import "time"

// Category identifies an independent rate-limit window. Two categories
// never share a window.
type Category string

// Categories used by the delivery pipeline.
const (
	CategoryFeedQuery       Category = "feed-query"
	CategoryRecipientLookup Category = "recipient-lookup"
	CategoryMessageSend     Category = "message-send"
	CategoryPreviewFetch    Category = "preview-fetch"
	CategoryStoreRead       Category = "store-read"
)

// Clock provides an abstraction for time operations to enable testing.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// SystemClock is a Clock implementation that uses the system time.
type SystemClock struct{}

// Now returns the current system time.
func (c *SystemClock) Now() time.Time {
	return time.Now()
}
