package ratelimit

import (
	"fmt"
	"time"
)

// CategoryConfig describes the window for a single category.
type CategoryConfig struct {
	// MaxRequests is the maximum number of operations admitted inside Window.
	MaxRequests int

	// Window is the sliding window duration.
	Window time.Duration
}

// Validate checks that the category configuration is usable.
func (c CategoryConfig) Validate() error {
	if c.MaxRequests <= 0 {
		return fmt.Errorf("max requests must be positive, got %d", c.MaxRequests)
	}
	if c.Window <= 0 {
		return fmt.Errorf("window must be positive, got %v", c.Window)
	}
	return nil
}

// Config holds the per-category windows for the delivery pipeline.
// Categories are independent: the feed query window never borrows
// capacity from the message send window.
type Config struct {
	FeedQuery       CategoryConfig
	RecipientLookup CategoryConfig
	MessageSend     CategoryConfig
	PreviewFetch    CategoryConfig
	StoreRead       CategoryConfig
}

// DefaultConfig returns the default per-category windows.
//
// The message-send and recipient-lookup limits track the delivery channel's
// documented per-minute budgets with headroom; the feed-query limit keeps
// the harvester polite toward the content source.
func DefaultConfig() Config {
	return Config{
		FeedQuery:       CategoryConfig{MaxRequests: 10, Window: time.Minute},
		RecipientLookup: CategoryConfig{MaxRequests: 30, Window: time.Minute},
		MessageSend:     CategoryConfig{MaxRequests: 25, Window: time.Minute},
		PreviewFetch:    CategoryConfig{MaxRequests: 20, Window: time.Minute},
		StoreRead:       CategoryConfig{MaxRequests: 60, Window: time.Minute},
	}
}

// Validate checks every category configuration.
func (c Config) Validate() error {
	for cat, cc := range c.categories() {
		if err := cc.Validate(); err != nil {
			return fmt.Errorf("category %s: %w", cat, err)
		}
	}
	return nil
}

// ForCategory returns the configuration for the given category.
// Unknown categories fall back to a deliberately conservative window
// so a miswired caller slows down instead of flooding a dependency.
func (c Config) ForCategory(cat Category) CategoryConfig {
	if cc, ok := c.categories()[cat]; ok {
		return cc
	}
	return CategoryConfig{MaxRequests: 1, Window: time.Minute}
}

func (c Config) categories() map[Category]CategoryConfig {
	return map[Category]CategoryConfig{
		CategoryFeedQuery:       c.FeedQuery,
		CategoryRecipientLookup: c.RecipientLookup,
		CategoryMessageSend:     c.MessageSend,
		CategoryPreviewFetch:    c.PreviewFetch,
		CategoryStoreRead:       c.StoreRead,
	}
}
