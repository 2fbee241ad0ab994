package deliver

import (
	"context"
	"log/slog"
	"time"

	"feedrelay/internal/domain/entity"
	"feedrelay/pkg/ratelimit"
)

// Fetcher calls the content-source adapter once per invocation, applies the
// recency cutoff window and the per-call item cap, and returns a normalized
// ordered list.
//
// A source failure returns an empty list, never an error: a failed fetch
// must not abort the delivery cycle for other subscribers.
type Fetcher struct {
	source  ContentSource
	limiter *ratelimit.Limiter
	clock   ratelimit.Clock
	limit   int
	cutoff  time.Duration
}

// NewFetcher creates a Fetcher. A nil clock defaults to the system clock.
func NewFetcher(source ContentSource, limiter *ratelimit.Limiter, clock ratelimit.Clock, limit int, cutoff time.Duration) *Fetcher {
	if clock == nil {
		clock = &ratelimit.SystemClock{}
	}
	return &Fetcher{
		source:  source,
		limiter: limiter,
		clock:   clock,
		limit:   limit,
		cutoff:  cutoff,
	}
}

// FiltersServerSide reports whether distinct keyword sets should be fetched
// independently (server-side filtering) or share one unfiltered fetch.
func (f *Fetcher) FiltersServerSide() bool {
	return f.source.FiltersServerSide()
}

// Fetch returns up to the configured cap of items inside the cutoff window.
func (f *Fetcher) Fetch(ctx context.Context, queryTerms []string) []entity.Item {
	if err := f.limiter.AwaitSlot(ctx, ratelimit.CategoryFeedQuery); err != nil {
		slog.Warn("feed query slot not acquired",
			slog.Any("error", err))
		return nil
	}

	items, err := f.source.Fetch(ctx, f.limit, queryTerms)
	if err != nil {
		slog.Warn("feed fetch failed, continuing cycle without items",
			slog.Any("error", err))
		return nil
	}

	oldest := f.clock.Now().Add(-f.cutoff)
	kept := make([]entity.Item, 0, len(items))
	for _, item := range items {
		if len(kept) >= f.limit {
			break
		}
		// Adapters that cannot date an item stamp it with the fetch
		// time, which always passes the window.
		if f.cutoff > 0 && !item.CreatedAt.IsZero() && item.CreatedAt.Before(oldest) {
			continue
		}
		kept = append(kept, item)
	}
	return kept
}
