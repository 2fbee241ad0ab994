package deliver

import (
	"sync"

	"feedrelay/internal/domain/entity"
)

// Deduplicator tracks the item IDs already committed for delivery in this
// process lifetime. The set is owned exclusively by the scheduler and grows
// for the life of the process; there is no eviction, so its size is exposed
// for monitoring.
//
// Usage contract: compute Unseen before any delivery attempt, then
// MarkSeen only the items actually selected for sending. An item filtered
// out for every subscriber this cycle stays eligible for later cycles.
type Deduplicator struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewDeduplicator creates an empty Deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{seen: make(map[string]struct{})}
}

// Unseen returns the subset of items whose IDs have not been marked seen,
// preserving order.
func (d *Deduplicator) Unseen(items []entity.Item) []entity.Item {
	d.mu.Lock()
	defer d.mu.Unlock()

	unseen := make([]entity.Item, 0, len(items))
	for _, item := range items {
		if _, ok := d.seen[item.ID]; !ok {
			unseen = append(unseen, item)
		}
	}
	return unseen
}

// MarkSeen commits the items' IDs to the dedup set.
func (d *Deduplicator) MarkSeen(items []entity.Item) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, item := range items {
		d.seen[item.ID] = struct{}{}
	}
}

// Size returns the number of tracked IDs.
func (d *Deduplicator) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
