// Package cache provides a two-tier response cache consulted before
// expensive external calls.
//
// The fast tier is an in-process map with per-category TTLs. The optional
// durable tier survives restarts and additionally serves unexpiring stale
// reads: when a recompute fails, the last known value is returned in
// degraded mode instead of propagating the failure.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"feedrelay/internal/resilience/circuitbreaker"
	"feedrelay/pkg/ratelimit"
)

// ErrNotFound is returned by Get when neither tier holds a live entry.
var ErrNotFound = errors.New("cache entry not found")

// DurableTier is the persistent second tier of the cache.
//
// Implementations keep every written entry until overwritten; reads ignore
// or honor the TTL depending on the method. All methods must be safe for
// concurrent use.
type DurableTier interface {
	// Get returns the entry's value and insertion time, with ok=false
	// when the key has never been written.
	Get(ctx context.Context, category, key string) (value string, insertedAt time.Time, ok bool, err error)

	// GetStale returns the entry's value regardless of age. This is the
	// stale-shadow read used for degraded-mode fallback.
	GetStale(ctx context.Context, category, key string) (value string, ok bool, err error)

	// Set writes the entry, replacing any previous value.
	Set(ctx context.Context, category, key, value string, insertedAt time.Time) error

	// Delete removes the entry, shadow included. Used when a cached
	// payload turns out to be malformed.
	Delete(ctx context.Context, category, key string) error
}

type fastEntry struct {
	value      string
	insertedAt time.Time
}

// Cache is the two-tier response cache.
type Cache struct {
	ttl      TTLConfig
	clock    ratelimit.Clock
	limiter  *ratelimit.Limiter
	breakers map[ratelimit.Category]*circuitbreaker.CircuitBreaker
	durable  DurableTier // nil disables the second tier
	metrics  Metrics

	mu   sync.RWMutex
	fast map[string]fastEntry
}

// New creates a Cache.
//
// limiter and breakers guard GetOrCompute callbacks. Breakers are keyed by
// the compute's limiter category so unrelated dependencies never trip each
// other; a category without a breaker computes unguarded, and a nil map
// disables breakers entirely. durable may be nil for a process-local cache;
// nil clock and metrics default to system clock and no-op.
func New(ttl TTLConfig, limiter *ratelimit.Limiter, breakers map[ratelimit.Category]*circuitbreaker.CircuitBreaker, durable DurableTier, clock ratelimit.Clock, metrics Metrics) *Cache {
	if clock == nil {
		clock = &ratelimit.SystemClock{}
	}
	if metrics == nil {
		metrics = &NoOpMetrics{}
	}
	return &Cache{
		ttl:      ttl,
		clock:    clock,
		limiter:  limiter,
		breakers: breakers,
		durable:  durable,
		metrics:  metrics,
		fast:     make(map[string]fastEntry),
	}
}

// DefaultBreakers returns one circuit breaker per compute category the
// pipeline routes through the cache.
func DefaultBreakers() map[ratelimit.Category]*circuitbreaker.CircuitBreaker {
	return map[ratelimit.Category]*circuitbreaker.CircuitBreaker{
		ratelimit.CategoryRecipientLookup: circuitbreaker.New(circuitbreaker.RecipientLookupConfig()),
		ratelimit.CategoryPreviewFetch:    circuitbreaker.New(circuitbreaker.PreviewFetchConfig()),
		ratelimit.CategoryStoreRead:       circuitbreaker.New(circuitbreaker.StoreReadConfig()),
	}
}

func fastKey(category, key string) string {
	return category + "\x00" + key
}

// Get returns the cached value for (key, category).
//
// The fast tier is consulted first, then the durable tier, both under the
// category's TTL. ErrNotFound signals a miss; durable-tier failures are
// also reported as a miss so callers fall through to recompute.
func (c *Cache) Get(ctx context.Context, category, key string) (string, error) {
	now := c.clock.Now()
	ttl := c.ttl.For(category)

	c.mu.RLock()
	e, ok := c.fast[fastKey(category, key)]
	c.mu.RUnlock()

	if ok && now.Sub(e.insertedAt) < ttl {
		c.metrics.RecordHit(category, "fast")
		return e.value, nil
	}

	if c.durable != nil {
		value, insertedAt, found, err := c.durable.Get(ctx, category, key)
		if err != nil {
			slog.Warn("durable cache tier read failed",
				slog.String("category", category),
				slog.Any("error", err))
		} else if found && now.Sub(insertedAt) < ttl {
			// Promote so the next read stays in-process.
			c.mu.Lock()
			c.fast[fastKey(category, key)] = fastEntry{value: value, insertedAt: insertedAt}
			c.mu.Unlock()

			c.metrics.RecordHit(category, "durable")
			return value, nil
		}
	}

	c.metrics.RecordMiss(category)
	return "", ErrNotFound
}

// Set writes the value through to both tiers with the current timestamp.
// The durable tier keeps the written value as its stale shadow as well.
func (c *Cache) Set(ctx context.Context, category, key, value string) error {
	now := c.clock.Now()

	c.mu.Lock()
	c.fast[fastKey(category, key)] = fastEntry{value: value, insertedAt: now}
	c.mu.Unlock()

	if c.durable != nil {
		if err := c.durable.Set(ctx, category, key, value, now); err != nil {
			return fmt.Errorf("durable cache tier write: %w", err)
		}
	}
	return nil
}

// Delete removes the entry from both tiers, stale shadow included.
// It is the discard path for malformed cached payloads.
func (c *Cache) Delete(ctx context.Context, category, key string) error {
	c.mu.Lock()
	delete(c.fast, fastKey(category, key))
	c.mu.Unlock()

	if c.durable != nil {
		if err := c.durable.Delete(ctx, category, key); err != nil {
			return fmt.Errorf("durable cache tier delete: %w", err)
		}
	}
	return nil
}

// GetOrCompute returns the cached value, recomputing it on a miss.
//
// The compute callback runs behind a rate-limiter slot for limiterCategory
// and that category's circuit breaker. On compute failure a stale shadow
// from the durable tier is returned when one exists (degraded
// availability); otherwise the failure propagates.
func (c *Cache) GetOrCompute(ctx context.Context, category, key string, limiterCategory ratelimit.Category, compute func(ctx context.Context) (string, error)) (string, error) {
	if value, err := c.Get(ctx, category, key); err == nil {
		return value, nil
	}

	if c.limiter != nil {
		if err := c.limiter.AwaitSlot(ctx, limiterCategory); err != nil {
			return "", fmt.Errorf("await %s slot: %w", limiterCategory, err)
		}
	}

	var computed string
	run := func() (interface{}, error) { return compute(ctx) }
	result, err := c.breakerExecute(limiterCategory, run)
	if err == nil {
		computed = result.(string)
		if setErr := c.Set(ctx, category, key, computed); setErr != nil {
			// The computed value is still good; a durable write failure
			// only costs the next restart its warm cache.
			slog.Warn("cache write-through failed",
				slog.String("category", category),
				slog.Any("error", setErr))
		}
		return computed, nil
	}

	if c.durable != nil {
		stale, ok, staleErr := c.durable.GetStale(ctx, category, key)
		if staleErr != nil {
			slog.Warn("stale shadow read failed",
				slog.String("category", category),
				slog.Any("error", staleErr))
		} else if ok {
			c.metrics.RecordDegraded(category)
			slog.Warn("serving stale cache entry after compute failure",
				slog.String("category", category),
				slog.String("key", key),
				slog.Any("error", err))
			return stale, nil
		}
	}

	return "", err
}

func (c *Cache) breakerExecute(category ratelimit.Category, fn func() (interface{}, error)) (interface{}, error) {
	breaker, ok := c.breakers[category]
	if !ok {
		return fn()
	}
	return breaker.Execute(fn)
}

// CleanupExpired removes fast-tier entries past their category TTL and
// returns the number removed. Durable entries are never cleaned: they are
// the stale shadows.
func (c *Cache) CleanupExpired() int {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.fast {
		category, _, _ := splitFastKey(k)
		if now.Sub(e.insertedAt) >= c.ttl.For(category) {
			delete(c.fast, k)
			removed++
		}
	}

	if removed > 0 {
		slog.Debug("cleaned up expired cache entries",
			slog.Int("removed", removed),
			slog.Int("remaining", len(c.fast)))
	}
	return removed
}

func splitFastKey(k string) (category, key string, ok bool) {
	for i := 0; i < len(k); i++ {
		if k[i] == '\x00' {
			return k[:i], k[i+1:], true
		}
	}
	return k, "", false
}

// FastTierSize returns the number of live fast-tier entries. Used for
// monitoring.
func (c *Cache) FastTierSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.fast)
}
