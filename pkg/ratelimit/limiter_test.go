package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock for window arithmetic tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testCfg(max int, window time.Duration) Config {
	cfg := DefaultConfig()
	cfg.FeedQuery = CategoryConfig{MaxRequests: max, Window: window}
	return cfg
}

func TestAwaitSlot_AdmitsUpToLimitInstantly(t *testing.T) {
	limiter := New(testCfg(5, 30*time.Second), newFakeClock(), nil)

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := limiter.AwaitSlot(context.Background(), CategoryFeedQuery); err != nil {
			t.Fatalf("admission %d: unexpected error %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("first 5 admissions should be instant, took %v", elapsed)
	}

	if usage := limiter.WindowUsage(CategoryFeedQuery); usage != 5 {
		t.Errorf("expected window usage 5, got %d", usage)
	}
}

func TestAwaitSlot_BlocksUntilOldestExitsWindow(t *testing.T) {
	window := 200 * time.Millisecond
	limiter := New(testCfg(5, window), nil, nil)

	oldest := time.Now()
	for i := 0; i < 5; i++ {
		if err := limiter.AwaitSlot(context.Background(), CategoryFeedQuery); err != nil {
			t.Fatalf("admission %d: unexpected error %v", i, err)
		}
	}

	// The 6th call must block until at least oldest + window.
	if err := limiter.AwaitSlot(context.Background(), CategoryFeedQuery); err != nil {
		t.Fatalf("6th admission: unexpected error %v", err)
	}
	if admitted := time.Now(); admitted.Before(oldest.Add(window)) {
		t.Errorf("6th admission at %v, want >= %v", admitted, oldest.Add(window))
	}
}

func TestAwaitSlot_WindowFreesAfterAdvance(t *testing.T) {
	clock := newFakeClock()
	limiter := New(testCfg(2, time.Minute), clock, nil)

	ctx := context.Background()
	_ = limiter.AwaitSlot(ctx, CategoryFeedQuery)
	_ = limiter.AwaitSlot(ctx, CategoryFeedQuery)

	if usage := limiter.WindowUsage(CategoryFeedQuery); usage != 2 {
		t.Fatalf("expected full window, got %d", usage)
	}

	clock.Advance(61 * time.Second)

	if usage := limiter.WindowUsage(CategoryFeedQuery); usage != 0 {
		t.Errorf("expected empty window after advance, got %d", usage)
	}
	// Admission is instant again once the old timestamps left the window.
	done := make(chan struct{})
	go func() {
		_ = limiter.AwaitSlot(ctx, CategoryFeedQuery)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("admission after window advance should not block")
	}
}

func TestAwaitSlot_ContextCancellation(t *testing.T) {
	limiter := New(testCfg(1, time.Hour), nil, nil)

	ctx := context.Background()
	if err := limiter.AwaitSlot(ctx, CategoryFeedQuery); err != nil {
		t.Fatalf("first admission: unexpected error %v", err)
	}

	cancelCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	err := limiter.AwaitSlot(cancelCtx, CategoryFeedQuery)
	if err == nil {
		t.Fatal("expected context error for blocked admission, got nil")
	}
	if err != context.DeadlineExceeded {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}

func TestAwaitSlot_CategoriesAreIndependent(t *testing.T) {
	cfg := testCfg(1, time.Hour)
	cfg.MessageSend = CategoryConfig{MaxRequests: 1, Window: time.Hour}
	limiter := New(cfg, nil, nil)

	ctx := context.Background()
	if err := limiter.AwaitSlot(ctx, CategoryFeedQuery); err != nil {
		t.Fatalf("feed query admission failed: %v", err)
	}

	// A full feed-query window must not delay message sends.
	done := make(chan struct{})
	go func() {
		_ = limiter.AwaitSlot(ctx, CategoryMessageSend)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("message send admission blocked by feed query window")
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}

	bad := DefaultConfig()
	bad.MessageSend = CategoryConfig{MaxRequests: 0, Window: time.Minute}
	if err := bad.Validate(); err == nil {
		t.Error("expected validation error for zero max requests")
	}

	bad = DefaultConfig()
	bad.PreviewFetch = CategoryConfig{MaxRequests: 5, Window: 0}
	if err := bad.Validate(); err == nil {
		t.Error("expected validation error for zero window")
	}
}

func TestForCategory_UnknownFallsBackConservatively(t *testing.T) {
	cc := DefaultConfig().ForCategory(Category("mystery"))
	if cc.MaxRequests != 1 || cc.Window != time.Minute {
		t.Errorf("unknown category should get 1/min, got %d/%v", cc.MaxRequests, cc.Window)
	}
}
