package deliver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"feedrelay/internal/domain/entity"
	"feedrelay/pkg/ratelimit"
)

type stubClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStubClock() *stubClock {
	return &stubClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *stubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

type stubSource struct {
	items      []entity.Item
	err        error
	serverSide bool

	mu        sync.Mutex
	calls     int
	lastTerms []string
}

func (s *stubSource) Fetch(ctx context.Context, limit int, queryTerms []string) ([]entity.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastTerms = queryTerms
	if s.err != nil {
		return nil, s.err
	}
	if len(s.items) > limit {
		return s.items[:limit], nil
	}
	return s.items, nil
}

func (s *stubSource) FiltersServerSide() bool { return s.serverSide }

func testLimiter() *ratelimit.Limiter {
	cfg := ratelimit.DefaultConfig()
	cfg.FeedQuery = ratelimit.CategoryConfig{MaxRequests: 1000, Window: time.Minute}
	return ratelimit.New(cfg, nil, nil)
}

func TestFetcher_AppliesCutoffWindow(t *testing.T) {
	clock := newStubClock()
	now := clock.Now()

	src := &stubSource{items: []entity.Item{
		{ID: "fresh", CreatedAt: now.Add(-time.Hour)},
		{ID: "stale", CreatedAt: now.Add(-25 * time.Hour)},
		{ID: "undated"},
	}}

	f := NewFetcher(src, testLimiter(), clock, 10, 24*time.Hour)
	got := f.Fetch(context.Background(), nil)

	if len(got) != 2 {
		t.Fatalf("expected 2 items inside the window, got %d", len(got))
	}
	if got[0].ID != "fresh" || got[1].ID != "undated" {
		t.Errorf("unexpected items: %v", got)
	}
}

func TestFetcher_CapsResultAtLimit(t *testing.T) {
	src := &stubSource{items: items("1", "2", "3", "4", "5")}

	f := NewFetcher(src, testLimiter(), newStubClock(), 3, 0)
	got := f.Fetch(context.Background(), nil)

	if len(got) != 3 {
		t.Errorf("expected 3 items, got %d", len(got))
	}
}

func TestFetcher_SourceFailureReturnsEmpty(t *testing.T) {
	src := &stubSource{err: errors.New("feed unreachable")}

	f := NewFetcher(src, testLimiter(), newStubClock(), 10, time.Hour)
	got := f.Fetch(context.Background(), nil)

	if len(got) != 0 {
		t.Errorf("source failure must yield an empty list, got %v", got)
	}
}

func TestFetcher_PassesQueryTerms(t *testing.T) {
	src := &stubSource{serverSide: true}

	f := NewFetcher(src, testLimiter(), newStubClock(), 10, 0)
	_ = f.Fetch(context.Background(), []string{"llm", "go"})

	src.mu.Lock()
	defer src.mu.Unlock()
	if len(src.lastTerms) != 2 || src.lastTerms[0] != "llm" {
		t.Errorf("expected query terms forwarded, got %v", src.lastTerms)
	}
	if !f.FiltersServerSide() {
		t.Error("FiltersServerSide should mirror the source")
	}
}
