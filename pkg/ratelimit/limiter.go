package ratelimit

import (
	"context"
	"sync"
	"time"
)

// safetyMargin is added to the computed wait so that, after waking, the
// oldest timestamp has definitely left the window despite timer coarseness.
const safetyMargin = 50 * time.Millisecond

// Limiter is a blocking sliding-window rate limiter keyed by category.
//
// Each category holds an ordered sequence of timestamps of admitted
// operations. On every admission check the sequence is pruned to the
// trailing window. Concurrent callers race for freed slots, so the check
// is always re-validated after waking.
//
// All methods are safe for concurrent use.
type Limiter struct {
	cfg     Config
	clock   Clock
	metrics Metrics

	mu      sync.Mutex
	windows map[Category][]time.Time
}

// New creates a Limiter with the given configuration.
// A nil clock defaults to the system clock; nil metrics default to no-op.
func New(cfg Config, clock Clock, metrics Metrics) *Limiter {
	if clock == nil {
		clock = &SystemClock{}
	}
	if metrics == nil {
		metrics = &NoOpMetrics{}
	}
	return &Limiter{
		cfg:     cfg,
		clock:   clock,
		metrics: metrics,
		windows: make(map[Category][]time.Time),
	}
}

// AwaitSlot blocks until one more operation in the category can be admitted
// without exceeding the category's limit, then records the admission.
// It never rejects: it returns nil once admitted, or the context error when
// the caller gives up first.
func (l *Limiter) AwaitSlot(ctx context.Context, cat Category) error {
	waited := time.Duration(0)

	for {
		wait, admitted := l.tryAcquire(cat)
		if admitted {
			l.metrics.RecordAdmit(string(cat))
			if waited > 0 {
				l.metrics.RecordWait(string(cat), waited)
			}
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			waited += wait
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// tryAcquire attempts one admission check. It returns (0, true) when the
// operation was admitted and recorded, or (wait, false) with the duration
// until the oldest timestamp exits the window.
func (l *Limiter) tryAcquire(cat Category) (time.Duration, bool) {
	cc := l.cfg.ForCategory(cat)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	cutoff := now.Add(-cc.Window)

	window := l.windows[cat]
	for len(window) > 0 && !window[0].After(cutoff) {
		window = window[1:]
	}

	if len(window) < cc.MaxRequests {
		window = append(window, now)
		l.windows[cat] = window
		return 0, true
	}

	l.windows[cat] = window
	wait := window[0].Sub(cutoff) + safetyMargin
	if wait <= 0 {
		wait = safetyMargin
	}
	return wait, false
}

// WindowUsage returns the number of admissions currently inside the
// category's window. It is used for monitoring.
func (l *Limiter) WindowUsage(cat Category) int {
	cc := l.cfg.ForCategory(cat)

	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.clock.Now().Add(-cc.Window)
	count := 0
	for _, ts := range l.windows[cat] {
		if ts.After(cutoff) {
			count++
		}
	}
	return count
}
