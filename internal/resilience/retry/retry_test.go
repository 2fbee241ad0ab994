package retry

import (
	"context"
	"errors"
	"math/rand"
	"syscall"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   5 * time.Millisecond,
		MaxDelay:    50 * time.Millisecond,
	}
}

func TestWithBackoff_Success(t *testing.T) {
	attempts := 0
	fn := func() error {
		attempts++
		return nil // Success on first attempt
	}

	err := WithBackoff(context.Background(), testConfig(), fn)

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestWithBackoff_SuccessAfterRetry(t *testing.T) {
	attempts := 0
	fn := func() error {
		attempts++
		if attempts < 3 {
			return &HTTPError{StatusCode: 500, Message: "Server Error"}
		}
		return nil // Success on 3rd attempt
	}

	err := WithBackoff(context.Background(), testConfig(), fn)

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestWithBackoff_MaxAttemptsExceeded(t *testing.T) {
	attempts := 0
	testErr := &HTTPError{StatusCode: 500, Message: "Server Error"}
	fn := func() error {
		attempts++
		return testErr // Always fail
	}

	err := WithBackoff(context.Background(), testConfig(), fn)

	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, testErr) {
		t.Errorf("expected wrapped %v, got %v", testErr, err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestWithBackoff_PermanentErrorAbortsImmediately(t *testing.T) {
	attempts := 0
	permanent := &HTTPError{StatusCode: 403, Message: "Forbidden"}
	fn := func() error {
		attempts++
		return permanent
	}

	err := WithBackoff(context.Background(), testConfig(), fn)

	if !errors.Is(err, permanent) {
		t.Errorf("expected %v unchanged, got %v", permanent, err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt for permanent error, got %d", attempts)
	}
}

func TestWithBackoff_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	fn := func() error {
		attempts++
		cancel() // Cancel during the first backoff wait
		return &HTTPError{StatusCode: 500, Message: "Server Error"}
	}

	cfg := testConfig()
	cfg.BaseDelay = 1 * time.Second

	err := WithBackoff(ctx, cfg, fn)

	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

type retryAfterErr struct{ delay time.Duration }

func (e *retryAfterErr) Error() string                  { return "slow down" }
func (e *retryAfterErr) Transient() bool                { return true }
func (e *retryAfterErr) RetryAfterDelay() time.Duration { return e.delay }

func TestWithBackoff_HonorsServerRetryAfter(t *testing.T) {
	attempts := 0
	start := time.Now()
	fn := func() error {
		attempts++
		if attempts == 1 {
			return &retryAfterErr{delay: 80 * time.Millisecond}
		}
		return nil
	}

	err := WithBackoff(context.Background(), testConfig(), fn)

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	// Policy delay for attempt 0 is ~5-8ms; the server-provided 80ms wins.
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("expected wait >= 80ms from server hint, got %v", elapsed)
	}
}

func TestDelay_ExponentialGrowthWithCap(t *testing.T) {
	cfg := Config{
		MaxAttempts: 10,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Rand:        rand.New(rand.NewSource(42)),
	}

	tests := []struct {
		attempt int
		base    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second}, // 32s capped to 30s
		{9, 30 * time.Second},
	}

	for _, tt := range tests {
		got := cfg.Delay(tt.attempt)

		// Jitter is additive in [0.1, 0.5] of the capped delay.
		min := tt.base + time.Duration(0.1*float64(tt.base))
		max := tt.base + time.Duration(0.5*float64(tt.base))
		if got < min || got > max {
			t.Errorf("Delay(%d) = %v, want in [%v, %v]", tt.attempt, got, min, max)
		}
	}
}

func TestDelay_NegativeAttemptClamped(t *testing.T) {
	cfg := Config{
		BaseDelay: 1 * time.Second,
		MaxDelay:  30 * time.Second,
		Rand:      rand.New(rand.NewSource(1)),
	}

	got := cfg.Delay(-5)
	if got < cfg.BaseDelay {
		t.Errorf("Delay(-5) = %v, want >= base delay %v", got, cfg.BaseDelay)
	}
}

func TestDelay_DeterministicWithSeededRand(t *testing.T) {
	a := Config{BaseDelay: time.Second, MaxDelay: 30 * time.Second, Rand: rand.New(rand.NewSource(7))}
	b := Config{BaseDelay: time.Second, MaxDelay: 30 * time.Second, Rand: rand.New(rand.NewSource(7))}

	for i := 0; i < 5; i++ {
		if da, db := a.Delay(i), b.Delay(i); da != db {
			t.Errorf("Delay(%d) differs between identical seeds: %v vs %v", i, da, db)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"context canceled", context.Canceled, false},
		{"context deadline", context.DeadlineExceeded, false},
		{"connection refused", syscall.ECONNREFUSED, true},
		{"connection reset", syscall.ECONNRESET, true},
		{"timed out", syscall.ETIMEDOUT, true},
		{"network unreachable", syscall.ENETUNREACH, true},
		{"http 500", &HTTPError{StatusCode: 500}, true},
		{"http 503", &HTTPError{StatusCode: 503}, true},
		{"http 429", &HTTPError{StatusCode: 429}, true},
		{"http 408", &HTTPError{StatusCode: 408}, true},
		{"http 400", &HTTPError{StatusCode: 400}, false},
		{"http 403", &HTTPError{StatusCode: 403}, false},
		{"http 404", &HTTPError{StatusCode: 404}, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

type classifiedErr struct{ transient bool }

func (e *classifiedErr) Error() string   { return "classified" }
func (e *classifiedErr) Transient() bool { return e.transient }

func TestIsRetryable_SelfClassifyingErrors(t *testing.T) {
	if !IsRetryable(&classifiedErr{transient: true}) {
		t.Error("transient self-classifying error should be retryable")
	}
	if IsRetryable(&classifiedErr{transient: false}) {
		t.Error("permanent self-classifying error should not be retryable")
	}
}
