package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadEnvString(t *testing.T) {
	t.Run("returns default when unset", func(t *testing.T) {
		assert.Equal(t, "fallback", LoadEnvString("LOADER_TEST_UNSET", "fallback"))
	})

	t.Run("returns environment value when set", func(t *testing.T) {
		t.Setenv("LOADER_TEST_STR", "configured")
		assert.Equal(t, "configured", LoadEnvString("LOADER_TEST_STR", "fallback"))
	})
}

func TestLoadEnvWithFallback(t *testing.T) {
	rejectAll := func(string) error { return errors.New("rejected") }

	t.Run("unset uses default silently", func(t *testing.T) {
		result := LoadEnvWithFallback("LOADER_TEST_UNSET", "default", rejectAll)
		assert.Equal(t, "default", result.Value)
		assert.False(t, result.FallbackApplied)
		assert.Empty(t, result.Warnings)
	})

	t.Run("valid value passes through", func(t *testing.T) {
		t.Setenv("LOADER_TEST_VALID", "ok")
		result := LoadEnvWithFallback("LOADER_TEST_VALID", "default", nil)
		assert.Equal(t, "ok", result.Value)
		assert.False(t, result.FallbackApplied)
	})

	t.Run("invalid value falls back with warning", func(t *testing.T) {
		t.Setenv("LOADER_TEST_INVALID", "bad")
		result := LoadEnvWithFallback("LOADER_TEST_INVALID", "default", rejectAll)
		assert.Equal(t, "default", result.Value)
		assert.True(t, result.FallbackApplied)
		assert.Len(t, result.Warnings, 1)
		assert.Contains(t, result.Warnings[0], "LOADER_TEST_INVALID")
	})
}

func TestLoadEnvDuration(t *testing.T) {
	t.Run("parses valid duration", func(t *testing.T) {
		t.Setenv("LOADER_TEST_DUR", "45s")
		result := LoadEnvDuration("LOADER_TEST_DUR", time.Minute, nil)
		assert.Equal(t, 45*time.Second, result.Value)
		assert.False(t, result.FallbackApplied)
	})

	t.Run("unparseable duration falls back", func(t *testing.T) {
		t.Setenv("LOADER_TEST_DUR_BAD", "forever")
		result := LoadEnvDuration("LOADER_TEST_DUR_BAD", time.Minute, nil)
		assert.Equal(t, time.Minute, result.Value)
		assert.True(t, result.FallbackApplied)
	})

	t.Run("validator rejection falls back", func(t *testing.T) {
		t.Setenv("LOADER_TEST_DUR_RANGE", "5ms")
		result := LoadEnvDuration("LOADER_TEST_DUR_RANGE", time.Minute, func(d time.Duration) error {
			return ValidateDuration(d, time.Second, time.Hour)
		})
		assert.Equal(t, time.Minute, result.Value)
		assert.True(t, result.FallbackApplied)
	})
}

func TestLoadEnvInt(t *testing.T) {
	t.Run("parses valid integer", func(t *testing.T) {
		t.Setenv("LOADER_TEST_INT", "42")
		result := LoadEnvInt("LOADER_TEST_INT", 7, nil)
		assert.Equal(t, 42, result.Value)
		assert.False(t, result.FallbackApplied)
	})

	t.Run("non-integer falls back", func(t *testing.T) {
		t.Setenv("LOADER_TEST_INT_BAD", "forty")
		result := LoadEnvInt("LOADER_TEST_INT_BAD", 7, nil)
		assert.Equal(t, 7, result.Value)
		assert.True(t, result.FallbackApplied)
	})

	t.Run("validator rejection falls back", func(t *testing.T) {
		t.Setenv("LOADER_TEST_INT_RANGE", "70000")
		result := LoadEnvInt("LOADER_TEST_INT_RANGE", 9091, func(v int) error {
			return ValidateIntRange(v, 1024, 65535)
		})
		assert.Equal(t, 9091, result.Value)
		assert.True(t, result.FallbackApplied)
	})
}
