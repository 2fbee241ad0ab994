// Package worker holds the operational shell of the delivery worker: its
// environment configuration, health endpoints, and job-level metrics.
package worker

import (
	"fmt"
	"log/slog"
	"time"

	"feedrelay/internal/pkg/config"
)

// WorkerConfig controls the worker's schedule and operational parameters.
//
// Values load from the environment with fail-open fallback: an invalid
// value logs a warning, bumps a metric, and uses the default. The worker
// always starts.
type WorkerConfig struct {
	// CronSchedule triggers delivery cycles. Standard five-field cron or
	// a descriptor like "@every 30m".
	CronSchedule string

	// Timezone is the IANA timezone for cron evaluation.
	Timezone string

	// CycleTimeout bounds one delivery cycle end to end.
	CycleTimeout time.Duration

	// CacheCleanupInterval triggers fast-tier cache cleanup.
	CacheCleanupInterval time.Duration

	// ShutdownGrace is how long in-flight work may finish after a
	// termination signal.
	ShutdownGrace time.Duration

	// HealthPort serves the liveness and readiness probes.
	HealthPort int
}

// DefaultConfig returns production defaults: a 30-minute poll cadence,
// a cycle timeout shorter than the cadence so cycles cannot stack, and
// the conventional exporter-range health port.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		CronSchedule:         "@every 30m",
		Timezone:             "UTC",
		CycleTimeout:         25 * time.Minute,
		CacheCleanupInterval: 5 * time.Minute,
		ShutdownGrace:        30 * time.Second,
		HealthPort:           9091,
	}
}

// Validate checks every field, aggregating failures into one error.
func (c *WorkerConfig) Validate() error {
	var errs []error

	if err := config.ValidateCronSchedule(c.CronSchedule); err != nil {
		errs = append(errs, fmt.Errorf("cron schedule: %w", err))
	}
	if err := config.ValidateTimezone(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	if err := config.ValidatePositiveDuration(c.CycleTimeout); err != nil {
		errs = append(errs, fmt.Errorf("cycle timeout: %w", err))
	}
	if err := config.ValidatePositiveDuration(c.CacheCleanupInterval); err != nil {
		errs = append(errs, fmt.Errorf("cache cleanup interval: %w", err))
	}
	if err := config.ValidatePositiveDuration(c.ShutdownGrace); err != nil {
		errs = append(errs, fmt.Errorf("shutdown grace: %w", err))
	}
	if err := config.ValidateIntRange(c.HealthPort, 1024, 65535); err != nil {
		errs = append(errs, fmt.Errorf("health port: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed: %v", errs)
	}
	return nil
}

// LoadConfigFromEnv loads the worker configuration from environment
// variables with validation and fail-open fallback to defaults.
//
// Environment variables:
//   - CRON_SCHEDULE: cron expression or descriptor (default "@every 30m")
//   - WORKER_TIMEZONE: IANA timezone name (default "UTC")
//   - CYCLE_TIMEOUT: duration, 1m to 4h (default 25m)
//   - CACHE_CLEANUP_INTERVAL: duration, 30s to 1h (default 5m)
//   - SHUTDOWN_GRACE: duration, 1s to 5m (default 30s)
//   - WORKER_HEALTH_PORT: integer 1024-65535 (default 9091)
//
// The returned config is always valid; error is always nil and exists only
// to keep the signature conventional.
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) (*WorkerConfig, error) {
	cfg := DefaultConfig()
	fallbackApplied := false

	apply := func(field string, result config.ConfigLoadResult) config.ConfigLoadResult {
		if result.FallbackApplied {
			fallbackApplied = true
			metrics.RecordValidationError(field)
			metrics.RecordFallback(field)
			for _, warning := range result.Warnings {
				logger.Warn("Configuration fallback applied",
					slog.String("field", field),
					slog.String("warning", warning))
			}
		}
		return result
	}

	cfg.CronSchedule = apply("cron_schedule",
		config.LoadEnvWithFallback("CRON_SCHEDULE", cfg.CronSchedule, config.ValidateCronSchedule)).Value.(string)

	cfg.Timezone = apply("timezone",
		config.LoadEnvWithFallback("WORKER_TIMEZONE", cfg.Timezone, config.ValidateTimezone)).Value.(string)

	cfg.CycleTimeout = apply("cycle_timeout",
		config.LoadEnvDuration("CYCLE_TIMEOUT", cfg.CycleTimeout, func(d time.Duration) error {
			return config.ValidateDuration(d, 1*time.Minute, 4*time.Hour)
		})).Value.(time.Duration)

	cfg.CacheCleanupInterval = apply("cache_cleanup_interval",
		config.LoadEnvDuration("CACHE_CLEANUP_INTERVAL", cfg.CacheCleanupInterval, func(d time.Duration) error {
			return config.ValidateDuration(d, 30*time.Second, 1*time.Hour)
		})).Value.(time.Duration)

	cfg.ShutdownGrace = apply("shutdown_grace",
		config.LoadEnvDuration("SHUTDOWN_GRACE", cfg.ShutdownGrace, func(d time.Duration) error {
			return config.ValidateDuration(d, 1*time.Second, 5*time.Minute)
		})).Value.(time.Duration)

	cfg.HealthPort = apply("health_port",
		config.LoadEnvInt("WORKER_HEALTH_PORT", cfg.HealthPort, func(v int) error {
			return config.ValidateIntRange(v, 1024, 65535)
		})).Value.(int)

	metrics.SetFallbackActive(fallbackApplied)
	metrics.RecordLoadTimestamp()

	return &cfg, nil
}
