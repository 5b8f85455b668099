// Package config provides tuning configuration for the simulation core:
// thread pool sizing, adaptive-scheduling thresholds, and fault limits.
package config

import (
	"fmt"
	"time"
)

// Config is the threading and scheduling tuning for the core. Durations are
// expressed in milliseconds to match the file format.
type Config struct {
	// Workers is the thread pool size; zero means hardware concurrency.
	Workers int `yaml:"workers" json:"workers"`

	// QueueCapacity bounds the pool's pending task queue.
	QueueCapacity int `yaml:"queue_capacity" json:"queue_capacity"`

	// DefaultStrategy applies to systems registered without an explicit
	// strategy: main, pool, dedicated, background, or hybrid.
	DefaultStrategy string `yaml:"default_strategy" json:"default_strategy"`

	// TargetIntervalMS is the per-system frame budget (~60 FPS default).
	TargetIntervalMS float64 `yaml:"target_interval_ms" json:"target_interval_ms"`

	// Promotion thresholds: a pooled system whose average stays above
	// PromoteAboveMS for PromoteStreak consecutive frames moves to a
	// dedicated thread.
	PromoteAboveMS float64 `yaml:"promote_above_ms" json:"promote_above_ms"`
	PromoteStreak  int     `yaml:"promote_streak" json:"promote_streak"`

	// Demotion thresholds: a dedicated system whose average stays below
	// DemoteBelowMS for DemoteStreak consecutive frames moves back to the
	// pool.
	DemoteBelowMS float64 `yaml:"demote_below_ms" json:"demote_below_ms"`
	DemoteStreak  int     `yaml:"demote_streak" json:"demote_streak"`

	// ErrorLimit consecutive-window faults within ErrorWindowSeconds disable
	// a system until it is reset.
	ErrorLimit         int     `yaml:"error_limit" json:"error_limit"`
	ErrorWindowSeconds float64 `yaml:"error_window_seconds" json:"error_window_seconds"`

	// Monitoring toggles performance and contention accounting.
	Monitoring bool `yaml:"monitoring" json:"monitoring"`

	// FrameLimiting makes dedicated loops sleep out the remainder of the
	// target interval. Disabling it lets them spin as fast as the barrier
	// allows.
	FrameLimiting bool `yaml:"frame_limiting" json:"frame_limiting"`

	// LockHoldWarnMS is the diagnostic threshold for the deadlock detector.
	LockHoldWarnMS float64 `yaml:"lock_hold_warn_ms" json:"lock_hold_warn_ms"`
}

// DefaultConfig returns the tuning used when no file is supplied.
func DefaultConfig() *Config {
	return &Config{
		Workers:            0,
		QueueCapacity:      256,
		DefaultStrategy:    "pool",
		TargetIntervalMS:   16.67,
		PromoteAboveMS:     16.0,
		PromoteStreak:      180,
		DemoteBelowMS:      4.0,
		DemoteStreak:       600,
		ErrorLimit:         5,
		ErrorWindowSeconds: 30,
		Monitoring:         true,
		FrameLimiting:      true,
		LockHoldWarnMS:     1000,
	}
}

// Validate checks the configuration for values the core cannot honor.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("config: workers must be >= 0, got %d", c.Workers)
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("config: queue_capacity must be > 0, got %d", c.QueueCapacity)
	}
	switch c.DefaultStrategy {
	case "main", "pool", "dedicated", "background", "hybrid":
	default:
		return fmt.Errorf("config: unknown default_strategy %q", c.DefaultStrategy)
	}
	if c.TargetIntervalMS <= 0 {
		return fmt.Errorf("config: target_interval_ms must be > 0, got %v", c.TargetIntervalMS)
	}
	if c.PromoteStreak <= 0 || c.DemoteStreak <= 0 {
		return fmt.Errorf("config: promotion/demotion streaks must be > 0")
	}
	if c.PromoteAboveMS <= c.DemoteBelowMS {
		return fmt.Errorf("config: promote_above_ms (%v) must exceed demote_below_ms (%v)",
			c.PromoteAboveMS, c.DemoteBelowMS)
	}
	if c.ErrorLimit <= 0 {
		return fmt.Errorf("config: error_limit must be > 0, got %d", c.ErrorLimit)
	}
	if c.ErrorWindowSeconds <= 0 {
		return fmt.Errorf("config: error_window_seconds must be > 0, got %v", c.ErrorWindowSeconds)
	}
	return nil
}

// TargetInterval returns the frame budget as a duration.
func (c *Config) TargetInterval() time.Duration {
	return time.Duration(c.TargetIntervalMS * float64(time.Millisecond))
}

// PromoteAbove returns the promotion threshold as a duration.
func (c *Config) PromoteAbove() time.Duration {
	return time.Duration(c.PromoteAboveMS * float64(time.Millisecond))
}

// DemoteBelow returns the demotion threshold as a duration.
func (c *Config) DemoteBelow() time.Duration {
	return time.Duration(c.DemoteBelowMS * float64(time.Millisecond))
}

// ErrorWindow returns the fault window as a duration.
func (c *Config) ErrorWindow() time.Duration {
	return time.Duration(c.ErrorWindowSeconds * float64(time.Second))
}

// LockHoldWarn returns the deadlock-diagnostic threshold as a duration.
func (c *Config) LockHoldWarn() time.Duration {
	return time.Duration(c.LockHoldWarnMS * float64(time.Millisecond))
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
