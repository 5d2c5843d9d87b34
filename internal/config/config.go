package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// BackoffStrategy names the retry backoff curve (spec.md §4.6).
type BackoffStrategy string

const (
	BackoffExponential BackoffStrategy = "exponential"
	BackoffLinear      BackoffStrategy = "linear"
	BackoffFixed       BackoffStrategy = "fixed"
)

// RetryConfig controls the Retry Manager's backoff schedule and reaper.
type RetryConfig struct {
	// MaxAttempts is the number of failures before a task is permanently failed.
	MaxAttempts int `yaml:"max_attempts"`

	// Strategy selects the backoff curve.
	Strategy BackoffStrategy `yaml:"strategy"`

	// BaseSeconds is the first retry's delay before jitter.
	BaseSeconds int `yaml:"base_seconds"`

	// MaxSeconds caps the computed delay.
	MaxSeconds int `yaml:"max_seconds"`

	// StaleTimeoutSeconds is how long a task may stay in_progress, counted
	// from its started_at, before the reaper treats it as stale.
	StaleTimeoutSeconds int `yaml:"stale_timeout_seconds"`
}

// GateConfig describes one named quality gate run before or after a merge.
type GateConfig struct {
	Name           string `yaml:"name"`
	Command        string `yaml:"command"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Required       bool   `yaml:"required"`
	Phase          string `yaml:"phase"` // "pre" or "post"
}

// PortRangeConfig bounds the Port Allocator's lease range.
type PortRangeConfig struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

// HeartbeatConfig controls the Heartbeat Monitor's thresholds.
type HeartbeatConfig struct {
	StaleAfterSeconds   int `yaml:"stale_after_seconds"`
	StalledAfterSeconds int `yaml:"stalled_after_seconds"`
}

// Config is zerg's top-level build configuration: one feature's worktree,
// state, and log directories plus the orchestrator's tunables.
type Config struct {
	// Feature is the feature branch name this build targets.
	Feature string `yaml:"feature"`

	// TargetBranch is the branch each level's staging branch merges into.
	TargetBranch string `yaml:"target_branch"`

	// MaxConcurrency bounds simultaneously running workers.
	MaxConcurrency int `yaml:"max_concurrency"`

	// StateDir holds the feature's persisted JSON state and its lock file.
	StateDir string `yaml:"state_dir"`

	// WorktreeDir is the parent directory under which per-worker git
	// worktrees are created.
	WorktreeDir string `yaml:"worktree_dir"`

	// LogDir is the directory where per-worker JSONL logs are written.
	LogDir string `yaml:"log_dir"`

	// HeartbeatDir is the directory workers write heartbeat files into.
	HeartbeatDir string `yaml:"heartbeat_dir"`

	// LogLevel sets logging verbosity (trace, debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// ReconcileIntervalSeconds gates how often periodic reconciliation runs.
	ReconcileIntervalSeconds int `yaml:"reconcile_interval_seconds"`

	// TickIntervalMillis is the orchestrator loop's polling interval.
	TickIntervalMillis int `yaml:"tick_interval_millis"`

	// GracefulTerminateSeconds is how long a worker gets to exit after
	// SIGTERM before it is force-killed.
	GracefulTerminateSeconds int `yaml:"graceful_terminate_seconds"`

	// MetricsPort, if non-zero, exposes a Prometheus /metrics listener.
	MetricsPort int `yaml:"metrics_port"`

	// AnalyticsDBPath, if set, enables best-effort SQLite analytics writes.
	AnalyticsDBPath string `yaml:"analytics_db_path"`

	// Retry contains the backoff configuration `zerg retry` builds its
	// Retry Manager from. The orchestrator started by `zerg run` uses
	// executor.DefaultRetryConfig and does not read this block.
	Retry RetryConfig `yaml:"retry"`

	// PortRange bounds the Port Allocator.
	PortRange PortRangeConfig `yaml:"port_range"`

	// Heartbeat contains the Heartbeat Monitor's thresholds.
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`

	// Gates lists quality gates run around each level's merge.
	Gates []GateConfig `yaml:"gates"`

	// DryRun validates the task graph without spawning workers.
	DryRun bool `yaml:"dry_run"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		TargetBranch:             "main",
		MaxConcurrency:           4,
		StateDir:                 ".zerg/state",
		WorktreeDir:              ".zerg/worktrees",
		LogDir:                   ".zerg/logs",
		HeartbeatDir:             ".zerg/heartbeats",
		LogLevel:                 "info",
		ReconcileIntervalSeconds: 30,
		TickIntervalMillis:       1000,
		GracefulTerminateSeconds: 10,
		MetricsPort:              0,
		Retry: RetryConfig{
			MaxAttempts:         3,
			Strategy:            BackoffExponential,
			BaseSeconds:         5,
			MaxSeconds:          300,
			StaleTimeoutSeconds: 600,
		},
		PortRange: PortRangeConfig{Start: 49152, End: 65535},
		Heartbeat: HeartbeatConfig{StaleAfterSeconds: 30, StalledAfterSeconds: 120},
	}
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Only "true" (lowercase) or "1" are recognized as true.
//
// Recognized variables:
//   - ZERG_LOG_LEVEL
//   - ZERG_MAX_CONCURRENCY
//   - ZERG_DRY_RUN
//   - ZERG_METRICS_PORT
func applyEnvOverrides(cfg *Config) error {
	if val := os.Getenv("ZERG_LOG_LEVEL"); val != "" {
		cfg.LogLevel = val
	}
	if val := os.Getenv("ZERG_MAX_CONCURRENCY"); val != "" {
		var n int
		if _, err := fmt.Sscanf(val, "%d", &n); err != nil {
			return fmt.Errorf("invalid ZERG_MAX_CONCURRENCY %q: %w", val, err)
		}
		cfg.MaxConcurrency = n
	}
	if val := os.Getenv("ZERG_DRY_RUN"); val != "" {
		cfg.DryRun = val == "true" || val == "1"
	}
	if val := os.Getenv("ZERG_METRICS_PORT"); val != "" {
		var n int
		if _, err := fmt.Sscanf(val, "%d", &n); err != nil {
			return fmt.Errorf("invalid ZERG_METRICS_PORT %q: %w", val, err)
		}
		cfg.MetricsPort = n
	}
	return nil
}

// LoadConfig loads configuration from path, merging file values over
// defaults. If the file doesn't exist, returns defaults (with env
// overrides applied) without error. If the file exists but is malformed,
// returns an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := applyEnvOverrides(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MergeWithFlags merges CLI flags into the configuration. Non-nil flag
// values override configuration values.
func (c *Config) MergeWithFlags(maxConcurrency *int, logDir *string, dryRun *bool, target *string) {
	if maxConcurrency != nil {
		c.MaxConcurrency = *maxConcurrency
	}
	if logDir != nil {
		c.LogDir = *logDir
	}
	if dryRun != nil {
		c.DryRun = *dryRun
	}
	if target != nil {
		c.TargetBranch = *target
	}
}

// Validate validates the configuration values, returning an error
// describing the first invalid field found.
func (c *Config) Validate() error {
	if c.Feature == "" {
		return fmt.Errorf("feature cannot be empty")
	}
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("max_concurrency must be > 0, got %d", c.MaxConcurrency)
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be > 0, got %d", c.Retry.MaxAttempts)
	}
	switch c.Retry.Strategy {
	case BackoffExponential, BackoffLinear, BackoffFixed:
	default:
		return fmt.Errorf("retry.strategy must be one of: exponential, linear, fixed; got %q", c.Retry.Strategy)
	}
	if c.Retry.BaseSeconds <= 0 {
		return fmt.Errorf("retry.base_seconds must be > 0, got %d", c.Retry.BaseSeconds)
	}
	if c.Retry.MaxSeconds < c.Retry.BaseSeconds {
		return fmt.Errorf("retry.max_seconds (%d) must be >= retry.base_seconds (%d)", c.Retry.MaxSeconds, c.Retry.BaseSeconds)
	}

	if c.PortRange.Start <= 0 || c.PortRange.End <= 0 {
		return fmt.Errorf("port_range start/end must be positive")
	}
	if c.PortRange.End < c.PortRange.Start {
		return fmt.Errorf("port_range end (%d) must be >= start (%d)", c.PortRange.End, c.PortRange.Start)
	}

	if c.Heartbeat.StalledAfterSeconds <= c.Heartbeat.StaleAfterSeconds {
		return fmt.Errorf("heartbeat.stalled_after_seconds must exceed stale_after_seconds")
	}

	for i, g := range c.Gates {
		if g.Name == "" {
			return fmt.Errorf("gates[%d].name cannot be empty", i)
		}
		if g.Command == "" {
			return fmt.Errorf("gates[%d].command cannot be empty", i)
		}
		if g.Phase != "pre" && g.Phase != "post" {
			return fmt.Errorf("gates[%d].phase must be \"pre\" or \"post\", got %q", i, g.Phase)
		}
		if g.TimeoutSeconds <= 0 {
			return fmt.Errorf("gates[%d].timeout_seconds must be > 0, got %d", i, g.TimeoutSeconds)
		}
	}

	return nil
}

// TickInterval returns TickIntervalMillis as a time.Duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMillis) * time.Millisecond
}

// ReconcileInterval returns ReconcileIntervalSeconds as a time.Duration.
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.ReconcileIntervalSeconds) * time.Second
}

// GracefulTerminate returns GracefulTerminateSeconds as a time.Duration.
func (c *Config) GracefulTerminate() time.Duration {
	return time.Duration(c.GracefulTerminateSeconds) * time.Second
}
