package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig should not error on a missing file: %v", err)
	}
	if cfg.MaxConcurrency != DefaultConfig().MaxConcurrency {
		t.Errorf("expected default max_concurrency, got %d", cfg.MaxConcurrency)
	}
}

func TestLoadConfigMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "feature: my-feature\nmax_concurrency: 8\nlog_level: debug\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Feature != "my-feature" {
		t.Errorf("expected feature to be overridden, got %q", cfg.Feature)
	}
	if cfg.MaxConcurrency != 8 {
		t.Errorf("expected max_concurrency 8, got %d", cfg.MaxConcurrency)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected log_level debug, got %q", cfg.LogLevel)
	}
	if cfg.TargetBranch != DefaultConfig().TargetBranch {
		t.Errorf("expected target_branch to remain default, got %q", cfg.TargetBranch)
	}
}

func TestLoadConfigMalformedFileErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("not: [valid yaml"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected an error parsing malformed YAML")
	}
}

func TestValidateRejectsEmptyFeature(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for empty feature")
	}
}

func TestValidateRejectsBadPortRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Feature = "demo"
	cfg.PortRange.End = cfg.PortRange.Start - 1

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for inverted port range")
	}
}

func TestValidateRejectsBadGatePhase(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Feature = "demo"
	cfg.Gates = []GateConfig{{Name: "lint", Command: "go vet ./...", TimeoutSeconds: 30, Phase: "sideways"}}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for invalid gate phase")
	}
}

func TestMergeWithFlagsOverridesOnlyNonNil(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Feature = "demo"
	original := cfg.LogDir

	n := 16
	cfg.MergeWithFlags(&n, nil, nil, nil)

	if cfg.MaxConcurrency != 16 {
		t.Errorf("expected max_concurrency 16, got %d", cfg.MaxConcurrency)
	}
	if cfg.LogDir != original {
		t.Errorf("log_dir should be unchanged when flag is nil, got %q", cfg.LogDir)
	}
}
