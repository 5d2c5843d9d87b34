package cmd

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStopCommandWritesSentinelFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	stateDir := filepath.Join(dir, "state")
	if err := os.WriteFile(configPath, []byte("state_dir: "+stateDir+"\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cmd := NewStopCommand()
	cmd.SetArgs([]string{"--feature", "checkout-v2", "--config", configPath})
	cmd.SetOut(new(nopWriter))
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(stateDir, "stop")); err != nil {
		t.Fatalf("expected stop sentinel to exist: %v", err)
	}
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
