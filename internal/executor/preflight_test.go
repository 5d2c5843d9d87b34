package executor

import (
	"context"
	"strings"
	"testing"
)

func TestShellCommandRunnerCapturesOutput(t *testing.T) {
	r := NewShellCommandRunner("")
	out, err := r.Run(context.Background(), "echo hello")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.Contains(out, "hello") {
		t.Fatalf("expected output to contain 'hello', got %q", out)
	}
}

func TestShellCommandRunnerReturnsErrorOnNonZeroExit(t *testing.T) {
	r := NewShellCommandRunner("")
	_, err := r.Run(context.Background(), "exit 1")
	if err == nil {
		t.Fatal("expected an error for a non-zero exit status")
	}
}

func TestShellCommandRunnerHonorsWorkDir(t *testing.T) {
	dir := t.TempDir()
	r := NewShellCommandRunner(dir)
	out, err := r.Run(context.Background(), "pwd")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.Contains(strings.TrimSpace(out), strings.TrimSpace(dir)) {
		t.Fatalf("expected pwd output to reference %q, got %q", dir, out)
	}
}
