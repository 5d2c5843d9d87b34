package logger

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"
)

func TestArtifactStoreWritesOutputVerificationAndDiff(t *testing.T) {
	dir := t.TempDir()
	store, err := NewArtifactStore(dir)
	if err != nil {
		t.Fatalf("NewArtifactStore failed: %v", err)
	}

	if err := store.WriteOutput("task-a", "claude said hi"); err != nil {
		t.Fatalf("WriteOutput failed: %v", err)
	}
	if err := store.WriteVerification("task-a", "PASS"); err != nil {
		t.Fatalf("WriteVerification failed: %v", err)
	}
	if err := store.WriteDiff("task-a", "diff --git a/x b/x"); err != nil {
		t.Fatalf("WriteDiff failed: %v", err)
	}

	taskDir := filepath.Join(dir, "tasks", "task-a")
	for name, want := range map[string]string{
		"claude_output.txt":       "claude said hi",
		"verification_output.txt": "PASS",
		"git_diff.patch":          "diff --git a/x b/x",
	} {
		got, err := os.ReadFile(filepath.Join(taskDir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if string(got) != want {
			t.Fatalf("%s: expected %q, got %q", name, want, string(got))
		}
	}
}

func TestArtifactStoreAppendExecutionAppendsLines(t *testing.T) {
	dir := t.TempDir()
	store, err := NewArtifactStore(dir)
	if err != nil {
		t.Fatalf("NewArtifactStore failed: %v", err)
	}

	if err := store.AppendExecution("task-a", map[string]any{"step": 1}); err != nil {
		t.Fatalf("AppendExecution failed: %v", err)
	}
	if err := store.AppendExecution("task-a", map[string]any{"step": 2}); err != nil {
		t.Fatalf("AppendExecution failed: %v", err)
	}

	path := filepath.Join(dir, "tasks", "task-a", "execution.jsonl")
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open execution.jsonl: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lines := 0
	for scanner.Scan() {
		lines++
	}
	if lines != 2 {
		t.Fatalf("expected 2 appended lines, got %d", lines)
	}
}

func TestFinalizeRetainsOnFailureRegardlessOfPolicy(t *testing.T) {
	dir := t.TempDir()
	store, err := NewArtifactStore(dir)
	if err != nil {
		t.Fatalf("NewArtifactStore failed: %v", err)
	}
	if err := store.WriteOutput("task-a", "output"); err != nil {
		t.Fatalf("WriteOutput failed: %v", err)
	}

	if err := store.Finalize("task-a", false, RetentionPolicy{RetainOnSuccess: false}); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "tasks", "task-a")); err != nil {
		t.Fatalf("expected artifact dir to be retained on failure, got %v", err)
	}
}

func TestFinalizeRemovesOnSuccessWhenNotRetained(t *testing.T) {
	dir := t.TempDir()
	store, err := NewArtifactStore(dir)
	if err != nil {
		t.Fatalf("NewArtifactStore failed: %v", err)
	}
	if err := store.WriteOutput("task-a", "output"); err != nil {
		t.Fatalf("WriteOutput failed: %v", err)
	}

	if err := store.Finalize("task-a", true, RetentionPolicy{RetainOnSuccess: false}); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "tasks", "task-a")); !os.IsNotExist(err) {
		t.Fatalf("expected artifact dir to be removed, stat err = %v", err)
	}
}

func TestFinalizeRetainsOnSuccessWhenPolicyAllows(t *testing.T) {
	dir := t.TempDir()
	store, err := NewArtifactStore(dir)
	if err != nil {
		t.Fatalf("NewArtifactStore failed: %v", err)
	}
	if err := store.WriteOutput("task-a", "output"); err != nil {
		t.Fatalf("WriteOutput failed: %v", err)
	}

	if err := store.Finalize("task-a", true, RetentionPolicy{RetainOnSuccess: true}); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "tasks", "task-a")); err != nil {
		t.Fatalf("expected artifact dir to be retained, got %v", err)
	}
}
