package cmd

import "testing"

func TestDerefCommit(t *testing.T) {
	if got := derefCommit(nil); got != "(no commit)" {
		t.Fatalf("expected placeholder for nil commit, got %q", got)
	}
	commit := "abc123"
	if got := derefCommit(&commit); got != "abc123" {
		t.Fatalf("expected %q, got %q", commit, got)
	}
}

func TestMergeCommandRequiresIntegerLevel(t *testing.T) {
	cmd := NewMergeCommand()
	cmd.SetArgs([]string{"not-a-number", "--feature", "checkout-v2"})
	cmd.SetOut(new(nopWriter))
	cmd.SetErr(new(nopWriter))

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error for a non-integer level argument")
	}
}
