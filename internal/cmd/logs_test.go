package cmd

import (
	"bytes"
	"testing"
)

func TestLogsCommandRunsAgainstEmptyLogDir(t *testing.T) {
	cmd := NewLogsCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetArgs([]string{"--feature", "checkout-v2", "--config", "/nonexistent/config.yaml"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("expected no output against an empty log directory, got %q", out.String())
	}
}

func TestLogsCommandRejectsInvalidSince(t *testing.T) {
	cmd := NewLogsCommand()
	cmd.SetOut(new(nopWriter))
	cmd.SetErr(new(nopWriter))
	cmd.SetArgs([]string{"--feature", "checkout-v2", "--since", "not-a-timestamp"})

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error for a malformed --since value")
	}
}
