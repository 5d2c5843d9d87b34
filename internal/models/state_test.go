package models

import "testing"

func TestNewFeatureStateInitializesEmptyCollections(t *testing.T) {
	fs := NewFeatureState("checkout-v2")

	if fs.Feature != "checkout-v2" {
		t.Fatalf("expected feature name to be set, got %q", fs.Feature)
	}
	if fs.CurrentLevel != 0 {
		t.Fatalf("expected current level 0, got %d", fs.CurrentLevel)
	}
	if fs.Paused {
		t.Fatal("expected a new feature state to start unpaused")
	}
	if fs.Error != nil {
		t.Fatalf("expected no error on a new feature state, got %v", *fs.Error)
	}
	if fs.Tasks == nil || len(fs.Tasks) != 0 {
		t.Fatalf("expected an empty, non-nil Tasks map, got %#v", fs.Tasks)
	}
	if fs.Workers == nil || len(fs.Workers) != 0 {
		t.Fatalf("expected an empty, non-nil Workers map, got %#v", fs.Workers)
	}
	if fs.Levels == nil || len(fs.Levels) != 0 {
		t.Fatalf("expected an empty, non-nil Levels map, got %#v", fs.Levels)
	}
	if fs.ExecutionLog == nil || len(fs.ExecutionLog) != 0 {
		t.Fatalf("expected an empty, non-nil ExecutionLog slice, got %#v", fs.ExecutionLog)
	}
	if fs.StartedAt.IsZero() {
		t.Fatal("expected StartedAt to be populated")
	}
}
