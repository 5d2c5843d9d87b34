package executor

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/harrison/zerg/internal/models"
	"github.com/harrison/zerg/internal/state"
)

func newDispatchStore(t *testing.T) *state.Store {
	t.Helper()
	p, err := state.NewPersistence(t.TempDir(), "checkout-v2")
	if err != nil {
		t.Fatalf("NewPersistence failed: %v", err)
	}
	store := state.NewStore(p)
	if err := store.InitTasks([]models.Task{{ID: "a", Level: 1}, {ID: "b", Level: 1}}); err != nil {
		t.Fatalf("InitTasks failed: %v", err)
	}
	return store
}

func worktreeFor(base string) func(int) (string, string) {
	return func(workerID int) (string, string) {
		return filepath.Join(base, "worker"), models.WorkerBranch("checkout-v2", workerID)
	}
}

func TestDispatchReadyClaimsEachTaskOnceSpawned(t *testing.T) {
	launcher := NewProcessWorkerLauncher("sh", "-c", "sleep 0.3")
	store := newDispatchStore(t)
	d := NewDispatcher(launcher, store, "checkout-v2", worktreeFor(t.TempDir()))

	results, err := d.DispatchReady(context.Background(), []string{"a", "b"}, 2)
	if err != nil {
		t.Fatalf("DispatchReady failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 dispatch results, got %d", len(results))
	}
	for _, r := range results {
		if r.err != nil {
			t.Errorf("task %s: unexpected dispatch error: %v", r.taskID, r.err)
		}
	}

	fs, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	for _, id := range []string{"a", "b"} {
		if fs.Tasks[id].Status != models.TaskClaimed {
			t.Errorf("expected task %s to be claimed, got %v", id, fs.Tasks[id].Status)
		}
	}
}

func TestDispatchReadyBoundedByFreeSlots(t *testing.T) {
	launcher := NewProcessWorkerLauncher("sh", "-c", "sleep 0.3")
	store := newDispatchStore(t)
	d := NewDispatcher(launcher, store, "checkout-v2", worktreeFor(t.TempDir()))

	results, err := d.DispatchReady(context.Background(), []string{"a", "b"}, 1)
	if err != nil {
		t.Fatalf("DispatchReady failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected only 1 dispatch result with maxConcurrency=1, got %d", len(results))
	}
}

func TestDispatchReadyNoopOnEmptyReadyList(t *testing.T) {
	launcher := NewProcessWorkerLauncher("sh", "-c", "true")
	store := newDispatchStore(t)
	d := NewDispatcher(launcher, store, "checkout-v2", worktreeFor(t.TempDir()))

	results, err := d.DispatchReady(context.Background(), nil, 2)
	if err != nil {
		t.Fatalf("DispatchReady failed: %v", err)
	}
	if results != nil {
		t.Fatalf("expected nil results for an empty ready list, got %v", results)
	}
}
