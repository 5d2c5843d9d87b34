package executor

import (
	"testing"

	"github.com/harrison/zerg/internal/models"
)

func newLevelGraph(t *testing.T) *Graph {
	t.Helper()
	tasks := []models.Task{
		task("a", 1),
		task("b", 1),
		task("c", 2, "a", "b"),
	}
	g, err := Validate(tasks)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	return g
}

func TestStartLevelRejectsWhenPriorLevelUnresolved(t *testing.T) {
	g := newLevelGraph(t)
	lc := NewLevelController(g)
	lc.Initialize()

	if _, err := lc.StartLevel(2); err == nil {
		t.Fatal("expected an error starting level 2 before level 1 resolves")
	}
}

func TestStartLevelReturnsTaskIDs(t *testing.T) {
	g := newLevelGraph(t)
	lc := NewLevelController(g)
	lc.Initialize()

	ids, err := lc.StartLevel(1)
	if err != nil {
		t.Fatalf("StartLevel failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 task ids at level 1, got %v", ids)
	}
}

func TestMarkTaskCompleteReportsLevelCompletion(t *testing.T) {
	g := newLevelGraph(t)
	lc := NewLevelController(g)
	lc.Initialize()
	if _, err := lc.StartLevel(1); err != nil {
		t.Fatalf("StartLevel failed: %v", err)
	}

	lc.MarkTaskInProgress("a")
	lc.MarkTaskInProgress("b")

	if done := lc.MarkTaskComplete("a"); done {
		t.Fatal("level should not be complete after only one of two tasks finishes")
	}
	if done := lc.MarkTaskComplete("b"); !done {
		t.Fatal("level should be complete once both tasks finish")
	}

	if !lc.IsLevelComplete(1) {
		t.Fatal("expected level 1 to be complete")
	}
	if !lc.IsLevelResolved(1) {
		t.Fatal("a complete level is also resolved")
	}
}

func TestFailedTasksCountTowardResolutionNotCompletion(t *testing.T) {
	g := newLevelGraph(t)
	lc := NewLevelController(g)
	lc.Initialize()
	if _, err := lc.StartLevel(1); err != nil {
		t.Fatalf("StartLevel failed: %v", err)
	}

	lc.MarkTaskInProgress("a")
	lc.MarkTaskInProgress("b")
	lc.MarkTaskComplete("a")
	lc.MarkTaskFailed("b", nil)

	if lc.IsLevelComplete(1) {
		t.Fatal("a level with a failed task should never report complete")
	}
	if !lc.IsLevelResolved(1) {
		t.Fatal("a failed task should still count toward resolution")
	}
}

func TestCanAdvanceAndAdvanceLevel(t *testing.T) {
	g := newLevelGraph(t)
	lc := NewLevelController(g)
	lc.Initialize()
	if _, err := lc.StartLevel(1); err != nil {
		t.Fatalf("StartLevel failed: %v", err)
	}

	if lc.CanAdvance() {
		t.Fatal("should not be able to advance before level 1 resolves")
	}

	lc.MarkTaskInProgress("a")
	lc.MarkTaskInProgress("b")
	lc.MarkTaskComplete("a")
	lc.MarkTaskComplete("b")

	if !lc.CanAdvance() {
		t.Fatal("expected to be able to advance once level 1 resolves")
	}
	if next := lc.AdvanceLevel(); next != 2 {
		t.Fatalf("expected AdvanceLevel to move to level 2, got %d", next)
	}
	if lc.CurrentLevel() != 2 {
		t.Fatalf("expected CurrentLevel() == 2, got %d", lc.CurrentLevel())
	}
}

func TestResetTaskDecrementsCounterAndRestoresPending(t *testing.T) {
	g := newLevelGraph(t)
	lc := NewLevelController(g)
	lc.Initialize()
	if _, err := lc.StartLevel(1); err != nil {
		t.Fatalf("StartLevel failed: %v", err)
	}

	lc.MarkTaskInProgress("a")
	lc.MarkTaskFailed("a", nil)
	lc.MarkTaskInProgress("b")
	lc.MarkTaskComplete("b")
	if !lc.IsLevelResolved(1) {
		t.Fatal("expected level 1 resolved with one completed and one failed task")
	}

	lc.ResetTask("a")
	if lc.Status("a") != models.TaskPending {
		t.Fatalf("expected task 'a' reset to pending, got %v", lc.Status("a"))
	}
	if lc.IsLevelResolved(1) {
		t.Fatal("resetting a failed task should make the level unresolved again")
	}
}

func TestAllLevelsResolved(t *testing.T) {
	g := newLevelGraph(t)
	lc := NewLevelController(g)
	lc.Initialize()

	if _, err := lc.StartLevel(1); err != nil {
		t.Fatalf("StartLevel failed: %v", err)
	}
	lc.MarkTaskInProgress("a")
	lc.MarkTaskInProgress("b")
	lc.MarkTaskComplete("a")
	lc.MarkTaskComplete("b")
	lc.AdvanceLevel()

	if lc.AllLevelsResolved() {
		t.Fatal("level 2 has not started, should not be all resolved")
	}

	if _, err := lc.StartLevel(2); err != nil {
		t.Fatalf("StartLevel failed: %v", err)
	}
	lc.MarkTaskInProgress("c")
	lc.MarkTaskComplete("c")

	if !lc.AllLevelsResolved() {
		t.Fatal("expected all levels resolved once every task completes")
	}
}
