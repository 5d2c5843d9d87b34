package executor

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTaskErrorFormatsWithAndWithoutCause(t *testing.T) {
	bare := NewTaskError("t1", "verification failed", nil)
	if got := bare.Error(); got != "task t1: verification failed" {
		t.Fatalf("unexpected message: %q", got)
	}

	cause := errors.New("exit status 1")
	wrapped := NewTaskError("t1", "verification failed", cause)
	if got := wrapped.Error(); got != "task t1: verification failed: exit status 1" {
		t.Fatalf("unexpected message: %q", got)
	}
	if !errors.Is(wrapped, cause) {
		t.Fatal("expected TaskError to unwrap to its cause")
	}
}

func TestExecutionErrorAggregatesTaskErrors(t *testing.T) {
	ee := NewExecutionError("level")
	if ee.Phase != PhaseLevel {
		t.Fatalf("expected PhaseLevel, got %v", ee.Phase)
	}

	ee.TotalTasks = 3
	ee.AddTask(NewTaskError("a", "boom", nil))
	ee.AddTask(NewTaskError("b", "boom", nil))

	if ee.FailedTasks != 2 {
		t.Fatalf("expected 2 failed tasks, got %d", ee.FailedTasks)
	}
	if !IsExecutionError(ee) {
		t.Fatal("expected IsExecutionError to recognize its own type")
	}

	unwrapped := ee.Unwrap()
	if len(unwrapped) != 2 {
		t.Fatalf("expected Unwrap to expose 2 errors, got %d", len(unwrapped))
	}
}

func TestIsTaskErrorRecognizesWrappedErrors(t *testing.T) {
	te := NewTaskError("t1", "failed", nil)
	wrapped := errors.Join(errors.New("context"), te)
	if !IsTaskError(wrapped) {
		t.Fatal("expected IsTaskError to find a joined *TaskError")
	}
	if IsTaskError(errors.New("plain")) {
		t.Fatal("expected IsTaskError to reject an unrelated error")
	}
}

func TestTimeoutErrorUnwrapsToDeadlineExceeded(t *testing.T) {
	te := NewTimeoutError("gate-lint", 2*time.Second)
	if !IsTimeoutError(te) {
		t.Fatal("expected IsTimeoutError to recognize its own type")
	}
	if !errors.Is(te, context.DeadlineExceeded) {
		t.Fatal("expected TimeoutError to unwrap to context.DeadlineExceeded")
	}
	if !IsTimeoutError(context.DeadlineExceeded) {
		t.Fatal("expected IsTimeoutError to recognize a bare context.DeadlineExceeded")
	}
}

func TestExecutionPhaseString(t *testing.T) {
	cases := map[ExecutionPhase]string{
		PhaseGraph:         "graph",
		PhaseLevel:         "level",
		PhaseTask:          "task",
		PhaseMerge:         "merge",
		ExecutionPhase(99): "unknown",
	}
	for phase, want := range cases {
		if got := phase.String(); got != want {
			t.Errorf("phase %d: expected %q, got %q", phase, want, got)
		}
	}
}
