package executor

import (
	"errors"
	"testing"
	"time"

	"github.com/harrison/zerg/internal/models"
	"github.com/harrison/zerg/internal/state"
)

func newRetryFixture(t *testing.T, cfg RetryConfig) (*RetryManager, *state.Store, *LevelController) {
	t.Helper()
	p, err := state.NewPersistence(t.TempDir(), "checkout-v2")
	if err != nil {
		t.Fatalf("NewPersistence failed: %v", err)
	}
	store := state.NewStore(p)
	task := models.Task{ID: "a", Level: 1}
	if err := store.InitTasks([]models.Task{task}); err != nil {
		t.Fatalf("InitTasks failed: %v", err)
	}

	g, err := Validate([]models.Task{task})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	lc := NewLevelController(g)
	lc.Initialize()
	if _, err := lc.StartLevel(1); err != nil {
		t.Fatalf("StartLevel failed: %v", err)
	}
	lc.MarkTaskInProgress("a")

	return NewRetryManager(store, lc, cfg), store, lc
}

func TestBackoffStrategiesClampAndScale(t *testing.T) {
	exp := RetryConfig{Strategy: BackoffExponential, BaseSeconds: 2, MaxSeconds: 100}
	if d := exp.Backoff(1); d < 1800*time.Millisecond || d > 2200*time.Millisecond {
		t.Fatalf("expected ~2s for exponential attempt 1, got %v", d)
	}
	if d := exp.Backoff(3); d < 7200*time.Millisecond || d > 8800*time.Millisecond {
		t.Fatalf("expected ~8s for exponential attempt 3, got %v", d)
	}

	fixed := RetryConfig{Strategy: BackoffFixed, BaseSeconds: 5, MaxSeconds: 100}
	if d := fixed.Backoff(10); d < 4500*time.Millisecond || d > 5500*time.Millisecond {
		t.Fatalf("expected ~5s regardless of attempt for fixed, got %v", d)
	}

	linear := RetryConfig{Strategy: BackoffLinear, BaseSeconds: 2, MaxSeconds: 100}
	if d := linear.Backoff(3); d < 5400*time.Millisecond || d > 6600*time.Millisecond {
		t.Fatalf("expected ~6s for linear attempt 3, got %v", d)
	}

	clamped := RetryConfig{Strategy: BackoffExponential, BaseSeconds: 100, MaxSeconds: 10}
	if d := clamped.Backoff(10); d > 11*time.Second {
		t.Fatalf("expected backoff clamped near MaxSeconds, got %v", d)
	}
}

func TestHandleTaskFailureSchedulesRetryUnderMaxAttempts(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, Strategy: BackoffFixed, BaseSeconds: 0.01, MaxSeconds: 1}
	rm, store, _ := newRetryFixture(t, cfg)

	scheduled, err := rm.HandleTaskFailure("a", errors.New("flaky"))
	if err != nil {
		t.Fatalf("HandleTaskFailure failed: %v", err)
	}
	if !scheduled {
		t.Fatal("expected a retry to be scheduled under max attempts")
	}

	fs, _ := store.Load()
	if fs.Tasks["a"].Status != models.TaskWaitingRetry {
		t.Fatalf("expected waiting_retry status, got %v", fs.Tasks["a"].Status)
	}
	if fs.Tasks["a"].RetryCount != 1 {
		t.Fatalf("expected retry count 1, got %d", fs.Tasks["a"].RetryCount)
	}
}

func TestHandleTaskFailurePermanentAtMaxAttempts(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 1, Strategy: BackoffFixed, BaseSeconds: 0.01, MaxSeconds: 1}
	rm, store, lc := newRetryFixture(t, cfg)

	// Exhaust the one allowed retry first.
	if _, err := rm.HandleTaskFailure("a", errors.New("first")); err != nil {
		t.Fatalf("HandleTaskFailure failed: %v", err)
	}
	if err := store.SetTaskStatus("a", models.TaskInProgress, nil, nil); err != nil {
		t.Fatalf("SetTaskStatus failed: %v", err)
	}

	scheduled, err := rm.HandleTaskFailure("a", errors.New("second"))
	if err != nil {
		t.Fatalf("HandleTaskFailure failed: %v", err)
	}
	if scheduled {
		t.Fatal("expected the task to be marked permanently failed once max attempts is exceeded")
	}

	fs, _ := store.Load()
	if fs.Tasks["a"].Status != models.TaskFailed {
		t.Fatalf("expected failed status, got %v", fs.Tasks["a"].Status)
	}
	if lc.Status("a") != models.TaskFailed {
		t.Fatalf("expected the level controller to also record the failure, got %v", lc.Status("a"))
	}
}

func TestCheckRetryReadyTasksMovesElapsedTasksToPending(t *testing.T) {
	cfg := DefaultRetryConfig()
	rm, store, _ := newRetryFixture(t, cfg)

	if err := store.SetTaskStatus("a", models.TaskWaitingRetry, nil, nil); err != nil {
		t.Fatalf("SetTaskStatus failed: %v", err)
	}
	if err := store.SetTaskRetrySchedule("a", time.Now().UTC().Add(-time.Second)); err != nil {
		t.Fatalf("SetTaskRetrySchedule failed: %v", err)
	}

	ready, err := rm.CheckRetryReadyTasks()
	if err != nil {
		t.Fatalf("CheckRetryReadyTasks failed: %v", err)
	}
	if len(ready) != 1 || ready[0] != "a" {
		t.Fatalf("expected task 'a' ready, got %v", ready)
	}

	fs, _ := store.Load()
	if fs.Tasks["a"].Status != models.TaskPending {
		t.Fatalf("expected pending status, got %v", fs.Tasks["a"].Status)
	}
}

func TestCheckStaleTasksReapsViaHandleTaskFailure(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, Strategy: BackoffFixed, BaseSeconds: 0.01, MaxSeconds: 1, StaleTimeout: 0}
	rm, store, _ := newRetryFixture(t, cfg)
	if err := store.SetTaskStatus("a", models.TaskInProgress, nil, nil); err != nil {
		t.Fatalf("SetTaskStatus failed: %v", err)
	}

	stale, err := rm.CheckStaleTasks()
	if err != nil {
		t.Fatalf("CheckStaleTasks failed: %v", err)
	}
	if len(stale) != 1 || stale[0] != "a" {
		t.Fatalf("expected task 'a' reaped as stale, got %v", stale)
	}

	fs, _ := store.Load()
	if fs.Tasks["a"].Status != models.TaskWaitingRetry {
		t.Fatalf("expected the stale task to be rescheduled, got %v", fs.Tasks["a"].Status)
	}
}

func TestRetryTaskRejectsNonFailedStatus(t *testing.T) {
	cfg := DefaultRetryConfig()
	rm, _, _ := newRetryFixture(t, cfg)

	if err := rm.RetryTask("a"); err == nil {
		t.Fatal("expected an error retrying a task that is not currently failed")
	}
}

func TestRetryAllFailedRetriesOnlyFailedTasks(t *testing.T) {
	cfg := DefaultRetryConfig()
	rm, store, _ := newRetryFixture(t, cfg)
	errMsg := "boom"
	if err := store.SetTaskStatus("a", models.TaskFailed, nil, &errMsg); err != nil {
		t.Fatalf("SetTaskStatus failed: %v", err)
	}

	retried, err := rm.RetryAllFailed()
	if err != nil {
		t.Fatalf("RetryAllFailed failed: %v", err)
	}
	if len(retried) != 1 || retried[0] != "a" {
		t.Fatalf("expected task 'a' retried, got %v", retried)
	}

	fs, _ := store.Load()
	if fs.Tasks["a"].Status != models.TaskPending {
		t.Fatalf("expected pending status after manual retry, got %v", fs.Tasks["a"].Status)
	}
}
