package executor

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/harrison/zerg/internal/models"
	"github.com/harrison/zerg/internal/state"
)

// BackoffStrategy names the delay curve used between retries.
type BackoffStrategy string

const (
	BackoffExponential BackoffStrategy = "exponential"
	BackoffLinear      BackoffStrategy = "linear"
	BackoffFixed       BackoffStrategy = "fixed"
)

// RetryConfig bounds the Retry Manager's behavior (spec.md §4.6).
type RetryConfig struct {
	MaxAttempts        int
	Strategy           BackoffStrategy
	BaseSeconds        float64
	MaxSeconds         float64
	StaleTimeout       time.Duration
}

// DefaultRetryConfig mirrors spec.md's stated defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		Strategy:     BackoffExponential,
		BaseSeconds:  2,
		MaxSeconds:   300,
		StaleTimeout: 600 * time.Second,
	}
}

// Backoff computes the delay before attempt number `attempt` (1-indexed),
// clamped to MaxSeconds and jittered by ±10%, floored at 0.
func (c RetryConfig) Backoff(attempt int) time.Duration {
	var seconds float64
	switch c.Strategy {
	case BackoffLinear:
		seconds = c.BaseSeconds * float64(attempt)
	case BackoffFixed:
		seconds = c.BaseSeconds
	default:
		seconds = c.BaseSeconds * float64(int64(1)<<uint(attempt-1))
	}
	if c.MaxSeconds > 0 && seconds > c.MaxSeconds {
		seconds = c.MaxSeconds
	}
	jitter := seconds * 0.10 * (2*rand.Float64() - 1)
	seconds += jitter
	if seconds < 0 {
		seconds = 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// RetryManager implements spec.md §4.6's failure-handling and stale-reap
// policy atop the typed State Store.
type RetryManager struct {
	store  *state.Store
	level  *LevelController
	config RetryConfig
}

// NewRetryManager builds a manager bound to one feature's store and level
// controller.
func NewRetryManager(store *state.Store, level *LevelController, cfg RetryConfig) *RetryManager {
	return &RetryManager{store: store, level: level, config: cfg}
}

// HandleTaskFailure is invoked on verification failure or stale reap. It
// either schedules a retry (returns true) or marks the task permanently
// failed (returns false).
func (r *RetryManager) HandleTaskFailure(taskID string, cause error) (scheduled bool, err error) {
	fs, err := r.store.Load()
	if err != nil {
		return false, err
	}
	ts, ok := fs.Tasks[taskID]
	if !ok {
		return false, fmt.Errorf("unknown task %q", taskID)
	}
	count := ts.RetryCount

	if count < r.config.MaxAttempts {
		delay := r.config.Backoff(count + 1)
		nextReady := time.Now().UTC().Add(delay)
		if _, err := r.store.IncrementTaskRetry(taskID, nextReady); err != nil {
			return false, err
		}
		if err := r.store.SetTaskStatus(taskID, models.TaskWaitingRetry, nil, nil); err != nil {
			return false, err
		}
		if err := r.store.AppendEvent("task_retry_scheduled", map[string]any{
			"task_id": taskID, "attempt": count + 1, "delay_seconds": delay.Seconds(), "next_ready": nextReady,
		}); err != nil {
			return false, err
		}
		return true, nil
	}

	causeStr := ""
	if cause != nil {
		causeStr = cause.Error()
	}
	r.level.MarkTaskFailed(taskID, cause)
	if err := r.store.SetTaskStatus(taskID, models.TaskFailed, nil, &causeStr); err != nil {
		return false, err
	}
	if err := r.store.AppendEvent("task_failed_permanent", map[string]any{
		"task_id": taskID, "retry_count": count, "error": causeStr,
	}); err != nil {
		return false, err
	}
	return false, nil
}

// CheckRetryReadyTasks moves every waiting_retry task whose backoff has
// elapsed back to pending.
func (r *RetryManager) CheckRetryReadyTasks() ([]string, error) {
	ready, err := r.store.GetTasksReadyForRetry()
	if err != nil {
		return nil, err
	}
	for _, id := range ready {
		if err := r.store.SetTaskStatus(id, models.TaskPending, nil, nil); err != nil {
			return nil, err
		}
		if err := r.store.AppendEvent("task_retry_ready", map[string]any{"task_id": id}); err != nil {
			return nil, err
		}
	}
	return ready, nil
}

// CheckStaleTasks reaps in_progress tasks that have exceeded the
// configured stale timeout, routing each through HandleTaskFailure.
func (r *RetryManager) CheckStaleTasks() ([]string, error) {
	stale, err := r.store.GetStaleInProgressTasks(r.config.StaleTimeout)
	if err != nil {
		return nil, err
	}
	for _, id := range stale {
		elapsed := r.config.StaleTimeout
		if fs, err := r.store.Load(); err == nil {
			if ts, ok := fs.Tasks[id]; ok && ts.StartedAt != nil {
				elapsed = time.Since(*ts.StartedAt)
			}
		}
		if err := r.store.AppendEvent("task_stale_detected", map[string]any{
			"task_id": id, "elapsed_seconds": elapsed.Seconds(),
		}); err != nil {
			return nil, err
		}
		cause := fmt.Errorf("task stale: in_progress for %ds", int(elapsed.Seconds()))
		if _, err := r.HandleTaskFailure(id, cause); err != nil {
			return nil, err
		}
	}
	return stale, nil
}

// RetryTask is the manual-retry entrypoint: only valid when the task is
// currently failed.
func (r *RetryManager) RetryTask(taskID string) error {
	fs, err := r.store.Load()
	if err != nil {
		return err
	}
	ts, ok := fs.Tasks[taskID]
	if !ok {
		return fmt.Errorf("unknown task %q", taskID)
	}
	if ts.Status != models.TaskFailed {
		return fmt.Errorf("task %s: cannot manually retry from status %q", taskID, ts.Status)
	}
	if err := r.store.ResetTaskRetry(taskID); err != nil {
		return err
	}
	return r.store.SetTaskStatus(taskID, models.TaskPending, nil, nil)
}

// RetryAllFailed enumerates every failed task and retries it.
func (r *RetryManager) RetryAllFailed() ([]string, error) {
	fs, err := r.store.Load()
	if err != nil {
		return nil, err
	}
	var retried []string
	for id, ts := range fs.Tasks {
		if ts.Status != models.TaskFailed {
			continue
		}
		if err := r.RetryTask(id); err != nil {
			return retried, err
		}
		retried = append(retried, id)
	}
	return retried, nil
}
