package executor

import (
	"fmt"

	"github.com/harrison/zerg/internal/models"
	"github.com/harrison/zerg/internal/state"
)

// Reconciler aligns the in-memory Level Controller with disk state, and
// reassigns tasks stranded by dead workers (spec.md §4.9).
type Reconciler struct {
	store *state.Store
	level *LevelController
	retry *RetryManager
}

// NewReconciler builds a Reconciler over the shared store, level
// controller, and retry manager for one feature.
func NewReconciler(store *state.Store, level *LevelController, retry *RetryManager) *Reconciler {
	return &Reconciler{store: store, level: level, retry: retry}
}

// SyncFromDisk mirrors disk task statuses into the in-memory Level
// Controller. Idempotent; this is how worker-written completions become
// visible to orchestration.
func (r *Reconciler) SyncFromDisk() error {
	fs, err := r.store.Load()
	if err != nil {
		return err
	}
	for id, ts := range fs.Tasks {
		current := r.level.Status(id)
		if current == ts.Status {
			continue
		}
		switch ts.Status {
		case models.TaskInProgress:
			if current != models.TaskInProgress {
				r.level.MarkTaskInProgress(id)
			}
		case models.TaskComplete:
			if current != models.TaskComplete {
				r.level.MarkTaskComplete(id)
			}
		case models.TaskFailed:
			if current != models.TaskFailed {
				r.level.MarkTaskFailed(id, fmt.Errorf("%s", derefString(ts.Error)))
			}
		}
	}
	return nil
}

// ReconcilePeriodic compares disk-state task statuses against the active
// worker set: any in_progress task owned by a dead worker is reset to
// pending with its worker assignment cleared.
func (r *Reconciler) ReconcilePeriodic(activeWorkerIDs map[int]bool) error {
	fs, err := r.store.Load()
	if err != nil {
		return err
	}
	for id, ts := range fs.Tasks {
		if ts.Status != models.TaskInProgress {
			continue
		}
		if ts.WorkerID != nil && activeWorkerIDs[*ts.WorkerID] {
			continue
		}
		if err := r.store.SetTaskStatus(id, models.TaskPending, nil, nil); err != nil {
			return err
		}
		if err := r.store.ReleaseTask(id, derefInt(ts.WorkerID)); err != nil {
			return err
		}
		r.level.ResetTask(id)
		if err := r.store.AppendEvent("task_reassigned_dead_worker", map[string]any{"task_id": id}); err != nil {
			return err
		}
	}
	return nil
}

// ReconcileLevelTransition ensures every task in level is terminal before
// advancing: in_progress tasks owned by dead workers are reaped via the
// retry manager, then level counters are recomputed by re-syncing.
func (r *Reconciler) ReconcileLevelTransition(level int, activeWorkerIDs map[int]bool) error {
	fs, err := r.store.Load()
	if err != nil {
		return err
	}
	for id, ts := range fs.Tasks {
		if ts.Level != level || ts.Status != models.TaskInProgress {
			continue
		}
		if ts.WorkerID != nil && activeWorkerIDs[*ts.WorkerID] {
			continue
		}
		if _, err := r.retry.HandleTaskFailure(id, fmt.Errorf("worker for task %s is no longer active", id)); err != nil {
			return err
		}
	}
	return r.SyncFromDisk()
}

// ReassignStrandedTasks clears the worker assignment on every pending or
// todo task currently assigned to a worker not in activeWorkerIDs, so a
// live worker can claim it.
func (r *Reconciler) ReassignStrandedTasks(activeWorkerIDs map[int]bool) error {
	fs, err := r.store.Load()
	if err != nil {
		return err
	}
	for id, ts := range fs.Tasks {
		if ts.Status != models.TaskPending && ts.Status != models.TaskTodo {
			continue
		}
		if ts.WorkerID == nil || activeWorkerIDs[*ts.WorkerID] {
			continue
		}
		if err := r.store.ReleaseTask(id, *ts.WorkerID); err != nil {
			return err
		}
	}
	return nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}
