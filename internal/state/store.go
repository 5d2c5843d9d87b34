package state

import (
	"fmt"
	"time"

	"github.com/harrison/zerg/internal/models"
)

// Store is the typed view over Persistence described in spec.md §4.5. All
// writes go through Persistence.AtomicUpdate; all reads take Persistence.Load.
type Store struct {
	p *Persistence
}

// NewStore wraps a Persistence in the typed Store API.
func NewStore(p *Persistence) *Store {
	return &Store{p: p}
}

// Load returns the current feature state.
func (s *Store) Load() (*models.FeatureState, error) {
	return s.p.Load()
}

// TryLoad is Load's non-blocking counterpart (see Persistence.TryLoad).
func (s *Store) TryLoad() (fs *models.FeatureState, ok bool, err error) {
	return s.p.TryLoad()
}

// InitTasks seeds the state document with one TaskState per task on first
// run; existing task states are left untouched.
func (s *Store) InitTasks(tasks []models.Task) error {
	return s.p.AtomicUpdate(func(fs *models.FeatureState) error {
		for _, t := range tasks {
			if _, ok := fs.Tasks[t.ID]; ok {
				continue
			}
			fs.Tasks[t.ID] = &models.TaskState{Status: models.TaskTodo, Level: t.Level}
		}
		return nil
	})
}

// SetTaskStatus transitions a task's status, stamping started_at,
// completed_at, or claimed_at as appropriate (spec.md §4.5).
func (s *Store) SetTaskStatus(id string, status models.TaskStatus, workerID *int, taskErr *string) error {
	return s.p.AtomicUpdate(func(fs *models.FeatureState) error {
		ts, ok := fs.Tasks[id]
		if !ok {
			return fmt.Errorf("unknown task %q", id)
		}
		now := time.Now().UTC()
		ts.Status = status
		if workerID != nil {
			ts.WorkerID = workerID
		}
		if taskErr != nil {
			ts.Error = taskErr
		}
		switch status {
		case models.TaskInProgress:
			ts.StartedAt = &now
		case models.TaskComplete:
			ts.CompletedAt = &now
			if ts.StartedAt != nil {
				d := now.Sub(*ts.StartedAt).Milliseconds()
				ts.DurationMs = &d
			}
		case models.TaskClaimed:
			if ts.ClaimedAt == nil {
				ts.ClaimedAt = &now
			}
		}
		return s.appendEventLocked(fs, "task_status_changed", map[string]any{
			"task_id": id, "status": string(status),
		})
	})
}

// ClaimTask is the atomic test-and-set described in spec.md §4.5: it
// succeeds only when the task's current status is TODO or PENDING.
func (s *Store) ClaimTask(id string, workerID int) (bool, error) {
	claimed := false
	err := s.p.AtomicUpdate(func(fs *models.FeatureState) error {
		ts, ok := fs.Tasks[id]
		if !ok {
			return fmt.Errorf("unknown task %q", id)
		}
		if !ts.Status.CanClaim() {
			return nil
		}
		now := time.Now().UTC()
		ts.Status = models.TaskClaimed
		wid := workerID
		ts.WorkerID = &wid
		ts.ClaimedAt = &now
		claimed = true
		return s.appendEventLocked(fs, "task_claimed", map[string]any{"task_id": id, "worker_id": workerID})
	})
	return claimed, err
}

// ReleaseTask clears the worker assignment on a task if workerID owns it.
// Silent (no error) if the task is missing or owned by someone else.
func (s *Store) ReleaseTask(id string, workerID int) error {
	return s.p.AtomicUpdate(func(fs *models.FeatureState) error {
		ts, ok := fs.Tasks[id]
		if !ok {
			return nil
		}
		if ts.WorkerID == nil || *ts.WorkerID != workerID {
			return nil
		}
		ts.WorkerID = nil
		return nil
	})
}

// IncrementTaskRetry bumps the retry counter and records the next ready
// timestamp, returning the new count.
func (s *Store) IncrementTaskRetry(id string, nextRetryAt time.Time) (int, error) {
	var count int
	err := s.p.AtomicUpdate(func(fs *models.FeatureState) error {
		ts, ok := fs.Tasks[id]
		if !ok {
			return fmt.Errorf("unknown task %q", id)
		}
		ts.RetryCount++
		ts.NextRetryAt = &nextRetryAt
		count = ts.RetryCount
		return nil
	})
	return count, err
}

// SetTaskRetrySchedule records the next-ready moment without bumping the count.
func (s *Store) SetTaskRetrySchedule(id string, at time.Time) error {
	return s.p.AtomicUpdate(func(fs *models.FeatureState) error {
		ts, ok := fs.Tasks[id]
		if !ok {
			return fmt.Errorf("unknown task %q", id)
		}
		ts.NextRetryAt = &at
		return nil
	})
}

// ResetTaskRetry clears a task's retry count and schedule (manual retry).
func (s *Store) ResetTaskRetry(id string) error {
	return s.p.AtomicUpdate(func(fs *models.FeatureState) error {
		ts, ok := fs.Tasks[id]
		if !ok {
			return fmt.Errorf("unknown task %q", id)
		}
		ts.RetryCount = 0
		ts.NextRetryAt = nil
		ts.Error = nil
		return nil
	})
}

// GetTasksReadyForRetry returns ids whose status is waiting_retry and
// whose next_retry_at has elapsed.
func (s *Store) GetTasksReadyForRetry() ([]string, error) {
	fs, err := s.p.Load()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	var ready []string
	for id, ts := range fs.Tasks {
		if ts.Status == models.TaskWaitingRetry && ts.NextRetryAt != nil && !ts.NextRetryAt.After(now) {
			ready = append(ready, id)
		}
	}
	return ready, nil
}

// GetStaleInProgressTasks returns ids in_progress for longer than timeout.
func (s *Store) GetStaleInProgressTasks(timeout time.Duration) ([]string, error) {
	fs, err := s.p.Load()
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().UTC().Add(-timeout)
	var stale []string
	for id, ts := range fs.Tasks {
		if ts.Status == models.TaskInProgress && ts.StartedAt != nil && ts.StartedAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	return stale, nil
}

// AppendEvent appends an execution-log entry.
func (s *Store) AppendEvent(kind string, data map[string]any) error {
	return s.p.AtomicUpdate(func(fs *models.FeatureState) error {
		return s.appendEventLocked(fs, kind, data)
	})
}

func (s *Store) appendEventLocked(fs *models.FeatureState, kind string, data map[string]any) error {
	fs.ExecutionLog = append(fs.ExecutionLog, models.ExecutionEvent{
		Timestamp: time.Now().UTC(),
		Event:     kind,
		Data:      data,
	})
	return nil
}

// SetWorker upserts a worker's persisted view.
func (s *Store) SetWorker(id int, ws *models.WorkerState) error {
	return s.p.AtomicUpdate(func(fs *models.FeatureState) error {
		fs.Workers[fmt.Sprint(id)] = ws
		return nil
	})
}

// SetLevel upserts a level's persisted view.
func (s *Store) SetLevel(num int, ls *models.LevelState) error {
	return s.p.AtomicUpdate(func(fs *models.FeatureState) error {
		fs.Levels[fmt.Sprint(num)] = ls
		return nil
	})
}

// SetLevelMergeStatus updates just the merge-status fields of a level.
func (s *Store) SetLevelMergeStatus(num int, status models.MergeStatus, commit *string) error {
	return s.p.AtomicUpdate(func(fs *models.FeatureState) error {
		key := fmt.Sprint(num)
		ls, ok := fs.Levels[key]
		if !ok {
			ls = &models.LevelState{}
			fs.Levels[key] = ls
		}
		ls.MergeStatus = &status
		if commit != nil {
			ls.MergeCommit = commit
		}
		return nil
	})
}

// SetCurrentLevel updates the feature's current level pointer.
func (s *Store) SetCurrentLevel(n int) error {
	return s.p.AtomicUpdate(func(fs *models.FeatureState) error {
		fs.CurrentLevel = n
		return nil
	})
}

// SetPaused sets the global paused flag and optional recoverable error.
func (s *Store) SetPaused(paused bool, errMsg *string) error {
	return s.p.AtomicUpdate(func(fs *models.FeatureState) error {
		fs.Paused = paused
		fs.Error = errMsg
		return nil
	})
}
