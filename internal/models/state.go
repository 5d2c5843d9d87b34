package models

import "time"

// TaskState is the persisted view of a single task's progress, keyed by
// task id inside FeatureState.Tasks.
type TaskState struct {
	Status       TaskStatus `json:"status"`
	Level        int        `json:"level"`
	WorkerID     *int       `json:"worker_id"`
	StartedAt    *time.Time `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	ClaimedAt    *time.Time `json:"claimed_at"`
	RetryCount   int        `json:"retry_count"`
	NextRetryAt  *time.Time `json:"next_retry_at"`
	DurationMs   *int64     `json:"duration_ms"`
	Error        *string    `json:"error"`
}

// WorkerState is the persisted view of a worker.
type WorkerState struct {
	Status         WorkerStatus `json:"status"`
	Branch         string       `json:"branch"`
	CurrentTask    *string      `json:"current_task"`
	TasksCompleted int          `json:"tasks_completed"`
	ContextUsage   float64      `json:"context_usage"`
	Port           *int         `json:"port"`
}

// LevelState is the persisted view of one level's progress and merge state.
type LevelState struct {
	Status        LevelStatus  `json:"status"`
	MergeStatus   *MergeStatus `json:"merge_status"`
	MergeCommit   *string      `json:"merge_commit"`
	StartedAt     *time.Time   `json:"started_at"`
	CompletedAt   *time.Time   `json:"completed_at"`
	TotalTasks    int          `json:"total_tasks"`
	CompletedTasks int         `json:"completed_tasks"`
	FailedTasks   int          `json:"failed_tasks"`
	InProgress    int          `json:"in_progress_tasks"`
}

// ExecutionEvent is one append-only entry in the feature's audit trail.
type ExecutionEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	Event     string         `json:"event"`
	Data      map[string]any `json:"data,omitempty"`
}

// FeatureState is the complete durable document for one feature build,
// persisted at <state_dir>/<feature>.json (spec.md §6).
type FeatureState struct {
	Feature       string                 `json:"feature"`
	StartedAt     time.Time              `json:"started_at"`
	CurrentLevel  int                    `json:"current_level"`
	Tasks         map[string]*TaskState  `json:"tasks"`
	Workers       map[string]*WorkerState `json:"workers"`
	Levels        map[string]*LevelState `json:"levels"`
	ExecutionLog  []ExecutionEvent       `json:"execution_log"`
	Metrics       map[string]any         `json:"metrics"`
	Paused        bool                   `json:"paused"`
	Error         *string                `json:"error"`
}

// NewFeatureState returns the initial state document for a feature that has
// no on-disk state yet (spec.md §4.4).
func NewFeatureState(feature string) *FeatureState {
	return &FeatureState{
		Feature:      feature,
		StartedAt:    time.Now().UTC(),
		CurrentLevel: 0,
		Tasks:        make(map[string]*TaskState),
		Workers:      make(map[string]*WorkerState),
		Levels:       make(map[string]*LevelState),
		ExecutionLog: []ExecutionEvent{},
	}
}
