package models

// TaskStatus is the state machine position of a Task (spec.md §4.2).
type TaskStatus string

const (
	TaskTodo          TaskStatus = "todo"
	TaskPending        TaskStatus = "pending"
	TaskClaimed        TaskStatus = "claimed"
	TaskInProgress     TaskStatus = "in_progress"
	TaskComplete       TaskStatus = "complete"
	TaskFailed         TaskStatus = "failed"
	TaskWaitingRetry   TaskStatus = "waiting_retry"
	TaskBlocked        TaskStatus = "blocked"
	TaskPaused         TaskStatus = "paused"
)

// IsTerminal reports whether the status cannot transition further on its own
// (complete/failed count toward level resolution).
func (s TaskStatus) IsTerminal() bool {
	return s == TaskComplete || s == TaskFailed
}

// CanClaim reports whether a task in this status is eligible for claim_task.
func (s TaskStatus) CanClaim() bool {
	return s == TaskTodo || s == TaskPending
}

// WorkerStatus is the lifecycle position of a Worker (spec.md §3).
type WorkerStatus string

const (
	WorkerInitializing  WorkerStatus = "initializing"
	WorkerReady         WorkerStatus = "ready"
	WorkerRunning       WorkerStatus = "running"
	WorkerIdle          WorkerStatus = "idle"
	WorkerCheckpointing WorkerStatus = "checkpointing"
	WorkerStopping      WorkerStatus = "stopping"
	WorkerStopped       WorkerStatus = "stopped"
	WorkerCrashed       WorkerStatus = "crashed"
	WorkerBlocked       WorkerStatus = "blocked"
	WorkerStalled       WorkerStatus = "stalled"
)

// Alive reports whether the worker counts toward in-use capacity.
func (s WorkerStatus) Alive() bool {
	switch s {
	case WorkerRunning, WorkerIdle, WorkerInitializing, WorkerReady:
		return true
	default:
		return false
	}
}

// LevelStatus is the Level's own progress status.
type LevelStatus string

const (
	LevelPending  LevelStatus = "pending"
	LevelRunning  LevelStatus = "running"
	LevelComplete LevelStatus = "complete"
)

// MergeStatus is the Level's merge-coordinator progress status (spec.md §4.7).
type MergeStatus string

const (
	MergePending    MergeStatus = "pending"
	MergeWaiting    MergeStatus = "waiting"
	MergeCollecting MergeStatus = "collecting"
	MergeMerging    MergeStatus = "merging"
	MergeValidating MergeStatus = "validating"
	MergeRebasing   MergeStatus = "rebasing"
	MergeComplete   MergeStatus = "complete"
	MergeConflict   MergeStatus = "conflict"
	MergeFailed     MergeStatus = "failed"
)

// GateOutcome classifies the result of a single quality gate run.
type GateOutcome string

const (
	GatePass    GateOutcome = "pass"
	GateFail    GateOutcome = "fail"
	GateTimeout GateOutcome = "timeout"
	GateSkip    GateOutcome = "skip"
	GateError   GateOutcome = "error"
)
