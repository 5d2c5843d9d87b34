package executor

import (
	"context"
	"sync"

	"github.com/harrison/zerg/internal/models"
	"github.com/harrison/zerg/internal/state"
)

// dispatchResult carries the outcome of one spawn-and-claim attempt.
type dispatchResult struct {
	taskID   string
	workerID int
	err      error
}

// Dispatcher hands ready tasks to available workers: it spawns (or
// reuses) a worker for each task, bounded by the feature's configured
// concurrency, and claims the task once the worker is up. Mirrors the
// teacher's wave executor concurrency shape (semaphore channel + WaitGroup
// + buffered results channel) applied to worker spawning instead of
// in-process task execution.
type Dispatcher struct {
	launcher WorkerLauncher
	store    *state.Store
	feature  string
	worktree func(workerID int) (path, branch string)
}

// NewDispatcher builds a Dispatcher. worktree resolves the pre-created
// worktree path and branch name for a given worker id.
func NewDispatcher(launcher WorkerLauncher, store *state.Store, feature string, worktree func(int) (string, string)) *Dispatcher {
	return &Dispatcher{launcher: launcher, store: store, feature: feature, worktree: worktree}
}

// DispatchReady assigns each ready task id to a free worker slot (ids
// 1..maxConcurrency), spawning workers concurrently bounded by
// maxConcurrency minus the number already in use, and claims the task via
// the store once the worker is confirmed running.
func (d *Dispatcher) DispatchReady(ctx context.Context, ready []string, maxConcurrency int) ([]dispatchResult, error) {
	if len(ready) == 0 {
		return nil, nil
	}

	freeSlots := d.freeWorkerSlots(maxConcurrency)
	n := len(ready)
	if n > len(freeSlots) {
		n = len(freeSlots)
	}
	if n == 0 {
		return nil, nil
	}

	sem := make(chan struct{}, n)
	results := make(chan dispatchResult, n)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		taskID := ready[i]
		workerID := freeSlots[i]

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(taskID string, workerID int) {
			defer wg.Done()
			defer func() { <-sem }()

			path, branch := d.worktree(workerID)
			spawn := d.launcher.Spawn(ctx, workerID, d.feature, path, branch)
			if !spawn.Success {
				select {
				case results <- dispatchResult{taskID: taskID, workerID: workerID, err: spawn.Error}:
				case <-ctx.Done():
				}
				return
			}

			claimed, err := d.store.ClaimTask(taskID, workerID)
			if err == nil && !claimed {
				err = nil // another worker beat us to it; not an error
			}
			if err == nil && claimed {
				d.persistWorker(workerID, taskID, spawn)
			}
			select {
			case results <- dispatchResult{taskID: taskID, workerID: workerID, err: err}:
			case <-ctx.Done():
			}
		}(taskID, workerID)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]dispatchResult, 0, n)
	for r := range results {
		out = append(out, r)
	}
	return out, nil
}

// persistWorker records the worker's branch, leased port, and current task
// in the feature state once its spawn and claim are confirmed (spec.md §3:
// a Worker owns its branch and port leases).
func (d *Dispatcher) persistWorker(workerID int, taskID string, spawn SpawnResult) {
	var port *int
	branch := ""
	if spawn.Handle != nil {
		branch = spawn.Handle.Branch
		if len(spawn.Handle.Ports) > 0 {
			p := spawn.Handle.Ports[0]
			port = &p
		}
	}
	task := taskID
	_ = d.store.SetWorker(workerID, &models.WorkerState{
		Status:      models.WorkerRunning,
		Branch:      branch,
		CurrentTask: &task,
		Port:        port,
	})
}

// freeWorkerSlots returns worker ids 1..maxConcurrency not currently
// alive, per the Worker Launcher's status summary.
func (d *Dispatcher) freeWorkerSlots(maxConcurrency int) []int {
	busy := make(map[int]bool)
	for id, handle := range d.launcher.GetAllWorkers() {
		if d.launcher.Monitor(id).Alive() {
			busy[handle.WorkerID] = true
		}
	}
	var free []int
	for id := 1; id <= maxConcurrency; id++ {
		if !busy[id] {
			free = append(free, id)
		}
	}
	return free
}
