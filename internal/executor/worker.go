package executor

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/harrison/zerg/internal/models"
	"github.com/harrison/zerg/internal/portalloc"
)

// SpawnResult is returned by WorkerLauncher.Spawn (spec.md §4.8).
type SpawnResult struct {
	Success  bool
	WorkerID int
	Handle   *WorkerHandle
	Error    error
}

// WorkerHandle is an opaque reference to a running worker process.
type WorkerHandle struct {
	WorkerID   int
	Branch     string
	Worktree   string
	Ports      []int
	StartedAt time.Time
	cmd       *exec.Cmd
	ExitCode  *int
	done      chan struct{} // closed by reap once cmd.Wait() returns
}

// WorkerLauncher is the abstract contract for provisioning and supervising
// worker processes (spec.md §4.8).
type WorkerLauncher interface {
	Spawn(ctx context.Context, workerID int, feature, worktreePath, branch string) SpawnResult
	Monitor(workerID int) models.WorkerStatus
	Terminate(ctx context.Context, workerID int, graceful time.Duration) bool
	TerminateAll(ctx context.Context, graceful time.Duration) map[int]bool
	GetAllWorkers() map[int]*WorkerHandle
	GetStatusSummary() StatusSummary
}

// StatusSummary totals workers by status plus an "alive" count (running +
// idle + initializing + ready).
type StatusSummary struct {
	ByStatus map[models.WorkerStatus]int
	Alive    int
}

// ProcessWorkerLauncher spawns each worker as a real OS process attached
// to its pre-created git worktree. Commands run through exec.Command so
// the binary and its arguments stay swappable in tests.
type ProcessWorkerLauncher struct {
	command string
	args    []string

	ports          *portalloc.Allocator
	portsPerWorker int

	mu      sync.Mutex
	handles map[int]*WorkerHandle
}

// NewProcessWorkerLauncher configures the launcher with the command used
// to start a worker (e.g. the agent CLI binary).
func NewProcessWorkerLauncher(command string, args ...string) *ProcessWorkerLauncher {
	return &ProcessWorkerLauncher{command: command, args: args, handles: make(map[int]*WorkerHandle)}
}

// WithPortAllocator wires a Port Allocator into the launcher: Spawn leases
// portsPerWorker ports for each worker (seeded into its environment as
// ZERG_WORKER_PORTS), and reap releases them once the process exits (spec.md §3,
// §4.11: a Worker "owns its branch and port leases").
func (l *ProcessWorkerLauncher) WithPortAllocator(alloc *portalloc.Allocator, portsPerWorker int) *ProcessWorkerLauncher {
	l.ports = alloc
	l.portsPerWorker = portsPerWorker
	return l
}

// Spawn provisions a worker process attached to worktreePath/branch. A
// repeated spawn for the same id replaces the previous handle; the old
// process is stopped first.
func (l *ProcessWorkerLauncher) Spawn(ctx context.Context, workerID int, feature, worktreePath, branch string) SpawnResult {
	if err := models.ValidateWorkerBranch(feature, branch); err != nil {
		return SpawnResult{WorkerID: workerID, Error: err}
	}

	l.mu.Lock()
	if existing, ok := l.handles[workerID]; ok && existing.cmd != nil {
		l.mu.Unlock()
		l.Terminate(ctx, workerID, 5*time.Second)
		l.mu.Lock()
	}

	var ports []int
	if l.ports != nil && l.portsPerWorker > 0 {
		var err error
		ports, err = l.ports.AllocateForWorker(workerID, l.portsPerWorker)
		if err != nil {
			l.mu.Unlock()
			return SpawnResult{WorkerID: workerID, Error: fmt.Errorf("allocate ports for worker %d: %w", workerID, err)}
		}
	}

	cmd := exec.Command(l.command, l.args...)
	cmd.Dir = worktreePath
	env := append(cmd.Environ(),
		fmt.Sprintf("ZERG_WORKER_ID=%d", workerID),
		fmt.Sprintf("ZERG_FEATURE=%s", feature),
		fmt.Sprintf("ZERG_BRANCH=%s", branch),
	)
	if len(ports) > 0 {
		env = append(env, fmt.Sprintf("ZERG_WORKER_PORTS=%s", joinPorts(ports)))
	}
	cmd.Env = env

	handle := &WorkerHandle{
		WorkerID:  workerID,
		Branch:    branch,
		Worktree:  worktreePath,
		Ports:     ports,
		StartedAt: time.Now().UTC(),
		cmd:       cmd,
		done:      make(chan struct{}),
	}

	if err := cmd.Start(); err != nil {
		l.mu.Unlock()
		if l.ports != nil {
			l.ports.ReleaseForWorker(ports, workerID)
		}
		return SpawnResult{WorkerID: workerID, Error: fmt.Errorf("spawn worker %d: %w", workerID, err)}
	}

	l.handles[workerID] = handle
	l.mu.Unlock()

	go l.reap(workerID, cmd, handle)

	return SpawnResult{Success: true, WorkerID: workerID, Handle: handle}
}

func joinPorts(ports []int) string {
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = fmt.Sprintf("%d", p)
	}
	return strings.Join(parts, ",")
}

// reap is the sole caller of cmd.Wait(): it owns the exit race and closes
// handle.done so Terminate can observe completion without calling Wait()
// itself (two Wait() calls on the same *exec.Cmd race and the second
// always fails).
func (l *ProcessWorkerLauncher) reap(workerID int, cmd *exec.Cmd, handle *WorkerHandle) {
	err := cmd.Wait()
	close(handle.done)

	if l.ports != nil {
		l.ports.ReleaseForWorker(handle.Ports, workerID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	current, ok := l.handles[workerID]
	if !ok || current.cmd != cmd {
		return
	}
	code := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}
	current.ExitCode = &code
}

// Monitor returns the current status of a worker. Unknown ids are
// STOPPED; a process that exited non-zero is CRASHED.
func (l *ProcessWorkerLauncher) Monitor(workerID int) models.WorkerStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	handle, ok := l.handles[workerID]
	if !ok {
		return models.WorkerStopped
	}
	if handle.ExitCode == nil {
		return models.WorkerRunning
	}
	if *handle.ExitCode == 0 {
		return models.WorkerStopped
	}
	return models.WorkerCrashed
}

// Terminate signals a worker gracefully, then force-kills after graceful
// elapses. Idempotent; returns false for unknown ids.
func (l *ProcessWorkerLauncher) Terminate(ctx context.Context, workerID int, graceful time.Duration) bool {
	l.mu.Lock()
	handle, ok := l.handles[workerID]
	l.mu.Unlock()
	if !ok || handle.cmd == nil || handle.cmd.Process == nil {
		return false
	}

	_ = handle.cmd.Process.Signal(interruptSignal())

	select {
	case <-handle.done:
		return true
	case <-time.After(graceful):
		_ = handle.cmd.Process.Kill()
		<-handle.done
		return true
	case <-ctx.Done():
		_ = handle.cmd.Process.Kill()
		<-handle.done
		return true
	}
}

// TerminateAll terminates every known worker and reports per-id success.
func (l *ProcessWorkerLauncher) TerminateAll(ctx context.Context, graceful time.Duration) map[int]bool {
	l.mu.Lock()
	ids := make([]int, 0, len(l.handles))
	for id := range l.handles {
		ids = append(ids, id)
	}
	l.mu.Unlock()

	results := make(map[int]bool, len(ids))
	for _, id := range ids {
		results[id] = l.Terminate(ctx, id, graceful)
	}
	return results
}

// GetAllWorkers returns a snapshot of every known handle.
func (l *ProcessWorkerLauncher) GetAllWorkers() map[int]*WorkerHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[int]*WorkerHandle, len(l.handles))
	for id, h := range l.handles {
		out[id] = h
	}
	return out
}

// GetStatusSummary totals workers by status.
func (l *ProcessWorkerLauncher) GetStatusSummary() StatusSummary {
	l.mu.Lock()
	ids := make([]int, 0, len(l.handles))
	for id := range l.handles {
		ids = append(ids, id)
	}
	l.mu.Unlock()

	summary := StatusSummary{ByStatus: make(map[models.WorkerStatus]int)}
	for _, id := range ids {
		status := l.Monitor(id)
		summary.ByStatus[status]++
		if status.Alive() {
			summary.Alive++
		}
	}
	return summary
}

var _ WorkerLauncher = (*ProcessWorkerLauncher)(nil)
