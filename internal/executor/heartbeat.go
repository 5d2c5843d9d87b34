package executor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Heartbeat is the small JSON document each worker writes at a regular
// interval (spec.md §6: worker_id, task_id, step, progress_pct,
// current_step, total_steps, step_states, ts).
type Heartbeat struct {
	WorkerID     int      `json:"worker_id"`
	TaskID       string   `json:"task_id,omitempty"`
	Step         string   `json:"step,omitempty"`
	ProgressPct  int      `json:"progress_pct"`
	CurrentStep  int      `json:"current_step"`
	TotalSteps   int      `json:"total_steps"`
	StepStates   []string `json:"step_states,omitempty"`
	Timestamp    string   `json:"ts"`
}

// WriteHeartbeat atomically writes a worker's heartbeat file.
func WriteHeartbeat(dir string, hb Heartbeat) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create heartbeat dir: %w", err)
	}
	hb.Timestamp = time.Now().UTC().Format(time.RFC3339)
	data, err := json.Marshal(hb)
	if err != nil {
		return fmt.Errorf("marshal heartbeat: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("worker-%d.json", hb.WorkerID))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write heartbeat: %w", err)
	}
	return os.Rename(tmp, path)
}

// LivenessState is the Heartbeat Monitor's classification of a worker.
type LivenessState string

const (
	LivenessFresh   LivenessState = "fresh"
	LivenessStale   LivenessState = "heartbeat_stale"
	LivenessStalled LivenessState = "stalled"
)

// HeartbeatMonitor watches a directory of heartbeat files via fsnotify and
// classifies each worker as fresh, stale, or stalled based on how long
// since its file last changed.
type HeartbeatMonitor struct {
	dir            string
	staleThreshold time.Duration
	stallThreshold time.Duration

	mu          sync.Mutex
	lastSeen    map[int]time.Time
	watcher     *fsnotify.Watcher
	onStale     func(workerID int)
	onStalled   func(workerID int)
}

// NewHeartbeatMonitor watches dir for heartbeat file writes. staleAfter is
// the first threshold (HEARTBEAT_STALE); stalledAfter is the second
// (STALLED).
func NewHeartbeatMonitor(dir string, staleAfter, stalledAfter time.Duration) (*HeartbeatMonitor, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create heartbeat dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch heartbeat dir: %w", err)
	}
	return &HeartbeatMonitor{
		dir:            dir,
		staleThreshold: staleAfter,
		stallThreshold: stalledAfter,
		lastSeen:       make(map[int]time.Time),
		watcher:        watcher,
	}, nil
}

// OnStale and OnStalled register callbacks invoked as workers cross each
// threshold (fired by Sweep on its caller's goroutine, with the monitor's
// mutex held).
func (m *HeartbeatMonitor) OnStale(fn func(workerID int))   { m.onStale = fn }
func (m *HeartbeatMonitor) OnStalled(fn func(workerID int)) { m.onStalled = fn }

// Run watches for heartbeat writes until stop is closed, updating
// last-seen timestamps. Callers should pair it with a periodic Sweep to
// detect staleness even when no new events arrive.
func (m *HeartbeatMonitor) Run(stop <-chan struct{}) {
	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if id, ok := workerIDFromHeartbeatPath(event.Name); ok {
				m.mu.Lock()
				m.lastSeen[id] = time.Now()
				m.mu.Unlock()
			}
		case <-m.watcher.Errors:
			continue
		case <-stop:
			return
		}
	}
}

// Sweep classifies every known worker's liveness against now, invoking
// onStale/onStalled as thresholds are crossed, and returns the current
// classification map.
func (m *HeartbeatMonitor) Sweep() map[int]LivenessState {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	states := make(map[int]LivenessState, len(m.lastSeen))
	for id, seen := range m.lastSeen {
		age := now.Sub(seen)
		switch {
		case age > m.stallThreshold:
			states[id] = LivenessStalled
			if m.onStalled != nil {
				m.onStalled(id)
			}
		case age > m.staleThreshold:
			states[id] = LivenessStale
			if m.onStale != nil {
				m.onStale(id)
			}
		default:
			states[id] = LivenessFresh
		}
	}
	return states
}

// Close stops the underlying fsnotify watcher.
func (m *HeartbeatMonitor) Close() error {
	return m.watcher.Close()
}

func workerIDFromHeartbeatPath(path string) (int, bool) {
	base := filepath.Base(path)
	var id int
	if _, err := fmt.Sscanf(base, "worker-%d.json", &id); err != nil {
		return 0, false
	}
	return id, true
}
