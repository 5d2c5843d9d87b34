package executor

import (
	"context"
	"time"

	"github.com/harrison/zerg/internal/metrics"
	"github.com/harrison/zerg/internal/models"
	"github.com/harrison/zerg/internal/state"
)

// OrchestratorConfig bounds one feature build's run loop.
type OrchestratorConfig struct {
	Feature            string
	Target             string
	MaxConcurrency     int
	ReconcileInterval  time.Duration
	TickInterval       time.Duration
	GracefulTerminate  time.Duration
	PreMergeGates      []Gate
	PostMergeGates     []Gate
}

// Orchestrator is the top-level loop described in spec.md §4.10: advance
// levels, dispatch ready tasks, drive reconciliation, trigger merges, and
// handle pause/stop.
type Orchestrator struct {
	cfg        OrchestratorConfig
	store      *state.Store
	graph      *Graph
	level      *LevelController
	retry      *RetryManager
	reconciler *Reconciler
	dispatcher *Dispatcher
	merger     *MergeCoordinator
	launcher   WorkerLauncher

	lastReconcile time.Time
	onLevelComplete []func(level int, commit *string)
	metrics         *metrics.Registry
}

// NewOrchestrator wires the full set of collaborators for one feature.
func NewOrchestrator(cfg OrchestratorConfig, store *state.Store, graph *Graph, launcher WorkerLauncher, merger *MergeCoordinator, worktree func(int) (string, string)) *Orchestrator {
	level := NewLevelController(graph)
	level.Initialize()
	retry := NewRetryManager(store, level, DefaultRetryConfig())
	reconciler := NewReconciler(store, level, retry)
	dispatcher := NewDispatcher(launcher, store, cfg.Feature, worktree)

	return &Orchestrator{
		cfg:        cfg,
		store:      store,
		graph:      graph,
		level:      level,
		retry:      retry,
		reconciler: reconciler,
		dispatcher: dispatcher,
		merger:     merger,
		launcher:   launcher,
	}
}

// OnLevelComplete registers a callback invoked after a level's merge
// succeeds and the level advances. Spec.md §4.10 item 6c treats these as
// opaque, out-of-scope plugins.
func (o *Orchestrator) OnLevelComplete(fn func(level int, commit *string)) {
	o.onLevelComplete = append(o.onLevelComplete, fn)
}

// SetMetrics wires a Prometheus registry that gets refreshed from the
// feature state on every tick of Run's loop (spec.md §6).
func (o *Orchestrator) SetMetrics(r *metrics.Registry) {
	o.metrics = r
}

// Run drives the loop until every level is resolved and no further tasks
// exist, or ctx is cancelled / stop fires.
func (o *Orchestrator) Run(ctx context.Context, stop <-chan struct{}) error {
	if _, err := o.level.StartLevel(o.graph.LevelNumbers()[0]); err != nil {
		return err
	}

	ticker := time.NewTicker(o.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return o.handleStop(ctx)
		case <-ctx.Done():
			return o.handleStop(ctx)
		case <-ticker.C:
		}

		fs, err := o.store.Load()
		if err != nil {
			return err
		}
		o.updateMetrics(fs)
		if fs.Paused {
			continue
		}

		if err := o.tick(ctx); err != nil {
			return err
		}

		fs, err = o.store.Load()
		if err != nil {
			return err
		}
		o.updateMetrics(fs)
		if fs.Paused {
			continue
		}

		if o.level.AllLevelsResolved() && o.noRemainingTasks(fs) {
			return nil
		}
	}
}

// updateMetrics is a no-op until SetMetrics has been called; the Metrics
// Exporter is optional (spec.md §6, metrics_port = 0 disables it).
func (o *Orchestrator) updateMetrics(fs *models.FeatureState) {
	if o.metrics == nil {
		return
	}
	o.metrics.UpdateFromState(fs)
}

func (o *Orchestrator) tick(ctx context.Context) error {
	if err := o.reconciler.SyncFromDisk(); err != nil {
		return err
	}

	if time.Since(o.lastReconcile) >= o.cfg.ReconcileInterval {
		active := o.activeWorkerIDs()
		if err := o.reconciler.ReconcilePeriodic(active); err != nil {
			return err
		}
		if err := o.reconciler.ReassignStrandedTasks(active); err != nil {
			return err
		}
		o.lastReconcile = time.Now()
	}

	if _, err := o.retry.CheckRetryReadyTasks(); err != nil {
		return err
	}
	if _, err := o.retry.CheckStaleTasks(); err != nil {
		return err
	}

	current := o.level.CurrentLevel()
	if o.level.IsLevelResolved(current) {
		return o.resolveLevel(ctx, current)
	}

	completed := o.completedSet()
	ready := o.graph.GetReadyTasks(current, completed)
	if len(ready) > 0 {
		if _, err := o.dispatcher.DispatchReady(ctx, ready, o.cfg.MaxConcurrency); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) resolveLevel(ctx context.Context, level int) error {
	active := o.activeWorkerIDs()
	if err := o.reconciler.ReconcileLevelTransition(level, active); err != nil {
		return err
	}

	branches := o.workerBranchesForLevel(level)
	result := o.merger.FullMergeFlow(ctx, o.cfg.Feature, level, branches, o.cfg.Target, o.cfg.PreMergeGates, o.cfg.PostMergeGates)

	switch {
	case result.Success:
		status := models.MergeComplete
		if err := o.store.SetLevelMergeStatus(level, status, result.MergeCommit); err != nil {
			return err
		}
		next := o.level.AdvanceLevel()
		if err := o.store.SetCurrentLevel(next); err != nil {
			return err
		}
		for _, fn := range o.onLevelComplete {
			fn(level, result.MergeCommit)
		}
		return nil
	case isConflict(result.Error):
		if err := o.store.SetLevelMergeStatus(level, models.MergeConflict, nil); err != nil {
			return err
		}
		errMsg := result.Error
		return o.store.SetPaused(true, &errMsg)
	default:
		if err := o.store.SetLevelMergeStatus(level, models.MergeFailed, nil); err != nil {
			return err
		}
		errMsg := result.Error
		return o.store.SetPaused(true, &errMsg)
	}
}

func isConflict(msg string) bool {
	return len(msg) >= 15 && msg[:15] == "Merge conflict:"
}

// handleStop terminates all workers (graceful then force) and marks the
// build paused before exiting.
func (o *Orchestrator) handleStop(ctx context.Context) error {
	o.launcher.TerminateAll(ctx, o.cfg.GracefulTerminate)
	return o.store.SetPaused(true, nil)
}

func (o *Orchestrator) activeWorkerIDs() map[int]bool {
	active := make(map[int]bool)
	for id, handle := range o.launcher.GetAllWorkers() {
		if o.launcher.Monitor(id).Alive() {
			active[handle.WorkerID] = true
		}
	}
	return active
}

func (o *Orchestrator) completedSet() map[string]bool {
	fs, err := o.store.Load()
	if err != nil {
		return nil
	}
	completed := make(map[string]bool)
	for id, ts := range fs.Tasks {
		if ts.Status == models.TaskComplete {
			completed[id] = true
		}
	}
	return completed
}

func (o *Orchestrator) noRemainingTasks(fs *models.FeatureState) bool {
	for _, ts := range fs.Tasks {
		if !ts.Status.IsTerminal() {
			return false
		}
	}
	return true
}

func (o *Orchestrator) workerBranchesForLevel(level int) []string {
	var branches []string
	for _, id := range o.graph.GetLevelTasks(level) {
		fs, err := o.store.Load()
		if err != nil {
			continue
		}
		ts, ok := fs.Tasks[id]
		if !ok || ts.WorkerID == nil {
			continue
		}
		branches = append(branches, models.WorkerBranch(o.cfg.Feature, *ts.WorkerID))
	}
	return dedupe(branches)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
