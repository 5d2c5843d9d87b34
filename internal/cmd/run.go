package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/harrison/zerg/internal/analytics"
	"github.com/harrison/zerg/internal/config"
	"github.com/harrison/zerg/internal/executor"
	"github.com/harrison/zerg/internal/metrics"
	"github.com/harrison/zerg/internal/models"
	"github.com/harrison/zerg/internal/portalloc"
	"github.com/harrison/zerg/internal/state"
	"github.com/spf13/cobra"
)

// portsPerWorker is how many ephemeral ports the Port Allocator leases for
// each spawned worker (spec.md §4.11 names no fixed count; one covers the
// common case of a worker exposing a single local dev server).
const portsPerWorker = 1

// NewRunCommand builds `zerg run`, the orchestrator entrypoint.
func NewRunCommand() *cobra.Command {
	var (
		feature     string
		graphPath   string
		target      string
		maxWorkers  int
		configPath  string
		workerCmd   string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the orchestrator for a feature's task graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg.Feature = feature
			var flagTarget *string
			if target != "" {
				flagTarget = &target
			}
			var flagMax *int
			if cmd.Flags().Changed("max-workers") {
				flagMax = &maxWorkers
			}
			cfg.MergeWithFlags(flagMax, nil, nil, flagTarget)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			tasks, err := loadTaskGraph(graphPath)
			if err != nil {
				return fmt.Errorf("load task graph %s: %w", graphPath, err)
			}

			graph, err := executor.Validate(tasks)
			if err != nil {
				return fmt.Errorf("task graph invalid: %w", err)
			}

			if cfg.DryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "task graph valid: %d tasks across %d levels\n", len(tasks), len(graph.LevelNumbers()))
				return nil
			}

			persistence, err := state.NewPersistence(cfg.StateDir, cfg.Feature)
			if err != nil {
				return fmt.Errorf("open state store: %w", err)
			}
			store := state.NewStore(persistence)
			if err := store.InitTasks(tasks); err != nil {
				return fmt.Errorf("init task state: %w", err)
			}
			runID := uuid.New().String()
			if err := store.AppendEvent("build_started", map[string]any{"run_id": runID, "feature": cfg.Feature}); err != nil {
				return fmt.Errorf("record build_started event: %w", err)
			}

			ports := portalloc.New(cfg.PortRange.Start, cfg.PortRange.End)
			launcher := executor.NewProcessWorkerLauncher(workerCmd).WithPortAllocator(ports, portsPerWorker)
			gitRunner := executor.NewExecGitRunner(".")
			merger := executor.NewMergeCoordinator(gitRunner, executor.NewShellCommandRunner("."))

			worktree := func(workerID int) (string, string) {
				branch := models.WorkerBranch(cfg.Feature, workerID)
				path := filepath.Join(cfg.WorktreeDir, fmt.Sprintf("worker-%d", workerID))
				return path, branch
			}

			orch := executor.NewOrchestrator(executor.OrchestratorConfig{
				Feature:           cfg.Feature,
				Target:            cfg.TargetBranch,
				MaxConcurrency:    cfg.MaxConcurrency,
				ReconcileInterval: cfg.ReconcileInterval(),
				TickInterval:      cfg.TickInterval(),
				GracefulTerminate: cfg.GracefulTerminate(),
				PreMergeGates:     gatesForPhase(cfg.Gates, "pre"),
				PostMergeGates:    gatesForPhase(cfg.Gates, "post"),
			}, store, graph, launcher, merger, worktree)

			registry := metrics.New()
			orch.SetMetrics(registry)
			metricsSrv, err := registry.Serve(cfg.MetricsPort)
			if err != nil {
				return fmt.Errorf("start metrics listener: %w", err)
			}

			var analyticsStore *analytics.Store
			if cfg.AnalyticsDBPath != "" {
				analyticsStore, err = analytics.Open(cfg.AnalyticsDBPath)
				if err != nil {
					return fmt.Errorf("open analytics store: %w", err)
				}
				defer analyticsStore.Close()
				orch.OnLevelComplete(func(level int, commit *string) {
					recordLevelAnalytics(cmd, analyticsStore, store, graph, cfg.Feature, cfg.TargetBranch, level, commit)
				})
			}

			ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stopSignals()
			defer metrics.Shutdown(ctx, metricsSrv)

			stop := watchStopSentinel(ctx, filepath.Join(cfg.StateDir, "stop"))

			return orch.Run(ctx, stop)
		},
	}

	cmd.Flags().StringVar(&feature, "feature", "", "feature name (required)")
	cmd.Flags().StringVar(&graphPath, "graph", "tasks.json", "path to the task graph JSON file")
	cmd.Flags().StringVar(&target, "target", "", "target branch to merge completed levels into")
	cmd.Flags().IntVar(&maxWorkers, "max-workers", 0, "maximum concurrent workers")
	cmd.Flags().StringVar(&configPath, "config", ".zerg/config.yaml", "path to the zerg config file")
	cmd.Flags().StringVar(&workerCmd, "worker-cmd", "zerg-worker", "command used to spawn a worker process")
	cmd.MarkFlagRequired("feature")

	return cmd
}

func loadTaskGraph(path string) ([]models.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Tasks []models.Task `json:"tasks"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse task graph: %w", err)
	}
	return doc.Tasks, nil
}

// recordLevelAnalytics writes one level's task, level, and merge outcomes
// to the Analytics Store at the level-complete/merge-complete boundary
// (spec.md §2, §6). Best-effort: a write failure is reported on stderr and
// never aborts the build.
func recordLevelAnalytics(cmd *cobra.Command, analyticsStore *analytics.Store, stateStore *state.Store, graph *executor.Graph, feature, target string, level int, commit *string) {
	fs, err := stateStore.Load()
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "analytics: load state for level %d: %v\n", level, err)
		return
	}

	started := fs.StartedAt
	completed := time.Now().UTC()
	total, comp, failed := 0, 0, 0
	if ls, ok := fs.Levels[strconv.Itoa(level)]; ok && ls != nil {
		total, comp, failed = ls.TotalTasks, ls.CompletedTasks, ls.FailedTasks
		if ls.StartedAt != nil {
			started = *ls.StartedAt
		}
		if ls.CompletedAt != nil {
			completed = *ls.CompletedAt
		}
	}

	var branches []string
	for _, id := range graph.GetLevelTasks(level) {
		ts, ok := fs.Tasks[id]
		if !ok {
			continue
		}
		if ts.WorkerID != nil {
			branches = append(branches, models.WorkerBranch(feature, *ts.WorkerID))
		}
		if err := analyticsStore.RecordTaskRun(analytics.TaskRun{
			Feature: feature, TaskID: id, Level: level, WorkerID: ts.WorkerID,
			Status: string(ts.Status), RetryCount: ts.RetryCount, Error: ts.Error,
			RecordedAt: completed,
		}); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "analytics: record task run %s: %v\n", id, err)
		}
	}

	if err := analyticsStore.RecordLevelRun(analytics.LevelRun{
		Feature: feature, Level: level, TotalTasks: total, CompletedTasks: comp, FailedTasks: failed,
		StartedAt: started, CompletedAt: completed,
	}); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "analytics: record level run %d: %v\n", level, err)
	}

	if err := analyticsStore.RecordMergeRun(analytics.MergeRun{
		Feature: feature, Level: level, Target: target, Success: true, MergeCommit: commit,
		SourceBranches: dedupeStrings(branches), RecordedAt: completed,
	}); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "analytics: record merge run %d: %v\n", level, err)
	}
}

func dedupeStrings(in []string) []string {
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

func gatesForPhase(gates []config.GateConfig, phase string) []executor.Gate {
	var out []executor.Gate
	for _, g := range gates {
		if g.Phase != phase {
			continue
		}
		out = append(out, executor.Gate{
			Name:           g.Name,
			Command:        g.Command,
			TimeoutSeconds: g.TimeoutSeconds,
			Required:       g.Required,
		})
	}
	return out
}

// watchStopSentinel polls for a stop-request file written by `zerg stop`
// and closes the returned channel once it appears (or ctx is done).
func watchStopSentinel(ctx context.Context, path string) <-chan struct{} {
	stop := make(chan struct{})
	go func() {
		defer close(stop)
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := os.Stat(path); err == nil {
					os.Remove(path)
					return
				}
			}
		}
	}()
	return stop
}
