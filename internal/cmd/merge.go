package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/harrison/zerg/internal/config"
	"github.com/harrison/zerg/internal/executor"
	"github.com/harrison/zerg/internal/models"
	"github.com/harrison/zerg/internal/state"
	"github.com/spf13/cobra"
)

// NewMergeCommand builds `zerg merge <level>`, a manual re-trigger of one
// level's merge flow (e.g. after a paused conflict has been resolved by
// hand on the staging branch).
func NewMergeCommand() *cobra.Command {
	var (
		feature    string
		target     string
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "merge <level>",
		Short: "Re-run the merge flow for one level",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("level must be an integer: %w", err)
			}

			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg.Feature = feature
			if target != "" {
				cfg.TargetBranch = target
			}

			persistence, err := state.NewPersistence(cfg.StateDir, cfg.Feature)
			if err != nil {
				return fmt.Errorf("open state store: %w", err)
			}
			store := state.NewStore(persistence)

			fs, err := store.Load()
			if err != nil {
				return fmt.Errorf("load feature state: %w", err)
			}

			var branches []string
			seen := make(map[string]bool)
			for _, ts := range fs.Tasks {
				if ts.Level != level || ts.WorkerID == nil {
					continue
				}
				branch := models.WorkerBranch(cfg.Feature, *ts.WorkerID)
				if seen[branch] {
					continue
				}
				seen[branch] = true
				branches = append(branches, branch)
			}

			gitRunner := executor.NewExecGitRunner(".")
			merger := executor.NewMergeCoordinator(gitRunner, executor.NewShellCommandRunner("."))

			result := merger.FullMergeFlow(context.Background(), cfg.Feature, level, branches, cfg.TargetBranch,
				gatesForPhase(cfg.Gates, "pre"), gatesForPhase(cfg.Gates, "post"))

			if !result.Success {
				if err := store.SetLevelMergeStatus(level, models.MergeFailed, nil); err != nil {
					return err
				}
				return fmt.Errorf("merge failed: %s", result.Error)
			}

			if err := store.SetLevelMergeStatus(level, models.MergeComplete, result.MergeCommit); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "level %d merged into %s at %s\n", level, cfg.TargetBranch, derefCommit(result.MergeCommit))
			return nil
		},
	}

	cmd.Flags().StringVar(&feature, "feature", "", "feature name (required)")
	cmd.Flags().StringVar(&target, "target", "", "target branch override")
	cmd.Flags().StringVar(&configPath, "config", ".zerg/config.yaml", "path to the zerg config file")
	cmd.MarkFlagRequired("feature")

	return cmd
}

func derefCommit(c *string) string {
	if c == nil {
		return "(no commit)"
	}
	return *c
}
