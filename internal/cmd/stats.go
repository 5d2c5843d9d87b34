package cmd

import (
	"fmt"
	"strconv"

	"github.com/harrison/zerg/internal/analytics"
	"github.com/harrison/zerg/internal/config"
	"github.com/harrison/zerg/internal/state"
	"github.com/spf13/cobra"
)

// NewStatsCommand builds `zerg stats <level>`, a read-side query over the
// cross-run Analytics Store plus a best-effort peek at the live feature
// state (spec.md §2, §6).
func NewStatsCommand() *cobra.Command {
	var (
		feature    string
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "stats <level>",
		Short: "Show a level's recorded run history",
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

			if cfg.AnalyticsDBPath == "" {
				return fmt.Errorf("analytics_db_path is not configured; nothing recorded")
			}

			store, err := analytics.Open(cfg.AnalyticsDBPath)
			if err != nil {
				return fmt.Errorf("open analytics store: %w", err)
			}
			defer store.Close()

			out := cmd.OutOrStdout()

			if persistence, err := state.NewPersistence(cfg.StateDir, cfg.Feature); err == nil {
				if fs, ok, err := state.NewStore(persistence).TryLoad(); err == nil && ok {
					fmt.Fprintf(out, "live: current_level=%d paused=%v\n", fs.CurrentLevel, fs.Paused)
				} else {
					fmt.Fprintln(out, "live: unavailable (build running or no state yet)")
				}
			}

			runs, err := store.LevelHistory(cfg.Feature, level)
			if err != nil {
				return fmt.Errorf("query level history: %w", err)
			}
			if len(runs) == 0 {
				fmt.Fprintf(out, "no recorded runs for %s level %d\n", cfg.Feature, level)
				return nil
			}
			for _, r := range runs {
				fmt.Fprintf(out, "%s total=%d completed=%d failed=%d started=%s completed_at=%s\n",
					r.CompletedAt.Sub(r.StartedAt), r.TotalTasks, r.CompletedTasks, r.FailedTasks,
					r.StartedAt.Format("2006-01-02T15:04:05Z07:00"), r.CompletedAt.Format("2006-01-02T15:04:05Z07:00"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&feature, "feature", "", "feature name (required)")
	cmd.Flags().StringVar(&configPath, "config", ".zerg/config.yaml", "path to the zerg config file")
	cmd.MarkFlagRequired("feature")

	return cmd
}
