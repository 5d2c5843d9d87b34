package cmd

import (
	"fmt"
	"time"

	"github.com/harrison/zerg/internal/config"
	"github.com/harrison/zerg/internal/logger"
	"github.com/spf13/cobra"
)

// NewLogsCommand builds `zerg logs`, a thin wrapper around the Log
// Aggregator's filtered query.
func NewLogsCommand() *cobra.Command {
	var (
		feature    string
		workerID   int
		taskID     string
		level      string
		since      string
		grep       string
		limit      int
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Query aggregated worker logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg.Feature = feature

			filter := logger.Filter{
				WorkerID: workerID,
				TaskID:   taskID,
				Level:    level,
				Search:   grep,
				Limit:    limit,
			}
			if since != "" {
				t, err := time.Parse(time.RFC3339, since)
				if err != nil {
					return fmt.Errorf("invalid --since %q, want RFC3339: %w", since, err)
				}
				filter.Since = t
			}

			agg := logger.NewAggregator(cfg.LogDir)
			entries, err := agg.Query(filter)
			if err != nil {
				return fmt.Errorf("query logs: %w", err)
			}

			out := cmd.OutOrStdout()
			for _, e := range entries {
				fmt.Fprintf(out, "%s [%s] worker=%d task=%s %s\n",
					e.Timestamp.Format(time.RFC3339), e.Level, e.WorkerID, e.TaskID, e.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&feature, "feature", "", "feature name (required)")
	cmd.Flags().IntVar(&workerID, "worker", 0, "filter by worker id")
	cmd.Flags().StringVar(&taskID, "task", "", "filter by task id")
	cmd.Flags().StringVar(&level, "level", "", "filter by log level")
	cmd.Flags().StringVar(&since, "since", "", "only entries at or after this RFC3339 timestamp")
	cmd.Flags().StringVar(&grep, "grep", "", "case-insensitive substring match against the message")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum entries to print (0 = unlimited)")
	cmd.Flags().StringVar(&configPath, "config", ".zerg/config.yaml", "path to the zerg config file")
	cmd.MarkFlagRequired("feature")

	return cmd
}
