package cmd

import (
	"fmt"
	"time"

	"github.com/harrison/zerg/internal/config"
	"github.com/harrison/zerg/internal/executor"
	"github.com/harrison/zerg/internal/state"
	"github.com/spf13/cobra"
)

// NewRetryCommand builds `zerg retry`, the manual retry entrypoint.
func NewRetryCommand() *cobra.Command {
	var (
		feature    string
		allFailed  bool
		taskID     string
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Manually retry a failed task, or every failed task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !allFailed && taskID == "" {
				return fmt.Errorf("specify --task ID or --all-failed")
			}

			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg.Feature = feature

			persistence, err := state.NewPersistence(cfg.StateDir, cfg.Feature)
			if err != nil {
				return fmt.Errorf("open state store: %w", err)
			}
			store := state.NewStore(persistence)
			retry := executor.NewRetryManager(store, nil, toExecutorRetryConfig(cfg.Retry))

			if allFailed {
				retried, err := retry.RetryAllFailed()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "retried %d task(s): %v\n", len(retried), retried)
				return nil
			}

			if err := retry.RetryTask(taskID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "task %s queued for retry\n", taskID)
			return nil
		},
	}

	cmd.Flags().StringVar(&feature, "feature", "", "feature name (required)")
	cmd.Flags().BoolVar(&allFailed, "all-failed", false, "retry every permanently failed task")
	cmd.Flags().StringVar(&taskID, "task", "", "id of a single failed task to retry")
	cmd.Flags().StringVar(&configPath, "config", ".zerg/config.yaml", "path to the zerg config file")
	cmd.MarkFlagRequired("feature")

	return cmd
}

func toExecutorRetryConfig(c config.RetryConfig) executor.RetryConfig {
	return executor.RetryConfig{
		MaxAttempts:  c.MaxAttempts,
		Strategy:     executor.BackoffStrategy(c.Strategy),
		BaseSeconds:  float64(c.BaseSeconds),
		MaxSeconds:   float64(c.MaxSeconds),
		StaleTimeout: time.Duration(c.StaleTimeoutSeconds) * time.Second,
	}
}
