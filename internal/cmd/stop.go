package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/harrison/zerg/internal/config"
	"github.com/harrison/zerg/internal/filelock"
	"github.com/spf13/cobra"
)

// NewStopCommand builds `zerg stop`, which writes a stop-request sentinel
// file. A running `zerg run` polls for it every 500ms; once it appears the
// orchestrator stops its workers gracefully and exits (spec.md §6, §4.10).
func NewStopCommand() *cobra.Command {
	var (
		feature    string
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Request a graceful shutdown of the running orchestrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg.Feature = feature

			if err := os.MkdirAll(cfg.StateDir, 0755); err != nil {
				return fmt.Errorf("create state dir: %w", err)
			}
			path := filepath.Join(cfg.StateDir, "stop")
			if err := filelock.LockAndWrite(path, []byte{}); err != nil {
				return fmt.Errorf("write stop sentinel: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stop requested: %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&feature, "feature", "", "feature name (required)")
	cmd.Flags().StringVar(&configPath, "config", ".zerg/config.yaml", "path to the zerg config file")
	cmd.MarkFlagRequired("feature")

	return cmd
}
