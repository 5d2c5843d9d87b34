package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags.
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for zerg.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zerg",
		Short: "Level-ordered, multi-worker task graph orchestrator",
		Long: `zerg executes a dependency-constrained task graph by spawning isolated
git-worktree workers, one per ready task, and merging each completed
level's worker branches through quality gates into a target branch
before advancing to the next level.`,
		Version:      Version,
		SilenceUsage: true,
	}

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewRetryCommand())
	cmd.AddCommand(NewMergeCommand())
	cmd.AddCommand(NewLogsCommand())
	cmd.AddCommand(NewStopCommand())
	cmd.AddCommand(NewStatsCommand())

	return cmd
}
