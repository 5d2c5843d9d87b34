package executor

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/harrison/zerg/internal/models"
)

// GitRunner executes git subcommands against a worktree. Mirrors the
// teacher's CommandRunner-wrapped exec.Command pattern so the Merge
// Coordinator can be driven by a fake in tests.
type GitRunner interface {
	Run(ctx context.Context, args ...string) (output string, err error)
}

// ExecGitRunner shells out to the real git binary.
type ExecGitRunner struct {
	WorkDir string
}

func NewExecGitRunner(workDir string) *ExecGitRunner {
	return &ExecGitRunner{WorkDir: workDir}
}

func (r *ExecGitRunner) Run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if r.WorkDir != "" {
		cmd.Dir = r.WorkDir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, string(out))
	}
	return string(out), nil
}

// MergeFlowResult is the outcome of one full_merge_flow run (spec.md §4.7).
type MergeFlowResult struct {
	Success        bool
	Level          int
	SourceBranches []string
	Target         string
	MergeCommit    *string
	GateResults    []GateResult
	Error          string
	Timestamp      time.Time
}

// MergeCoordinator drives the per-level merge state machine: stage, run
// pre-merge gates, sequentially merge worker branches, run post-merge
// gates, merge staging into the target with a --no-ff merge commit, clean
// up staging.
type MergeCoordinator struct {
	git    GitRunner
	gates  *GateRunner
	runner CommandRunner
}

// NewMergeCoordinator builds a coordinator over a git worktree and the
// gates configured for this feature.
func NewMergeCoordinator(git GitRunner, runner CommandRunner) *MergeCoordinator {
	return &MergeCoordinator{git: git, gates: NewGateRunner(runner), runner: runner}
}

// stagingBranch returns the ephemeral staging branch name for a level.
func stagingBranch(feature string, level int) string {
	return models.StagingBranch(feature, level)
}

// FullMergeFlow runs the complete §4.7 algorithm. workerBranches is
// enumerated in the caller's order so the merge commit DAG is
// deterministic given identical inputs.
func (m *MergeCoordinator) FullMergeFlow(ctx context.Context, feature string, level int, workerBranches []string, target string, preGates, postGates []Gate) *MergeFlowResult {
	result := &MergeFlowResult{
		Level:          level,
		SourceBranches: workerBranches,
		Target:         target,
		Timestamp:      time.Now().UTC(),
	}

	// collecting: empty branch set succeeds vacuously.
	if len(workerBranches) == 0 {
		result.Success = true
		return result
	}

	staging := stagingBranch(feature, level)

	if err := m.createStaging(ctx, staging, target); err != nil {
		result.Error = err.Error()
		return result
	}

	preResults := m.gates.RunAll(ctx, preGates)
	result.GateResults = append(result.GateResults, preResults...)
	if !AllPassed(preResults) {
		m.abortMerge(ctx, staging)
		result.Error = "Pre-merge gates failed"
		return result
	}

	if _, err := m.git.Run(ctx, "checkout", staging); err != nil {
		m.abortMerge(ctx, staging)
		result.Error = fmt.Sprintf("checkout staging: %v", err)
		return result
	}

	for _, branch := range workerBranches {
		msg := fmt.Sprintf("Merge %s into %s", branch, staging)
		if _, err := m.git.Run(ctx, "merge", "--no-ff", "-m", msg, branch); err != nil {
			conflicts := m.conflictFiles(ctx)
			result.GateResults = append(result.GateResults, GateResult{Gate: "merge:" + branch, Outcome: models.GateFail, Err: err})
			m.abortMerge(ctx, staging)
			result.Error = fmt.Sprintf("Merge conflict: %s", strings.Join(conflicts, ", "))
			return result
		}
	}

	postResults := m.gates.RunAll(ctx, postGates)
	result.GateResults = append(result.GateResults, postResults...)
	if !AllPassed(postResults) {
		m.abortMerge(ctx, staging)
		result.Error = "Post-merge gates failed"
		return result
	}

	if _, err := m.git.Run(ctx, "checkout", "--detach"); err != nil {
		m.abortMerge(ctx, staging)
		result.Error = fmt.Sprintf("detach from staging: %v", err)
		return result
	}
	if _, err := m.git.Run(ctx, "checkout", target); err != nil {
		m.abortMerge(ctx, staging)
		result.Error = fmt.Sprintf("checkout target: %v", err)
		return result
	}
	finalMsg := fmt.Sprintf("ZERG: Complete level merge from %s", staging)
	if _, err := m.git.Run(ctx, "merge", "--no-ff", "-m", finalMsg, staging); err != nil {
		m.abortMerge(ctx, staging)
		result.Error = fmt.Sprintf("finalize merge: %v", err)
		return result
	}

	commitOut, err := m.git.Run(ctx, "rev-parse", "HEAD")
	if err != nil {
		result.Error = fmt.Sprintf("resolve merge commit: %v", err)
		return result
	}
	commit := strings.TrimSpace(commitOut)
	result.MergeCommit = &commit

	_, _ = m.git.Run(ctx, "branch", "-D", staging)

	result.Success = true
	return result
}

func (m *MergeCoordinator) createStaging(ctx context.Context, staging, target string) error {
	if _, err := m.git.Run(ctx, "branch", staging, target); err != nil {
		return fmt.Errorf("create staging branch %s off %s: %w", staging, target, err)
	}
	return nil
}

func (m *MergeCoordinator) conflictFiles(ctx context.Context) []string {
	out, err := m.git.Run(ctx, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil
	}
	trimmed := strings.TrimSpace(out)
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}

// abortMerge undoes any half-done merge and deletes the staging branch if
// present. It is the recovery path for both gate failures and any
// uncaught error during the flow.
func (m *MergeCoordinator) abortMerge(ctx context.Context, staging string) {
	_, _ = m.git.Run(ctx, "merge", "--abort")
	_, _ = m.git.Run(ctx, "checkout", "--detach")
	_, _ = m.git.Run(ctx, "branch", "-D", staging)
}
