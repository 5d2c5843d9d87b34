package executor

import (
	"context"
	"time"

	"github.com/harrison/zerg/internal/models"
)

// Gate names one configured quality check and the command that runs it.
type Gate struct {
	Name           string
	Command        string
	TimeoutSeconds int
	Required       bool
}

func (g Gate) timeout() time.Duration {
	if g.TimeoutSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// GateResult is the outcome of one gate run.
type GateResult struct {
	Gate     string
	Outcome  models.GateOutcome
	Output   string
	Err      error
	Duration time.Duration
}

// GateRunner executes a configured set of quality gates against the
// current tree and classifies each outcome (spec.md §4.7 pre/post-merge
// validation, §5 cancellation/timeout policy).
type GateRunner struct {
	runner CommandRunner
}

// NewGateRunner wraps a CommandRunner for gate execution.
func NewGateRunner(runner CommandRunner) *GateRunner {
	return &GateRunner{runner: runner}
}

// RunAll runs every gate in order, stopping at the first required gate
// that fails or times out. Non-required gates that fail are recorded but
// do not stop the run.
func (r *GateRunner) RunAll(ctx context.Context, gates []Gate) []GateResult {
	results := make([]GateResult, 0, len(gates))
	for _, g := range gates {
		res := r.run(ctx, g)
		results = append(results, res)
		if g.Required && res.Outcome != models.GatePass && res.Outcome != models.GateSkip {
			break
		}
	}
	return results
}

func (r *GateRunner) run(ctx context.Context, g Gate) GateResult {
	if g.Command == "" {
		return GateResult{Gate: g.Name, Outcome: models.GateSkip}
	}

	gctx, cancel := context.WithTimeout(ctx, g.timeout())
	defer cancel()

	start := time.Now()
	output, err := r.runner.Run(gctx, g.Command)
	duration := time.Since(start)

	result := GateResult{Gate: g.Name, Output: output, Duration: duration}
	switch {
	case gctx.Err() == context.DeadlineExceeded:
		result.Outcome = models.GateTimeout
		result.Err = NewTimeoutError(g.Name, g.timeout())
	case err != nil:
		result.Outcome = models.GateFail
		result.Err = err
	default:
		result.Outcome = models.GatePass
	}
	return result
}

// AllPassed reports whether every result passed or was skipped.
func AllPassed(results []GateResult) bool {
	for _, r := range results {
		if r.Outcome != models.GatePass && r.Outcome != models.GateSkip {
			return false
		}
	}
	return true
}
