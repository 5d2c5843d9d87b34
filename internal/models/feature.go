package models

import (
	"fmt"
	"regexp"
	"strings"
)

var featureNamePattern = regexp.MustCompile(`^[a-z0-9._-]+$`)

// ValidateFeatureName enforces spec.md §3: lowercase, alphanumeric plus
// "._-", no path traversal.
func ValidateFeatureName(name string) error {
	if name == "" {
		return fmt.Errorf("feature name cannot be empty")
	}
	if !featureNamePattern.MatchString(name) {
		return fmt.Errorf("feature name %q: must be lowercase alphanumeric plus '._-'", name)
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("feature name %q: path traversal not allowed", name)
	}
	return nil
}

var workerBranchPattern = regexp.MustCompile(`^zerg/[a-z0-9._-]+/worker-\d+$`)
var stagingBranchPattern = regexp.MustCompile(`^zerg/[a-z0-9._-]+/staging-\d+$`)

// WorkerBranch returns the branch name for a worker, per spec.md §6.
func WorkerBranch(feature string, workerID int) string {
	return fmt.Sprintf("zerg/%s/worker-%d", feature, workerID)
}

// StagingBranch returns the ephemeral staging branch name for a level.
func StagingBranch(feature string, level int) string {
	return fmt.Sprintf("zerg/%s/staging-%d", feature, level)
}

// ValidateWorkerBranch enforces spec.md §4.8's hard error on malformed
// worker branch names.
func ValidateWorkerBranch(feature, branch string) error {
	if !workerBranchPattern.MatchString(branch) {
		return fmt.Errorf("worker branch %q does not match ^zerg/%s/worker-\\d+$", branch, feature)
	}
	if !strings.Contains(branch, "/"+feature+"/") {
		return fmt.Errorf("worker branch %q does not belong to feature %q", branch, feature)
	}
	return nil
}

// ValidateStagingBranch enforces the staging branch naming convention.
func ValidateStagingBranch(feature, branch string) error {
	if !stagingBranchPattern.MatchString(branch) {
		return fmt.Errorf("staging branch %q does not match ^zerg/%s/staging-\\d+$", branch, feature)
	}
	return nil
}
