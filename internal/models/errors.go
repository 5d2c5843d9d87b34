package models

import (
	"fmt"
	"strings"
)

// GraphCycleError reports a dependency cycle found while validating a task
// graph (spec.md §4.1 item 1). It names a representative cycle.
type GraphCycleError struct {
	Cycle []string
}

func (e *GraphCycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

// OwnershipConflictError reports two tasks claiming the same file under
// conflicting create/modify intents (spec.md §4.1 item 2).
type OwnershipConflictError struct {
	File  string
	Tasks []string
	Level int // 0 when the conflict is a cross-level "create" conflict
}

func (e *OwnershipConflictError) Error() string {
	if e.Level > 0 {
		return fmt.Sprintf("ownership conflict: file %q modified by tasks %s at level %d",
			e.File, strings.Join(e.Tasks, ", "), e.Level)
	}
	return fmt.Sprintf("ownership conflict: file %q created by tasks %s", e.File, strings.Join(e.Tasks, ", "))
}

// LevelError reports that a level cannot be started because a prior level
// has not resolved (spec.md §4.3).
type LevelError struct {
	BlockingLevel int
	Reason        string
}

func (e *LevelError) Error() string {
	return fmt.Sprintf("level %d blocks advancement: %s", e.BlockingLevel, e.Reason)
}

// AllocationError reports that the port allocator could not satisfy a
// request within its attempt budget (spec.md §4.11).
type AllocationError struct {
	Requested int
	Obtained  int
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("port allocation failed: requested %d, obtained %d", e.Requested, e.Obtained)
}

// StateCorruptError reports that a feature's persisted JSON could not be
// parsed (spec.md §4.4, §7). The caller's .bak sibling is left untouched.
type StateCorruptError struct {
	Path string
	Err  error
}

func (e *StateCorruptError) Error() string {
	return fmt.Sprintf("state file %s is corrupt: %v", e.Path, e.Err)
}

func (e *StateCorruptError) Unwrap() error { return e.Err }
