package executor

import (
	"fmt"
	"time"

	"github.com/harrison/zerg/internal/models"
)

// levelCounters tracks running totals for one level's tasks.
type levelCounters struct {
	total      int
	completed  int
	failed     int
	inProgress int
}

// LevelController holds the in-memory scheduling view described in
// spec.md §4.3: per-task status, per-level totals, and the current level
// pointer. It never touches disk; State Reconciler keeps it aligned with
// the Store.
type LevelController struct {
	graph        *Graph
	statuses     map[string]models.TaskStatus
	counters     map[int]*levelCounters
	currentLevel int
	started      bool
	startedAt    map[int]time.Time
	completedAt  map[int]time.Time
}

// NewLevelController builds a controller from an already-validated graph.
func NewLevelController(graph *Graph) *LevelController {
	return &LevelController{
		graph:       graph,
		statuses:    make(map[string]models.TaskStatus),
		counters:    make(map[int]*levelCounters),
		startedAt:   make(map[int]time.Time),
		completedAt: make(map[int]time.Time),
	}
}

// Initialize indexes tasks and computes per-level totals.
func (c *LevelController) Initialize() {
	for id, t := range c.graph.Tasks {
		c.statuses[id] = models.TaskTodo
		lc := c.counterFor(t.Level)
		lc.total++
	}
}

func (c *LevelController) counterFor(level int) *levelCounters {
	lc, ok := c.counters[level]
	if !ok {
		lc = &levelCounters{}
		c.counters[level] = lc
	}
	return lc
}

// StartLevel requires every level < N to be resolved, then marks level N
// running and returns its task ids.
func (c *LevelController) StartLevel(n int) ([]string, error) {
	for _, level := range c.graph.LevelNumbers() {
		if level >= n {
			continue
		}
		if !c.IsLevelResolved(level) {
			return nil, &models.LevelError{BlockingLevel: level, Reason: fmt.Sprintf("level %d is not resolved", level)}
		}
	}
	c.currentLevel = n
	c.started = true
	c.startedAt[n] = time.Now().UTC()
	return c.graph.GetLevelTasks(n), nil
}

// MarkTaskInProgress records a task entering in_progress.
func (c *LevelController) MarkTaskInProgress(id string) {
	t := c.graph.Tasks[id]
	c.transition(id, t.Level, models.TaskInProgress)
	c.counterFor(t.Level).inProgress++
}

// MarkTaskComplete records completion and returns true if the level just
// became resolved (every task complete or failed) as a result.
func (c *LevelController) MarkTaskComplete(id string) bool {
	t := c.graph.Tasks[id]
	lc := c.counterFor(t.Level)
	if c.statuses[id] == models.TaskInProgress {
		lc.inProgress--
	}
	c.transition(id, t.Level, models.TaskComplete)
	lc.completed++
	if lc.completed+lc.failed == lc.total {
		c.completedAt[t.Level] = time.Now().UTC()
		return true
	}
	return false
}

// MarkTaskFailed records a permanent failure.
func (c *LevelController) MarkTaskFailed(id string, err error) {
	t := c.graph.Tasks[id]
	lc := c.counterFor(t.Level)
	if c.statuses[id] == models.TaskInProgress {
		lc.inProgress--
	}
	c.transition(id, t.Level, models.TaskFailed)
	lc.failed++
	_ = err
}

func (c *LevelController) transition(id string, level int, status models.TaskStatus) {
	c.statuses[id] = status
}

// IsLevelComplete reports completed == total.
func (c *LevelController) IsLevelComplete(n int) bool {
	lc := c.counterFor(n)
	return lc.completed == lc.total
}

// IsLevelResolved reports completed + failed == total; failed tasks do not
// block resolution.
func (c *LevelController) IsLevelResolved(n int) bool {
	lc := c.counterFor(n)
	return lc.completed+lc.failed == lc.total
}

// CanAdvance reports whether the current level is resolved and a next
// level exists.
func (c *LevelController) CanAdvance() bool {
	if !c.IsLevelResolved(c.currentLevel) {
		return false
	}
	return c.nextLevel() != 0
}

func (c *LevelController) nextLevel() int {
	for _, level := range c.graph.LevelNumbers() {
		if level > c.currentLevel {
			return level
		}
	}
	return 0
}

// AdvanceLevel moves current_level forward and returns the new number, or
// 0 if there is no further level.
func (c *LevelController) AdvanceLevel() int {
	next := c.nextLevel()
	if next == 0 {
		return 0
	}
	c.currentLevel = next
	return next
}

// ResetTask decrements whichever counter corresponds to the task's current
// status and resets it to pending.
func (c *LevelController) ResetTask(id string) {
	t := c.graph.Tasks[id]
	lc := c.counterFor(t.Level)
	switch c.statuses[id] {
	case models.TaskInProgress:
		lc.inProgress--
	case models.TaskComplete:
		lc.completed--
	case models.TaskFailed:
		lc.failed--
	}
	c.statuses[id] = models.TaskPending
}

// CurrentLevel returns the level pointer (0 = not started).
func (c *LevelController) CurrentLevel() int { return c.currentLevel }

// Status returns a task's in-memory status.
func (c *LevelController) Status(id string) models.TaskStatus { return c.statuses[id] }

// AllLevelsResolved reports whether every level in the graph is resolved.
func (c *LevelController) AllLevelsResolved() bool {
	for _, level := range c.graph.LevelNumbers() {
		if !c.IsLevelResolved(level) {
			return false
		}
	}
	return true
}
