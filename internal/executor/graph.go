package executor

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/harrison/zerg/internal/models"
)

// Graph is the parsed, validated task dependency graph of one feature build
// (spec.md §4.1). Edges run prerequisite -> dependent, matching the
// teacher's adjacency-list convention.
type Graph struct {
	Tasks    map[string]*models.Task
	Edges    map[string][]string
	InDegree map[string]int
	Levels   map[int][]string // level -> task ids, ascending id order
}

// BuildGraph indexes tasks and their dependency edges without validating
// them; call Validate before relying on the result.
func BuildGraph(tasks []models.Task) *Graph {
	g := &Graph{
		Tasks:    make(map[string]*models.Task),
		Edges:    make(map[string][]string),
		InDegree: make(map[string]int),
		Levels:   make(map[int][]string),
	}

	for i := range tasks {
		t := &tasks[i]
		g.Tasks[t.ID] = t
		g.InDegree[t.ID] = 0
		g.Levels[t.Level] = append(g.Levels[t.Level], t.ID)
	}

	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if _, exists := g.Tasks[dep]; !exists {
				continue
			}
			g.Edges[dep] = append(g.Edges[dep], t.ID)
			g.InDegree[t.ID]++
		}
	}

	for level := range g.Levels {
		sort.Strings(g.Levels[level])
	}

	return g
}

// Validate runs the full §4.1 validation pipeline: duplicate ids, missing
// dependencies, cycle detection, file-ownership conflicts, and level
// ordering (a task may only depend on tasks at level <= its own).
func Validate(tasks []models.Task) (*Graph, error) {
	seen := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("task %s: duplicate task id", t.ID)
		}
		seen[t.ID] = true
	}
	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if !seen[dep] {
				return nil, fmt.Errorf("task %s: depends on non-existent task %s", t.ID, dep)
			}
		}
	}

	g := BuildGraph(tasks)

	if cycle := g.findCycle(); cycle != nil {
		return nil, &models.GraphCycleError{Cycle: cycle}
	}

	if err := g.validateLevelOrdering(); err != nil {
		return nil, err
	}

	if err := g.validateFileOwnership(); err != nil {
		return nil, err
	}

	return g, nil
}

// findCycle runs DFS with white/gray/black coloring and returns a
// representative cycle path, or nil if the graph is acyclic.
func (g *Graph) findCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	colors := make(map[string]int, len(g.Tasks))
	var path []string
	var cycle []string

	var dfs func(node string) bool
	dfs = func(node string) bool {
		colors[node] = gray
		path = append(path, node)
		for _, next := range g.Edges[node] {
			switch colors[next] {
			case gray:
				cycle = append(append([]string{}, path...), next)
				return true
			case white:
				if dfs(next) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		colors[node] = black
		return false
	}

	ids := g.sortedIDs()
	for _, id := range ids {
		if colors[id] == white {
			if dfs(id) {
				return cycle
			}
		}
	}
	return nil
}

// validateLevelOrdering enforces that a task at level N only depends on
// tasks at level <= N.
func (g *Graph) validateLevelOrdering() error {
	for _, t := range g.Tasks {
		for _, dep := range t.DependsOn {
			depTask := g.Tasks[dep]
			if depTask.Level > t.Level {
				return &models.LevelError{
					BlockingLevel: depTask.Level,
					Reason:        fmt.Sprintf("task %s (level %d) depends on %s (level %d)", t.ID, t.Level, dep, depTask.Level),
				}
			}
		}
	}
	return nil
}

// validateFileOwnership enforces: at most one task anywhere may create a
// given file; at most one task per level may modify a given file.
func (g *Graph) validateFileOwnership() error {
	creators := make(map[string][]string)
	for _, t := range g.Tasks {
		for _, f := range t.Files.Create {
			norm := filepath.Clean(f)
			creators[norm] = append(creators[norm], t.ID)
		}
	}
	for file, owners := range creators {
		if len(owners) > 1 {
			sort.Strings(owners)
			return &models.OwnershipConflictError{File: file, Tasks: owners}
		}
	}

	modifiersByLevel := make(map[int]map[string][]string)
	for _, t := range g.Tasks {
		if modifiersByLevel[t.Level] == nil {
			modifiersByLevel[t.Level] = make(map[string][]string)
		}
		for _, f := range t.Files.Modify {
			norm := filepath.Clean(f)
			modifiersByLevel[t.Level][norm] = append(modifiersByLevel[t.Level][norm], t.ID)
		}
	}
	for level, files := range modifiersByLevel {
		for file, owners := range files {
			if len(owners) > 1 {
				sort.Strings(owners)
				return &models.OwnershipConflictError{File: file, Tasks: owners, Level: level}
			}
		}
	}
	return nil
}

func (g *Graph) sortedIDs() []string {
	ids := make([]string, 0, len(g.Tasks))
	for id := range g.Tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetReadyTasks returns the ids, at the given level, whose dependencies are
// all present in completed and that are not already in completed.
func (g *Graph) GetReadyTasks(level int, completed map[string]bool) []string {
	var ready []string
	for _, id := range g.Levels[level] {
		if completed[id] {
			continue
		}
		t := g.Tasks[id]
		allDone := true
		for _, dep := range t.DependsOn {
			if !completed[dep] {
				allDone = false
				break
			}
		}
		if allDone {
			ready = append(ready, id)
		}
	}
	return ready
}

// GetLevelTasks returns every task id at the given level, in sorted order.
func (g *Graph) GetLevelTasks(level int) []string {
	return g.Levels[level]
}

// LevelNumbers returns every level present in the graph, ascending.
func (g *Graph) LevelNumbers() []int {
	levels := make([]int, 0, len(g.Levels))
	for n := range g.Levels {
		levels = append(levels, n)
	}
	sort.Ints(levels)
	return levels
}

// CriticalPath returns the longest chain of task ids by cumulative
// estimate_minutes, computed via topological dynamic programming. It is
// advisory only (spec.md §4.1 item 4) and never fails the graph.
func (g *Graph) CriticalPath() []string {
	order := g.topoOrder()
	best := make(map[string]int, len(order))
	prev := make(map[string]string, len(order))

	for _, id := range order {
		t := g.Tasks[id]
		best[id] = t.EstimateMinutes
		for _, dep := range t.DependsOn {
			if _, ok := g.Tasks[dep]; !ok {
				continue
			}
			if candidate := best[dep] + t.EstimateMinutes; candidate > best[id] {
				best[id] = candidate
				prev[id] = dep
			}
		}
	}

	var end string
	max := -1
	for id, total := range best {
		if total > max {
			max = total
			end = id
		}
	}
	if end == "" {
		return nil
	}

	var path []string
	for id := end; id != ""; id = prev[id] {
		path = append([]string{id}, path...)
		if _, ok := prev[id]; !ok {
			break
		}
	}
	return path
}

// topoOrder returns task ids in a valid topological order via Kahn's
// algorithm. The graph is assumed acyclic (Validate already ran).
func (g *Graph) topoOrder() []string {
	inDegree := make(map[string]int, len(g.InDegree))
	for k, v := range g.InDegree {
		inDegree[k] = v
	}
	var queue, order []string
	for _, id := range g.sortedIDs() {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		sort.Strings(queue)
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, next := range g.Edges[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	return order
}
