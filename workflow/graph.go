package workflow

import (
	"fmt"
	"sync"
)

// DependencyGraph manages task dependencies and determines execution order.
// All methods are safe for concurrent use.
type DependencyGraph struct {
	mu         sync.Mutex
	tasks      map[string]*PlannedTask
	order      []string            // Insertion order for deterministic dispatch
	inDegree   map[string]int      // Number of unmet dependencies
	dependents map[string][]string // Tasks that depend on this task
}

// NewDependencyGraph creates a dependency graph from a plan's tasks.
// It rejects references to unknown tasks, self-dependencies, and cycles.
func NewDependencyGraph(tasks []*PlannedTask) (*DependencyGraph, error) {
	g := &DependencyGraph{
		tasks:      make(map[string]*PlannedTask),
		order:      make([]string, 0, len(tasks)),
		inDegree:   make(map[string]int),
		dependents: make(map[string][]string),
	}

	// Index tasks by ID, preserving plan order
	for _, t := range tasks {
		if t.ID == "" {
			return nil, &ValidationError{Field: "task.id", Message: "task id is required"}
		}
		if _, exists := g.tasks[t.ID]; exists {
			return nil, &ValidationError{Field: "task.id", Message: fmt.Sprintf("duplicate task id %s", t.ID)}
		}
		g.tasks[t.ID] = t
		g.order = append(g.order, t.ID)
		g.inDegree[t.ID] = 0
		g.dependents[t.ID] = nil
	}

	// Build dependency relationships
	for _, t := range tasks {
		for _, depID := range t.DependsOn {
			if depID == t.ID {
				return nil, &ValidationError{Field: "depends_on", Message: fmt.Sprintf("task %s depends on itself", t.ID)}
			}
			if _, exists := g.tasks[depID]; !exists {
				return nil, &ValidationError{Field: "depends_on", Message: fmt.Sprintf("task %s depends on non-existent task %s", t.ID, depID)}
			}
			g.inDegree[t.ID]++
			g.dependents[depID] = append(g.dependents[depID], t.ID)
		}
	}

	// Detect cycles using topological sort
	if err := g.detectCycles(); err != nil {
		return nil, err
	}

	return g, nil
}

// detectCycles uses Kahn's algorithm to detect cycles in the dependency graph.
func (g *DependencyGraph) detectCycles() error {
	// Copy inDegree for cycle detection
	tempDegree := make(map[string]int)
	for id, deg := range g.inDegree {
		tempDegree[id] = deg
	}

	var queue []string
	for _, id := range g.order {
		if tempDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	processed := 0
	for len(queue) > 0 {
		taskID := queue[0]
		queue = queue[1:]
		processed++

		for _, depID := range g.dependents[taskID] {
			tempDegree[depID]--
			if tempDegree[depID] == 0 {
				queue = append(queue, depID)
			}
		}
	}

	if processed != len(g.tasks) {
		return &CycleDetectedError{Unordered: len(g.tasks) - processed}
	}

	return nil
}

// ReadyTasks returns all unprocessed tasks whose dependencies have all
// succeeded, in plan insertion order.
func (g *DependencyGraph) ReadyTasks() []*PlannedTask {
	g.mu.Lock()
	defer g.mu.Unlock()

	var ready []*PlannedTask
	for _, id := range g.order {
		if deg, ok := g.inDegree[id]; ok && deg == 0 {
			ready = append(ready, g.tasks[id])
		}
	}
	return ready
}

// MarkSucceeded records a successful task and returns the tasks it unblocked,
// in plan insertion order.
func (g *DependencyGraph) MarkSucceeded(taskID string) []*PlannedTask {
	g.mu.Lock()
	defer g.mu.Unlock()

	newlyReady := make(map[string]bool)
	for _, depID := range g.dependents[taskID] {
		if _, ok := g.inDegree[depID]; !ok {
			continue
		}
		g.inDegree[depID]--
		if g.inDegree[depID] == 0 {
			newlyReady[depID] = true
		}
	}

	delete(g.inDegree, taskID)

	var ready []*PlannedTask
	for _, id := range g.order {
		if newlyReady[id] {
			ready = append(ready, g.tasks[id])
		}
	}
	return ready
}

// MarkFailed records a failed (or skipped) task and removes every transitive
// dependent from the graph. It returns the removed dependents, in plan
// insertion order, so the caller can mark them skipped. Independent branches
// are unaffected.
func (g *DependencyGraph) MarkFailed(taskID string) []*PlannedTask {
	g.mu.Lock()
	defer g.mu.Unlock()

	skipped := make(map[string]bool)
	queue := append([]string(nil), g.dependents[taskID]...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if skipped[id] {
			continue
		}
		if _, ok := g.inDegree[id]; !ok {
			continue // Already processed
		}
		skipped[id] = true
		delete(g.inDegree, id)
		queue = append(queue, g.dependents[id]...)
	}

	delete(g.inDegree, taskID)

	var out []*PlannedTask
	for _, id := range g.order {
		if skipped[id] {
			out = append(out, g.tasks[id])
		}
	}
	return out
}

// Drain removes every unprocessed task from the graph and returns them in
// plan insertion order. Used on cancellation to collect not-yet-started tasks.
func (g *DependencyGraph) Drain() []*PlannedTask {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []*PlannedTask
	for _, id := range g.order {
		if _, ok := g.inDegree[id]; ok {
			out = append(out, g.tasks[id])
			delete(g.inDegree, id)
		}
	}
	return out
}

// IsEmpty returns true if all tasks have been processed.
func (g *DependencyGraph) IsEmpty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inDegree) == 0
}

// RemainingCount returns the number of tasks still unprocessed.
func (g *DependencyGraph) RemainingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inDegree)
}

// Task returns a task by ID, or nil if absent.
func (g *DependencyGraph) Task(id string) *PlannedTask {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tasks[id]
}

// TopologicalOrder returns tasks in topological order (dependencies first).
// Informational only; takes a snapshot of the current graph state.
func (g *DependencyGraph) TopologicalOrder() []*PlannedTask {
	g.mu.Lock()
	defer g.mu.Unlock()

	tempDegree := make(map[string]int)
	for id, deg := range g.inDegree {
		tempDegree[id] = deg
	}

	var order []*PlannedTask
	var queue []string
	for _, id := range g.order {
		if deg, ok := tempDegree[id]; ok && deg == 0 {
			queue = append(queue, id)
		}
	}

	for len(queue) > 0 {
		taskID := queue[0]
		queue = queue[1:]
		order = append(order, g.tasks[taskID])

		for _, depID := range g.dependents[taskID] {
			if _, ok := tempDegree[depID]; !ok {
				continue
			}
			tempDegree[depID]--
			if tempDegree[depID] == 0 {
				queue = append(queue, depID)
			}
		}
	}

	return order
}
