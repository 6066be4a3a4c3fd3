package workflow

import (
	"errors"
	"testing"
)

func TestNewDependencyGraph_NoDependencies(t *testing.T) {
	tasks := []*PlannedTask{
		{ID: "task.1", Description: "First task"},
		{ID: "task.2", Description: "Second task"},
		{ID: "task.3", Description: "Third task"},
	}

	graph, err := NewDependencyGraph(tasks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// All tasks should be ready immediately
	ready := graph.ReadyTasks()
	if len(ready) != 3 {
		t.Errorf("expected 3 ready tasks, got %d", len(ready))
	}

	if graph.RemainingCount() != 3 {
		t.Errorf("expected 3 remaining, got %d", graph.RemainingCount())
	}
}

func TestNewDependencyGraph_LinearDependencies(t *testing.T) {
	tasks := []*PlannedTask{
		{ID: "task.1", DependsOn: nil},
		{ID: "task.2", DependsOn: []string{"task.1"}},
		{ID: "task.3", DependsOn: []string{"task.2"}},
	}

	graph, err := NewDependencyGraph(tasks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ready := graph.ReadyTasks()
	if len(ready) != 1 {
		t.Fatalf("expected 1 ready task, got %d", len(ready))
	}
	if ready[0].ID != "task.1" {
		t.Errorf("expected task.1 to be ready, got %s", ready[0].ID)
	}

	// Complete task 1, task 2 should become ready
	newlyReady := graph.MarkSucceeded("task.1")
	if len(newlyReady) != 1 || newlyReady[0].ID != "task.2" {
		t.Fatalf("expected task.2 to become ready, got %v", ids(newlyReady))
	}

	newlyReady = graph.MarkSucceeded("task.2")
	if len(newlyReady) != 1 || newlyReady[0].ID != "task.3" {
		t.Fatalf("expected task.3 to become ready, got %v", ids(newlyReady))
	}

	graph.MarkSucceeded("task.3")
	if !graph.IsEmpty() {
		t.Errorf("expected graph to be empty")
	}
}

func TestNewDependencyGraph_MultipleDependencies(t *testing.T) {
	tasks := []*PlannedTask{
		{ID: "task.1"},
		{ID: "task.2"},
		{ID: "task.3", DependsOn: []string{"task.1", "task.2"}},
	}

	graph, err := NewDependencyGraph(tasks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ready := graph.ReadyTasks(); len(ready) != 2 {
		t.Errorf("expected 2 ready tasks, got %d", len(ready))
	}

	// Task 3 needs both dependencies
	if newlyReady := graph.MarkSucceeded("task.1"); len(newlyReady) != 0 {
		t.Errorf("expected 0 newly ready tasks, got %d", len(newlyReady))
	}

	newlyReady := graph.MarkSucceeded("task.2")
	if len(newlyReady) != 1 || newlyReady[0].ID != "task.3" {
		t.Fatalf("expected task.3 to become ready, got %v", ids(newlyReady))
	}
}

func TestNewDependencyGraph_CycleDetected(t *testing.T) {
	tasks := []*PlannedTask{
		{ID: "task.1", DependsOn: []string{"task.3"}},
		{ID: "task.2", DependsOn: []string{"task.1"}},
		{ID: "task.3", DependsOn: []string{"task.2"}},
	}

	_, err := NewDependencyGraph(tasks)
	var cycle *CycleDetectedError
	if !errors.As(err, &cycle) {
		t.Fatalf("expected CycleDetectedError, got %v", err)
	}
	if cycle.Unordered != 3 {
		t.Errorf("expected 3 unordered tasks, got %d", cycle.Unordered)
	}
}

func TestNewDependencyGraph_Validation(t *testing.T) {
	cases := []struct {
		name  string
		tasks []*PlannedTask
	}{
		{"self dependency", []*PlannedTask{{ID: "task.1", DependsOn: []string{"task.1"}}}},
		{"unknown dependency", []*PlannedTask{{ID: "task.1", DependsOn: []string{"task.9"}}}},
		{"duplicate id", []*PlannedTask{{ID: "task.1"}, {ID: "task.1"}}},
		{"missing id", []*PlannedTask{{ID: ""}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewDependencyGraph(tc.tasks)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestDependencyGraph_MarkFailedSkipsTransitiveDependents(t *testing.T) {
	// task.4 -> task.3 -> task.2; task.5 independent
	tasks := []*PlannedTask{
		{ID: "task.1"},
		{ID: "task.2"},
		{ID: "task.3", DependsOn: []string{"task.1", "task.2"}},
		{ID: "task.4", DependsOn: []string{"task.3"}},
		{ID: "task.5"},
	}

	graph, err := NewDependencyGraph(tasks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	skipped := graph.MarkFailed("task.2")
	got := ids(skipped)
	if len(got) != 2 || got[0] != "task.3" || got[1] != "task.4" {
		t.Fatalf("expected [task.3 task.4] skipped, got %v", got)
	}

	// Independent branches unaffected
	if graph.RemainingCount() != 2 {
		t.Errorf("expected 2 remaining, got %d", graph.RemainingCount())
	}
	graph.MarkSucceeded("task.1")
	graph.MarkSucceeded("task.5")
	if !graph.IsEmpty() {
		t.Errorf("expected graph to be empty")
	}
}

func TestDependencyGraph_ReadyTasksInsertionOrder(t *testing.T) {
	tasks := []*PlannedTask{
		{ID: "task.c"},
		{ID: "task.a"},
		{ID: "task.b"},
	}

	graph, err := NewDependencyGraph(tasks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := ids(graph.ReadyTasks())
	want := []string{"task.c", "task.a", "task.b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected insertion order %v, got %v", want, got)
		}
	}
}

func TestDependencyGraph_Drain(t *testing.T) {
	tasks := []*PlannedTask{
		{ID: "task.1"},
		{ID: "task.2", DependsOn: []string{"task.1"}},
		{ID: "task.3", DependsOn: []string{"task.2"}},
	}

	graph, err := NewDependencyGraph(tasks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	graph.MarkSucceeded("task.1")
	drained := ids(graph.Drain())
	if len(drained) != 2 || drained[0] != "task.2" || drained[1] != "task.3" {
		t.Fatalf("expected [task.2 task.3] drained, got %v", drained)
	}
	if !graph.IsEmpty() {
		t.Errorf("expected graph to be empty after drain")
	}
}

func TestDependencyGraph_TopologicalOrder(t *testing.T) {
	tasks := []*PlannedTask{
		{ID: "task.3", DependsOn: []string{"task.1", "task.2"}},
		{ID: "task.1"},
		{ID: "task.2", DependsOn: []string{"task.1"}},
	}

	graph, err := NewDependencyGraph(tasks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	order := ids(graph.TopologicalOrder())
	pos := make(map[string]int)
	for i, id := range order {
		pos[id] = i
	}
	if pos["task.1"] > pos["task.2"] || pos["task.2"] > pos["task.3"] {
		t.Errorf("order violates dependencies: %v", order)
	}
}

func ids(tasks []*PlannedTask) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}
