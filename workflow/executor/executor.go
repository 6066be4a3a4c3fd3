// Package executor drives workflow plan execution: it dispatches ready
// tasks concurrently through the gate and the retrying tool invoker,
// propagates failure to transitive dependents, and produces a complete
// per-task execution report.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quillworks/quillops/gate"
	"github.com/quillworks/quillops/tools"
	"github.com/quillworks/quillops/workflow"
)

// Config holds executor settings.
type Config struct {
	// Concurrency is the maximum number of tasks dispatched at once.
	// The effective bound at any instant is min(Concurrency, gate budget).
	Concurrency int `yaml:"concurrency"`
}

// DefaultConfig returns executor defaults.
func DefaultConfig() Config {
	return Config{Concurrency: 4}
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	return nil
}

// Executor runs workflow plans. A single coordinating loop per Execute call
// dispatches independent ready tasks as concurrent workers; task state is
// mutated only by the worker driving the task and the coordinating loop.
type Executor struct {
	invoker   *tools.Invoker
	gate      *gate.Gate
	config    Config
	logger    *slog.Logger
	publisher EventPublisher
}

// New creates an executor. publisher may be nil to disable event publication.
func New(invoker *tools.Invoker, g *gate.Gate, config Config, logger *slog.Logger, publisher EventPublisher) (*Executor, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid executor config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		invoker:   invoker,
		gate:      g,
		config:    config,
		logger:    logger,
		publisher: publisher,
	}, nil
}

// taskResult carries a worker's outcome back to the coordinating loop.
type taskResult struct {
	task     *workflow.PlannedTask
	result   tools.Result
	attempts int
	err      error
}

// Execute runs the plan to completion and returns the execution report.
// Every task appears in the report with a terminal status; partial failure
// never aborts the run silently. Cancelling ctx marks all non-started tasks
// cancelled; dispatched tasks run to completion but their results are not
// applied to dependents.
func (e *Executor) Execute(ctx context.Context, plan *workflow.WorkflowPlan) (*Report, error) {
	if plan == nil || len(plan.Tasks) == 0 {
		return nil, &workflow.ValidationError{Field: "plan", Message: "plan has no tasks"}
	}
	if plan.Status == workflow.PlanStatusAwaitingConfirmation {
		return nil, &workflow.ValidationError{Field: "plan.status", Message: "plan awaits confirmation"}
	}
	if plan.Status == workflow.PlanStatusCancelled {
		return nil, &workflow.ValidationError{Field: "plan.status", Message: "plan is cancelled"}
	}

	graph, err := workflow.NewDependencyGraph(plan.Tasks)
	if err != nil {
		return nil, err
	}

	plan.Status = workflow.PlanStatusRunning
	started := time.Now()
	plansStarted.Inc()

	e.logger.Info("Executing plan",
		"plan_id", plan.ID,
		"intent", plan.Intent,
		"tasks", len(plan.Tasks))

	results := make(chan taskResult, len(plan.Tasks))
	queue := graph.ReadyTasks()
	running := make(map[string]bool)
	cancelled := false

	for len(queue) > 0 || len(running) > 0 {
		if !cancelled && ctx.Err() != nil {
			cancelled = true
			queue = e.cancelPending(plan, graph, queue, running)
		}

		// Dispatch while slots and budget allow. If nothing is running and
		// the window budget is exhausted, dispatch a single waiter so the
		// run makes progress once the window frees up.
		for len(queue) > 0 {
			slots := e.config.Concurrency - len(running)
			if slots <= 0 {
				break
			}
			if avail := e.gate.Available(); avail < slots {
				slots = avail
			}
			if slots <= 0 {
				if len(running) > 0 {
					break
				}
				slots = 1
			}

			task := queue[0]
			queue = queue[1:]
			e.setStatus(plan, task, workflow.TaskStatusReady)
			running[task.ID] = true
			go e.run(ctx, plan, task, results)
		}

		if len(running) == 0 {
			continue
		}

		res := <-results
		delete(running, res.task.ID)
		queue = append(queue, e.applyResult(plan, graph, res, cancelled)...)
	}

	plan.Status = workflow.PlanStatusCompleted
	report := buildReport(plan, started, time.Now())
	e.logger.Info("Plan execution finished",
		"plan_id", plan.ID,
		"completed", len(report.Completed),
		"failed", len(report.Failed),
		"skipped", len(report.Skipped),
		"cancelled", len(report.Cancelled),
		"duration", report.Duration)
	return report, nil
}

// run is the worker driving a single task: it waits for gate budget, marks
// the task running, invokes the tool through the retry controller, and
// reports the outcome.
func (e *Executor) run(ctx context.Context, plan *workflow.WorkflowPlan, task *workflow.PlannedTask, results chan<- taskResult) {
	token, err := e.gate.Acquire(ctx, task.Cost)
	if err != nil {
		results <- taskResult{task: task, err: err}
		return
	}
	defer e.gate.Release(token)

	now := time.Now()
	task.StartedAt = &now
	e.setStatus(plan, task, workflow.TaskStatusRunning)
	tasksInFlight.Inc()
	defer tasksInFlight.Dec()

	result, attempts, err := e.invoker.Invoke(ctx, task.ToolName, task.ToolParams)
	results <- taskResult{task: task, result: result, attempts: attempts, err: err}
}

// applyResult finalizes a completed task and returns any newly unblocked
// tasks. When the run is cancelled, the task's terminal status is still
// recorded but its result is discarded from the dependent chain.
func (e *Executor) applyResult(plan *workflow.WorkflowPlan, graph *workflow.DependencyGraph, res taskResult, runCancelled bool) []*workflow.PlannedTask {
	task := res.task
	now := time.Now()
	task.CompletedAt = &now
	task.Attempts = res.attempts

	if res.err != nil {
		if task.StartedAt == nil {
			// Never acquired budget; the task did not start. Its dependents
			// can never run either.
			task.Error = res.err.Error()
			e.setStatus(plan, task, workflow.TaskStatusCancelled)
			for _, dep := range graph.MarkFailed(task.ID) {
				e.setStatus(plan, dep, workflow.TaskStatusSkipped)
				depNow := time.Now()
				dep.CompletedAt = &depNow
			}
			return nil
		}
		task.Error = res.err.Error()
		e.setStatus(plan, task, workflow.TaskStatusFailed)
		e.logger.Warn("Task failed",
			"plan_id", plan.ID,
			"task_id", task.ID,
			"attempts", res.attempts,
			"error", res.err)

		for _, dep := range graph.MarkFailed(task.ID) {
			e.setStatus(plan, dep, workflow.TaskStatusSkipped)
			depNow := time.Now()
			dep.CompletedAt = &depNow
		}
		return nil
	}

	e.setStatus(plan, task, workflow.TaskStatusSucceeded)
	unblocked := graph.MarkSucceeded(task.ID)
	if runCancelled {
		for _, dep := range unblocked {
			e.setStatus(plan, dep, workflow.TaskStatusCancelled)
		}
		return nil
	}
	return unblocked
}

// cancelPending marks every queued and not-yet-dispatched task cancelled and
// returns the emptied queue. Running tasks are left to finish.
func (e *Executor) cancelPending(plan *workflow.WorkflowPlan, graph *workflow.DependencyGraph, queue []*workflow.PlannedTask, running map[string]bool) []*workflow.PlannedTask {
	e.logger.Info("Plan cancelled, draining pending tasks",
		"plan_id", plan.ID,
		"running", len(running))
	for _, task := range graph.Drain() {
		if running[task.ID] {
			continue
		}
		e.setStatus(plan, task, workflow.TaskStatusCancelled)
	}
	for _, task := range queue {
		e.setStatus(plan, task, workflow.TaskStatusCancelled)
	}
	return nil
}

// setStatus applies a status transition and publishes the task event.
func (e *Executor) setStatus(plan *workflow.WorkflowPlan, task *workflow.PlannedTask, target workflow.TaskStatus) {
	if task.Status == target {
		return
	}
	task.Status = target
	if target.IsTerminal() {
		tasksTotal.WithLabelValues(target.String()).Inc()
	}
	if e.publisher != nil {
		e.publisher.PublishTaskEvent(TaskEvent{
			PlanID:    plan.ID,
			TaskID:    task.ID,
			Status:    target,
			Attempts:  task.Attempts,
			Error:     task.Error,
			Timestamp: time.Now(),
		})
	}
}
