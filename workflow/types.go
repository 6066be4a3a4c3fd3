// Package workflow provides the Quillops workflow data model: plans,
// planned tasks, scheduled tasks, and the dependency graph that orders
// task execution.
package workflow

import (
	"time"
)

// TaskStatus represents the execution state of a planned task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task is waiting on unmet dependencies.
	TaskStatusPending TaskStatus = "pending"

	// TaskStatusReady indicates all dependencies succeeded and the task is awaiting dispatch.
	TaskStatusReady TaskStatus = "ready"

	// TaskStatusRunning indicates the task has been dispatched and is in flight.
	TaskStatusRunning TaskStatus = "running"

	// TaskStatusSucceeded indicates the task completed successfully.
	TaskStatusSucceeded TaskStatus = "succeeded"

	// TaskStatusFailed indicates the task failed after retries were exhausted
	// or a permanent error occurred.
	TaskStatusFailed TaskStatus = "failed"

	// TaskStatusSkipped indicates a dependency failed or was skipped, so the
	// task never ran. Failure propagates forward through the graph, never
	// backward.
	TaskStatusSkipped TaskStatus = "skipped"

	// TaskStatusCancelled indicates the workflow was cancelled before the
	// task started.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// String returns the string representation of the task status.
func (s TaskStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is a valid task status.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusReady, TaskStatusRunning,
		TaskStatusSucceeded, TaskStatusFailed, TaskStatusSkipped, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if the status is a terminal state.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusSucceeded, TaskStatusFailed, TaskStatusSkipped, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo returns true if this status can transition to the target status.
// The task status workflow is:
//
//	pending → ready (all dependencies succeeded)
//	pending → skipped (a dependency failed or was skipped)
//	pending → cancelled (workflow cancelled before start)
//	ready → running (dispatched by the executor)
//	ready → cancelled (workflow cancelled before dispatch)
//	running → succeeded | failed
func (s TaskStatus) CanTransitionTo(target TaskStatus) bool {
	switch s {
	case TaskStatusPending:
		return target == TaskStatusReady || target == TaskStatusSkipped || target == TaskStatusCancelled
	case TaskStatusReady:
		return target == TaskStatusRunning || target == TaskStatusCancelled || target == TaskStatusSkipped
	case TaskStatusRunning:
		return target == TaskStatusSucceeded || target == TaskStatusFailed
	case TaskStatusSucceeded, TaskStatusFailed, TaskStatusSkipped, TaskStatusCancelled:
		return false // Terminal states
	default:
		return false
	}
}

// PlannedTask is a single unit of work within a WorkflowPlan.
// Task state is owned by the executor driving the plan; no other component
// writes task status.
type PlannedTask struct {
	// ID is the task identifier, unique within its plan.
	ID string `json:"id"`

	// Description is the human-readable summary of the work.
	Description string `json:"description"`

	// ToolName names the registered tool that performs the work.
	ToolName string `json:"tool_name"`

	// ToolParams are the parameters passed to the tool.
	ToolParams map[string]any `json:"tool_params,omitempty"`

	// DependsOn lists task IDs that must succeed before this task can start.
	// Self-references are rejected at plan time.
	DependsOn []string `json:"depends_on,omitempty"`

	// EstimatedDuration is the planner's duration estimate for the task.
	EstimatedDuration time.Duration `json:"estimated_duration,omitempty"`

	// Cost is the resource-unit budget this task consumes from the gate.
	Cost int64 `json:"cost,omitempty"`

	// Status is the current execution state.
	Status TaskStatus `json:"status"`

	// StartedAt is when the task was dispatched.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the task reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Attempts is how many tool invocations were made, including retries.
	Attempts int `json:"attempts,omitempty"`

	// Error holds the last underlying error message for a failed task.
	Error string `json:"error,omitempty"`
}

// PlanStatus represents the lifecycle state of a workflow plan.
type PlanStatus string

const (
	// PlanStatusPending indicates the plan was created but not yet executed.
	PlanStatusPending PlanStatus = "pending"

	// PlanStatusAwaitingConfirmation indicates the plan contains irreversible
	// or costly operations and is held until an explicit confirm/deny signal.
	PlanStatusAwaitingConfirmation PlanStatus = "awaiting_confirmation"

	// PlanStatusRunning indicates the executor is driving the plan.
	PlanStatusRunning PlanStatus = "running"

	// PlanStatusCompleted indicates execution finished; per-task outcomes are
	// in the execution report, which may include failures.
	PlanStatusCompleted PlanStatus = "completed"

	// PlanStatusCancelled indicates the plan was denied or cancelled.
	PlanStatusCancelled PlanStatus = "cancelled"
)

// String returns the string representation of the plan status.
func (s PlanStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is a valid plan status.
func (s PlanStatus) IsValid() bool {
	switch s {
	case PlanStatusPending, PlanStatusAwaitingConfirmation, PlanStatusRunning,
		PlanStatusCompleted, PlanStatusCancelled:
		return true
	default:
		return false
	}
}

// WorkflowPlan is a validated, dependency-ordered set of tasks produced by
// the planner for a single intent. The plan is owned by the invocation that
// created it; once execution starts only task status fields mutate.
type WorkflowPlan struct {
	// ID uniquely identifies the plan.
	ID string `json:"id"`

	// Intent is the classified intent this plan was built from.
	Intent string `json:"intent"`

	// SessionID links the plan to the conversation session that requested it.
	SessionID string `json:"session_id,omitempty"`

	// Tasks is the ordered task list. Order preserves the intent template's
	// insertion order so equally-ready tasks dispatch deterministically.
	Tasks []*PlannedTask `json:"tasks"`

	// RequiresConfirmation is set when the plan contains irreversible or
	// costly operations. Execution halts until an explicit confirm signal.
	RequiresConfirmation bool `json:"requires_confirmation"`

	// EstimatedTotalDuration is the sum of task estimates along the critical
	// path assumption of serial execution; an upper bound, not a promise.
	EstimatedTotalDuration time.Duration `json:"estimated_total_duration"`

	// Status is the plan lifecycle state.
	Status PlanStatus `json:"status"`

	// CreatedAt is when the planner produced the plan.
	CreatedAt time.Time `json:"created_at"`
}

// Task returns the task with the given ID, or nil if absent.
func (p *WorkflowPlan) Task(id string) *PlannedTask {
	for _, t := range p.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Frequency represents how often a scheduled task recurs.
type Frequency string

const (
	// FrequencyOnce runs the task a single time.
	FrequencyOnce Frequency = "ONCE"

	// FrequencyDaily recurs every day.
	FrequencyDaily Frequency = "DAILY"

	// FrequencyWeekly recurs every 7 days.
	FrequencyWeekly Frequency = "WEEKLY"

	// FrequencyBiweekly recurs every 14 days.
	FrequencyBiweekly Frequency = "BIWEEKLY"

	// FrequencyMonthly recurs every 30 days.
	FrequencyMonthly Frequency = "MONTHLY"
)

// IsValid returns true if the frequency is a known value.
func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyOnce, FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
		return true
	default:
		return false
	}
}

// Interval returns the calendar interval between occurrences.
// FrequencyOnce returns zero.
func (f Frequency) Interval() time.Duration {
	switch f {
	case FrequencyDaily:
		return 24 * time.Hour
	case FrequencyWeekly:
		return 7 * 24 * time.Hour
	case FrequencyBiweekly:
		return 14 * 24 * time.Hour
	case FrequencyMonthly:
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}

// ScheduleStatus represents the lifecycle state of a scheduled task.
type ScheduleStatus string

const (
	// ScheduleStatusPending indicates the task is waiting for its next due time.
	ScheduleStatusPending ScheduleStatus = "pending"

	// ScheduleStatusCompleted indicates the task ran out of iterations or was
	// a one-shot that fired. Completed tasks are never rescheduled.
	ScheduleStatusCompleted ScheduleStatus = "completed"

	// ScheduleStatusCancelled indicates the task was cancelled. The record is
	// retained for audit, never deleted.
	ScheduleStatusCancelled ScheduleStatus = "cancelled"
)

// String returns the string representation of the schedule status.
func (s ScheduleStatus) String() string {
	return string(s)
}

// ScheduledTask is a time-triggered (optionally recurring) workflow request.
// Mutated only by the scheduler tick; created by explicit schedule requests.
type ScheduledTask struct {
	// ID uniquely identifies the scheduled task.
	ID string `json:"id"`

	// Description is the human-readable summary.
	Description string `json:"description"`

	// Intent is the intent handed to the planner when the task fires.
	Intent string `json:"intent"`

	// Params are the intent parameters for plan generation.
	Params map[string]any `json:"params,omitempty"`

	// SessionID links recurring runs back to the originating session.
	SessionID string `json:"session_id,omitempty"`

	// ScheduledFor is when the task next fires.
	ScheduledFor time.Time `json:"scheduled_for"`

	// Frequency controls recurrence.
	Frequency Frequency `json:"frequency"`

	// MaxIterations is the total number of times the task may fire.
	MaxIterations int `json:"max_iterations"`

	// RemainingIterations counts down on each firing; at zero the task
	// completes and is never rescheduled. Monotonically decreasing.
	RemainingIterations int `json:"remaining_iterations"`

	// Status is the schedule lifecycle state.
	Status ScheduleStatus `json:"status"`

	// CreatedAt is when the schedule request was accepted.
	CreatedAt time.Time `json:"created_at"`

	// LastRunAt is when the task last fired.
	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	// LastPlanID is the plan produced by the most recent firing.
	LastPlanID string `json:"last_plan_id,omitempty"`
}
