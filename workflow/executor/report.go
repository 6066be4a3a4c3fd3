package executor

import (
	"fmt"
	"strings"
	"time"

	"github.com/quillworks/quillops/workflow"
)

// TaskDetail records the terminal outcome of a single task.
type TaskDetail struct {
	// TaskID identifies the task within the plan.
	TaskID string `json:"task_id"`

	// Description is the task's human-readable summary.
	Description string `json:"description"`

	// Status is the terminal task status.
	Status workflow.TaskStatus `json:"status"`

	// Attempts is how many tool invocations were made, including retries.
	Attempts int `json:"attempts,omitempty"`

	// Error is the last underlying error for failed tasks.
	Error string `json:"error,omitempty"`

	// Duration is wall time from dispatch to completion.
	Duration time.Duration `json:"duration,omitempty"`
}

// Report is the aggregate outcome of a plan execution. Every task in the
// plan appears exactly once, keyed by its terminal status; nothing is
// omitted.
type Report struct {
	// PlanID identifies the executed plan.
	PlanID string `json:"plan_id"`

	// Intent is the plan's originating intent.
	Intent string `json:"intent"`

	// Completed lists task IDs that succeeded.
	Completed []string `json:"completed"`

	// Failed lists task IDs that failed terminally.
	Failed []string `json:"failed"`

	// Skipped lists task IDs skipped because a dependency failed.
	Skipped []string `json:"skipped"`

	// Cancelled lists task IDs cancelled before starting.
	Cancelled []string `json:"cancelled"`

	// Details holds per-task outcomes in plan order.
	Details []TaskDetail `json:"details"`

	// StartedAt is when execution began.
	StartedAt time.Time `json:"started_at"`

	// Duration is total execution wall time.
	Duration time.Duration `json:"duration"`
}

// buildReport assembles the report from the plan's terminal task states.
func buildReport(plan *workflow.WorkflowPlan, started, finished time.Time) *Report {
	r := &Report{
		PlanID:    plan.ID,
		Intent:    plan.Intent,
		StartedAt: started,
		Duration:  finished.Sub(started),
	}

	for _, t := range plan.Tasks {
		detail := TaskDetail{
			TaskID:      t.ID,
			Description: t.Description,
			Status:      t.Status,
			Attempts:    t.Attempts,
			Error:       t.Error,
		}
		if t.StartedAt != nil && t.CompletedAt != nil {
			detail.Duration = t.CompletedAt.Sub(*t.StartedAt)
		}
		r.Details = append(r.Details, detail)

		switch t.Status {
		case workflow.TaskStatusSucceeded:
			r.Completed = append(r.Completed, t.ID)
		case workflow.TaskStatusFailed:
			r.Failed = append(r.Failed, t.ID)
		case workflow.TaskStatusSkipped:
			r.Skipped = append(r.Skipped, t.ID)
		case workflow.TaskStatusCancelled:
			r.Cancelled = append(r.Cancelled, t.ID)
		}
	}

	return r
}

// Summary renders a human-readable outcome line plus per-task detail,
// suitable for returning to the conversational surface.
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d completed, %d failed, %d skipped", len(r.Completed), len(r.Failed), len(r.Skipped))
	if len(r.Cancelled) > 0 {
		fmt.Fprintf(&b, ", %d cancelled", len(r.Cancelled))
	}
	for _, d := range r.Details {
		fmt.Fprintf(&b, "\n- %s: %s", d.TaskID, d.Status)
		if d.Error != "" {
			fmt.Fprintf(&b, " (%s)", d.Error)
		}
	}
	return b.String()
}

// Succeeded returns true when no task failed or was skipped.
func (r *Report) Succeeded() bool {
	return len(r.Failed) == 0 && len(r.Skipped) == 0 && len(r.Cancelled) == 0
}
