// Package storage defines the persistence interfaces for plans, schedules,
// and suggestion state. Implementations live in the memory and natskv
// subpackages.
package storage

import (
	"context"
	"time"

	"github.com/quillworks/quillops/workflow"
)

// PlanStore persists workflow plans and their terminal task states.
type PlanStore interface {
	// PutPlan stores or replaces a plan.
	PutPlan(ctx context.Context, plan *workflow.WorkflowPlan) error

	// GetPlan retrieves a plan by ID. Returns ErrNotFound when the plan
	// does not exist.
	GetPlan(ctx context.Context, id string) (*workflow.WorkflowPlan, error)

	// ListPlans returns all stored plans.
	ListPlans(ctx context.Context) ([]*workflow.WorkflowPlan, error)
}

// ScheduleStore persists scheduled tasks.
type ScheduleStore interface {
	// PutSchedule stores or replaces a scheduled task.
	PutSchedule(ctx context.Context, task *workflow.ScheduledTask) error

	// GetSchedule retrieves a scheduled task by ID. Returns ErrNotFound
	// when the task does not exist.
	GetSchedule(ctx context.Context, id string) (*workflow.ScheduledTask, error)

	// ListSchedules returns all scheduled tasks.
	ListSchedules(ctx context.Context) ([]*workflow.ScheduledTask, error)

	// DeleteSchedule removes a scheduled task. Deleting a missing task
	// returns ErrNotFound.
	DeleteSchedule(ctx context.Context, id string) error
}

// SuggestionMark records when a suggestion was last surfaced, keyed by
// category and subject, so repeat scans stay quiet during the cool-down.
type SuggestionMark struct {
	// Category is the suggestion category (e.g. "feedback_request").
	Category string `json:"category"`

	// Subject is the entity the suggestion concerns.
	Subject string `json:"subject"`

	// FirstSeen is when the condition was first surfaced.
	FirstSeen time.Time `json:"first_seen"`

	// SurfacedAt is when the suggestion was last shown.
	SurfacedAt time.Time `json:"surfaced_at"`
}

// SuggestionStore persists suggestion cool-down marks.
type SuggestionStore interface {
	// PutMark stores or replaces a cool-down mark.
	PutMark(ctx context.Context, mark *SuggestionMark) error

	// GetMark retrieves the mark for a category and subject. Returns
	// ErrNotFound when no mark exists.
	GetMark(ctx context.Context, category, subject string) (*SuggestionMark, error)
}
