package workflow

import "fmt"

// ValidationError indicates bad plan or task parameters. Validation errors
// fail fast and are never retried.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// CycleDetectedError indicates the task graph contains a dependency cycle.
// Planning fails outright; the graph is never silently truncated.
type CycleDetectedError struct {
	// Unordered is the number of tasks that could not be topologically ordered.
	Unordered int
}

// Error implements the error interface.
func (e *CycleDetectedError) Error() string {
	return fmt.Sprintf("cycle detected: %d tasks could not be ordered", e.Unordered)
}

// SchedulingConflictError indicates a schedule request reused an existing
// schedule identifier.
type SchedulingConflictError struct {
	ID string
}

// Error implements the error interface.
func (e *SchedulingConflictError) Error() string {
	return fmt.Sprintf("schedule %s already exists", e.ID)
}

// UnknownIntentError indicates the planner has no template for an intent.
type UnknownIntentError struct {
	Intent string
}

// Error implements the error interface.
func (e *UnknownIntentError) Error() string {
	return fmt.Sprintf("unknown intent: %s", e.Intent)
}
