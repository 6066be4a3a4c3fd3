// Package scheduler runs deferred and recurring intents. Each scheduled
// task carries an iteration countdown so recurring work always terminates.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quillworks/quillops/storage"
	"github.com/quillworks/quillops/workflow"
)

// Runner executes a scheduled intent through the planning and execution
// pipeline, returning the resulting plan ID.
type Runner interface {
	RunIntent(ctx context.Context, intent string, params map[string]any, sessionID string) (string, error)
}

// Config holds scheduler settings.
type Config struct {
	// TickInterval is how often the scheduler polls for due tasks.
	TickInterval time.Duration `yaml:"tick_interval"`

	// IterationCeiling caps recurring task iterations. Requests above the
	// ceiling are clamped, never rejected.
	IterationCeiling int `yaml:"iteration_ceiling"`
}

// DefaultConfig returns scheduler defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval:     30 * time.Second,
		IterationCeiling: 5,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive")
	}
	if c.IterationCeiling < 1 {
		return fmt.Errorf("iteration_ceiling must be at least 1")
	}
	return nil
}

// Request describes a task to schedule.
type Request struct {
	// ID optionally names the task. Supplied IDs must be unique; an
	// existing ID fails with SchedulingConflictError.
	ID string

	// Description is the human-readable summary.
	Description string

	// Intent is the intent to run when due.
	Intent string

	// Params are the intent parameters.
	Params map[string]any

	// SessionID links runs back to the originating conversation.
	SessionID string

	// When is the time expression for the first run (compact duration,
	// natural language, or absolute timestamp).
	When string

	// Frequency is ONCE or a recurrence cadence.
	Frequency workflow.Frequency

	// Iterations requests a recurrence count; zero means the ceiling.
	Iterations int
}

// Scheduler persists scheduled tasks and dispatches them when due.
type Scheduler struct {
	store  storage.ScheduleStore
	runner Runner
	config Config
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a scheduler.
func New(store storage.ScheduleStore, runner Runner, config Config, logger *slog.Logger, opts ...Option) (*Scheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		store:  store,
		runner: runner,
		config: config,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Schedule validates and persists a new scheduled task.
func (s *Scheduler) Schedule(ctx context.Context, req Request) (*workflow.ScheduledTask, error) {
	if req.Intent == "" {
		return nil, &workflow.ValidationError{Field: "intent", Message: "intent is required"}
	}
	if !req.Frequency.IsValid() {
		return nil, &workflow.ValidationError{Field: "frequency", Message: fmt.Sprintf("unknown frequency %s", req.Frequency)}
	}

	now := s.now()
	scheduledFor, err := ParseWhen(req.When, now)
	if err != nil {
		return nil, &workflow.ValidationError{Field: "when", Message: err.Error()}
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	} else {
		if _, err := s.store.GetSchedule(ctx, id); err == nil {
			return nil, &workflow.SchedulingConflictError{ID: id}
		} else if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("check schedule id: %w", err)
		}
	}

	iterations := req.Iterations
	if req.Frequency == workflow.FrequencyOnce {
		iterations = 1
	} else {
		if iterations <= 0 {
			iterations = s.config.IterationCeiling
		}
		if iterations > s.config.IterationCeiling {
			s.logger.Warn("Requested iterations exceed ceiling, clamping",
				"schedule_id", id,
				"requested", iterations,
				"ceiling", s.config.IterationCeiling)
			iterations = s.config.IterationCeiling
		}
	}

	task := &workflow.ScheduledTask{
		ID:                  id,
		Description:         req.Description,
		Intent:              req.Intent,
		Params:              req.Params,
		SessionID:           req.SessionID,
		ScheduledFor:        scheduledFor,
		Frequency:           req.Frequency,
		MaxIterations:       iterations,
		RemainingIterations: iterations,
		Status:              workflow.ScheduleStatusPending,
		CreatedAt:           now,
	}

	if err := s.store.PutSchedule(ctx, task); err != nil {
		return nil, fmt.Errorf("store schedule: %w", err)
	}

	s.logger.Info("Task scheduled",
		"schedule_id", task.ID,
		"intent", task.Intent,
		"scheduled_for", task.ScheduledFor,
		"frequency", task.Frequency,
		"iterations", task.RemainingIterations)
	return task, nil
}

// Cancel marks a pending scheduled task cancelled. Cancelling a task that
// already completed or was cancelled is an error.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	task, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	if task.Status != workflow.ScheduleStatusPending {
		return &workflow.ValidationError{Field: "status", Message: fmt.Sprintf("schedule %s is %s", id, task.Status)}
	}
	task.Status = workflow.ScheduleStatusCancelled
	if err := s.store.PutSchedule(ctx, task); err != nil {
		return fmt.Errorf("cancel schedule: %w", err)
	}
	s.logger.Info("Schedule cancelled", "schedule_id", id)
	return nil
}

// Get retrieves a scheduled task.
func (s *Scheduler) Get(ctx context.Context, id string) (*workflow.ScheduledTask, error) {
	return s.store.GetSchedule(ctx, id)
}

// List returns all scheduled tasks.
func (s *Scheduler) List(ctx context.Context) ([]*workflow.ScheduledTask, error) {
	return s.store.ListSchedules(ctx)
}

// Tick runs every pending task due at or before now. A missed occurrence
// catches up one iteration per tick; the countdown still bounds the total.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	tasks, err := s.store.ListSchedules(ctx)
	if err != nil {
		s.logger.Error("Failed to list schedules", "error", err)
		return
	}

	for _, task := range tasks {
		if task.Status != workflow.ScheduleStatusPending || task.ScheduledFor.After(now) {
			continue
		}
		s.runDue(ctx, task, now)
	}
}

// runDue executes one due task and advances its recurrence state. A failed
// run still consumes the iteration so a broken intent cannot loop forever.
func (s *Scheduler) runDue(ctx context.Context, task *workflow.ScheduledTask, now time.Time) {
	s.logger.Info("Running scheduled task",
		"schedule_id", task.ID,
		"intent", task.Intent,
		"remaining", task.RemainingIterations)

	planID, err := s.runner.RunIntent(ctx, task.Intent, task.Params, task.SessionID)
	if err != nil {
		s.logger.Error("Scheduled run failed",
			"schedule_id", task.ID,
			"intent", task.Intent,
			"error", err)
		runsTotal.WithLabelValues("failed").Inc()
	} else {
		task.LastPlanID = planID
		runsTotal.WithLabelValues("succeeded").Inc()
	}

	ranAt := now
	task.LastRunAt = &ranAt
	task.RemainingIterations--

	if task.Frequency == workflow.FrequencyOnce || task.RemainingIterations <= 0 {
		task.Status = workflow.ScheduleStatusCompleted
	} else {
		// Advance from the scheduled time, not the run time, so the
		// cadence doesn't drift with tick latency.
		task.ScheduledFor = task.ScheduledFor.Add(task.Frequency.Interval())
	}

	if err := s.store.PutSchedule(ctx, task); err != nil {
		s.logger.Error("Failed to persist schedule state",
			"schedule_id", task.ID,
			"error", err)
	}
}

// Run polls for due tasks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	s.logger.Info("Scheduler started", "tick_interval", s.config.TickInterval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx, s.now())
		}
	}
}
