package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quillworks/quillops/storage"
	"github.com/quillworks/quillops/storage/memory"
	"github.com/quillworks/quillops/workflow"
)

// fakeRunner records intent runs and can be told to fail.
type fakeRunner struct {
	runs []string
	fail bool
}

func (r *fakeRunner) RunIntent(_ context.Context, intent string, _ map[string]any, _ string) (string, error) {
	r.runs = append(r.runs, intent)
	if r.fail {
		return "", errors.New("pipeline unavailable")
	}
	return "plan-" + intent, nil
}

func newTestScheduler(t *testing.T, runner Runner, now time.Time) (*Scheduler, *memory.Store) {
	t.Helper()
	store := memory.New()
	s, err := New(store, runner, DefaultConfig(), nil, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s, store
}

func TestSchedule_Once(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s, _ := newTestScheduler(t, &fakeRunner{}, now)

	task, err := s.Schedule(context.Background(), Request{
		Intent:    "health_check",
		When:      "+2h",
		Frequency: workflow.FrequencyOnce,
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if !task.ScheduledFor.Equal(now.Add(2 * time.Hour)) {
		t.Errorf("expected due at now+2h, got %v", task.ScheduledFor)
	}
	if task.RemainingIterations != 1 || task.MaxIterations != 1 {
		t.Errorf("expected single iteration, got %d/%d", task.RemainingIterations, task.MaxIterations)
	}
	if task.Status != workflow.ScheduleStatusPending {
		t.Errorf("expected pending, got %s", task.Status)
	}
}

func TestSchedule_Validation(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s, _ := newTestScheduler(t, &fakeRunner{}, now)

	var verr *workflow.ValidationError
	if _, err := s.Schedule(context.Background(), Request{When: "+1h", Frequency: workflow.FrequencyOnce}); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for missing intent, got %v", err)
	}
	if _, err := s.Schedule(context.Background(), Request{Intent: "x", When: "+1h", Frequency: "HOURLY"}); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for bad frequency, got %v", err)
	}
	if _, err := s.Schedule(context.Background(), Request{Intent: "x", When: "whenever pigs fly backwards", Frequency: workflow.FrequencyOnce}); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for bad time expression, got %v", err)
	}
}

func TestSchedule_DuplicateIDConflict(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s, _ := newTestScheduler(t, &fakeRunner{}, now)

	req := Request{ID: "weekly-report", Intent: "health_check", When: "+1h", Frequency: workflow.FrequencyWeekly}
	if _, err := s.Schedule(context.Background(), req); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	var conflict *workflow.SchedulingConflictError
	if _, err := s.Schedule(context.Background(), req); !errors.As(err, &conflict) {
		t.Fatalf("expected SchedulingConflictError, got %v", err)
	}
}

func TestSchedule_IterationCeilingClamped(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s, _ := newTestScheduler(t, &fakeRunner{}, now)

	task, err := s.Schedule(context.Background(), Request{
		Intent:     "health_check",
		When:       "+1h",
		Frequency:  workflow.FrequencyDaily,
		Iterations: 50,
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if task.RemainingIterations != DefaultConfig().IterationCeiling {
		t.Errorf("expected iterations clamped to %d, got %d", DefaultConfig().IterationCeiling, task.RemainingIterations)
	}
}

// A WEEKLY task with 3 iterations runs exactly 3 times, each occurrence 7
// days after the previous, then completes and never re-fires.
func TestTick_WeeklyRecurrence(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	runner := &fakeRunner{}
	store := memory.New()
	s, err := New(store, runner, DefaultConfig(), nil, WithClock(func() time.Time { return start }))
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	task, err := s.Schedule(context.Background(), Request{
		ID:         "weekly",
		Intent:     "health_check",
		When:       "+1h",
		Frequency:  workflow.FrequencyWeekly,
		Iterations: 3,
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	firstDue := task.ScheduledFor

	now := start
	for i := 0; i < 3; i++ {
		// Not yet due: nothing fires
		s.Tick(context.Background(), now)
		if len(runner.runs) != i {
			t.Fatalf("iteration %d: expected %d runs before due time, got %d", i, i, len(runner.runs))
		}

		now = firstDue.Add(time.Duration(i)*7*24*time.Hour + time.Minute)
		s.Tick(context.Background(), now)
		if len(runner.runs) != i+1 {
			t.Fatalf("iteration %d: expected %d runs, got %d", i, i+1, len(runner.runs))
		}

		got, err := store.GetSchedule(context.Background(), "weekly")
		if err != nil {
			t.Fatalf("get schedule: %v", err)
		}
		if i < 2 {
			want := firstDue.Add(time.Duration(i+1) * 7 * 24 * time.Hour)
			if !got.ScheduledFor.Equal(want) {
				t.Errorf("iteration %d: expected next due %v, got %v", i, want, got.ScheduledFor)
			}
			if got.Status != workflow.ScheduleStatusPending {
				t.Errorf("iteration %d: expected pending, got %s", i, got.Status)
			}
		} else {
			if got.Status != workflow.ScheduleStatusCompleted {
				t.Errorf("expected completed after final iteration, got %s", got.Status)
			}
			if got.RemainingIterations != 0 {
				t.Errorf("expected 0 remaining, got %d", got.RemainingIterations)
			}
		}
		if got.LastPlanID != "plan-health_check" {
			t.Errorf("expected last plan id recorded, got %q", got.LastPlanID)
		}
	}

	// Never re-triggered after completion
	s.Tick(context.Background(), now.Add(30*24*time.Hour))
	if len(runner.runs) != 3 {
		t.Errorf("expected exactly 3 runs total, got %d", len(runner.runs))
	}
}

func TestTick_OnceCompletesAfterRun(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	runner := &fakeRunner{}
	s, store := newTestScheduler(t, runner, start)

	if _, err := s.Schedule(context.Background(), Request{
		ID: "oneshot", Intent: "health_check", When: "+1h", Frequency: workflow.FrequencyOnce,
	}); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	s.Tick(context.Background(), start.Add(2*time.Hour))
	if len(runner.runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runner.runs))
	}

	got, err := store.GetSchedule(context.Background(), "oneshot")
	if err != nil {
		t.Fatalf("get schedule: %v", err)
	}
	if got.Status != workflow.ScheduleStatusCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
}

// A failed run still consumes the iteration so a broken intent cannot
// recur forever.
func TestTick_FailedRunConsumesIteration(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	runner := &fakeRunner{fail: true}
	s, store := newTestScheduler(t, runner, start)

	if _, err := s.Schedule(context.Background(), Request{
		ID: "broken", Intent: "health_check", When: "+1h", Frequency: workflow.FrequencyDaily, Iterations: 2,
	}); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	s.Tick(context.Background(), start.Add(2*time.Hour))
	got, err := store.GetSchedule(context.Background(), "broken")
	if err != nil {
		t.Fatalf("get schedule: %v", err)
	}
	if got.RemainingIterations != 1 {
		t.Errorf("expected 1 remaining after failed run, got %d", got.RemainingIterations)
	}
	if got.LastPlanID != "" {
		t.Errorf("expected no plan id for failed run, got %q", got.LastPlanID)
	}
}

func TestCancel(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	runner := &fakeRunner{}
	s, store := newTestScheduler(t, runner, start)

	if _, err := s.Schedule(context.Background(), Request{
		ID: "doomed", Intent: "health_check", When: "+1h", Frequency: workflow.FrequencyOnce,
	}); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	if err := s.Cancel(context.Background(), "doomed"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// Record retained, never deleted
	got, err := store.GetSchedule(context.Background(), "doomed")
	if err != nil {
		t.Fatalf("get schedule: %v", err)
	}
	if got.Status != workflow.ScheduleStatusCancelled {
		t.Errorf("expected cancelled, got %s", got.Status)
	}

	// Cancelled tasks never fire
	s.Tick(context.Background(), start.Add(2*time.Hour))
	if len(runner.runs) != 0 {
		t.Errorf("expected no runs, got %d", len(runner.runs))
	}

	// Cancelling twice is an error
	if err := s.Cancel(context.Background(), "doomed"); err == nil {
		t.Error("expected error cancelling a cancelled task")
	}
	if err := s.Cancel(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestParseWhen(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	cases := []struct {
		expr string
		want time.Time
	}{
		{"+30m", now.Add(30 * time.Minute)},
		{"+6h", now.Add(6 * time.Hour)},
		{"1d", now.AddDate(0, 0, 1)},
		{"-2w", now.AddDate(0, 0, -14)},
		{"3mo", now.AddDate(0, 3, 0)},
		{"2026-04-01", time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)},
		{"2026-04-01 15:30", time.Date(2026, 4, 1, 15, 30, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, err := ParseWhen(tc.expr, now)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tc.expr, err)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.expr, tc.want, got)
		}
	}

	// Natural language resolves to a future time
	got, err := ParseWhen("tomorrow at 10am", now)
	if err != nil {
		t.Fatalf("natural language: %v", err)
	}
	if !got.After(now) {
		t.Errorf("expected future time, got %v", got)
	}

	if _, err := ParseWhen("whenever pigs fly backwards", now); err == nil {
		t.Error("expected error for unparseable expression")
	}
}
