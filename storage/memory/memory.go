// Package memory provides an in-memory store, used for tests and for
// running without a NATS server.
package memory

import (
	"context"
	"sync"

	"github.com/quillworks/quillops/session"
	"github.com/quillworks/quillops/storage"
	"github.com/quillworks/quillops/workflow"
)

// Store holds all records in process memory. Safe for concurrent use.
// Records are deep-copied on the way in and out so callers never share
// mutable state with the store.
type Store struct {
	mu        sync.RWMutex
	plans     map[string]*workflow.WorkflowPlan
	schedules map[string]*workflow.ScheduledTask
	sessions  map[string]*session.Session
	marks     map[string]*storage.SuggestionMark
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		plans:     make(map[string]*workflow.WorkflowPlan),
		schedules: make(map[string]*workflow.ScheduledTask),
		sessions:  make(map[string]*session.Session),
		marks:     make(map[string]*storage.SuggestionMark),
	}
}

// PutPlan implements storage.PlanStore.
func (s *Store) PutPlan(_ context.Context, plan *workflow.WorkflowPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[plan.ID] = clonePlan(plan)
	return nil
}

// GetPlan implements storage.PlanStore.
func (s *Store) GetPlan(_ context.Context, id string) (*workflow.WorkflowPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	plan, ok := s.plans[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return clonePlan(plan), nil
}

// ListPlans implements storage.PlanStore.
func (s *Store) ListPlans(_ context.Context) ([]*workflow.WorkflowPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	plans := make([]*workflow.WorkflowPlan, 0, len(s.plans))
	for _, p := range s.plans {
		plans = append(plans, clonePlan(p))
	}
	return plans, nil
}

// PutSchedule implements storage.ScheduleStore.
func (s *Store) PutSchedule(_ context.Context, task *workflow.ScheduledTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[task.ID] = cloneSchedule(task)
	return nil
}

// GetSchedule implements storage.ScheduleStore.
func (s *Store) GetSchedule(_ context.Context, id string) (*workflow.ScheduledTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.schedules[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneSchedule(task), nil
}

// ListSchedules implements storage.ScheduleStore.
func (s *Store) ListSchedules(_ context.Context) ([]*workflow.ScheduledTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tasks := make([]*workflow.ScheduledTask, 0, len(s.schedules))
	for _, t := range s.schedules {
		tasks = append(tasks, cloneSchedule(t))
	}
	return tasks, nil
}

// DeleteSchedule implements storage.ScheduleStore.
func (s *Store) DeleteSchedule(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.schedules, id)
	return nil
}

// PutSession implements session.Store.
func (s *Store) PutSession(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = cloneSession(sess)
	return nil
}

// GetSession implements session.Store.
func (s *Store) GetSession(_ context.Context, id string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneSession(sess), nil
}

// ListSessions implements session.Store.
func (s *Store) ListSessions(_ context.Context) ([]*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessions := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, cloneSession(sess))
	}
	return sessions, nil
}

// PutMark implements storage.SuggestionStore.
func (s *Store) PutMark(_ context.Context, mark *storage.SuggestionMark) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := *mark
	s.marks[markKey(mark.Category, mark.Subject)] = &m
	return nil
}

// GetMark implements storage.SuggestionStore.
func (s *Store) GetMark(_ context.Context, category, subject string) (*storage.SuggestionMark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mark, ok := s.marks[markKey(category, subject)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	m := *mark
	return &m, nil
}

func markKey(category, subject string) string {
	return category + "\x00" + subject
}

func clonePlan(plan *workflow.WorkflowPlan) *workflow.WorkflowPlan {
	out := *plan
	out.Tasks = make([]*workflow.PlannedTask, len(plan.Tasks))
	for i, t := range plan.Tasks {
		tc := *t
		tc.DependsOn = append([]string(nil), t.DependsOn...)
		tc.ToolParams = cloneMap(t.ToolParams)
		if t.StartedAt != nil {
			at := *t.StartedAt
			tc.StartedAt = &at
		}
		if t.CompletedAt != nil {
			at := *t.CompletedAt
			tc.CompletedAt = &at
		}
		out.Tasks[i] = &tc
	}
	return &out
}

func cloneSchedule(task *workflow.ScheduledTask) *workflow.ScheduledTask {
	out := *task
	out.Params = cloneMap(task.Params)
	if task.LastRunAt != nil {
		at := *task.LastRunAt
		out.LastRunAt = &at
	}
	return &out
}

func cloneSession(sess *session.Session) *session.Session {
	out := *sess
	out.Messages = append([]session.Message(nil), sess.Messages...)
	if sess.Context != nil {
		out.Context = make(map[string]string, len(sess.Context))
		for k, v := range sess.Context {
			out.Context[k] = v
		}
	}
	return &out
}

// cloneMap copies one level of a params map. Values copied from plan
// templates are treated as immutable below the top level.
func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
