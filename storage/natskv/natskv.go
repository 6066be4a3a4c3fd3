// Package natskv persists plans, schedules, sessions, and suggestion marks
// in NATS JetStream key-value buckets.
package natskv

import (
	"context"
	"encoding/base32"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/quillworks/quillops/session"
	"github.com/quillworks/quillops/storage"
	"github.com/quillworks/quillops/workflow"
)

// Bucket names for each record type.
const (
	BucketPlans       = "QUILLOPS_PLANS"
	BucketSchedules   = "QUILLOPS_SCHEDULES"
	BucketSessions    = "QUILLOPS_SESSIONS"
	BucketSuggestions = "QUILLOPS_SUGGESTIONS"
)

// Store provides durable storage backed by NATS KV.
type Store struct {
	plans       jetstream.KeyValue
	schedules   jetstream.KeyValue
	sessions    jetstream.KeyValue
	suggestions jetstream.KeyValue
}

// New creates a Store with the given JetStream context, creating the KV
// buckets if they don't exist.
func New(ctx context.Context, js jetstream.JetStream) (*Store, error) {
	plans, err := getOrCreateBucket(ctx, js, BucketPlans)
	if err != nil {
		return nil, fmt.Errorf("create plans bucket: %w", err)
	}

	schedules, err := getOrCreateBucket(ctx, js, BucketSchedules)
	if err != nil {
		return nil, fmt.Errorf("create schedules bucket: %w", err)
	}

	sessions, err := getOrCreateBucket(ctx, js, BucketSessions)
	if err != nil {
		return nil, fmt.Errorf("create sessions bucket: %w", err)
	}

	suggestions, err := getOrCreateBucket(ctx, js, BucketSuggestions)
	if err != nil {
		return nil, fmt.Errorf("create suggestions bucket: %w", err)
	}

	return &Store{
		plans:       plans,
		schedules:   schedules,
		sessions:    sessions,
		suggestions: suggestions,
	}, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	// Bucket doesn't exist, create it
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("QuillOps %s storage", strings.ToLower(name)),
		History:     5, // Keep last 5 revisions
	})
}

// PutPlan implements storage.PlanStore.
func (s *Store) PutPlan(ctx context.Context, plan *workflow.WorkflowPlan) error {
	return put(ctx, s.plans, plan.ID, plan, "plan")
}

// GetPlan implements storage.PlanStore.
func (s *Store) GetPlan(ctx context.Context, id string) (*workflow.WorkflowPlan, error) {
	return get[workflow.WorkflowPlan](ctx, s.plans, id, "plan")
}

// ListPlans implements storage.PlanStore.
func (s *Store) ListPlans(ctx context.Context) ([]*workflow.WorkflowPlan, error) {
	return list[workflow.WorkflowPlan](ctx, s.plans)
}

// PutSchedule implements storage.ScheduleStore.
func (s *Store) PutSchedule(ctx context.Context, task *workflow.ScheduledTask) error {
	return put(ctx, s.schedules, task.ID, task, "schedule")
}

// GetSchedule implements storage.ScheduleStore.
func (s *Store) GetSchedule(ctx context.Context, id string) (*workflow.ScheduledTask, error) {
	return get[workflow.ScheduledTask](ctx, s.schedules, id, "schedule")
}

// ListSchedules implements storage.ScheduleStore.
func (s *Store) ListSchedules(ctx context.Context) ([]*workflow.ScheduledTask, error) {
	return list[workflow.ScheduledTask](ctx, s.schedules)
}

// DeleteSchedule implements storage.ScheduleStore.
func (s *Store) DeleteSchedule(ctx context.Context, id string) error {
	if _, err := s.schedules.Get(ctx, id); err != nil {
		if isNotFound(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("get schedule: %w", err)
	}
	if err := s.schedules.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	return nil
}

// PutSession implements session.Store.
func (s *Store) PutSession(ctx context.Context, sess *session.Session) error {
	return put(ctx, s.sessions, sess.ID, sess, "session")
}

// GetSession implements session.Store.
func (s *Store) GetSession(ctx context.Context, id string) (*session.Session, error) {
	return get[session.Session](ctx, s.sessions, id, "session")
}

// ListSessions implements session.Store.
func (s *Store) ListSessions(ctx context.Context) ([]*session.Session, error) {
	return list[session.Session](ctx, s.sessions)
}

// PutMark implements storage.SuggestionStore.
func (s *Store) PutMark(ctx context.Context, mark *storage.SuggestionMark) error {
	return put(ctx, s.suggestions, markKey(mark.Category, mark.Subject), mark, "suggestion mark")
}

// GetMark implements storage.SuggestionStore.
func (s *Store) GetMark(ctx context.Context, category, subject string) (*storage.SuggestionMark, error) {
	return get[storage.SuggestionMark](ctx, s.suggestions, markKey(category, subject), "suggestion mark")
}

// subjectEncoding renders arbitrary subjects as KV-safe key tokens.
var subjectEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// markKey builds a KV-safe key from category and subject. NATS KV keys
// reject most punctuation, so the subject is encoded rather than
// normalized; distinct subjects never collide.
func markKey(category, subject string) string {
	return category + "." + subjectEncoding.EncodeToString([]byte(subject))
}

func put[T any](ctx context.Context, kv jetstream.KeyValue, key string, v *T, kind string) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}
	if _, err := kv.Put(ctx, key, data); err != nil {
		return fmt.Errorf("store %s: %w", kind, err)
	}
	return nil
}

func get[T any](ctx context.Context, kv jetstream.KeyValue, key, kind string) (*T, error) {
	entry, err := kv.Get(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", kind, err)
	}

	var v T
	if err := json.Unmarshal(entry.Value(), &v); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", kind, err)
	}
	return &v, nil
}

func list[T any](ctx context.Context, kv jetstream.KeyValue) ([]*T, error) {
	keys, err := kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list keys: %w", err)
	}

	out := make([]*T, 0, len(keys))
	for _, key := range keys {
		entry, err := kv.Get(ctx, key)
		if err != nil {
			continue // Skip entries that fail to load
		}
		var v T
		if err := json.Unmarshal(entry.Value(), &v); err != nil {
			continue
		}
		out = append(out, &v)
	}

	return out, nil
}

// isNotFound checks if an error indicates a key was not found.
func isNotFound(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound)
}
