package suggest

import (
	"context"
	"testing"
	"time"

	"github.com/quillworks/quillops/storage/memory"
)

func newTestEngine(t *testing.T, now *time.Time) *Engine {
	t.Helper()
	e, err := New(memory.New(), DefaultConfig(), nil, WithClock(func() time.Time { return *now }))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func timePtr(t time.Time) *time.Time { return &t }

func TestScan_FeedbackRule(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(t, &now)

	snap := Snapshot{Projects: []Project{
		// Completed 10 days ago, no feedback requested: triggers
		{ID: "p1", Name: "Rebrand", CompletedAt: timePtr(now.AddDate(0, 0, -10))},
		// Completed 3 days ago: under the 7-day threshold
		{ID: "p2", Name: "Newsletter", CompletedAt: timePtr(now.AddDate(0, 0, -3))},
		// Feedback already requested: never triggers
		{ID: "p3", Name: "Audit", CompletedAt: timePtr(now.AddDate(0, 0, -10)), FeedbackRequestedAt: timePtr(now.AddDate(0, 0, -2))},
		// Still active
		{ID: "p4", Name: "Ongoing"},
	}}

	items, err := e.Scan(context.Background(), snap)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d: %+v", len(items), items)
	}
	got := items[0]
	if got.Category != CategoryFeedbackRequest || got.Subject != "p1" {
		t.Errorf("unexpected item: %+v", got)
	}
	if got.Priority != PriorityMedium {
		t.Errorf("expected medium priority, got %s", got.Priority)
	}
	if len(got.Actions) != 1 || got.Actions[0] != "request_feedback" {
		t.Errorf("unexpected actions: %v", got.Actions)
	}
}

func TestScan_InvoiceRule(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(t, &now)

	snap := Snapshot{Invoices: []Invoice{
		// 20 days overdue: triggers
		{ID: "inv-1", ClientName: "Acme", DueAt: now.AddDate(0, 0, -20)},
		// 5 days overdue: under the 14-day threshold
		{ID: "inv-2", ClientName: "Beta", DueAt: now.AddDate(0, 0, -5)},
		// Paid, however late
		{ID: "inv-3", ClientName: "Gamma", DueAt: now.AddDate(0, 0, -30), PaidAt: timePtr(now.AddDate(0, 0, -1))},
	}}

	items, err := e.Scan(context.Background(), snap)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d: %+v", len(items), items)
	}
	if items[0].Subject != "inv-1" || items[0].Priority != PriorityHigh {
		t.Errorf("unexpected item: %+v", items[0])
	}
}

func TestScan_DeliverableRule(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(t, &now)

	snap := Snapshot{Deliverables: []Deliverable{
		{ID: "d1", Title: "Brand kit", CompletedAt: timePtr(now.AddDate(0, 0, -1))},
		{ID: "d2", Title: "Video edit", CompletedAt: timePtr(now.AddDate(0, 0, -1)), SentAt: timePtr(now)},
		{ID: "d3", Title: "In progress"},
	}}

	items, err := e.Scan(context.Background(), snap)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(items) != 1 || items[0].Subject != "d1" {
		t.Fatalf("expected only the unsent completed deliverable, got %+v", items)
	}
}

func TestScan_MilestoneRule(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(t, &now)

	snap := Snapshot{Projects: []Project{{
		ID:   "p1",
		Name: "Retainer",
		Milestones: []Milestone{
			{Name: "launch-anniversary", Date: now.AddDate(0, 0, 5)},
			{Name: "kickoff", Date: now.AddDate(0, 0, -60)},
			{Name: "renewal", Date: now.AddDate(0, 0, -10)},
		},
	}}}

	items, err := e.Scan(context.Background(), snap)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items inside the window, got %+v", items)
	}
	for _, it := range items {
		if it.Category != CategoryMilestone || it.Priority != PriorityLow {
			t.Errorf("unexpected item: %+v", it)
		}
	}
	if items[0].Subject != "p1/launch-anniversary" {
		t.Errorf("unexpected subject: %s", items[0].Subject)
	}
}

// An unchanged condition surfaces at most once per cool-down window.
func TestScan_CoolDownSuppression(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(t, &now)

	snap := Snapshot{Deliverables: []Deliverable{
		{ID: "d1", Title: "Brand kit", CompletedAt: timePtr(now.AddDate(0, 0, -1))},
	}}

	items, err := e.Scan(context.Background(), snap)
	if err != nil {
		t.Fatalf("first scan: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item on first scan, got %d", len(items))
	}
	firstSeen := items[0].FirstSeen

	// Second scan inside the 24h window: suppressed
	now = now.Add(6 * time.Hour)
	items, err = e.Scan(context.Background(), snap)
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected suppression inside cool-down, got %+v", items)
	}

	// After the window expires the condition surfaces again, keeping its
	// original first-seen time.
	now = now.Add(24 * time.Hour)
	items, err = e.Scan(context.Background(), snap)
	if err != nil {
		t.Fatalf("third scan: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected re-emission after cool-down, got %+v", items)
	}
	if !items[0].FirstSeen.Equal(firstSeen) {
		t.Errorf("expected first-seen preserved across windows, got %v want %v", items[0].FirstSeen, firstSeen)
	}
	if !items[0].LastSeen.Equal(now) {
		t.Errorf("expected last-seen updated, got %v", items[0].LastSeen)
	}
}

func TestScan_PriorityOrdering(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(t, &now)

	snap := Snapshot{
		Projects: []Project{{
			ID:          "p1",
			Name:        "Rebrand",
			CompletedAt: timePtr(now.AddDate(0, 0, -10)),
			Milestones:  []Milestone{{Name: "anniversary", Date: now.AddDate(0, 0, 3)}},
		}},
		Invoices: []Invoice{
			{ID: "inv-1", ClientName: "Acme", DueAt: now.AddDate(0, 0, -20)},
		},
	}

	items, err := e.Scan(context.Background(), snap)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %+v", items)
	}
	want := []Priority{PriorityHigh, PriorityMedium, PriorityLow}
	for i, p := range want {
		if items[i].Priority != p {
			t.Errorf("position %d: expected %s, got %s", i, p, items[i].Priority)
		}
	}
}

func TestScan_EmptySnapshot(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(t, &now)

	items, err := e.Scan(context.Background(), Snapshot{})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected no items, got %+v", items)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InvoiceOverdueDays = -1
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative threshold")
	}

	cfg = DefaultConfig()
	cfg.CoolDown = -time.Hour
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative cool-down")
	}
}
