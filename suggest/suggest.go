// Package suggest scans read-only state snapshots and surfaces ranked
// operational suggestions. Scans are pure over the snapshot; the only
// persisted state is the cool-down mark preventing repeat emissions.
package suggest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/quillworks/quillops/storage"
)

// Suggestion categories.
const (
	CategoryFeedbackRequest   = "feedback_request"
	CategoryInvoiceOverdue    = "invoice_overdue"
	CategoryDeliverableUnsent = "deliverable_unsent"
	CategoryMilestone         = "milestone"
)

// Priority ranks suggestions for presentation.
type Priority int

// Priority levels, highest first.
const (
	PriorityHigh Priority = iota
	PriorityMedium
	PriorityLow
)

// String returns the priority label.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Item is one surfaced suggestion.
type Item struct {
	// Category is the trigger rule that produced the item.
	Category string `json:"category"`

	// Subject is the external entity the suggestion concerns.
	Subject string `json:"subject"`

	// Priority ranks the item.
	Priority Priority `json:"priority"`

	// Message is the human-readable recommendation.
	Message string `json:"message"`

	// Actions lists recommended intents the user can run.
	Actions []string `json:"actions,omitempty"`

	// FirstSeen is when this condition was first surfaced.
	FirstSeen time.Time `json:"first_seen"`

	// LastSeen is when this condition was last surfaced.
	LastSeen time.Time `json:"last_seen"`
}

// Project is the minimal project view the engine needs.
type Project struct {
	// ID identifies the project.
	ID string `yaml:"id"`

	// Name is the project display name.
	Name string `yaml:"name"`

	// CompletedAt is when the project completed; nil while active.
	CompletedAt *time.Time `yaml:"completed_at,omitempty"`

	// FeedbackRequestedAt is when client feedback was requested; nil if
	// never requested.
	FeedbackRequestedAt *time.Time `yaml:"feedback_requested_at,omitempty"`

	// Milestones lists recorded milestone dates.
	Milestones []Milestone `yaml:"milestones,omitempty"`
}

// Milestone is a dated project event.
type Milestone struct {
	// Name labels the milestone.
	Name string `yaml:"name"`

	// Date is the recorded milestone date.
	Date time.Time `yaml:"date"`
}

// Invoice is the minimal invoice view the engine needs.
type Invoice struct {
	// ID identifies the invoice.
	ID string `yaml:"id"`

	// ClientName is the billed client.
	ClientName string `yaml:"client_name"`

	// DueAt is the payment due date.
	DueAt time.Time `yaml:"due_at"`

	// PaidAt is when payment arrived; nil while unpaid.
	PaidAt *time.Time `yaml:"paid_at,omitempty"`
}

// Deliverable is the minimal deliverable view the engine needs.
type Deliverable struct {
	// ID identifies the deliverable.
	ID string `yaml:"id"`

	// Title is the deliverable display name.
	Title string `yaml:"title"`

	// CompletedAt is when the work finished; nil while in progress.
	CompletedAt *time.Time `yaml:"completed_at,omitempty"`

	// SentAt is when it was delivered to the client; nil if unsent.
	SentAt *time.Time `yaml:"sent_at,omitempty"`
}

// Snapshot is the read-only state the engine scans. Collections are
// supplied by external collaborators; the engine never queries storage
// for business entities itself.
type Snapshot struct {
	Projects     []Project     `yaml:"projects,omitempty"`
	Invoices     []Invoice     `yaml:"invoices,omitempty"`
	Deliverables []Deliverable `yaml:"deliverables,omitempty"`
}

// Config holds the per-rule thresholds and the emission cool-down.
type Config struct {
	// FeedbackAfterDays triggers a feedback suggestion this many days
	// after project completion with no feedback request.
	FeedbackAfterDays int `yaml:"feedback_after_days"`

	// InvoiceOverdueDays triggers an overdue suggestion this many days
	// past an unpaid invoice's due date.
	InvoiceOverdueDays int `yaml:"invoice_overdue_days"`

	// MilestoneLookbackDays is the window around now in which a recorded
	// milestone date surfaces a suggestion.
	MilestoneLookbackDays int `yaml:"milestone_lookback_days"`

	// CoolDown is how long an emitted (category, subject) pair stays
	// suppressed.
	CoolDown time.Duration `yaml:"cool_down"`

	// SnapshotPath points at the YAML state snapshot scans read. Empty
	// disables proactive suggestions.
	SnapshotPath string `yaml:"snapshot_path"`
}

// DefaultConfig returns suggestion engine defaults.
func DefaultConfig() Config {
	return Config{
		FeedbackAfterDays:     7,
		InvoiceOverdueDays:    14,
		MilestoneLookbackDays: 14,
		CoolDown:              24 * time.Hour,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.FeedbackAfterDays < 0 || c.InvoiceOverdueDays < 0 || c.MilestoneLookbackDays < 0 {
		return fmt.Errorf("threshold days must not be negative")
	}
	if c.CoolDown < 0 {
		return fmt.Errorf("cool_down must not be negative")
	}
	return nil
}

// Engine evaluates trigger rules over snapshots.
type Engine struct {
	store  storage.SuggestionStore
	config Config
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates a suggestion engine.
func New(store storage.SuggestionStore, config Config, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:  store,
		config: config,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Scan evaluates every trigger rule against the snapshot and returns new
// suggestions ranked by priority. A (category, subject) pair emitted within
// the cool-down window is suppressed, so an unchanged condition surfaces at
// most once per window.
func (e *Engine) Scan(ctx context.Context, snap Snapshot) ([]Item, error) {
	now := e.now()

	var candidates []Item
	candidates = append(candidates, e.feedbackRule(snap, now)...)
	candidates = append(candidates, e.invoiceRule(snap, now)...)
	candidates = append(candidates, e.deliverableRule(snap, now)...)
	candidates = append(candidates, e.milestoneRule(snap, now)...)

	var items []Item
	for _, cand := range candidates {
		mark, err := e.store.GetMark(ctx, cand.Category, cand.Subject)
		switch {
		case err == nil:
			if now.Sub(mark.SurfacedAt) < e.config.CoolDown {
				continue // Still inside the cool-down window
			}
			cand.FirstSeen = mark.FirstSeen
		case errors.Is(err, storage.ErrNotFound):
			cand.FirstSeen = now
		default:
			return nil, fmt.Errorf("check suggestion mark: %w", err)
		}
		cand.LastSeen = now

		if err := e.store.PutMark(ctx, &storage.SuggestionMark{
			Category:   cand.Category,
			Subject:    cand.Subject,
			FirstSeen:  cand.FirstSeen,
			SurfacedAt: now,
		}); err != nil {
			return nil, fmt.Errorf("store suggestion mark: %w", err)
		}
		items = append(items, cand)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Priority < items[j].Priority
	})

	scansTotal.Inc()
	itemsEmitted.Add(float64(len(items)))
	e.logger.Debug("Suggestion scan complete",
		"candidates", len(candidates),
		"emitted", len(items))
	return items, nil
}

// feedbackRule surfaces completed projects with no feedback request after
// the configured number of days.
func (e *Engine) feedbackRule(snap Snapshot, now time.Time) []Item {
	threshold := time.Duration(e.config.FeedbackAfterDays) * 24 * time.Hour
	var items []Item
	for _, p := range snap.Projects {
		if p.CompletedAt == nil || p.FeedbackRequestedAt != nil {
			continue
		}
		if now.Sub(*p.CompletedAt) < threshold {
			continue
		}
		items = append(items, Item{
			Category: CategoryFeedbackRequest,
			Subject:  p.ID,
			Priority: PriorityMedium,
			Message:  fmt.Sprintf("Project %q completed %d days ago with no feedback request", p.Name, int(now.Sub(*p.CompletedAt).Hours()/24)),
			Actions:  []string{"request_feedback"},
		})
	}
	return items
}

// invoiceRule surfaces unpaid invoices past due by the configured number
// of days.
func (e *Engine) invoiceRule(snap Snapshot, now time.Time) []Item {
	threshold := time.Duration(e.config.InvoiceOverdueDays) * 24 * time.Hour
	var items []Item
	for _, inv := range snap.Invoices {
		if inv.PaidAt != nil {
			continue
		}
		if now.Sub(inv.DueAt) < threshold {
			continue
		}
		items = append(items, Item{
			Category: CategoryInvoiceOverdue,
			Subject:  inv.ID,
			Priority: PriorityHigh,
			Message:  fmt.Sprintf("Invoice %s for %s is %d days overdue", inv.ID, inv.ClientName, int(now.Sub(inv.DueAt).Hours()/24)),
			Actions:  []string{"send_payment_reminder"},
		})
	}
	return items
}

// deliverableRule surfaces completed deliverables not yet sent.
func (e *Engine) deliverableRule(snap Snapshot, now time.Time) []Item {
	var items []Item
	for _, d := range snap.Deliverables {
		if d.CompletedAt == nil || d.SentAt != nil {
			continue
		}
		items = append(items, Item{
			Category: CategoryDeliverableUnsent,
			Subject:  d.ID,
			Priority: PriorityHigh,
			Message:  fmt.Sprintf("Deliverable %q is complete but has not been sent", d.Title),
			Actions:  []string{"send_deliverable"},
		})
	}
	return items
}

// milestoneRule surfaces recorded milestone dates falling within the
// lookback window on either side of now.
func (e *Engine) milestoneRule(snap Snapshot, now time.Time) []Item {
	window := time.Duration(e.config.MilestoneLookbackDays) * 24 * time.Hour
	var items []Item
	for _, p := range snap.Projects {
		for _, m := range p.Milestones {
			delta := m.Date.Sub(now)
			if delta < -window || delta > window {
				continue
			}
			items = append(items, Item{
				Category: CategoryMilestone,
				Subject:  fmt.Sprintf("%s/%s", p.ID, m.Name),
				Priority: PriorityLow,
				Message:  fmt.Sprintf("Milestone %q on project %q falls on %s", m.Name, p.Name, m.Date.Format("2006-01-02")),
				Actions:  []string{"plan_milestone_outreach"},
			})
		}
	}
	return items
}
