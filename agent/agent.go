// Package agent serves the conversational surface: it classifies an
// utterance into an intent, plans it, holds plans that need confirmation,
// executes, and replies with a structured summary plus any proactive
// suggestions.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/quillworks/quillops/session"
	"github.com/quillworks/quillops/storage"
	"github.com/quillworks/quillops/suggest"
	"github.com/quillworks/quillops/workflow"
	"github.com/quillworks/quillops/workflow/executor"
	"github.com/quillworks/quillops/workflow/planner"
)

// SnapshotProvider supplies the read-only state the suggestion engine
// scans. Implementations belong to the surrounding platform.
type SnapshotProvider interface {
	Snapshot(ctx context.Context) (suggest.Snapshot, error)
}

// Request is one user turn.
type Request struct {
	// SessionID continues an existing conversation; empty starts one.
	SessionID string `json:"session_id,omitempty"`

	// Utterance is the raw user input.
	Utterance string `json:"utterance"`
}

// Response is the agent's reply to one turn.
type Response struct {
	// SessionID identifies the conversation, newly created if needed.
	SessionID string `json:"session_id"`

	// Message is the reply text.
	Message string `json:"message"`

	// PlanID is the plan built for this turn, if any.
	PlanID string `json:"plan_id,omitempty"`

	// AwaitingConfirmation is true when the plan halted for an explicit
	// confirm or deny before executing.
	AwaitingConfirmation bool `json:"awaiting_confirmation,omitempty"`

	// Suggestions are proactive items surfaced alongside the reply.
	Suggestions []suggest.Item `json:"suggestions,omitempty"`
}

// Agent coordinates one conversational turn end to end.
type Agent struct {
	classifier Classifier
	planner    *planner.Planner
	executor   *executor.Executor
	plans      storage.PlanStore
	sessions   *session.Manager
	suggest    *suggest.Engine
	snapshots  SnapshotProvider
	logger     *slog.Logger

	// pending holds plans awaiting an explicit confirm or deny.
	mu      sync.Mutex
	pending map[string]*workflow.WorkflowPlan
}

// New creates an agent. The suggestion engine and snapshot provider are
// optional; without them replies carry no suggestions.
func New(
	classifier Classifier,
	pl *planner.Planner,
	ex *executor.Executor,
	plans storage.PlanStore,
	sessions *session.Manager,
	sugg *suggest.Engine,
	snapshots SnapshotProvider,
	logger *slog.Logger,
) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		classifier: classifier,
		planner:    pl,
		executor:   ex,
		plans:      plans,
		sessions:   sessions,
		suggest:    sugg,
		snapshots:  snapshots,
		logger:     logger,
		pending:    make(map[string]*workflow.WorkflowPlan),
	}
}

// Handle processes one user turn.
func (a *Agent) Handle(ctx context.Context, req Request) (*Response, error) {
	sess, err := a.resumeOrStart(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if _, err := a.sessions.Append(ctx, sess.ID, session.Message{
		Role:    session.RoleUser,
		Content: req.Utterance,
	}); err != nil {
		return nil, err
	}

	cls, err := a.classifier.Classify(req.Utterance, sess.Messages)
	if err != nil {
		var unknown *workflow.UnknownIntentError
		if errors.As(err, &unknown) {
			return a.reply(ctx, sess.ID, "", false,
				fmt.Sprintf("I don't recognize that request. Known intents: %s.", strings.Join(a.planner.Intents(), ", ")))
		}
		return nil, err
	}

	params := a.resolveContext(ctx, sess, cls.Params)

	plan, err := a.planner.Plan(cls.Intent, params)
	if err != nil {
		var verr *workflow.ValidationError
		var cycle *workflow.CycleDetectedError
		if errors.As(err, &verr) || errors.As(err, &cycle) {
			return a.reply(ctx, sess.ID, "", false, fmt.Sprintf("I can't plan that: %v", err))
		}
		return nil, err
	}
	plan.SessionID = sess.ID

	if err := a.plans.PutPlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("store plan: %w", err)
	}

	if plan.RequiresConfirmation {
		a.mu.Lock()
		a.pending[plan.ID] = plan
		a.mu.Unlock()

		msg := fmt.Sprintf("This will run %d tasks including irreversible or paid operations. Confirm to proceed (plan %s).", len(plan.Tasks), plan.ID)
		resp, err := a.reply(ctx, sess.ID, plan.ID, true, msg)
		if err != nil {
			return nil, err
		}
		return resp, nil
	}

	return a.execute(ctx, sess.ID, plan)
}

// Confirm executes a plan previously halted for confirmation.
func (a *Agent) Confirm(ctx context.Context, planID string) (*Response, error) {
	plan, err := a.takePending(planID)
	if err != nil {
		return nil, err
	}
	plan.Status = workflow.PlanStatusPending
	return a.execute(ctx, plan.SessionID, plan)
}

// Deny cancels a plan previously halted for confirmation. No task side
// effects occur.
func (a *Agent) Deny(ctx context.Context, planID string) (*Response, error) {
	plan, err := a.takePending(planID)
	if err != nil {
		return nil, err
	}

	plan.Status = workflow.PlanStatusCancelled
	for _, t := range plan.Tasks {
		t.Status = workflow.TaskStatusCancelled
	}
	if err := a.plans.PutPlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("store plan: %w", err)
	}

	return a.reply(ctx, plan.SessionID, plan.ID, false, fmt.Sprintf("Plan %s cancelled; nothing was run.", plan.ID))
}

// RunIntent plans and executes a scheduled intent, bypassing the
// conversational surface. Plans requiring confirmation never auto-run.
func (a *Agent) RunIntent(ctx context.Context, intent string, params map[string]any, sessionID string) (string, error) {
	plan, err := a.planner.Plan(intent, params)
	if err != nil {
		return "", err
	}
	plan.SessionID = sessionID

	if plan.RequiresConfirmation {
		plan.Status = workflow.PlanStatusCancelled
		for _, t := range plan.Tasks {
			t.Status = workflow.TaskStatusCancelled
		}
		if err := a.plans.PutPlan(ctx, plan); err != nil {
			return "", fmt.Errorf("store plan: %w", err)
		}
		return "", fmt.Errorf("scheduled intent %s requires confirmation and cannot run unattended", intent)
	}

	if err := a.plans.PutPlan(ctx, plan); err != nil {
		return "", fmt.Errorf("store plan: %w", err)
	}

	report, err := a.executor.Execute(ctx, plan)
	if storeErr := a.plans.PutPlan(ctx, plan); storeErr != nil {
		a.logger.Error("Failed to persist executed plan", "plan_id", plan.ID, "error", storeErr)
	}
	if err != nil {
		return plan.ID, err
	}
	if !report.Succeeded() {
		return plan.ID, fmt.Errorf("plan %s finished with failures: %s", plan.ID, report.Summary())
	}
	return plan.ID, nil
}

// Suggestions scans the current snapshot and returns new suggestions.
func (a *Agent) Suggestions(ctx context.Context) ([]suggest.Item, error) {
	if a.suggest == nil || a.snapshots == nil {
		return nil, nil
	}
	snap, err := a.snapshots.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return a.suggest.Scan(ctx, snap)
}

// execute runs the plan and replies with its report summary.
func (a *Agent) execute(ctx context.Context, sessionID string, plan *workflow.WorkflowPlan) (*Response, error) {
	report, err := a.executor.Execute(ctx, plan)
	if storeErr := a.plans.PutPlan(ctx, plan); storeErr != nil {
		a.logger.Error("Failed to persist executed plan", "plan_id", plan.ID, "error", storeErr)
	}
	if err != nil {
		return nil, err
	}
	return a.reply(ctx, sessionID, plan.ID, false, report.Summary())
}

// reply appends the assistant message and assembles the response,
// attaching any fresh suggestions.
func (a *Agent) reply(ctx context.Context, sessionID, planID string, awaiting bool, message string) (*Response, error) {
	if _, err := a.sessions.Append(ctx, sessionID, session.Message{
		Role:    session.RoleAssistant,
		Content: message,
		PlanID:  planID,
	}); err != nil {
		return nil, err
	}

	resp := &Response{
		SessionID:            sessionID,
		Message:              message,
		PlanID:               planID,
		AwaitingConfirmation: awaiting,
	}

	items, err := a.Suggestions(ctx)
	if err != nil {
		// Suggestions are best-effort; the turn itself succeeded.
		a.logger.Warn("Suggestion scan failed", "error", err)
	} else {
		resp.Suggestions = items
	}
	return resp, nil
}

// contextKeys are the session context references carried across turns.
var contextKeys = []string{"client", "project"}

// resolveContext fills parameters the utterance omitted from the session's
// stored client/project references, and persists fresh references so later
// turns in the conversation resolve against them.
func (a *Agent) resolveContext(ctx context.Context, sess *session.Session, params map[string]any) map[string]any {
	if params == nil {
		params = make(map[string]any)
	}
	for k, v := range sess.Context {
		if _, ok := params[k]; !ok {
			params[k] = v
		}
	}

	changed := false
	for _, key := range contextKeys {
		v, ok := params[key].(string)
		if !ok || v == "" || sess.Context[key] == v {
			continue
		}
		if sess.Context == nil {
			sess.Context = make(map[string]string)
		}
		sess.Context[key] = v
		changed = true
	}
	if changed {
		if _, err := a.sessions.SetContext(ctx, sess.ID, sess.Context); err != nil {
			a.logger.Warn("Failed to persist session context", "session_id", sess.ID, "error", err)
		}
	}
	return params
}

func (a *Agent) resumeOrStart(ctx context.Context, sessionID string) (*session.Session, error) {
	if sessionID == "" {
		return a.sessions.Start(ctx, "")
	}
	sess, err := a.sessions.Resume(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return a.sessions.Start(ctx, "")
	}
	return sess, err
}

func (a *Agent) takePending(planID string) (*workflow.WorkflowPlan, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	plan, ok := a.pending[planID]
	if !ok {
		return nil, &workflow.ValidationError{Field: "plan_id", Message: fmt.Sprintf("no plan %s awaiting confirmation", planID)}
	}
	delete(a.pending, planID)
	return plan, nil
}

// PendingPlans returns the IDs of plans awaiting confirmation, sorted.
func (a *Agent) PendingPlans() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]string, 0, len(a.pending))
	for id := range a.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
