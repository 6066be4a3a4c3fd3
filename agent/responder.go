package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// Subjects the responder answers request/reply on.
const (
	SubjectHandle  = "quillops.agent.handle"
	SubjectConfirm = "quillops.agent.confirm"
	SubjectDeny    = "quillops.agent.deny"
)

// PlanRef identifies a plan awaiting confirmation in a confirm or deny
// request.
type PlanRef struct {
	PlanID string `json:"plan_id"`
}

type errorReply struct {
	Error string `json:"error"`
}

// Responder serves the agent over NATS request/reply: a Request on the
// handle subject (or a PlanRef on confirm/deny) gets a Response back on
// the reply inbox. Errors come back as an {"error": ...} envelope.
type Responder struct {
	agent  *Agent
	conn   *nats.Conn
	logger *slog.Logger
	subs   []*nats.Subscription
}

// NewResponder creates a responder over an established NATS connection.
func NewResponder(a *Agent, conn *nats.Conn, logger *slog.Logger) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{agent: a, conn: conn, logger: logger}
}

// Start subscribes to the agent subjects. The context bounds each turn's
// execution, not the subscriptions; call Stop to unsubscribe.
func (r *Responder) Start(ctx context.Context) error {
	handlers := map[string]func(context.Context, []byte) []byte{
		SubjectHandle:  r.handleTurn,
		SubjectConfirm: r.handleConfirm,
		SubjectDeny:    r.handleDeny,
	}
	for subject, fn := range handlers {
		fn := fn
		sub, err := r.conn.Subscribe(subject, func(msg *nats.Msg) {
			if err := msg.Respond(fn(ctx, msg.Data)); err != nil {
				r.logger.Warn("Failed to respond", "subject", msg.Subject, "error", err)
			}
		})
		if err != nil {
			r.Stop()
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		r.subs = append(r.subs, sub)
	}
	r.logger.Info("Agent responder listening",
		"subjects", []string{SubjectHandle, SubjectConfirm, SubjectDeny})
	return nil
}

// Stop unsubscribes from all agent subjects.
func (r *Responder) Stop() {
	for _, sub := range r.subs {
		if err := sub.Unsubscribe(); err != nil {
			r.logger.Warn("Failed to unsubscribe", "error", err)
		}
	}
	r.subs = nil
}

func (r *Responder) handleTurn(ctx context.Context, data []byte) []byte {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return r.marshalError(fmt.Errorf("decode request: %w", err))
	}
	if req.Utterance == "" {
		return r.marshalError(fmt.Errorf("utterance is required"))
	}
	resp, err := r.agent.Handle(ctx, req)
	if err != nil {
		return r.marshalError(err)
	}
	return r.marshalResponse(resp)
}

func (r *Responder) handleConfirm(ctx context.Context, data []byte) []byte {
	ref, err := r.decodePlanRef(data)
	if err != nil {
		return r.marshalError(err)
	}
	resp, err := r.agent.Confirm(ctx, ref.PlanID)
	if err != nil {
		return r.marshalError(err)
	}
	return r.marshalResponse(resp)
}

func (r *Responder) handleDeny(ctx context.Context, data []byte) []byte {
	ref, err := r.decodePlanRef(data)
	if err != nil {
		return r.marshalError(err)
	}
	resp, err := r.agent.Deny(ctx, ref.PlanID)
	if err != nil {
		return r.marshalError(err)
	}
	return r.marshalResponse(resp)
}

func (r *Responder) decodePlanRef(data []byte) (PlanRef, error) {
	var ref PlanRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return ref, fmt.Errorf("decode request: %w", err)
	}
	if ref.PlanID == "" {
		return ref, fmt.Errorf("plan_id is required")
	}
	return ref, nil
}

func (r *Responder) marshalResponse(resp *Response) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		return r.marshalError(fmt.Errorf("encode response: %w", err))
	}
	return data
}

func (r *Responder) marshalError(err error) []byte {
	r.logger.Warn("Agent request failed", "error", err)
	data, merr := json.Marshal(errorReply{Error: err.Error()})
	if merr != nil {
		return []byte(`{"error":"internal error"}`)
	}
	return data
}
