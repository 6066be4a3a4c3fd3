package agent

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func decodeReply(t *testing.T, data []byte) (Response, errorReply) {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("decode reply %q: %v", data, err)
	}
	var fail errorReply
	if err := json.Unmarshal(data, &fail); err != nil {
		t.Fatalf("decode reply %q: %v", data, err)
	}
	return resp, fail
}

func TestResponder_HandleTurn(t *testing.T) {
	f := newFixture(t)
	r := NewResponder(f.agent, nil, nil)
	ctx := context.Background()

	req, _ := json.Marshal(Request{Utterance: "draft a post"})
	resp, fail := decodeReply(t, r.handleTurn(ctx, req))
	if fail.Error != "" {
		t.Fatalf("unexpected error reply: %s", fail.Error)
	}
	if resp.SessionID == "" || resp.PlanID == "" {
		t.Errorf("expected session and plan ids, got %+v", resp)
	}
	if *f.calls != 1 {
		t.Errorf("expected 1 tool call, got %d", *f.calls)
	}

	// A second turn on the same session continues it
	req, _ = json.Marshal(Request{SessionID: resp.SessionID, Utterance: "draft another post"})
	second, fail := decodeReply(t, r.handleTurn(ctx, req))
	if fail.Error != "" {
		t.Fatalf("unexpected error reply: %s", fail.Error)
	}
	if second.SessionID != resp.SessionID {
		t.Errorf("expected same session, got %s and %s", resp.SessionID, second.SessionID)
	}
}

func TestResponder_MalformedRequest(t *testing.T) {
	f := newFixture(t)
	r := NewResponder(f.agent, nil, nil)
	ctx := context.Background()

	_, fail := decodeReply(t, r.handleTurn(ctx, []byte("{not json")))
	if fail.Error == "" {
		t.Error("expected error reply for malformed request")
	}

	_, fail = decodeReply(t, r.handleTurn(ctx, []byte(`{}`)))
	if !strings.Contains(fail.Error, "utterance") {
		t.Errorf("expected missing-utterance error, got %q", fail.Error)
	}
	if *f.calls != 0 {
		t.Errorf("expected no tool calls, got %d", *f.calls)
	}
}

func TestResponder_ConfirmFlow(t *testing.T) {
	f := newFixture(t)
	r := NewResponder(f.agent, nil, nil)
	ctx := context.Background()

	req, _ := json.Marshal(Request{Utterance: "send the deliverable"})
	resp, fail := decodeReply(t, r.handleTurn(ctx, req))
	if fail.Error != "" {
		t.Fatalf("unexpected error reply: %s", fail.Error)
	}
	if !resp.AwaitingConfirmation {
		t.Fatal("expected plan to halt for confirmation")
	}

	ref, _ := json.Marshal(PlanRef{PlanID: resp.PlanID})
	confirmed, fail := decodeReply(t, r.handleConfirm(ctx, ref))
	if fail.Error != "" {
		t.Fatalf("unexpected error reply: %s", fail.Error)
	}
	if confirmed.AwaitingConfirmation {
		t.Error("expected confirmation cleared")
	}
	if *f.calls != 2 {
		t.Errorf("expected both tasks to run after confirm, got %d calls", *f.calls)
	}
}

func TestResponder_DenyFlow(t *testing.T) {
	f := newFixture(t)
	r := NewResponder(f.agent, nil, nil)
	ctx := context.Background()

	req, _ := json.Marshal(Request{Utterance: "send the deliverable"})
	resp, fail := decodeReply(t, r.handleTurn(ctx, req))
	if fail.Error != "" {
		t.Fatalf("unexpected error reply: %s", fail.Error)
	}

	ref, _ := json.Marshal(PlanRef{PlanID: resp.PlanID})
	denied, fail := decodeReply(t, r.handleDeny(ctx, ref))
	if fail.Error != "" {
		t.Fatalf("unexpected error reply: %s", fail.Error)
	}
	if !strings.Contains(denied.Message, "cancelled") {
		t.Errorf("unexpected deny reply: %q", denied.Message)
	}
	if *f.calls != 0 {
		t.Errorf("expected no side effects on deny, got %d calls", *f.calls)
	}
}

func TestResponder_PlanRefValidation(t *testing.T) {
	f := newFixture(t)
	r := NewResponder(f.agent, nil, nil)
	ctx := context.Background()

	_, fail := decodeReply(t, r.handleConfirm(ctx, []byte(`{}`)))
	if !strings.Contains(fail.Error, "plan_id") {
		t.Errorf("expected missing-plan_id error, got %q", fail.Error)
	}

	_, fail = decodeReply(t, r.handleDeny(ctx, []byte(`{"plan_id":"nope"}`)))
	if !strings.Contains(fail.Error, "nope") {
		t.Errorf("expected unknown plan error, got %q", fail.Error)
	}
}
