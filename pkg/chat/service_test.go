package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/supportflow-dev/supportflow/pkg/fanout"
	"github.com/supportflow-dev/supportflow/pkg/generative"
	"github.com/supportflow-dev/supportflow/pkg/rules"
)

// capturePublisher records every published event.
type capturePublisher struct {
	mu     sync.Mutex
	events []*fanout.Event
}

func (p *capturePublisher) Publish(_ context.Context, ev *fanout.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := *ev
	p.events = append(p.events, &cp)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) all() []*fanout.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*fanout.Event(nil), p.events...)
}

// failingPublisher always errors; the orchestrator must swallow it.
type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, *fanout.Event) error {
	return errors.New("broker down")
}
func (failingPublisher) Close() error { return nil }

func newTestService(t *testing.T, capability generative.Capability) (*Service, *MemoryStore, *capturePublisher) {
	t.Helper()
	store := NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	pub := &capturePublisher{}
	responder := NewResponder(capability, rules.NewEngine())
	svc := NewService(store, responder, pub, zerolog.Nop())
	return svc, store, pub
}

func TestSubmitUserMessageCreatesSession(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, nil)

	last, err := svc.SubmitUserMessage(ctx, "", 7, "alice", "hello")
	if err != nil {
		t.Fatalf("SubmitUserMessage: %v", err)
	}

	if _, err := uuid.Parse(last.SessionID); err != nil {
		t.Errorf("generated session id %q is not a uuid", last.SessionID)
	}

	sess, err := store.GetSession(ctx, last.SessionID)
	if err != nil {
		t.Fatalf("session was not created: %v", err)
	}
	if sess.Status != StatusActive || sess.UserID != 7 || sess.Username != "alice" {
		t.Errorf("session = %+v", sess)
	}
}

func TestSubmitUserMessageActiveProducesAutomatedReply(t *testing.T) {
	ctx := context.Background()
	svc, store, pub := newTestService(t, nil)

	last, err := svc.SubmitUserMessage(ctx, "s1", 7, "alice", "hello")
	if err != nil {
		t.Fatalf("SubmitUserMessage: %v", err)
	}

	if !last.Automated || last.Sender != SenderSystem {
		t.Errorf("last message is not the automated reply: %+v", last)
	}
	if last.Username != "Support Bot" {
		t.Errorf("Username = %q", last.Username)
	}
	if last.RuleMatched != "PATTERN_MATCH: "+rules.GreetingPatternID {
		t.Errorf("RuleMatched = %q", last.RuleMatched)
	}

	msgs, _ := store.ListMessages(ctx, "s1")
	if len(msgs) != 2 {
		t.Fatalf("persisted %d messages, want 2", len(msgs))
	}
	if msgs[0].Sender != SenderUser || msgs[1].Sender != SenderSystem {
		t.Errorf("message order wrong: %s then %s", msgs[0].Sender, msgs[1].Sender)
	}

	// Publication mirrors persistence order: user first, reply second.
	events := pub.all()
	if len(events) != 2 {
		t.Fatalf("published %d events, want 2", len(events))
	}
	if events[0].SenderType != "USER" || events[1].SenderType != "SYSTEM" {
		t.Errorf("publish order wrong: %s then %s", events[0].SenderType, events[1].SenderType)
	}
}

func TestSubmitUserMessageGenerativeReply(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, &fakeCapability{enabled: true, reply: "Generated answer.", ok: true})

	last, err := svc.SubmitUserMessage(ctx, "s1", 7, "alice", "how do charts work?")
	if err != nil {
		t.Fatalf("SubmitUserMessage: %v", err)
	}
	if last.Body != "Generated answer." || last.RuleMatched != TagAIGenerated {
		t.Errorf("last = %+v", last)
	}
	if !svc.AIEnabled() {
		t.Error("AIEnabled() = false with an enabled capability")
	}
}

func TestSubmitUserMessageGenerativeFailureTagsFallback(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, &fakeCapability{enabled: true, ok: false})

	last, err := svc.SubmitUserMessage(ctx, "s1", 7, "alice", "hello")
	if err != nil {
		t.Fatalf("SubmitUserMessage: %v", err)
	}
	if !strings.HasPrefix(last.RuleMatched, TagAIFallbackPrefix) {
		t.Errorf("RuleMatched = %q, want %q prefix", last.RuleMatched, TagAIFallbackPrefix)
	}
}

func TestSubmitUserMessageBlankBody(t *testing.T) {
	ctx := context.Background()
	svc, store, pub := newTestService(t, nil)

	last, err := svc.SubmitUserMessage(ctx, "s1", 7, "alice", "   ")
	if err != nil {
		t.Fatalf("SubmitUserMessage: %v", err)
	}

	if last.ID != 0 {
		t.Errorf("synthetic prompt has id %d, want 0", last.ID)
	}
	if last.Body != EmptyBodyPrompt || last.RuleMatched != TagEmptyMessage {
		t.Errorf("last = %+v", last)
	}

	// Nothing persisted, nothing published, no session created.
	if _, err := store.GetSession(ctx, "s1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("blank body created a session")
	}
	if len(pub.all()) != 0 {
		t.Errorf("blank body published %d events", len(pub.all()))
	}
}

func TestSubmitUserMessageRequiresUsername(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	_, err := svc.SubmitUserMessage(context.Background(), "s1", 7, "", "hello")
	if !errors.Is(err, ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestSubmitUserMessageWaitingForAdmin(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, nil)

	if _, err := svc.SubmitUserMessage(ctx, "s1", 7, "alice", "hello"); err != nil {
		t.Fatal(err)
	}
	if err := svc.RequestAdminSupport(ctx, "s1"); err != nil {
		t.Fatal(err)
	}

	before, _ := store.ListMessages(ctx, "s1")
	last, err := svc.SubmitUserMessage(ctx, "s1", 7, "alice", "anyone there?")
	if err != nil {
		t.Fatalf("SubmitUserMessage: %v", err)
	}

	if last.RuleMatched != TagWaitingForAdmin {
		t.Errorf("RuleMatched = %q, want %q", last.RuleMatched, TagWaitingForAdmin)
	}

	after, _ := store.ListMessages(ctx, "s1")
	// Exactly two new messages: the user message and one waiting notice.
	if got := len(after) - len(before); got != 2 {
		t.Errorf("appended %d messages, want 2", got)
	}
	waiting := 0
	for _, msg := range after {
		if msg.RuleMatched == TagWaitingForAdmin {
			waiting++
		}
	}
	if waiting != 1 {
		t.Errorf("found %d waiting notices, want exactly 1", waiting)
	}
}

func TestSubmitUserMessageAdminActiveNoAutomation(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, nil)

	if _, err := svc.SubmitUserMessage(ctx, "s1", 7, "alice", "hello"); err != nil {
		t.Fatal(err)
	}
	if err := svc.TakeOverSession(ctx, "s1", 42); err != nil {
		t.Fatal(err)
	}

	before, _ := store.ListMessages(ctx, "s1")
	last, err := svc.SubmitUserMessage(ctx, "s1", 7, "alice", "thanks for joining")
	if err != nil {
		t.Fatalf("SubmitUserMessage: %v", err)
	}

	if last.Sender != SenderUser || last.Automated {
		t.Errorf("last = %+v, want the raw user message back", last)
	}
	after, _ := store.ListMessages(ctx, "s1")
	if got := len(after) - len(before); got != 1 {
		t.Errorf("appended %d messages, want only the user message", got)
	}
}

func TestSubmitUserMessageClosedSessionStillRecorded(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, nil)

	if _, err := svc.SubmitUserMessage(ctx, "s1", 7, "alice", "hello"); err != nil {
		t.Fatal(err)
	}
	if err := svc.CloseSession(ctx, "s1"); err != nil {
		t.Fatal(err)
	}

	before, _ := store.ListMessages(ctx, "s1")
	last, err := svc.SubmitUserMessage(ctx, "s1", 7, "alice", "one more thing")
	if err != nil {
		t.Fatalf("SubmitUserMessage: %v", err)
	}
	if last.Sender != SenderUser {
		t.Errorf("last = %+v", last)
	}
	after, _ := store.ListMessages(ctx, "s1")
	if got := len(after) - len(before); got != 1 {
		t.Errorf("appended %d messages, want 1 (no automated reply on a closed session)", got)
	}
}

func TestSubmitAdminMessage(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, nil)

	if _, err := svc.SubmitUserMessage(ctx, "s1", 7, "alice", "hello"); err != nil {
		t.Fatal(err)
	}

	msg, err := svc.SubmitAdminMessage(ctx, "s1", 42, "bob", "how can I help?")
	if err != nil {
		t.Fatalf("SubmitAdminMessage: %v", err)
	}
	if msg.Sender != SenderAdmin || msg.UserID != 42 {
		t.Errorf("msg = %+v", msg)
	}

	msgs, _ := store.ListMessages(ctx, "s1")
	if msgs[len(msgs)-1].Sender != SenderAdmin {
		t.Errorf("admin message not last in history")
	}
}

func TestSubmitAdminMessageUnknownSession(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	_, err := svc.SubmitAdminMessage(context.Background(), "missing", 42, "bob", "hi")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestRequestAdminSupport(t *testing.T) {
	ctx := context.Background()
	svc, store, pub := newTestService(t, nil)

	if _, err := svc.SubmitUserMessage(ctx, "s1", 7, "alice", "hello"); err != nil {
		t.Fatal(err)
	}
	if err := svc.RequestAdminSupport(ctx, "s1"); err != nil {
		t.Fatalf("RequestAdminSupport: %v", err)
	}

	sess, _ := store.GetSession(ctx, "s1")
	if sess.Status != StatusWaitingForAdmin {
		t.Errorf("status = %s, want %s", sess.Status, StatusWaitingForAdmin)
	}

	msgs, _ := store.ListMessages(ctx, "s1")
	// hello + automated reply + visitor ack + operator notification
	if len(msgs) != 4 {
		t.Fatalf("history has %d messages, want 4", len(msgs))
	}
	if msgs[2].RuleMatched != TagAdminRequestUser {
		t.Errorf("third message tag = %q, want %q", msgs[2].RuleMatched, TagAdminRequestUser)
	}
	if msgs[3].RuleMatched != TagAdminRequestNotify {
		t.Errorf("fourth message tag = %q, want %q", msgs[3].RuleMatched, TagAdminRequestNotify)
	}
	if !strings.Contains(msgs[3].Body, "alice") {
		t.Errorf("notification body %q does not name the user", msgs[3].Body)
	}

	events := pub.all()
	if len(events) != 4 {
		t.Errorf("published %d events, want 4", len(events))
	}
}

func TestRequestAdminSupportUnknownSessionIsNoOp(t *testing.T) {
	svc, _, pub := newTestService(t, nil)

	if err := svc.RequestAdminSupport(context.Background(), "missing"); err != nil {
		t.Errorf("err = %v, want nil", err)
	}
	if len(pub.all()) != 0 {
		t.Error("no-op published events")
	}
}

func TestRequestAdminSupportInvalidStates(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, nil)

	if _, err := svc.SubmitUserMessage(ctx, "s1", 7, "alice", "hello"); err != nil {
		t.Fatal(err)
	}
	if err := svc.RequestAdminSupport(ctx, "s1"); err != nil {
		t.Fatal(err)
	}

	// Already waiting: a second request is an invalid transition.
	if err := svc.RequestAdminSupport(ctx, "s1"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}

	if err := svc.CloseSession(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if err := svc.RequestAdminSupport(ctx, "s1"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("err = %v, want ErrSessionClosed", err)
	}
}

func TestTakeOverSession(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, nil)

	if _, err := svc.SubmitUserMessage(ctx, "s1", 7, "alice", "hello"); err != nil {
		t.Fatal(err)
	}
	if err := svc.TakeOverSession(ctx, "s1", 42); err != nil {
		t.Fatalf("TakeOverSession: %v", err)
	}

	sess, _ := store.GetSession(ctx, "s1")
	if sess.Status != StatusAdminActive {
		t.Errorf("status = %s, want %s", sess.Status, StatusAdminActive)
	}

	msgs, _ := store.ListMessages(ctx, "s1")
	last := msgs[len(msgs)-1]
	if last.RuleMatched != TagAdminTakeover {
		t.Errorf("last message tag = %q, want %q", last.RuleMatched, TagAdminTakeover)
	}
}

func TestTakeOverFromWaiting(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, nil)

	if _, err := svc.SubmitUserMessage(ctx, "s1", 7, "alice", "hello"); err != nil {
		t.Fatal(err)
	}
	if err := svc.RequestAdminSupport(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if err := svc.TakeOverSession(ctx, "s1", 42); err != nil {
		t.Fatalf("TakeOverSession: %v", err)
	}

	sess, _ := store.GetSession(ctx, "s1")
	if sess.Status != StatusAdminActive {
		t.Errorf("status = %s", sess.Status)
	}
}

func TestTakeOverIllegalLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, nil)

	if _, err := svc.SubmitUserMessage(ctx, "s1", 7, "alice", "hello"); err != nil {
		t.Fatal(err)
	}
	if err := svc.TakeOverSession(ctx, "s1", 42); err != nil {
		t.Fatal(err)
	}

	before, _ := store.ListMessages(ctx, "s1")
	if err := svc.TakeOverSession(ctx, "s1", 43); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
	after, _ := store.ListMessages(ctx, "s1")
	if len(after) != len(before) {
		t.Errorf("illegal takeover persisted a notice")
	}
}

func TestTakeOverUnknownSessionIsNoOp(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	if err := svc.TakeOverSession(context.Background(), "missing", 42); err != nil {
		t.Errorf("err = %v, want nil", err)
	}
}

func TestCloseSessionIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, store, pub := newTestService(t, nil)

	if _, err := svc.SubmitUserMessage(ctx, "s1", 7, "alice", "hello"); err != nil {
		t.Fatal(err)
	}

	if err := svc.CloseSession(ctx, "s1"); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	sess, _ := store.GetSession(ctx, "s1")
	if sess.Status != StatusClosed || sess.ClosedAt == nil {
		t.Errorf("session = %+v", sess)
	}

	closedEvents := func() int {
		n := 0
		for _, ev := range pub.all() {
			if ev.Kind == fanout.KindSessionClosed {
				n++
			}
		}
		return n
	}
	if closedEvents() != 1 {
		t.Fatalf("session_closed events = %d, want 1", closedEvents())
	}

	// Closing again, and closing a session that never existed, are no-ops.
	if err := svc.CloseSession(ctx, "s1"); err != nil {
		t.Errorf("second close: %v", err)
	}
	if err := svc.CloseSession(ctx, "never-existed"); err != nil {
		t.Errorf("close of unknown session: %v", err)
	}
	if closedEvents() != 1 {
		t.Errorf("duplicate session_closed events published")
	}
}

func TestPublishFailureDoesNotFailTheRequest(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()
	responder := NewResponder(nil, rules.NewEngine())
	svc := NewService(store, responder, failingPublisher{}, zerolog.Nop())

	last, err := svc.SubmitUserMessage(ctx, "s1", 7, "alice", "hello")
	if err != nil {
		t.Fatalf("SubmitUserMessage: %v", err)
	}
	if last == nil || !last.Automated {
		t.Errorf("last = %+v", last)
	}

	msgs, _ := store.ListMessages(ctx, "s1")
	if len(msgs) != 2 {
		t.Errorf("persisted %d messages despite broker failure, want 2", len(msgs))
	}
}

func TestGetHistoryAndSessionQueries(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, nil)

	if _, err := svc.SubmitUserMessage(ctx, "s1", 7, "alice", "hello"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SubmitUserMessage(ctx, "s2", 8, "carol", "hi"); err != nil {
		t.Fatal(err)
	}
	if err := svc.CloseSession(ctx, "s2"); err != nil {
		t.Fatal(err)
	}

	history, err := svc.GetHistory(ctx, "s1")
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("history len = %d, want 2", len(history))
	}

	// Unknown session reads as empty history, not an error.
	empty, err := svc.GetHistory(ctx, "missing")
	if err != nil || len(empty) != 0 {
		t.Errorf("GetHistory(missing) = %v, %v", empty, err)
	}

	active, err := svc.GetActiveSessions(ctx)
	if err != nil {
		t.Fatalf("GetActiveSessions: %v", err)
	}
	if len(active) != 1 || active[0].SessionID != "s1" {
		t.Errorf("active = %v", active)
	}

	mine, err := svc.GetUserSessions(ctx, 8)
	if err != nil {
		t.Fatalf("GetUserSessions: %v", err)
	}
	if len(mine) != 1 || mine[0].SessionID != "s2" {
		t.Errorf("user sessions = %v", mine)
	}
}
