package runtime

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/hollandm/switchboard/internal/message"
)

// stubHandler is a Handler with pluggable hooks.
type stubHandler struct {
	initErr     error
	shutdownErr error
	handle      func(ctx context.Context, msg *message.Message) (*message.Message, error)

	mu        sync.Mutex
	initCalls int
	downCalls int
}

func (h *stubHandler) Initialize(context.Context) error {
	h.mu.Lock()
	h.initCalls++
	h.mu.Unlock()
	return h.initErr
}

func (h *stubHandler) Shutdown(context.Context) error {
	h.mu.Lock()
	h.downCalls++
	h.mu.Unlock()
	return h.shutdownErr
}

func (h *stubHandler) Handle(ctx context.Context, msg *message.Message) (*message.Message, error) {
	if h.handle == nil {
		return nil, nil
	}
	return h.handle(ctx, msg)
}

// sendRecorder captures outbound messages.
type sendRecorder struct {
	mu   sync.Mutex
	msgs []*message.Message
}

func (s *sendRecorder) fn() SendFunc {
	return func(_ context.Context, msg *message.Message) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.msgs = append(s.msgs, msg)
		return nil
	}
}

func (s *sendRecorder) all() []*message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*message.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestRunningMean(t *testing.T) {
	r := New("agent-a", &stubHandler{}, Options{})
	for _, elapsed := range []float64{2.0, 4.0, 6.0} {
		r.recordCompletion(elapsed)
	}
	if got := r.AverageResponseTime(); got != 4.0 {
		t.Errorf("AverageResponseTime = %v, want 4.0", got)
	}
	if got := r.TasksCompleted(); got != 3 {
		t.Errorf("TasksCompleted = %d, want 3", got)
	}
}

func TestAddCapability_Idempotent(t *testing.T) {
	r := New("agent-a", &stubHandler{}, Options{})
	r.AddCapability("echo")
	r.AddCapability("translate")
	r.AddCapability("echo")
	r.AddCapability("")

	want := []string{"echo", "translate"}
	if got := r.Capabilities(); !reflect.DeepEqual(got, want) {
		t.Errorf("Capabilities = %v, want %v", got, want)
	}
	if !r.HasCapability("echo") || r.HasCapability("ghost") {
		t.Error("HasCapability wrong")
	}
}

func TestStart_InitializeFailure(t *testing.T) {
	h := &stubHandler{initErr: fmt.Errorf("no credentials")}
	r := New("agent-a", h, Options{})
	if err := r.Start(context.Background()); err == nil {
		t.Fatal("expected initialize error")
	}
	if got := r.Status(); got != StatusInitializing {
		t.Errorf("Status = %v, want initializing", got)
	}
	// A failed start can still be stopped without panicking.
	if err := r.Stop(context.Background()); err != nil {
		t.Errorf("Stop: %v", err)
	}
}

func TestStart_Twice(t *testing.T) {
	r := New("agent-a", &stubHandler{}, Options{})
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop(context.Background())
	if err := r.Start(context.Background()); err == nil {
		t.Error("expected error on second Start")
	}
}

func TestStop_Idempotent(t *testing.T) {
	h := &stubHandler{}
	r := New("agent-a", h, Options{})
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := r.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	h.mu.Lock()
	downs := h.downCalls
	h.mu.Unlock()
	if downs != 1 {
		t.Errorf("Shutdown hook ran %d times, want 1", downs)
	}
	if got := r.Status(); got != StatusShutdown {
		t.Errorf("Status = %v, want shutdown", got)
	}
}

func TestStop_ShutdownHookErrorReturned(t *testing.T) {
	h := &stubHandler{shutdownErr: fmt.Errorf("flush failed")}
	r := New("agent-a", h, Options{})
	r.Start(context.Background())
	if err := r.Stop(context.Background()); err == nil {
		t.Fatal("expected shutdown hook error")
	}
	if got := r.Status(); got != StatusShutdown {
		t.Errorf("Status = %v, want shutdown regardless of hook error", got)
	}
}

func TestProcess_ReplyForwarded(t *testing.T) {
	rec := &sendRecorder{}
	h := &stubHandler{
		handle: func(_ context.Context, msg *message.Message) (*message.Message, error) {
			return message.New("agent-a", msg.Sender, message.KindResponse,
				map[string]any{"ok": true}, message.Opts{CorrelationID: msg.CorrelationID}), nil
		},
	}
	r := New("agent-a", h, Options{HeartbeatInterval: time.Hour})
	r.SetOutbound(rec.fn())
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop(context.Background())

	in := message.New("system", "agent-a", message.KindQuery,
		map[string]any{"q": "state"}, message.Opts{CorrelationID: "query_1"})
	if err := r.Deliver(in); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	waitFor(t, func() bool { return len(rec.all()) == 1 })
	reply := rec.all()[0]
	if reply.Kind != message.KindResponse || reply.CorrelationID != "query_1" {
		t.Errorf("reply = %+v", reply)
	}
	waitFor(t, func() bool { return r.TasksCompleted() == 1 })
	waitFor(t, func() bool { return r.Status() == StatusIdle })
}

func TestProcess_FaultSendsErrorResponseAndLoopSurvives(t *testing.T) {
	rec := &sendRecorder{}
	var mu sync.Mutex
	n := 0
	h := &stubHandler{
		handle: func(_ context.Context, msg *message.Message) (*message.Message, error) {
			mu.Lock()
			n++
			first := n == 1
			mu.Unlock()
			if first {
				return nil, fmt.Errorf("boom")
			}
			return nil, nil
		},
	}
	r := New("agent-x", h, Options{HeartbeatInterval: time.Hour})
	r.SetOutbound(rec.fn())
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop(context.Background())

	cmd := message.New("agent-b", "agent-x", message.KindCommand,
		map[string]any{"command": "explode"}, message.Opts{})
	r.Deliver(cmd)

	waitFor(t, func() bool { return r.TasksFailed() == 1 })
	waitFor(t, func() bool { return len(rec.all()) == 1 })
	errResp := rec.all()[0]
	if errResp.Kind != message.KindResponse {
		t.Errorf("Kind = %v", errResp.Kind)
	}
	if errResp.Recipient != "agent-b" {
		t.Errorf("Recipient = %q, want original sender", errResp.Recipient)
	}
	if errResp.Payload["error"] != "boom" {
		t.Errorf("Payload = %v", errResp.Payload)
	}
	if got := r.Status(); got != StatusError {
		t.Errorf("Status = %v, want error", got)
	}

	// Loop is still alive: the next message processes normally.
	r.Deliver(message.New("agent-b", "agent-x", message.KindCommand, nil, message.Opts{}))
	waitFor(t, func() bool { return r.TasksCompleted() == 1 })
	waitFor(t, func() bool { return r.Status() == StatusIdle })
}

func TestProcess_FaultOnAlertSendsNoResponse(t *testing.T) {
	rec := &sendRecorder{}
	h := &stubHandler{
		handle: func(context.Context, *message.Message) (*message.Message, error) {
			return nil, fmt.Errorf("boom")
		},
	}
	r := New("agent-x", h, Options{HeartbeatInterval: time.Hour})
	r.SetOutbound(rec.fn())
	r.Start(context.Background())
	defer r.Stop(context.Background())

	r.Deliver(message.New("system", "agent-x", message.KindAlert, nil, message.Opts{}))
	waitFor(t, func() bool { return r.TasksFailed() == 1 })
	if got := rec.all(); len(got) != 0 {
		t.Errorf("no response expected for alert fault, got %d", len(got))
	}
}

func TestHeartbeatLoop(t *testing.T) {
	rec := &sendRecorder{}
	r := New("agent-a", &stubHandler{}, Options{HeartbeatInterval: 10 * time.Millisecond})
	r.AddCapability("echo")
	r.SetOutbound(rec.fn())
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop(context.Background())

	waitFor(t, func() bool { return len(rec.all()) >= 2 })
	hb := rec.all()[0]
	if hb.Kind != message.KindHeartbeat {
		t.Errorf("Kind = %v, want heartbeat", hb.Kind)
	}
	if hb.Recipient != message.BroadcastRecipient {
		t.Errorf("Recipient = %q, want broadcast", hb.Recipient)
	}
	if hb.Payload["status"] == "" {
		t.Error("heartbeat payload missing status")
	}
	if r.LastHeartbeat().IsZero() {
		t.Error("LastHeartbeat not updated")
	}
}

func TestDeliver_FullMailbox(t *testing.T) {
	r := New("agent-a", &stubHandler{}, Options{MailboxSize: 1})
	// Not started: nothing drains the mailbox.
	if err := r.Deliver(message.New("s", "agent-a", message.KindCommand, nil, message.Opts{})); err != nil {
		t.Fatalf("first Deliver: %v", err)
	}
	if err := r.Deliver(message.New("s", "agent-a", message.KindCommand, nil, message.Opts{})); err == nil {
		t.Fatal("expected mailbox-full error")
	}
}

func TestDeliver_AfterStop(t *testing.T) {
	r := New("agent-a", &stubHandler{}, Options{})
	r.Start(context.Background())
	r.Stop(context.Background())
	if err := r.Deliver(message.New("s", "agent-a", message.KindCommand, nil, message.Opts{})); err == nil {
		t.Fatal("expected error delivering to shut-down runtime")
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	r := New("agent-a", &stubHandler{}, Options{})
	r.AddCapability("echo")
	r.recordCompletion(1.5)

	snap := r.Snapshot()
	if snap.AgentID != "agent-a" || snap.TasksCompleted != 1 || snap.AverageResponseTime != 1.5 {
		t.Errorf("snapshot = %+v", snap)
	}
	// Mutating the snapshot's slice must not reach the runtime.
	snap.Capabilities[0] = "corrupted"
	if got := r.Capabilities()[0]; got != "echo" {
		t.Errorf("runtime capabilities corrupted via snapshot: %q", got)
	}
}
