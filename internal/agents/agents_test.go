package agents

import (
	"context"
	"testing"

	"github.com/hollandm/switchboard/internal/message"
	"github.com/hollandm/switchboard/internal/runtime"
)

func TestBuild(t *testing.T) {
	for _, kind := range []string{"echo", "probe"} {
		h, err := Build(kind, "agent-1")
		if err != nil {
			t.Errorf("Build(%q): %v", kind, err)
		}
		if h == nil {
			t.Errorf("Build(%q) = nil handler", kind)
		}
	}
	if _, err := Build("teleport", "agent-1"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestEcho_Command(t *testing.T) {
	h := NewEcho("echo-1")
	cmd := message.New("system", "echo-1", message.KindCommand, map[string]any{
		runtime.CommandKey:    "echo",
		runtime.ParametersKey: map[string]any{"text": "hello"},
	}, message.Opts{})

	reply, err := h.Handle(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if reply.Sender != "echo-1" || reply.Recipient != "system" {
		t.Errorf("reply addressing = %s -> %s", reply.Sender, reply.Recipient)
	}
	echoed, _ := reply.Payload["echo"].(map[string]any)
	if echoed["text"] != "hello" {
		t.Errorf("echo payload = %v", reply.Payload)
	}
}

func TestEcho_Query(t *testing.T) {
	h := NewEcho("echo-1")
	q := message.New("system", "echo-1", message.KindQuery, map[string]any{
		runtime.QueryKey: "echo",
		"text":           "ping",
	}, message.Opts{CorrelationID: "query_1"})

	reply, err := h.Handle(context.Background(), q)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if reply.CorrelationID != "query_1" {
		t.Errorf("CorrelationID = %q", reply.CorrelationID)
	}
	echoed, _ := reply.Payload["echo"].(map[string]any)
	if echoed["text"] != "ping" {
		t.Errorf("echo = %v", echoed)
	}
	if _, ok := echoed[runtime.QueryKey]; ok {
		t.Error("query_type should be stripped from the echo")
	}
}

func TestProbe_StatusQuery(t *testing.T) {
	h := NewProbe("probe-1")
	q := message.New("system", "probe-1", message.KindQuery, map[string]any{
		runtime.QueryKey: "status",
	}, message.Opts{CorrelationID: "query_2"})

	reply, err := h.Handle(context.Background(), q)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if _, ok := reply.Payload["uptime_seconds"].(float64); !ok {
		t.Errorf("uptime_seconds = %v", reply.Payload["uptime_seconds"])
	}
	if n, ok := reply.Payload["goroutines"].(int); !ok || n <= 0 {
		t.Errorf("goroutines = %v", reply.Payload["goroutines"])
	}
}

func TestProbe_UnknownQueryFaults(t *testing.T) {
	h := NewProbe("probe-1")
	q := message.New("system", "probe-1", message.KindQuery, map[string]any{
		runtime.QueryKey: "mood",
	}, message.Opts{})
	if _, err := h.Handle(context.Background(), q); err == nil {
		t.Error("expected unknown-query error")
	}
}
