package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hollandm/switchboard/internal/audit"
	"github.com/hollandm/switchboard/internal/bus"
	"github.com/hollandm/switchboard/internal/coordinator"
	"github.com/hollandm/switchboard/internal/message"
	"github.com/hollandm/switchboard/internal/models"
	"github.com/hollandm/switchboard/internal/runtime"
)

func newTestOpts(t *testing.T) StartOpts {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := gdb.AutoMigrate(&models.Record{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	store := audit.NewStore(gdb)
	b := bus.New(bus.Options{Store: store})
	c := coordinator.New(b, coordinator.Options{})

	echoMux := runtime.NewMux().Command("work", func(context.Context, *message.Message) (*message.Message, error) {
		return nil, nil
	})
	rt := runtime.New("agent-a", echoMux, runtime.Options{HeartbeatInterval: time.Hour})
	rt.AddCapability("compute")
	if err := c.Register(rt); err != nil {
		t.Fatalf("Register: %v", err)
	}

	return StartOpts{Coordinator: c, Bus: b, Store: store}
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var decoded map[string]any
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode %s %s: %v\n%s", method, path, err, w.Body.String())
		}
	}
	return w, decoded
}

func TestStatusRoute(t *testing.T) {
	router := newRouter(newTestOpts(t))
	w, body := doJSON(t, router, http.MethodGet, "/api/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	agents, ok := body["agents"].(map[string]any)
	if !ok || agents["agent-a"] == nil {
		t.Errorf("agents = %v", body["agents"])
	}
	if _, ok := body["pending_queries"]; !ok {
		t.Error("pending_queries missing")
	}
}

func TestAgentRoute(t *testing.T) {
	router := newRouter(newTestOpts(t))

	w, body := doJSON(t, router, http.MethodGet, "/api/agents/agent-a", "")
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	if body["agent_id"] != "agent-a" {
		t.Errorf("agent_id = %v", body["agent_id"])
	}

	w, _ = doJSON(t, router, http.MethodGet, "/api/agents/ghost", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("code = %d, want 404", w.Code)
	}
}

func TestMessagesRoute(t *testing.T) {
	opts := newTestOpts(t)
	// Put one message into the trail via the bus.
	err := opts.Bus.Send(context.Background(),
		message.New("system", "agent-a", message.KindCommand, map[string]any{"k": "v"}, message.Opts{}))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	router := newRouter(opts)
	w, body := doJSON(t, router, http.MethodGet, "/api/messages?limit=10", "")
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	msgs, ok := body["messages"].([]any)
	if !ok || len(msgs) != 1 {
		t.Errorf("messages = %v", body["messages"])
	}

	w, _ = doJSON(t, router, http.MethodGet, "/api/agents/agent-a/messages", "")
	if w.Code != http.StatusOK {
		t.Errorf("agent messages code = %d", w.Code)
	}
}

func TestMessagesRoute_NoStore(t *testing.T) {
	opts := newTestOpts(t)
	opts.Store = nil
	router := newRouter(opts)
	w, _ := doJSON(t, router, http.MethodGet, "/api/messages", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("code = %d, want 503", w.Code)
	}
}

func TestBroadcastRoute(t *testing.T) {
	router := newRouter(newTestOpts(t))

	w, body := doJSON(t, router, http.MethodPost, "/api/broadcast", `{"kind":"alert","payload":{"note":"hi"},"priority":7}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("code = %d: %v", w.Code, body)
	}

	w, _ = doJSON(t, router, http.MethodPost, "/api/broadcast", `{"kind":"bogus"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want 400 for bad kind", w.Code)
	}
}

func TestCommandRoute(t *testing.T) {
	router := newRouter(newTestOpts(t))

	w, body := doJSON(t, router, http.MethodPost, "/api/command", `{"target":"agent-a","command":"work"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	if body["delivered"] != true {
		t.Errorf("delivered = %v", body["delivered"])
	}

	_, body = doJSON(t, router, http.MethodPost, "/api/command", `{"target":"ghost","command":"work"}`)
	if body["delivered"] != false {
		t.Errorf("delivered = %v for unknown target", body["delivered"])
	}
}

func TestTaskRoute(t *testing.T) {
	router := newRouter(newTestOpts(t))

	_, body := doJSON(t, router, http.MethodPost, "/api/tasks", `{"task":"work","capability":"compute"}`)
	if body["assigned"] != true || body["agent"] != "agent-a" {
		t.Errorf("body = %v", body)
	}

	_, body = doJSON(t, router, http.MethodPost, "/api/tasks", `{"task":"work","capability":"translate"}`)
	if body["assigned"] != false {
		t.Errorf("body = %v for unmatched capability", body)
	}
}

func TestStaleRoute(t *testing.T) {
	router := newRouter(newTestOpts(t))
	w, _ := doJSON(t, router, http.MethodGet, "/api/stale", "")
	if w.Code != http.StatusOK {
		t.Errorf("code = %d", w.Code)
	}
}

func TestSSERoute_Connected(t *testing.T) {
	router := newRouter(newTestOpts(t))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q", got)
	}
	if !strings.Contains(w.Body.String(), "event: connected") {
		t.Errorf("body = %q", w.Body.String())
	}
}
