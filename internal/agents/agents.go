// Package agents provides the built-in agent handlers the swb CLI can
// construct from configuration. They are thin collaborators over the
// runtime's dispatch mux, useful for demos and end-to-end verification.
package agents

import (
	"context"
	"fmt"
	goruntime "runtime"
	"time"

	"github.com/hollandm/switchboard/internal/message"
	"github.com/hollandm/switchboard/internal/runtime"
)

// Build constructs a built-in handler by kind name.
func Build(kind, agentID string) (runtime.Handler, error) {
	switch kind {
	case "echo":
		return NewEcho(agentID), nil
	case "probe":
		return NewProbe(agentID), nil
	default:
		return nil, fmt.Errorf("agents: unknown kind %q", kind)
	}
}

// NewEcho returns a handler that mirrors command parameters and query
// payloads back to the sender.
func NewEcho(agentID string) *runtime.Mux {
	reply := func(_ context.Context, msg *message.Message) (*message.Message, error) {
		return message.New(agentID, msg.Sender, message.KindResponse,
			map[string]any{"echo": runtime.Parameters(msg)},
			message.Opts{CorrelationID: msg.CorrelationID}), nil
	}
	m := runtime.NewMux().Command("echo", reply)
	m.Query("echo", func(_ context.Context, msg *message.Message) (*message.Message, error) {
		echoed := make(map[string]any, len(msg.Payload))
		for k, v := range msg.Payload {
			if k == runtime.QueryKey {
				continue
			}
			echoed[k] = v
		}
		return message.New(agentID, msg.Sender, message.KindResponse,
			map[string]any{"echo": echoed},
			message.Opts{CorrelationID: msg.CorrelationID}), nil
	})
	return m
}

// NewProbe returns a handler answering process-level status queries.
func NewProbe(agentID string) *runtime.Mux {
	started := time.Now()
	m := runtime.NewMux()
	m.Query("status", func(_ context.Context, msg *message.Message) (*message.Message, error) {
		return message.New(agentID, msg.Sender, message.KindResponse,
			map[string]any{
				"uptime_seconds": time.Since(started).Seconds(),
				"goroutines":     goruntime.NumGoroutine(),
			},
			message.Opts{CorrelationID: msg.CorrelationID}), nil
	})
	return m
}
