package runtime

import (
	"context"
	"fmt"

	"github.com/hollandm/switchboard/internal/message"
)

// Payload keys the mux dispatches on.
const (
	// CommandKey names the operation inside a Command payload.
	CommandKey = "command"
	// QueryKey names the operation inside a Query payload.
	QueryKey = "query_type"
	// ParametersKey holds a Command's parameter map.
	ParametersKey = "parameters"
)

// HandlerFunc processes one message and may return a reply.
type HandlerFunc func(ctx context.Context, msg *message.Message) (*message.Message, error)

// Mux is a dispatch table mapping command and query operation names to
// handler functions. It is built once per agent type and replaces
// string-chained dispatch inside handlers. Mux implements Handler.
type Mux struct {
	commands map[string]HandlerFunc
	queries  map[string]HandlerFunc

	// Default, when set, receives messages the table does not dispatch
	// (alerts, broadcasts, heartbeats). Without it those are ignored.
	Default HandlerFunc

	// InitializeFunc and ShutdownFunc are optional lifecycle hooks.
	InitializeFunc func(ctx context.Context) error
	ShutdownFunc   func(ctx context.Context) error
}

// NewMux creates an empty dispatch table.
func NewMux() *Mux {
	return &Mux{
		commands: make(map[string]HandlerFunc),
		queries:  make(map[string]HandlerFunc),
	}
}

// Command registers the handler for a command operation. Registering the
// same name twice panics; tables are fixed at construction.
func (m *Mux) Command(name string, fn HandlerFunc) *Mux {
	if _, ok := m.commands[name]; ok {
		panic(fmt.Sprintf("mux: duplicate command %q", name))
	}
	m.commands[name] = fn
	return m
}

// Query registers the handler for a query operation.
func (m *Mux) Query(name string, fn HandlerFunc) *Mux {
	if _, ok := m.queries[name]; ok {
		panic(fmt.Sprintf("mux: duplicate query %q", name))
	}
	m.queries[name] = fn
	return m
}

// Initialize runs the optional initialize hook.
func (m *Mux) Initialize(ctx context.Context) error {
	if m.InitializeFunc == nil {
		return nil
	}
	return m.InitializeFunc(ctx)
}

// Shutdown runs the optional shutdown hook.
func (m *Mux) Shutdown(ctx context.Context) error {
	if m.ShutdownFunc == nil {
		return nil
	}
	return m.ShutdownFunc(ctx)
}

// Handle dispatches one message through the table. Unknown command or query
// operations are handler faults; the runtime converts them into error
// responses.
func (m *Mux) Handle(ctx context.Context, msg *message.Message) (*message.Message, error) {
	switch msg.Kind {
	case message.KindCommand:
		name, _ := msg.Payload[CommandKey].(string)
		fn, ok := m.commands[name]
		if !ok {
			return nil, fmt.Errorf("mux: unknown command %q", name)
		}
		return fn(ctx, msg)
	case message.KindQuery:
		name, _ := msg.Payload[QueryKey].(string)
		fn, ok := m.queries[name]
		if !ok {
			return nil, fmt.Errorf("mux: unknown query %q", name)
		}
		return fn(ctx, msg)
	default:
		if m.Default != nil {
			return m.Default(ctx, msg)
		}
		return nil, nil
	}
}

// Parameters extracts a Command's parameter map, never nil.
func Parameters(msg *message.Message) map[string]any {
	params, _ := msg.Payload[ParametersKey].(map[string]any)
	if params == nil {
		params = map[string]any{}
	}
	return params
}
