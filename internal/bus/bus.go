// Package bus routes messages between registered agents, brokers
// correlation-based query/response exchanges, and records every message in
// the audit trail.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/hollandm/switchboard/internal/audit"
	"github.com/hollandm/switchboard/internal/message"
	"github.com/hollandm/switchboard/internal/notify"
)

// ErrDuplicateAgent is returned by Register for an already-registered id.
var ErrDuplicateAgent = errors.New("bus: agent already registered")

// DefaultQueryTimeout bounds Query when the caller passes no timeout.
const DefaultQueryTimeout = 30 * time.Second

// Inbound is the destination handle an agent registers with the bus.
// Deliver must not block; a full mailbox returns an error and the bus
// reports the drop to the operator channel.
type Inbound interface {
	Deliver(msg *message.Message) error
}

// Bus is the single-process message router. The registry and the
// pending-query map are the only state shared across goroutines; both are
// mutex-guarded.
type Bus struct {
	mu       sync.Mutex
	registry map[string]Inbound
	order    []string // registration order, for deterministic broadcast fan-out

	pendingMu sync.Mutex
	pending   map[string]chan *message.Message

	store    *audit.Store     // optional; nil disables persistence
	operator *notify.Notifier // optional
}

// Options configures a Bus.
type Options struct {
	Store    *audit.Store
	Operator *notify.Notifier
}

// New creates an empty bus.
func New(opts Options) *Bus {
	return &Bus{
		registry: make(map[string]Inbound),
		pending:  make(map[string]chan *message.Message),
		store:    opts.Store,
		operator: opts.Operator,
	}
}

// Register records a routable destination.
func (b *Bus) Register(agentID string, in Inbound) error {
	if agentID == "" {
		return fmt.Errorf("bus: agentID is required")
	}
	if in == nil {
		return fmt.Errorf("bus: inbound handle is required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.registry[agentID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateAgent, agentID)
	}
	b.registry[agentID] = in
	b.order = append(b.order, agentID)
	return nil
}

// Unregister removes a destination. Messages already queued for it are not
// retracted.
func (b *Bus) Unregister(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.registry[agentID]; !ok {
		return
	}
	delete(b.registry, agentID)
	for i, id := range b.order {
		if id == agentID {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Registered returns agent ids in registration order.
func (b *Bus) Registered() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// Send persists the message to the audit trail, then routes it. Only an
// audit-persistence failure is returned; routing problems (unknown
// recipient, full mailbox) are reported to the operator channel and logged.
func (b *Bus) Send(ctx context.Context, msg *message.Message) error {
	if msg == nil {
		return fmt.Errorf("bus: message is required")
	}
	if msg.ID == "" {
		msg.ID = message.NewID("msg")
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	if b.store != nil {
		if err := b.store.Append(msg); err != nil {
			return fmt.Errorf("bus: send %s: %w", msg.ID, err)
		}
	}

	resolved := false
	if msg.Kind == message.KindResponse && msg.CorrelationID != "" {
		resolved = b.resolve(msg)
	}

	if msg.Recipient == message.BroadcastRecipient {
		for _, id := range b.targetsExcept(msg.Sender) {
			b.deliver(id, msg)
		}
		return nil
	}

	b.mu.Lock()
	_, known := b.registry[msg.Recipient]
	b.mu.Unlock()
	if known {
		b.deliver(msg.Recipient, msg)
		return nil
	}
	if !resolved {
		log.Printf("bus: unknown recipient %s for message %s", msg.Recipient, msg.ID)
		b.operator.Publish(notify.Event{
			Severity: notify.SeverityWarning,
			Title:    "unknown recipient",
			Body:     "message could not be routed",
			Fields:   map[string]string{"recipient": msg.Recipient, "message_id": msg.ID, "sender": msg.Sender},
		})
	}
	return nil
}

// Query sends a Query message to target and waits for a Response carrying
// the matching correlation id. A timeout or cancellation is "no answer": it
// returns (nil, nil). The pending entry is removed on every path.
func (b *Bus) Query(ctx context.Context, target string, payload map[string]any, timeout time.Duration) (map[string]any, error) {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	correlationID := message.NewID("query")
	waiter := make(chan *message.Message, 1)

	b.pendingMu.Lock()
	b.pending[correlationID] = waiter
	b.pendingMu.Unlock()
	defer func() {
		b.pendingMu.Lock()
		delete(b.pending, correlationID)
		b.pendingMu.Unlock()
	}()

	msg := message.New(message.SystemID, target, message.KindQuery, payload, message.Opts{
		CorrelationID: correlationID,
	})
	if err := b.Send(ctx, msg); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case resp := <-waiter:
		return resp.Payload, nil
	case <-timer.C:
		log.Printf("bus: query %s to %s timed out after %s", correlationID, target, timeout)
		return nil, nil
	case <-ctx.Done():
		return nil, nil
	}
}

// PendingQueries returns the number of unresolved query waiters.
func (b *Bus) PendingQueries() int {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	return len(b.pending)
}

// resolve hands a response to its waiter. The first matching response wins;
// the entry is removed under the lock so later responses are ignored.
func (b *Bus) resolve(msg *message.Message) bool {
	b.pendingMu.Lock()
	waiter, ok := b.pending[msg.CorrelationID]
	if ok {
		delete(b.pending, msg.CorrelationID)
	}
	b.pendingMu.Unlock()
	if !ok {
		return false
	}
	waiter <- msg // buffered, never blocks
	return true
}

// targetsExcept snapshots the registry order minus one sender.
func (b *Bus) targetsExcept(sender string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.order))
	for _, id := range b.order {
		if id != sender {
			out = append(out, id)
		}
	}
	return out
}

// deliver hands a message to one destination, reporting drops.
func (b *Bus) deliver(agentID string, msg *message.Message) {
	b.mu.Lock()
	in, ok := b.registry[agentID]
	b.mu.Unlock()
	if !ok {
		return
	}
	if err := in.Deliver(msg); err != nil {
		log.Printf("bus: deliver %s to %s: %v", msg.ID, agentID, err)
		b.operator.Publish(notify.Event{
			Severity: notify.SeverityWarning,
			Title:    "delivery dropped",
			Body:     err.Error(),
			Fields:   map[string]string{"recipient": agentID, "message_id": msg.ID},
		})
	}
}
