// Package message defines the inter-agent message value and its kinds.
package message

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// SystemID is the reserved sender identity for messages issued by the
	// coordinator or the bus itself rather than by an agent.
	SystemID = "system"

	// BroadcastRecipient is the reserved recipient meaning "every registered
	// agent except the sender".
	BroadcastRecipient = "broadcast"
)

const (
	// DefaultPriority is assigned when a message is built without one.
	DefaultPriority = 5
	minPriority     = 1
	maxPriority     = 10
)

// Kind classifies a message.
type Kind int

const (
	KindCommand Kind = iota
	KindQuery
	KindResponse
	KindAlert
	KindBroadcast
	KindHeartbeat
)

var kindNames = map[Kind]string{
	KindCommand:   "command",
	KindQuery:     "query",
	KindResponse:  "response",
	KindAlert:     "alert",
	KindBroadcast: "broadcast",
	KindHeartbeat: "heartbeat",
}

// String returns the wire/audit name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps an audit/CLI name back to a Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("message: unknown kind %q", s)
}

// Message is one unit of inter-agent communication. Messages are treated as
// immutable once handed to the bus.
type Message struct {
	ID            string
	Sender        string
	Recipient     string
	Kind          Kind
	Payload       map[string]any
	Priority      int // 1-10, advisory only; no queue orders on it
	Timestamp     time.Time
	CorrelationID string
	ExpiresAt     *time.Time // declared but not enforced anywhere
}

// Opts holds the optional fields of a message.
type Opts struct {
	Priority      int
	CorrelationID string
	ExpiresAt     *time.Time
}

// New builds a message with a fresh ID and timestamp. A zero Opts priority
// becomes DefaultPriority; out-of-range priorities are clamped.
func New(sender, recipient string, kind Kind, payload map[string]any, opts Opts) *Message {
	priority := opts.Priority
	if priority == 0 {
		priority = DefaultPriority
	}
	if priority < minPriority {
		priority = minPriority
	}
	if priority > maxPriority {
		priority = maxPriority
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return &Message{
		ID:            NewID("msg"),
		Sender:        sender,
		Recipient:     recipient,
		Kind:          kind,
		Payload:       payload,
		Priority:      priority,
		Timestamp:     time.Now(),
		CorrelationID: opts.CorrelationID,
		ExpiresAt:     opts.ExpiresAt,
	}
}

// NewID returns a prefixed unique identifier, e.g. "msg_4f1c...".
func NewID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}
