// Package notify fans operator-visible events (routing failures, lifecycle
// faults, dropped deliveries) out to chat platforms. The bus and coordinator
// report through it; it never blocks them.
package notify

import (
	"context"
	"log"
	"sync"
)

// Severity levels for operator events.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Event is one operator-visible occurrence.
type Event struct {
	Severity string
	Title    string
	Body     string
	Fields   map[string]string
}

// Adapter is the interface platform-specific implementations satisfy.
type Adapter interface {
	// Send delivers one event to the platform.
	Send(ctx context.Context, ev Event) error

	// Close shuts down the adapter connection.
	Close() error
}

// Notifier fans events out to adapters from a single goroutine. Publish
// never blocks: when the buffer is full the event is dropped, since operator
// reporting must not stall message routing.
type Notifier struct {
	adapters []Adapter
	events   chan Event
	done     chan struct{}
	once     sync.Once
}

// NewNotifier starts a notifier over the given adapters. A notifier with no
// adapters is valid and discards everything.
func NewNotifier(adapters ...Adapter) *Notifier {
	n := &Notifier{
		adapters: adapters,
		events:   make(chan Event, 64),
		done:     make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *Notifier) run() {
	for {
		select {
		case <-n.done:
			return
		case ev := <-n.events:
			for _, a := range n.adapters {
				if err := a.Send(context.Background(), ev); err != nil {
					log.Printf("notify: %s adapter send: %v", ev.Severity, err)
				}
			}
		}
	}
}

// Publish queues an event for delivery. Drops when saturated.
func (n *Notifier) Publish(ev Event) {
	if n == nil {
		return
	}
	select {
	case n.events <- ev:
	default:
		log.Printf("notify: buffer full, dropping event %q", ev.Title)
	}
}

// Close stops the fan-out goroutine and closes every adapter. Idempotent.
func (n *Notifier) Close() {
	if n == nil {
		return
	}
	n.once.Do(func() {
		close(n.done)
		for _, a := range n.adapters {
			if err := a.Close(); err != nil {
				log.Printf("notify: adapter close: %v", err)
			}
		}
	})
}
