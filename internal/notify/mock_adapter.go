package notify

import (
	"context"
	"fmt"
	"sync"
)

// MockAdapter implements Adapter for testing. It records every event sent.
type MockAdapter struct {
	mu     sync.Mutex
	sent   []Event
	closed bool
	// SendErr, when set, is returned from every Send.
	SendErr error
}

// NewMockAdapter creates an empty MockAdapter.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{}
}

// Send records the event.
func (m *MockAdapter) Send(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("mock adapter: already closed")
	}
	if m.SendErr != nil {
		return m.SendErr
	}
	m.sent = append(m.sent, ev)
	return nil
}

// Close marks the adapter closed.
func (m *MockAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Sent returns a copy of the recorded events.
func (m *MockAdapter) Sent() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.sent))
	copy(out, m.sent)
	return out
}

// Closed reports whether Close was called.
func (m *MockAdapter) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
