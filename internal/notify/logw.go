package notify

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// LogAdapter writes events to an io.Writer. It is the default operator
// channel when no chat platform is configured.
type LogAdapter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewLogAdapter creates a LogAdapter writing to out.
func NewLogAdapter(out io.Writer) *LogAdapter {
	return &LogAdapter{out: out}
}

// Send writes one event as a single line.
func (a *LogAdapter) Send(_ context.Context, ev Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := fmt.Fprintf(a.out, "[%s] %s: %s", ev.Severity, ev.Title, ev.Body); err != nil {
		return fmt.Errorf("log adapter: %w", err)
	}
	for k, v := range ev.Fields {
		fmt.Fprintf(a.out, " %s=%s", k, v)
	}
	fmt.Fprintln(a.out)
	return nil
}

// Close is a no-op.
func (a *LogAdapter) Close() error { return nil }
