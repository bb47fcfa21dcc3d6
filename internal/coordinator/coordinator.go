// Package coordinator wires agent runtimes to the bus, owns their lifecycle,
// and performs capability-based least-loaded task assignment.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/hollandm/switchboard/internal/bus"
	"github.com/hollandm/switchboard/internal/message"
	"github.com/hollandm/switchboard/internal/notify"
	"github.com/hollandm/switchboard/internal/runtime"
)

// Coordinator is the highest-level façade over the coordination core.
type Coordinator struct {
	systemID string
	bus      *bus.Bus
	operator *notify.Notifier

	mu     sync.Mutex
	agents map[string]*runtime.Runtime
	order  []string // registration order, ties in DistributeTask break on it
}

// Options configures a Coordinator.
type Options struct {
	// SystemID is the sender identity for coordinator-issued messages.
	// Defaults to message.SystemID.
	SystemID string
	Operator *notify.Notifier
}

// New creates a coordinator over a bus.
func New(b *bus.Bus, opts Options) *Coordinator {
	systemID := opts.SystemID
	if systemID == "" {
		systemID = message.SystemID
	}
	return &Coordinator{
		systemID: systemID,
		bus:      b,
		operator: opts.Operator,
		agents:   make(map[string]*runtime.Runtime),
	}
}

// Register adds a runtime to the coordinator's registry and the bus, and
// installs the runtime's outbound-send capability.
func (c *Coordinator) Register(rt *runtime.Runtime) error {
	if rt == nil {
		return fmt.Errorf("coordinator: runtime is required")
	}
	if err := c.bus.Register(rt.AgentID(), rt); err != nil {
		return fmt.Errorf("coordinator: register %s: %w", rt.AgentID(), err)
	}
	rt.SetOutbound(c.bus.Send)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.agents[rt.AgentID()] = rt
	c.order = append(c.order, rt.AgentID())
	return nil
}

// StartAll starts every tracked runtime in registration order. A failure
// starting one agent does not prevent attempting the others; collected
// errors come back joined and are also reported to the operator channel.
func (c *Coordinator) StartAll(ctx context.Context) error {
	var errs []error
	for _, rt := range c.tracked() {
		if err := rt.Start(ctx); err != nil {
			errs = append(errs, err)
			log.Printf("coordinator: start %s: %v", rt.AgentID(), err)
			c.operator.Publish(notify.Event{
				Severity: notify.SeverityError,
				Title:    "agent start failed",
				Body:     err.Error(),
				Fields:   map[string]string{"agent": rt.AgentID()},
			})
		}
	}
	return errors.Join(errs...)
}

// StopAll stops every tracked runtime, best-effort.
func (c *Coordinator) StopAll(ctx context.Context) error {
	var errs []error
	for _, rt := range c.tracked() {
		if err := rt.Stop(ctx); err != nil {
			errs = append(errs, err)
			log.Printf("coordinator: stop %s: %v", rt.AgentID(), err)
			c.operator.Publish(notify.Event{
				Severity: notify.SeverityWarning,
				Title:    "agent shutdown fault",
				Body:     err.Error(),
				Fields:   map[string]string{"agent": rt.AgentID()},
			})
		}
	}
	return errors.Join(errs...)
}

// Broadcast sends a system-identity message to every registered agent.
func (c *Coordinator) Broadcast(ctx context.Context, kind message.Kind, payload map[string]any, priority int) error {
	msg := message.New(c.systemID, message.BroadcastRecipient, kind, payload, message.Opts{
		Priority: priority,
	})
	return c.bus.Send(ctx, msg)
}

// SendCommand builds and sends a Command to one agent. The boolean reports
// whether the target is currently tracked (delivery, not execution).
func (c *Coordinator) SendCommand(ctx context.Context, target, command string, parameters map[string]any) (bool, error) {
	c.mu.Lock()
	_, ok := c.agents[target]
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	if parameters == nil {
		parameters = map[string]any{}
	}
	msg := message.New(c.systemID, target, message.KindCommand, map[string]any{
		runtime.CommandKey:    command,
		runtime.ParametersKey: parameters,
	}, message.Opts{})
	if err := c.bus.Send(ctx, msg); err != nil {
		return true, fmt.Errorf("coordinator: command %s to %s: %w", command, target, err)
	}
	return true, nil
}

// Query sends a query to one agent and waits for the correlated response.
func (c *Coordinator) Query(ctx context.Context, target, queryType string, payload map[string]any, timeout time.Duration) (map[string]any, error) {
	merged := map[string]any{runtime.QueryKey: queryType}
	for k, v := range payload {
		merged[k] = v
	}
	return c.bus.Query(ctx, target, merged, timeout)
}

// AgentsWithCapability returns the ids of tracked agents advertising the
// capability, in registration order.
func (c *Coordinator) AgentsWithCapability(name string) []string {
	var out []string
	for _, rt := range c.tracked() {
		if rt.HasCapability(name) {
			out = append(out, rt.AgentID())
		}
	}
	return out
}

// DistributeTask assigns a task to the least-loaded capable agent and sends
// it as a Command. It returns ("", false, nil) when no agent qualifies. The
// heuristic considers completed-task counts only, not current Busy/Idle
// state or in-flight work.
func (c *Coordinator) DistributeTask(ctx context.Context, taskKind string, taskData map[string]any, requiredCapability string) (string, bool, error) {
	var candidates []*runtime.Runtime
	for _, rt := range c.tracked() {
		if requiredCapability == "" || rt.HasCapability(requiredCapability) {
			candidates = append(candidates, rt)
		}
	}
	if len(candidates) == 0 {
		log.Printf("coordinator: no agents available for task %s", taskKind)
		return "", false, nil
	}

	best := candidates[0]
	for _, rt := range candidates[1:] {
		if rt.TasksCompleted() < best.TasksCompleted() {
			best = rt
		}
	}

	if _, err := c.SendCommand(ctx, best.AgentID(), taskKind, taskData); err != nil {
		return "", false, err
	}
	return best.AgentID(), true, nil
}

// StatusSnapshot returns a point-in-time copy of every tracked agent's
// descriptor. Mutating the result never reaches live counters.
func (c *Coordinator) StatusSnapshot() map[string]runtime.Descriptor {
	out := make(map[string]runtime.Descriptor)
	for _, rt := range c.tracked() {
		out[rt.AgentID()] = rt.Snapshot()
	}
	return out
}

// AgentSnapshot returns one agent's descriptor.
func (c *Coordinator) AgentSnapshot(agentID string) (runtime.Descriptor, bool) {
	c.mu.Lock()
	rt, ok := c.agents[agentID]
	c.mu.Unlock()
	if !ok {
		return runtime.Descriptor{}, false
	}
	return rt.Snapshot(), true
}

// tracked snapshots the runtimes in registration order.
func (c *Coordinator) tracked() []*runtime.Runtime {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*runtime.Runtime, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.agents[id])
	}
	return out
}
