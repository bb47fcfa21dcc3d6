// Package runtime wraps one logical agent in an execution lifecycle: a
// bounded inbound mailbox, a processing loop, a heartbeat loop, and running
// performance counters.
package runtime

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hollandm/switchboard/internal/message"
)

// DefaultHeartbeatInterval is the default interval between heartbeats.
const DefaultHeartbeatInterval = 30 * time.Second

// DefaultMailboxSize bounds the inbound queue when no size is configured.
const DefaultMailboxSize = 100

// Handler is the agent-specific collaborator the runtime drives. Handle may
// return one reply message or nil; it must not block indefinitely.
type Handler interface {
	Initialize(ctx context.Context) error
	Handle(ctx context.Context, msg *message.Message) (*message.Message, error)
	Shutdown(ctx context.Context) error
}

// SendFunc is the outbound-send capability the coordinator hands the runtime
// at registration. The runtime holds no bus reference.
type SendFunc func(ctx context.Context, msg *message.Message) error

// Descriptor is a point-in-time copy of an agent's reportable state.
type Descriptor struct {
	AgentID             string    `json:"agent_id"`
	Status              string    `json:"status"`
	Capabilities        []string  `json:"capabilities"`
	TasksCompleted      int64     `json:"tasks_completed"`
	TasksFailed         int64     `json:"tasks_failed"`
	AverageResponseTime float64   `json:"average_response_time"` // seconds, running mean
	LastHeartbeat       time.Time `json:"last_heartbeat"`
}

// Options configures a Runtime.
type Options struct {
	MailboxSize       int
	HeartbeatInterval time.Duration
}

// Runtime executes one agent. Counters are mutated only by the runtime's own
// loops (single-writer); readers go through atomics.
type Runtime struct {
	agentID string
	handler Handler

	mailbox           chan *message.Message
	heartbeatInterval time.Duration

	capMu  sync.Mutex
	caps   []string // insertion order
	capSet map[string]bool

	sendMu sync.RWMutex
	send   SendFunc

	status         atomic.Int32
	tasksCompleted atomic.Int64
	tasksFailed    atomic.Int64
	avgBits        atomic.Uint64 // math.Float64bits of the running mean
	lastHeartbeat  atomic.Int64  // unix nanos, 0 = never

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// New creates a runtime for one agent in the Initializing state.
func New(agentID string, handler Handler, opts Options) *Runtime {
	size := opts.MailboxSize
	if size <= 0 {
		size = DefaultMailboxSize
	}
	interval := opts.HeartbeatInterval
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	r := &Runtime{
		agentID:           agentID,
		handler:           handler,
		mailbox:           make(chan *message.Message, size),
		heartbeatInterval: interval,
		capSet:            make(map[string]bool),
	}
	r.status.Store(int32(StatusInitializing))
	return r
}

// AgentID returns the agent's stable identifier.
func (r *Runtime) AgentID() string { return r.agentID }

// Status returns the current lifecycle state.
func (r *Runtime) Status() Status { return Status(r.status.Load()) }

// AddCapability registers a capability the agent advertises. Idempotent.
func (r *Runtime) AddCapability(name string) {
	if name == "" {
		return
	}
	r.capMu.Lock()
	defer r.capMu.Unlock()
	if r.capSet[name] {
		return
	}
	r.capSet[name] = true
	r.caps = append(r.caps, name)
}

// HasCapability reports whether the agent advertises a capability.
func (r *Runtime) HasCapability(name string) bool {
	r.capMu.Lock()
	defer r.capMu.Unlock()
	return r.capSet[name]
}

// Capabilities returns the advertised capabilities in insertion order.
func (r *Runtime) Capabilities() []string {
	r.capMu.Lock()
	defer r.capMu.Unlock()
	out := make([]string, len(r.caps))
	copy(out, r.caps)
	return out
}

// SetOutbound installs the outbound-send capability. The coordinator calls
// this once at registration, before Start.
func (r *Runtime) SetOutbound(send SendFunc) {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()
	r.send = send
}

// Deliver enqueues one inbound message. It never blocks: a full mailbox or a
// stopped runtime returns an error, which the bus reports and absorbs.
func (r *Runtime) Deliver(msg *message.Message) error {
	if r.Status() == StatusShutdown {
		return fmt.Errorf("runtime %s: shut down", r.agentID)
	}
	select {
	case r.mailbox <- msg:
		return nil
	default:
		return fmt.Errorf("runtime %s: mailbox full", r.agentID)
	}
}

// Start runs the agent's Initialize hook, transitions to Active, and
// launches the processing and heartbeat loops.
func (r *Runtime) Start(ctx context.Context) error {
	r.lifecycleMu.Lock()
	defer r.lifecycleMu.Unlock()
	if r.started {
		return fmt.Errorf("runtime %s: already started", r.agentID)
	}

	if err := r.handler.Initialize(ctx); err != nil {
		return fmt.Errorf("runtime %s: initialize: %w", r.agentID, err)
	}

	r.started = true
	r.status.Store(int32(StatusActive))

	loopCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.wg.Add(2)
	go r.processLoop(loopCtx)
	go r.heartbeatLoop(loopCtx)
	return nil
}

// Stop signals both loops to exit, waits for them, runs the Shutdown hook,
// and transitions to Shutdown. Idempotent; never interrupts a handler
// invocation in progress.
func (r *Runtime) Stop(ctx context.Context) error {
	r.lifecycleMu.Lock()
	defer r.lifecycleMu.Unlock()
	if r.stopped {
		return nil
	}
	r.stopped = true

	if r.started {
		r.cancel()
		r.wg.Wait()
	}

	var err error
	if hookErr := r.handler.Shutdown(ctx); hookErr != nil {
		err = fmt.Errorf("runtime %s: shutdown: %w", r.agentID, hookErr)
	}
	r.status.Store(int32(StatusShutdown))
	return err
}

// Snapshot returns a copy of the agent's reportable state. The caller cannot
// reach the live counters through it.
func (r *Runtime) Snapshot() Descriptor {
	var hb time.Time
	if nanos := r.lastHeartbeat.Load(); nanos != 0 {
		hb = time.Unix(0, nanos)
	}
	return Descriptor{
		AgentID:             r.agentID,
		Status:              r.Status().String(),
		Capabilities:        r.Capabilities(),
		TasksCompleted:      r.tasksCompleted.Load(),
		TasksFailed:         r.tasksFailed.Load(),
		AverageResponseTime: math.Float64frombits(r.avgBits.Load()),
		LastHeartbeat:       hb,
	}
}

// TasksCompleted returns the completed-task counter.
func (r *Runtime) TasksCompleted() int64 { return r.tasksCompleted.Load() }

// TasksFailed returns the failed-task counter.
func (r *Runtime) TasksFailed() int64 { return r.tasksFailed.Load() }

// AverageResponseTime returns the running mean processing time in seconds.
func (r *Runtime) AverageResponseTime() float64 {
	return math.Float64frombits(r.avgBits.Load())
}

// LastHeartbeat returns the time of the last heartbeat, zero if none yet.
func (r *Runtime) LastHeartbeat() time.Time {
	nanos := r.lastHeartbeat.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

func (r *Runtime) processLoop(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-r.mailbox:
			r.process(ctx, msg)
		}
	}
}

// process drives one handler invocation and the counter updates around it.
// A handler fault marks the runtime Error and answers Command/Query senders
// with an error response; the loop keeps going either way.
func (r *Runtime) process(ctx context.Context, msg *message.Message) {
	start := time.Now()
	r.status.Store(int32(StatusBusy))

	reply, err := r.handler.Handle(ctx, msg)
	if err != nil {
		r.tasksFailed.Add(1)
		r.status.Store(int32(StatusError))
		log.Printf("runtime %s: handle %s: %v", r.agentID, msg.ID, err)
		if msg.Kind == message.KindCommand || msg.Kind == message.KindQuery {
			errResp := message.New(r.agentID, msg.Sender, message.KindResponse,
				map[string]any{"error": err.Error()},
				message.Opts{CorrelationID: msg.CorrelationID})
			r.forward(ctx, errResp)
		}
		return
	}

	if reply != nil {
		r.forward(ctx, reply)
	}

	r.recordCompletion(time.Since(start).Seconds())
	r.status.Store(int32(StatusIdle))
}

// recordCompletion folds one elapsed processing time (seconds) into the
// running mean: avg' = (avg*(n-1) + elapsed) / n with n the post-increment
// completed count.
func (r *Runtime) recordCompletion(elapsed float64) {
	n := r.tasksCompleted.Add(1)
	avg := math.Float64frombits(r.avgBits.Load())
	avg = (avg*float64(n-1) + elapsed) / float64(n)
	r.avgBits.Store(math.Float64bits(avg))
}

func (r *Runtime) heartbeatLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.emitHeartbeat(ctx)
		}
	}
}

// emitHeartbeat announces liveness and counters to every other agent.
func (r *Runtime) emitHeartbeat(ctx context.Context) {
	hb := message.New(r.agentID, message.BroadcastRecipient, message.KindHeartbeat,
		map[string]any{
			"status":                r.Status().String(),
			"tasks_completed":       r.tasksCompleted.Load(),
			"tasks_failed":          r.tasksFailed.Load(),
			"average_response_time": math.Float64frombits(r.avgBits.Load()),
			"capabilities":          r.Capabilities(),
		}, message.Opts{})
	r.forward(ctx, hb)
	r.lastHeartbeat.Store(time.Now().UnixNano())
}

// forward hands an outbound message to the bus through the injected send
// capability.
func (r *Runtime) forward(ctx context.Context, msg *message.Message) {
	r.sendMu.RLock()
	send := r.send
	r.sendMu.RUnlock()
	if send == nil {
		log.Printf("runtime %s: no outbound send installed, dropping %s", r.agentID, msg.ID)
		return
	}
	if err := send(ctx, msg); err != nil {
		log.Printf("runtime %s: forward %s: %v", r.agentID, msg.ID, err)
	}
}
