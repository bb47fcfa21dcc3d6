package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hollandm/switchboard/internal/message"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom,
// month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// StartAnnounce launches a goroutine that broadcasts a system status summary
// on a cron schedule. It stops when ctx is cancelled. The expression is
// validated up front.
func (c *Coordinator) StartAnnounce(ctx context.Context, expr string) error {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return fmt.Errorf("coordinator: announce schedule %q: %w", expr, err)
	}
	go func() {
		for {
			next := sched.Next(time.Now())
			timer := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				c.Broadcast(ctx, message.KindAlert, c.announcePayload(), message.DefaultPriority)
			}
		}
	}()
	return nil
}

// announcePayload summarizes the status snapshot for a broadcast.
func (c *Coordinator) announcePayload() map[string]any {
	snap := c.StatusSnapshot()
	statuses := make(map[string]int)
	var completed, failed int64
	for _, d := range snap {
		statuses[d.Status]++
		completed += d.TasksCompleted
		failed += d.TasksFailed
	}
	return map[string]any{
		"announce":        "status_summary",
		"agents":          len(snap),
		"statuses":        statuses,
		"tasks_completed": completed,
		"tasks_failed":    failed,
	}
}
