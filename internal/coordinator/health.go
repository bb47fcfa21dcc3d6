package coordinator

import (
	"fmt"
	"time"

	"github.com/hollandm/switchboard/internal/runtime"
)

// DefaultStaleThreshold is the default age after which a heartbeat counts as
// stale.
const DefaultStaleThreshold = 90 * time.Second

// StaleAgents returns descriptors of tracked agents whose last heartbeat is
// older than threshold. Agents that are shut down, or that have not emitted
// a first heartbeat yet, are skipped. Reporting only; no recovery action is
// taken.
func (c *Coordinator) StaleAgents(threshold time.Duration) ([]runtime.Descriptor, error) {
	if threshold <= 0 {
		return nil, fmt.Errorf("coordinator: threshold must be positive")
	}
	cutoff := time.Now().Add(-threshold)
	var out []runtime.Descriptor
	for _, rt := range c.tracked() {
		if rt.Status() == runtime.StatusShutdown {
			continue
		}
		hb := rt.LastHeartbeat()
		if hb.IsZero() {
			continue
		}
		if hb.Before(cutoff) {
			out = append(out, rt.Snapshot())
		}
	}
	return out, nil
}
