package dashboard

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	statusPushInterval = 3 * time.Second
	keepaliveInterval  = 15 * time.Second
)

// handleSSE streams status snapshots to the client: a connected event, a
// "status" event on each push interval, and keepalive heartbeats.
func handleSSE(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
		c.Writer.Flush()

		ctx := c.Request.Context()
		ticker := time.NewTicker(statusPushInterval)
		keepalive := time.NewTicker(keepaliveInterval)
		defer ticker.Stop()
		defer keepalive.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-keepalive.C:
				writeSSE(c.Writer, "heartbeat", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case <-ticker.C:
				writeSSE(c.Writer, "status", gin.H{
					"agents": opts.Coordinator.StatusSnapshot(),
				})
				c.Writer.Flush()
			}
		}
	}
}

// writeSSE writes one event in text/event-stream framing.
func writeSSE(w http.ResponseWriter, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}
