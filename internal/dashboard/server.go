// Package dashboard exposes the coordinator-facing surface over HTTP: status
// snapshots, audit views, and the broadcast/command/task operations, each
// mapped to one route.
package dashboard

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hollandm/switchboard/internal/audit"
	"github.com/hollandm/switchboard/internal/bus"
	"github.com/hollandm/switchboard/internal/coordinator"
)

// StartOpts holds configuration for the dashboard server.
type StartOpts struct {
	Coordinator *coordinator.Coordinator
	Bus         *bus.Bus
	Store       *audit.Store // optional; audit routes answer 503 without it
	Port        int
	Out         io.Writer
}

// Start launches the dashboard HTTP server. It blocks until ctx is
// cancelled, then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Coordinator == nil {
		return fmt.Errorf("dashboard: coordinator is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	router := newRouter(opts)

	addr := fmt.Sprintf(":%d", opts.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Dashboard running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// newRouter builds the Gin engine; split out for httptest use.
func newRouter(opts StartOpts) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, opts)
	return router
}
