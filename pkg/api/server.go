// Package api exposes the HTTP and WebSocket surface: message submission,
// conversation listing and export, timeline reads, health, and the
// per-conversation timeline subscription socket.
package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/nexagent/nexagent/pkg/browser"
	"github.com/nexagent/nexagent/pkg/config"
	"github.com/nexagent/nexagent/pkg/events"
	"github.com/nexagent/nexagent/pkg/orchestrator"
	"github.com/nexagent/nexagent/pkg/tools"
)

// Server wires the orchestrator, broadcaster, tool registry, and browse
// pipeline behind the HTTP routes.
type Server struct {
	cfg       *config.Config
	orch      *orchestrator.Orchestrator
	broadcast *events.Broadcaster
	registry  *tools.Registry
	pipeline  *browser.Pipeline

	echo       *echo.Echo
	httpServer *http.Server
	health     *limiterTable
}

// NewServer builds the server and registers all routes. pipeline may be nil;
// the health payload then omits browse telemetry.
func NewServer(
	cfg *config.Config,
	orch *orchestrator.Orchestrator,
	broadcast *events.Broadcaster,
	registry *tools.Registry,
	pipeline *browser.Pipeline,
) *Server {
	s := &Server{
		cfg:       cfg,
		orch:      orch,
		broadcast: broadcast,
		registry:  registry,
		pipeline:  pipeline,
		health:    newLimiterTable(healthRateWindow, healthRateBurst),
	}

	e := echo.New()
	e.Use(securityHeaders())

	e.GET("/", s.rootHandler)
	e.GET("/api/health", s.healthHandler)
	e.POST("/api/message", s.messageHandler)
	e.GET("/api/conversations", s.listConversationsHandler)
	e.GET("/api/conversations/:id", s.getConversationHandler)
	e.GET("/api/conversations/:id/timeline", s.timelineHandler)
	e.POST("/api/conversations/:id/cancel", s.cancelConversationHandler)
	e.POST("/api/conversations/:id/export", s.exportConversationHandler)
	e.GET("/api/tools", s.listToolsHandler)
	e.GET("/api/ws/timeline/:id", s.wsHandler)

	s.echo = e
	return s
}

// Start serves HTTP on addr and blocks until the listener closes.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting requests and drains in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP lets the server be mounted as a plain http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
