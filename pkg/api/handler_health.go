package api

import (
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/nexagent/nexagent/pkg/version"
)

const healthStatusHealthy = "healthy"

// rootHandler handles GET /: a bare liveness probe.
func (s *Server) rootHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, &RootResponse{
		Message: "Nexagent API is running",
		Status:  "ok",
	})
}

// healthHandler handles GET /api/health. The endpoint is unauthenticated, so
// it is rate-limited per remote address to keep probe storms off the server.
func (s *Server) healthHandler(c *echo.Context) error {
	ok, retryAfter := s.health.allow(c.Request().RemoteAddr)
	if !ok {
		c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
		return c.JSON(http.StatusTooManyRequests, &RateLimitedResponse{
			Detail:     "rate limit exceeded",
			RetryAfter: retryAfter,
		})
	}

	resp := &HealthResponse{
		Status:        healthStatusHealthy,
		Server:        "nexagent",
		Version:       version.Version,
		TimestampMS:   time.Now().UnixMilli(),
		Connections:   s.broadcast.Count(),
		Conversations: s.orch.ConversationCount(),
	}
	if s.pipeline != nil {
		resp.Client = s.pipeline.Telemetry()
	}
	return c.JSON(http.StatusOK, resp)
}
