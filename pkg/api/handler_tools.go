package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// listToolsHandler handles GET /api/tools: registered tool definitions with
// their schemas and dependencies.
func (s *Server) listToolsHandler(c *echo.Context) error {
	defs := s.registry.Definitions()
	return c.JSON(http.StatusOK, &ToolListResponse{
		Tools: defs,
		Count: len(defs),
	})
}
