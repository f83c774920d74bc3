package api

import (
	"net/http"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"
)

// wsHandler handles GET /api/ws/timeline/:id. The snapshot is resolved
// before the upgrade so unknown conversations fail with a plain 404 instead
// of a dead socket.
func (s *Server) wsHandler(c *echo.Context) error {
	conversationID := c.Param("id")
	if conversationID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "conversation id is required")
	}

	snapshot, err := s.orch.Timeline(conversationID)
	if err != nil {
		return mapServiceError(err)
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		// Local-first deployment: all origins accepted.
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}

	// HandleConnection blocks until the WebSocket closes.
	s.broadcast.HandleConnection(c.Request().Context(), conversationID, conn, snapshot)
	return nil
}
