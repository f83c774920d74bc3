package api

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"
)

// messageHandler handles POST /api/message: the single entry point for both
// chat and agent traffic.
func (s *Server) messageHandler(c *echo.Context) error {
	var req MessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Content) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content must not be empty")
	}

	res, err := s.orch.HandleMessage(c.Request().Context(), req.Content, req.ConversationID, req.ProcessingMode)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, &MessageResponse{
		ID:             res.Message.ID,
		Content:        res.Message.Content,
		ConversationID: res.ConversationID,
		TimestampMS:    res.Message.TimestampMS,
		Created:        res.Created,
		Mode:           res.Mode,
		Timeline:       res.Timeline,
	})
}
