package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/nexagent/nexagent/pkg/conversation"
)

// listConversationsHandler handles GET /api/conversations. The list carries
// summaries; full transcripts come from the detail endpoint.
func (s *Server) listConversationsHandler(c *echo.Context) error {
	list, err := s.orch.Conversations()
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &ConversationListResponse{
		Conversations: list,
		Count:         len(list),
	})
}

// getConversationHandler handles GET /api/conversations/:id.
func (s *Server) getConversationHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "conversation id is required")
	}

	detail, err := s.orch.Conversation(id)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, detail)
}

// timelineHandler handles GET /api/conversations/:id/timeline. Ids with the
// dashboard placeholder prefixes yield an empty timeline instead of a 404 so
// clients can subscribe before the first message lands.
func (s *Server) timelineHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "conversation id is required")
	}

	tl, err := s.orch.Timeline(id)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, tl)
}

// cancelConversationHandler handles POST /api/conversations/:id/cancel.
// Cancellation is cooperative; the response reports whether a running loop
// accepted the request.
func (s *Server) cancelConversationHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "conversation id is required")
	}

	cancelled := s.orch.Cancel(id)
	if !cancelled {
		// Distinguish "nothing running" from "no such conversation".
		if _, err := s.orch.Conversation(id); err != nil {
			return mapServiceError(err)
		}
	}

	msg := "no agent run in progress"
	if cancelled {
		msg = "cancellation requested"
	}
	return c.JSON(http.StatusOK, &CancelResponse{
		ConversationID: id,
		Cancelled:      cancelled,
		Message:        msg,
	})
}

// exportConversationHandler handles POST /api/conversations/:id/export.
func (s *Server) exportConversationHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "conversation id is required")
	}

	var req ExportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Format == "" {
		req.Format = conversation.FormatMarkdown
	}

	res, err := s.orch.Export(id, req.Format)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, res)
}
