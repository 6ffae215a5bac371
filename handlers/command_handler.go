package handlers

import (
	"net/http"

	"puzzlebot/middleware"
	"puzzlebot/services"

	"github.com/gin-gonic/gin"
)

type CommandHandler struct {
	responder *services.Responder
}

func NewCommandHandler(responder *services.Responder) *CommandHandler {
	return &CommandHandler{
		responder: responder,
	}
}

type CommandRequest struct {
	Text      string `json:"text" binding:"required"`
	MessageID int64  `json:"message_id"`
}

// HandleCommand is the chat gateway webhook: one inbound message in, one
// rendered reply out. Rejected commands are still 200 responses; the reply
// text explains the rejection and kind classifies it.
func (h *CommandHandler) HandleCommand(c *gin.Context) {
	sender, exists := middleware.SenderFrom(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Sender not authenticated"})
		return
	}

	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cmd := services.NewCommand(sender, req.Text, req.MessageID)
	c.JSON(http.StatusOK, h.responder.Respond(c.Request.Context(), cmd))
}
