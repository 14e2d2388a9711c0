package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-gateway/internal/gateway"
)

// MessageHooksHandler exposes the hub's broadcast surface to the message
// service, which calls it after mutating persisted messages through its own
// REST API. The hub stays the single source of truth for who gets told what.
type MessageHooksHandler struct {
	hub *gateway.Hub
}

func NewMessageHooksHandler(hub *gateway.Hub) *MessageHooksHandler {
	return &MessageHooksHandler{hub: hub}
}

type messageUpdatedRequest struct {
	MessageID string `json:"messageId" binding:"required"`
	Content   string `json:"content" binding:"required"`
	AuthorID  string `json:"authorId" binding:"required"`
}

type messageDeletedRequest struct {
	MessageID string `json:"messageId" binding:"required"`
	AuthorID  string `json:"authorId" binding:"required"`
}

// MessageUpdated broadcasts a messageUpdated event to every connection.
func (h *MessageHooksHandler) MessageUpdated(c *gin.Context) {
	var req messageUpdatedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.hub.BroadcastMessageUpdate(req.MessageID, req.Content, req.AuthorID)
	c.JSON(http.StatusAccepted, gin.H{"status": "broadcast"})
}

// MessageDeleted broadcasts a messageDeleted event to every connection.
func (h *MessageHooksHandler) MessageDeleted(c *gin.Context) {
	var req messageDeletedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.hub.BroadcastMessageDelete(req.MessageID, req.AuthorID)
	c.JSON(http.StatusAccepted, gin.H{"status": "broadcast"})
}
