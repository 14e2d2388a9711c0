package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-gateway/internal/gateway"
)

// PresenceHandler serves the REST view of derived presence for callers
// without a websocket connection.
type PresenceHandler struct {
	hub *gateway.Hub
}

func NewPresenceHandler(hub *gateway.Hub) *PresenceHandler {
	return &PresenceHandler{hub: hub}
}

// OnlineUsers returns every user with at least one live connection on this
// gateway process.
func (h *PresenceHandler) OnlineUsers(c *gin.Context) {
	users := h.hub.OnlineUsers()
	if users == nil {
		users = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}
