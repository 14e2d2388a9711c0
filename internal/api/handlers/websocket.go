package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"chat-gateway/internal/gateway"
)

// WSHandler upgrades HTTP requests and hands the connection to the hub.
type WSHandler struct {
	hub      *gateway.Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewWSHandler(hub *gateway.Hub, extraOrigins []string, logger *slog.Logger) *WSHandler {
	allowedOrigins := append([]string{
		"http://localhost:3000",
		"https://localhost:3000",
		"http://127.0.0.1:3000",
	}, extraOrigins...)

	return &WSHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					// Non-browser clients (service tooling, tests).
					return true
				}
				for _, allowed := range allowedOrigins {
					if origin == allowed {
						return true
					}
				}
				return strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1")
			},
		},
		logger: logger.With("component", "ws_handler"),
	}
}

// HandleWebSocket upgrades the connection and runs its pumps. Credentials
// may arrive as a `token` query parameter for connect-time authentication;
// a connection without one stays in the grace period until it sends an
// authenticate event.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := gateway.NewClient(h.hub, conn, h.logger)

	token := c.Query("token")
	claimedUserID := c.Query("userId")

	go client.Run(token, claimedUserID)
}
