package handler

import (
	"net/http"

	"tokenchat/backend/internal/models"
	"tokenchat/backend/internal/notifyhub"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allows connections from any origin. Tighten for production.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket upgrades the connection and registers the participant with
// the notify hub so quota events reach them in real time.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	participantID, ok := h.participantFromRequest(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to upgrade connection"})
		return
	}

	client := &notifyhub.WebSocketClient{
		Hub:    h.Hub,
		UserID: participantID,
		Conn:   conn,
		Send:   make(chan models.QuotaEvent, 64),
	}

	h.Hub.RegisterCh <- client
}
