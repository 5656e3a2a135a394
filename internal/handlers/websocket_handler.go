package handlers

import (
	"net/http"

	"support360/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// WebSocketHandler WebSocket 处理器
type WebSocketHandler struct {
	hub    *services.WebSocketHub
	logger *logrus.Logger
}

func NewWebSocketHandler(hub *services.WebSocketHub, logger *logrus.Logger) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, logger: defaultLogger(logger)}
}

// HandleWebSocket upgrades an authenticated request; the token arrives in the query.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	user := currentUser(c)
	if err := h.hub.ServeClient(c.Writer, c.Request, user); err != nil {
		// the upgrader has already written the failure response
		h.logger.WithError(err).WithField("user_id", user.ID).Warn("WebSocket upgrade failed")
	}
}

// GetStats 获取连接统计
func (h *WebSocketHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"client_count": h.hub.GetClientCount()},
	})
}
