package handlers

import (
	"context"
	"net/http"
	"time"

	"support360/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AIHandler AI 服务处理器
type AIHandler struct {
	ai      *services.AIService
	timeout time.Duration
	logger  *logrus.Logger
}

// NewAIHandler 创建 AI 处理器
func NewAIHandler(ai *services.AIService, logger *logrus.Logger) *AIHandler {
	return &AIHandler{ai: ai, timeout: 30 * time.Second, logger: defaultLogger(logger)}
}

// CompleteRequest 单轮生成请求
type CompleteRequest struct {
	Prompt string `json:"prompt" binding:"required"`
}

// SettingsRequest carries a new generative API key.
type SettingsRequest struct {
	APIKey string `json:"api_key" binding:"required"`
}

// Chat POST /api/v1/chat
func (h *AIHandler) Chat(c *gin.Context) {
	var req services.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	resp, err := h.ai.Chat(ctx, currentUser(c), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Complete POST /api/v1/ai/complete. Failures come back as reply text, never as errors.
func (h *AIHandler) Complete(c *gin.Context) {
	var req CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	start := time.Now()
	reply := h.ai.Complete(ctx, req.Prompt)
	c.JSON(http.StatusOK, gin.H{
		"reply":    reply,
		"duration": time.Since(start).String(),
	})
}

// GetSettings GET /api/v1/settings/ai
func (h *AIHandler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.ai.Status()})
}

// UpdateSettings PUT /api/v1/settings/ai
func (h *AIHandler) UpdateSettings(c *gin.Context) {
	var req SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.ai.SetAPIKey(req.APIKey); err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.logger.WithField("actor_id", currentUser(c).ID).Info("Generative API key updated")
	c.JSON(http.StatusOK, SuccessResponse{Message: "AI settings updated", Data: h.ai.Status()})
}
