package handlers

import (
	"net/http"

	"support360/internal/services"
	"support360/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// KnowledgeHandler 知识库处理器
type KnowledgeHandler struct {
	kb     *services.KnowledgeService
	logger *logrus.Logger
}

func NewKnowledgeHandler(kb *services.KnowledgeService, logger *logrus.Logger) *KnowledgeHandler {
	return &KnowledgeHandler{kb: kb, logger: defaultLogger(logger)}
}

// ListArticles GET /api/v1/kb/articles?category=Billing&q=refund
func (h *KnowledgeHandler) ListArticles(c *gin.Context) {
	actor := currentUser(c)
	articles, err := h.kb.List(c.Request.Context(), actor, c.Query("category"), c.Query("q"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":       articles,
		"categories": h.kb.Categories(actor),
	})
}

// GetArticle 获取文章并计数
func (h *KnowledgeHandler) GetArticle(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	a, err := h.kb.Get(c.Request.Context(), currentUser(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *KnowledgeHandler) CreateArticle(c *gin.Context) {
	var req store.KbArticleInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	a, err := h.kb.Create(c.Request.Context(), currentUser(c), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (h *KnowledgeHandler) UpdateArticle(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req store.KbArticlePatch
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	a, err := h.kb.Update(c.Request.Context(), currentUser(c), id, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *KnowledgeHandler) DeleteArticle(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.kb.Delete(c.Request.Context(), currentUser(c), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Article deleted"})
}
